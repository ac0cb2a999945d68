package payments

import (
	"fmt"

	pkgerrors "github.com/angelmondragon/stockengine/pkg/errors"
)

// PaymentNotFoundError is returned when the payment intent does not exist.
type PaymentNotFoundError struct {
	PaymentIntentID string
}

func (e *PaymentNotFoundError) Error() string {
	return fmt.Sprintf("payment intent %s not found", e.PaymentIntentID)
}

// PaymentVerificationError is returned when the intent exists but cannot back
// an order.
type PaymentVerificationError struct {
	PaymentIntentID string
	Status          string
	Reason          string
}

func (e *PaymentVerificationError) Error() string {
	return fmt.Sprintf("payment intent %s failed verification (status %s): %s", e.PaymentIntentID, e.Status, e.Reason)
}

// WebhookVerificationError is returned when a callback signature does not check out.
type WebhookVerificationError struct {
	Reason string
}

func (e *WebhookVerificationError) Error() string {
	return "webhook verification failed: " + e.Reason
}

func paymentNotFound(id string) error {
	return pkgerrors.Wrap(pkgerrors.CodePayment, &PaymentNotFoundError{PaymentIntentID: id}, "payment not found").
		WithDetails(map[string]any{"payment_intent_id": id})
}

func verificationFailed(id, status, reason string) error {
	typed := &PaymentVerificationError{PaymentIntentID: id, Status: status, Reason: reason}
	return pkgerrors.Wrap(pkgerrors.CodePayment, typed, "payment verification failed").
		WithDetails(map[string]any{"payment_intent_id": id, "status": status})
}

func webhookRejected(reason string, cause error) error {
	typed := &WebhookVerificationError{Reason: reason}
	if cause != nil {
		typed.Reason = reason + ": " + cause.Error()
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, typed, "webhook verification failed")
}
