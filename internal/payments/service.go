package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	pkgerrors "github.com/angelmondragon/stockengine/pkg/errors"
	"github.com/angelmondragon/stockengine/pkg/logger"
)

var acceptedStatuses = map[stripe.PaymentIntentStatus]bool{
	stripe.PaymentIntentStatusSucceeded:       true,
	stripe.PaymentIntentStatusProcessing:      true,
	stripe.PaymentIntentStatusRequiresCapture: true,
}

// ServiceParams configure the payment service.
type ServiceParams struct {
	Gateway       Gateway
	Logger        *logger.Logger
	SigningSecret string
}

// Service verifies payment intents, issues refunds and checks webhook signatures.
type Service struct {
	gateway       Gateway
	logg          *logger.Logger
	signingSecret string
}

// NewService builds a payment service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		gateway:       params.Gateway,
		logg:          params.Logger,
		signingSecret: strings.TrimSpace(params.SigningSecret),
	}, nil
}

// VerifyPayment confirms the intent exists and is succeeded, processing or
// awaiting capture.
func (s *Service) VerifyPayment(ctx context.Context, paymentIntentID string) error {
	id := strings.TrimSpace(paymentIntentID)
	if id == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id required")
	}
	intent, err := s.gateway.GetPaymentIntent(ctx, id)
	if err != nil {
		if isResourceMissing(err) {
			return paymentNotFound(id)
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch payment intent")
	}
	if intent == nil {
		return paymentNotFound(id)
	}
	if !acceptedStatuses[intent.Status] {
		return verificationFailed(id, string(intent.Status), "payment is not confirmed")
	}
	return nil
}

// RefundPayment refunds the full amount of the intent.
func (s *Service) RefundPayment(ctx context.Context, paymentIntentID string) error {
	id := strings.TrimSpace(paymentIntentID)
	if id == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id required")
	}
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(id),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	created, err := s.gateway.CreateRefund(ctx, params)
	if err != nil {
		if isResourceMissing(err) {
			return paymentNotFound(id)
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create refund")
	}
	if created != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"payment_intent_id": id,
			"refund_id":         created.ID,
			"refund_status":     created.Status,
		})
		s.logg.Info(logCtx, "payment refunded")
	}
	return nil
}

// VerifyWebhook checks the Stripe-Signature header against the payload and
// returns the decoded event.
func (s *Service) VerifyWebhook(payload []byte, signature string) (*stripe.Event, error) {
	if s.signingSecret == "" {
		return nil, webhookRejected("signing secret not configured", nil)
	}
	if strings.TrimSpace(signature) == "" {
		return nil, webhookRejected("signature missing", nil)
	}
	event, err := webhook.ConstructEvent(payload, signature, s.signingSecret)
	if err != nil {
		return nil, webhookRejected("invalid signature", err)
	}
	return &event, nil
}

func isResourceMissing(err error) bool {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return false
	}
	return stripeErr.Code == stripe.ErrorCodeResourceMissing
}
