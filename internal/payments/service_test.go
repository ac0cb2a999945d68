package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/angelmondragon/stockengine/pkg/errors"
	"github.com/angelmondragon/stockengine/pkg/logger"
)

const testSecret = "whsec_test"

type fakeGateway struct {
	intent    *stripe.PaymentIntent
	getErr    error
	refundErr error
	refunds   []*stripe.RefundParams
}

func (f *fakeGateway) GetPaymentIntent(_ context.Context, id string) (*stripe.PaymentIntent, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.intent, nil
}

func (f *fakeGateway) CreateRefund(_ context.Context, params *stripe.RefundParams) (*stripe.Refund, error) {
	f.refunds = append(f.refunds, params)
	if f.refundErr != nil {
		return nil, f.refundErr
	}
	return &stripe.Refund{ID: "re_1", Status: stripe.RefundStatusSucceeded}, nil
}

func newTestService(t *testing.T, gateway *fakeGateway) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Gateway:       gateway,
		Logger:        logger.New(logger.Options{ServiceName: "payments-test", Output: io.Discard}),
		SigningSecret: testSecret,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestVerifyPaymentAcceptsConfirmedStatuses(t *testing.T) {
	for _, status := range []stripe.PaymentIntentStatus{
		stripe.PaymentIntentStatusSucceeded,
		stripe.PaymentIntentStatusProcessing,
		stripe.PaymentIntentStatusRequiresCapture,
	} {
		svc := newTestService(t, &fakeGateway{intent: &stripe.PaymentIntent{ID: "pi_1", Status: status}})
		if err := svc.VerifyPayment(context.Background(), "pi_1"); err != nil {
			t.Fatalf("status %s: unexpected error %v", status, err)
		}
	}
}

func TestVerifyPaymentRejectsUnconfirmedIntent(t *testing.T) {
	svc := newTestService(t, &fakeGateway{intent: &stripe.PaymentIntent{
		ID:     "pi_1",
		Status: stripe.PaymentIntentStatusRequiresPaymentMethod,
	}})

	err := svc.VerifyPayment(context.Background(), "pi_1")
	var verifyErr *PaymentVerificationError
	if !errors.As(err, &verifyErr) {
		t.Fatalf("expected PaymentVerificationError, got %v", err)
	}
	if verifyErr.Status != string(stripe.PaymentIntentStatusRequiresPaymentMethod) {
		t.Fatalf("unexpected status %q", verifyErr.Status)
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodePayment {
		t.Fatalf("expected PAYMENT_ERROR, got %s", pkgerrors.As(err).Code())
	}
}

func TestVerifyPaymentMapsMissingIntent(t *testing.T) {
	svc := newTestService(t, &fakeGateway{getErr: &stripe.Error{
		Code:           stripe.ErrorCodeResourceMissing,
		HTTPStatusCode: 404,
		Msg:            "No such payment_intent",
	}})

	err := svc.VerifyPayment(context.Background(), "pi_missing")
	var notFound *PaymentNotFoundError
	if !errors.As(err, &notFound) || notFound.PaymentIntentID != "pi_missing" {
		t.Fatalf("expected PaymentNotFoundError, got %v", err)
	}
}

func TestVerifyPaymentWrapsGatewayFailures(t *testing.T) {
	svc := newTestService(t, &fakeGateway{getErr: errors.New("connection reset")})

	err := svc.VerifyPayment(context.Background(), "pi_1")
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected DEPENDENCY_ERROR, got %v", err)
	}
	if err := svc.VerifyPayment(context.Background(), " "); pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected VALIDATION_ERROR for blank id, got %v", err)
	}
}

func TestRefundPayment(t *testing.T) {
	gateway := &fakeGateway{}
	svc := newTestService(t, gateway)

	if err := svc.RefundPayment(context.Background(), "pi_1"); err != nil {
		t.Fatalf("RefundPayment: %v", err)
	}
	if len(gateway.refunds) != 1 || stripe.StringValue(gateway.refunds[0].PaymentIntent) != "pi_1" {
		t.Fatalf("expected one refund for pi_1, got %+v", gateway.refunds)
	}

	gateway.refundErr = errors.New("stripe unavailable")
	err := svc.RefundPayment(context.Background(), "pi_1")
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected DEPENDENCY_ERROR, got %v", err)
	}
}

func TestVerifyWebhook(t *testing.T) {
	svc := newTestService(t, &fakeGateway{})
	payload := signedEventPayload(t)
	header := signatureHeader(payload, testSecret, time.Now().Unix())

	event, err := svc.VerifyWebhook(payload, header)
	if err != nil {
		t.Fatalf("VerifyWebhook: %v", err)
	}
	if event.Type != stripe.EventTypePaymentIntentSucceeded {
		t.Fatalf("unexpected event type %s", event.Type)
	}

	_, err = svc.VerifyWebhook(payload, signatureHeader(payload, "whsec_other", time.Now().Unix()))
	var hookErr *WebhookVerificationError
	if !errors.As(err, &hookErr) {
		t.Fatalf("expected WebhookVerificationError, got %v", err)
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected VALIDATION_ERROR, got %s", pkgerrors.As(err).Code())
	}
	if _, err := svc.VerifyWebhook(payload, ""); !errors.As(err, &hookErr) {
		t.Fatalf("expected missing signature to be rejected, got %v", err)
	}
}

func signedEventPayload(t *testing.T) []byte {
	t.Helper()
	rawIntent, err := json.Marshal(&stripe.PaymentIntent{ID: "pi_1", Status: stripe.PaymentIntentStatusSucceeded})
	if err != nil {
		t.Fatalf("marshal intent: %v", err)
	}
	payload, err := json.Marshal(&stripe.Event{
		ID:         "evt_1",
		Type:       stripe.EventTypePaymentIntentSucceeded,
		Object:     "event",
		APIVersion: stripe.APIVersion,
		Data:       &stripe.EventData{Raw: rawIntent},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return payload
}

func signatureHeader(payload []byte, secret string, ts int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}
