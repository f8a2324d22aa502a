package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/settlement-engine/internal/payments"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
)

type confirmer interface {
	Confirm(ctx context.Context, externalReference string, outcome payments.Outcome) (*payments.TransactionResult, error)
}

type ServiceParams struct {
	Payments confirmer
	Logger   *logger.Logger
}

// Service turns Stripe checkout and payment intent events into payment
// confirmations keyed by the session or intent id.
type Service struct {
	payments confirmer
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment service required")
	}
	return &Service{payments: params.Payments, logg: params.Logger}, nil
}

// HandleEvent confirms the payment an event refers to. Events for
// references this engine did not issue are acknowledged and ignored; only
// errors worth a Stripe redelivery are returned.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session event")
		}
		if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
			// delayed payment methods settle through async_payment_* later
			return nil
		}
		return s.confirm(ctx, event, sess.ID, payments.Outcome{Success: true, AmountCents: sess.AmountTotal})
	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session event")
		}
		return s.confirm(ctx, event, sess.ID, payments.Outcome{FailureReason: "async_payment_failed"})
	case stripe.EventTypeCheckoutSessionExpired:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session event")
		}
		return s.confirm(ctx, event, sess.ID, payments.Outcome{FailureReason: "session_expired"})
	case stripe.EventTypePaymentIntentSucceeded:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent event")
		}
		return s.confirm(ctx, event, intent.ID, payments.Outcome{Success: true, AmountCents: intent.AmountReceived})
	case stripe.EventTypePaymentIntentPaymentFailed:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent event")
		}
		reason := "payment_failed"
		if intent.LastPaymentError != nil && intent.LastPaymentError.Code != "" {
			reason = string(intent.LastPaymentError.Code)
		}
		return s.confirm(ctx, event, intent.ID, payments.Outcome{FailureReason: reason})
	default:
		return nil
	}
}

func (s *Service) confirm(ctx context.Context, event *stripe.Event, ref string, outcome payments.Outcome) error {
	if ref == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe object id missing")
	}
	if s.logg != nil {
		ctx = s.logg.WithFields(ctx, map[string]any{
			"stripe_event_id":   event.ID,
			"stripe_event_type": string(event.Type),
			"reference":         ref,
		})
	}

	res, err := s.payments.Confirm(ctx, ref, outcome)
	if err == nil {
		if s.logg != nil && !res.Replayed {
			s.logg.Info(ctx, fmt.Sprintf("payment %s confirmed", res.Transaction.ID))
		}
		return nil
	}

	typed := pkgerrors.As(err)
	switch {
	case typed == nil:
		return err
	case typed.Code() == pkgerrors.CodeNotFound:
		// payment intents behind checkout sessions land here as well
		return nil
	case typed.Code() == pkgerrors.CodeGatewayFailure && !outcome.Success:
		return nil
	case pkgerrors.IsRetryable(err):
		return err
	}
	// redelivery cannot change the rest; they need manual reconciliation
	if s.logg != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"error": err.Error(), "error_code": string(typed.Code())}), "stripe event not applied")
	}
	return nil
}
