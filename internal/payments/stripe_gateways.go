package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/settlement-engine/pkg/enums"
)

// StripeAPI is the subset of Stripe the redirect and card gateways call.
// *pkg/stripe.Client satisfies it.
type StripeAPI interface {
	CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error)
	CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	CreateRefund(ctx context.Context, params *stripe.RefundParams) (*stripe.Refund, error)
}

// RedirectGateway sends the customer to a hosted Stripe Checkout page. The
// checkout session id is the external reference.
type RedirectGateway struct {
	api        StripeAPI
	successURL string
	cancelURL  string
}

func NewRedirectGateway(api StripeAPI, successURL, cancelURL string) (*RedirectGateway, error) {
	if api == nil {
		return nil, fmt.Errorf("stripe api required")
	}
	if strings.TrimSpace(successURL) == "" || strings.TrimSpace(cancelURL) == "" {
		return nil, fmt.Errorf("success and cancel urls required")
	}
	return &RedirectGateway{api: api, successURL: successURL, cancelURL: cancelURL}, nil
}

func (g *RedirectGateway) Method() enums.PaymentMethod { return enums.PaymentMethodRedirect }

func (g *RedirectGateway) Initiate(ctx context.Context, charge Charge) (ClientAction, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(g.successURL),
		CancelURL:         stripe.String(g.cancelURL),
		ClientReferenceID: stripe.String(charge.OrderID.String()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(charge.Currency)),
				UnitAmount: stripe.Int64(charge.AmountCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(charge.Description),
				},
			},
		}},
	}
	params.AddMetadata("order_id", charge.OrderID.String())
	params.SetIdempotencyKey("checkout_" + charge.OrderID.String() + "_" + charge.AttemptID.String())

	sess, err := g.api.CreateCheckoutSession(ctx, params)
	if err != nil {
		return ClientAction{}, err
	}
	return ClientAction{
		Method:            enums.PaymentMethodRedirect,
		ExternalReference: sess.ID,
		RedirectURL:       sess.URL,
	}, nil
}

// Refund resolves the session's payment intent and refunds against it.
func (g *RedirectGateway) Refund(ctx context.Context, refund RefundCharge) error {
	sess, err := g.api.GetCheckoutSession(ctx, refund.ExternalReference)
	if err != nil {
		return err
	}
	if sess.PaymentIntent == nil || sess.PaymentIntent.ID == "" {
		return fmt.Errorf("checkout session %s has no payment intent", refund.ExternalReference)
	}
	return createRefund(ctx, g.api, sess.PaymentIntent.ID, refund)
}

// CardGateway creates a PaymentIntent whose client secret the client uses to
// confirm the card. The intent id is the external reference.
type CardGateway struct {
	api StripeAPI
}

func NewCardGateway(api StripeAPI) (*CardGateway, error) {
	if api == nil {
		return nil, fmt.Errorf("stripe api required")
	}
	return &CardGateway{api: api}, nil
}

func (g *CardGateway) Method() enums.PaymentMethod { return enums.PaymentMethodCard }

func (g *CardGateway) Initiate(ctx context.Context, charge Charge) (ClientAction, error) {
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(charge.AmountCents),
		Currency:    stripe.String(strings.ToLower(charge.Currency)),
		Description: stripe.String(charge.Description),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.AddMetadata("order_id", charge.OrderID.String())
	params.SetIdempotencyKey("intent_" + charge.OrderID.String() + "_" + charge.AttemptID.String())

	intent, err := g.api.CreatePaymentIntent(ctx, params)
	if err != nil {
		return ClientAction{}, err
	}
	return ClientAction{
		Method:            enums.PaymentMethodCard,
		ExternalReference: intent.ID,
		ClientSecret:      intent.ClientSecret,
	}, nil
}

func (g *CardGateway) Refund(ctx context.Context, refund RefundCharge) error {
	return createRefund(ctx, g.api, refund.ExternalReference, refund)
}

func createRefund(ctx context.Context, api StripeAPI, paymentIntentID string, refund RefundCharge) error {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
		Amount:        stripe.Int64(refund.AmountCents),
	}
	if refund.IdempotencyKey != "" {
		params.SetIdempotencyKey(refund.IdempotencyKey)
	}
	_, err := api.CreateRefund(ctx, params)
	return err
}
