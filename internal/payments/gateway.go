package payments

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-engine/pkg/enums"
)

// Gateway is one payment back-end. Every variant shares the initiate and
// refund contract; confirmation arrives later through Service.Confirm.
type Gateway interface {
	Method() enums.PaymentMethod
	Initiate(ctx context.Context, charge Charge) (ClientAction, error)
	Refund(ctx context.Context, refund RefundCharge) error
}

// Charge is the amount a gateway is asked to collect for an order. AttemptID
// distinguishes retries of the same order.
type Charge struct {
	AttemptID   uuid.UUID
	OrderID     uuid.UUID
	CustomerID  uuid.UUID
	AmountCents int64
	Currency    string
	Description string
}

// ClientAction tells the client how to complete payment. Exactly one of
// RedirectURL, ClientSecret or UploadToken is set, matching Method.
type ClientAction struct {
	Method            enums.PaymentMethod `json:"method"`
	ExternalReference string              `json:"external_reference"`
	RedirectURL       string              `json:"redirect_url,omitempty"`
	ClientSecret      string              `json:"client_secret,omitempty"`
	UploadToken       string              `json:"upload_token,omitempty"`
	UploadPath        string              `json:"upload_path,omitempty"`
}

// RefundCharge returns money for a previously captured payment.
type RefundCharge struct {
	ExternalReference string
	AmountCents       int64
	IdempotencyKey    string
}

// Registry resolves the gateway for a payment method.
type Registry struct {
	gateways map[enums.PaymentMethod]Gateway
}

// NewRegistry indexes gateways by method; registering two gateways for one
// method is an error.
func NewRegistry(gateways ...Gateway) (*Registry, error) {
	r := &Registry{gateways: make(map[enums.PaymentMethod]Gateway, len(gateways))}
	for _, gw := range gateways {
		if gw == nil {
			continue
		}
		method := gw.Method()
		if !method.IsValid() {
			return nil, fmt.Errorf("gateway reports invalid method %q", method)
		}
		if _, dup := r.gateways[method]; dup {
			return nil, fmt.Errorf("duplicate gateway for method %s", method)
		}
		r.gateways[method] = gw
	}
	if len(r.gateways) == 0 {
		return nil, fmt.Errorf("at least one gateway required")
	}
	return r, nil
}

// Lookup returns the gateway for method.
func (r *Registry) Lookup(method enums.PaymentMethod) (Gateway, bool) {
	gw, ok := r.gateways[method]
	return gw, ok
}

// Methods lists the enabled payment methods.
func (r *Registry) Methods() []enums.PaymentMethod {
	out := make([]enums.PaymentMethod, 0, len(r.gateways))
	for _, m := range []enums.PaymentMethod{enums.PaymentMethodRedirect, enums.PaymentMethodCard, enums.PaymentMethodManual} {
		if _, ok := r.gateways[m]; ok {
			out = append(out, m)
		}
	}
	return out
}
