package pricing

import (
	"errors"

	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
)

// Reason classifies why a quote was refused.
type Reason string

const (
	ReasonInvalidInput   Reason = "invalid_input"
	ReasonMinOrderNotMet Reason = "min_order_not_met"
	ReasonNegativeAmount Reason = "negative_amount"
)

// Rejection is the typed refusal returned by Quote.
type Rejection struct {
	Reason Reason
	Detail string
}

func (r *Rejection) Error() string {
	return "pricing rejected (" + string(r.Reason) + "): " + r.Detail
}

// Unwrap exposes the shared error code: invalid input is a validation error,
// everything else a business rule violation.
func (r *Rejection) Unwrap() error {
	code := pkgerrors.CodeBusinessRule
	if r.Reason == ReasonInvalidInput {
		code = pkgerrors.CodeValidation
	}
	return pkgerrors.New(code, r.Detail).WithDetails(map[string]any{"reason": r.Reason})
}

func reject(reason Reason, detail string) *Rejection {
	return &Rejection{Reason: reason, Detail: detail}
}

// AsRejection extracts a *Rejection from err.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}
