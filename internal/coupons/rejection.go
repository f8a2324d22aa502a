package coupons

import (
	"errors"

	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
)

// Reason names the first check a coupon failed.
type Reason string

const (
	ReasonNotFound          Reason = "not_found"
	ReasonInactive          Reason = "inactive"
	ReasonNotStarted        Reason = "not_started"
	ReasonExpired           Reason = "expired"
	ReasonMinOrderNotMet    Reason = "min_order_not_met"
	ReasonScopeMismatch     Reason = "scope_mismatch"
	ReasonUsageLimitReached Reason = "usage_limit_reached"
	ReasonUserLimitReached  Reason = "user_limit_reached"
)

// Rejection is the typed refusal returned by Validate and Reserve.
type Rejection struct {
	Code   string
	Reason Reason
}

func (r *Rejection) Error() string {
	return "coupon " + r.Code + " rejected: " + string(r.Reason)
}

// Unwrap exposes the rejection as a business rule violation.
func (r *Rejection) Unwrap() error {
	return pkgerrors.New(pkgerrors.CodeBusinessRule, r.Error()).
		WithDetails(map[string]any{"coupon_code": r.Code, "reason": r.Reason})
}

// AsRejection extracts a *Rejection from err.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}
