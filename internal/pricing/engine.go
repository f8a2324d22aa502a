// Package pricing computes itemised order totals. It is pure: no I/O, no
// clock, and the same input always yields the same breakdown.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/settlement-engine/pkg/enums"
	"github.com/angelmondragon/settlement-engine/pkg/money"
)

var hundred = decimal.NewFromInt(100)

// FeeRule is the platform fee. Flat values are minor units; percentage values
// are fractions of the post-coupon subtotal (0.02 = 2%).
type FeeRule struct {
	Type  enums.PlatformFeeType
	Value decimal.Decimal
}

// Rules are the platform-wide inputs shared by every quote.
type Rules struct {
	TaxRate     decimal.Decimal // fraction, 0.05 = 5%
	PlatformFee FeeRule
}

// CouponTerms is the subset of a validated coupon the engine applies. Value is
// a percentage (20 = 20%) for percentage coupons and minor units for fixed
// coupons; it is ignored for free-delivery coupons.
type CouponTerms struct {
	Code             string
	Type             enums.CouponType
	Value            decimal.Decimal
	MaxDiscountCents int64
	MinOrderCents    int64
}

// Request describes one order to price.
type Request struct {
	BasePriceCents         int64
	ServiceDiscountPercent decimal.Decimal // 10 = 10%
	DeliveryFeeCents       int64
	Coupon                 *CouponTerms
}

// Breakdown is the itemised pricing snapshot frozen onto an order.
type Breakdown struct {
	BasePriceCents       int64   `json:"basePriceCents"`
	ServiceDiscountCents int64   `json:"serviceDiscountCents"`
	CouponCode           *string `json:"couponCode,omitempty"`
	CouponDiscountCents  int64   `json:"couponDiscountCents"`
	SubtotalCents        int64   `json:"subtotalCents"`
	TaxCents             int64   `json:"taxCents"`
	PlatformFeeCents     int64   `json:"platformFeeCents"`
	TotalCents           int64   `json:"totalCents"`
}

// Reconciles reports whether the breakdown satisfies
// total = base - serviceDiscount - couponDiscount + tax + fee.
func (b Breakdown) Reconciles() bool {
	return b.TotalCents == b.BasePriceCents-b.ServiceDiscountCents-b.CouponDiscountCents+b.TaxCents+b.PlatformFeeCents &&
		b.TotalCents >= 0
}

type Engine struct {
	rules Rules
}

func NewEngine(rules Rules) (*Engine, error) {
	if rules.TaxRate.IsNegative() {
		return nil, fmt.Errorf("tax rate must not be negative")
	}
	if !rules.PlatformFee.Type.IsValid() {
		return nil, fmt.Errorf("invalid platform fee type %q", rules.PlatformFee.Type)
	}
	if rules.PlatformFee.Value.IsNegative() {
		return nil, fmt.Errorf("platform fee must not be negative")
	}
	return &Engine{rules: rules}, nil
}

// Rules returns the platform-wide rules the engine was built with.
func (e *Engine) Rules() Rules {
	return e.rules
}

// Quote prices req in a fixed order: service discount, coupon, tax, platform
// fee, total. Each component is rounded half-even to minor units before it is
// summed. Rule failures are returned as *Rejection.
func (e *Engine) Quote(req Request) (Breakdown, error) {
	if err := validateRequest(req); err != nil {
		return Breakdown{}, err
	}

	out := Breakdown{BasePriceCents: req.BasePriceCents}

	out.ServiceDiscountCents = money.ApplyPercent(req.BasePriceCents, req.ServiceDiscountPercent)
	discounted := req.BasePriceCents - out.ServiceDiscountCents
	if discounted < 0 {
		return Breakdown{}, reject(ReasonNegativeAmount, "discounted price is negative")
	}

	if req.Coupon != nil {
		c := req.Coupon
		if discounted < c.MinOrderCents {
			return Breakdown{}, reject(ReasonMinOrderNotMet,
				fmt.Sprintf("coupon %s requires a minimum order of %d", c.Code, c.MinOrderCents))
		}
		code := c.Code
		out.CouponCode = &code
		out.CouponDiscountCents = couponDiscount(*c, discounted, req.DeliveryFeeCents)
	}

	out.SubtotalCents = discounted - out.CouponDiscountCents
	if out.SubtotalCents < 0 {
		return Breakdown{}, reject(ReasonNegativeAmount, "subtotal is negative")
	}

	out.TaxCents = money.ApplyRate(out.SubtotalCents, e.rules.TaxRate)

	switch e.rules.PlatformFee.Type {
	case enums.PlatformFeeFlat:
		out.PlatformFeeCents = money.Round(e.rules.PlatformFee.Value)
	case enums.PlatformFeePercentage:
		out.PlatformFeeCents = money.ApplyRate(out.SubtotalCents, e.rules.PlatformFee.Value)
	}

	out.TotalCents = out.SubtotalCents + out.TaxCents + out.PlatformFeeCents
	if out.TotalCents < 0 {
		return Breakdown{}, reject(ReasonNegativeAmount, "total is negative")
	}
	return out, nil
}

// DiscountedBase is the amount a coupon is applied to and checked against.
func DiscountedBase(basePriceCents int64, discountPercent decimal.Decimal) int64 {
	return basePriceCents - money.ApplyPercent(basePriceCents, discountPercent)
}

func couponDiscount(c CouponTerms, discounted, deliveryFee int64) int64 {
	var amount int64
	switch c.Type {
	case enums.CouponPercentage:
		amount = money.ApplyPercent(discounted, c.Value)
		if c.MaxDiscountCents > 0 {
			amount = money.Min(amount, c.MaxDiscountCents)
		}
	case enums.CouponFixed:
		amount = money.Round(c.Value)
	case enums.CouponFreeDelivery:
		amount = deliveryFee
	}
	return money.Min(amount, discounted)
}

func validateRequest(req Request) error {
	switch {
	case req.BasePriceCents < 0:
		return reject(ReasonInvalidInput, "base price must not be negative")
	case req.DeliveryFeeCents < 0:
		return reject(ReasonInvalidInput, "delivery fee must not be negative")
	case req.ServiceDiscountPercent.IsNegative() || req.ServiceDiscountPercent.GreaterThan(hundred):
		return reject(ReasonInvalidInput, "service discount must be between 0 and 100 percent")
	}
	if c := req.Coupon; c != nil {
		if !c.Type.IsValid() {
			return reject(ReasonInvalidInput, fmt.Sprintf("unknown coupon type %q", c.Type))
		}
		if c.Value.IsNegative() || c.MaxDiscountCents < 0 || c.MinOrderCents < 0 {
			return reject(ReasonInvalidInput, "coupon amounts must not be negative")
		}
		if c.Type == enums.CouponPercentage && c.Value.GreaterThan(hundred) {
			return reject(ReasonInvalidInput, "percentage coupon exceeds 100 percent")
		}
	}
	return nil
}
