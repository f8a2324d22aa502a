package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-engine/internal/pricing"
	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	"github.com/angelmondragon/settlement-engine/pkg/pagination"
	"github.com/angelmondragon/settlement-engine/pkg/types"
)

// Actor is the caller of a lifecycle operation as asserted by the upstream
// auth proxy.
type Actor struct {
	ID   uuid.UUID
	Role enums.ActorRole
}

// CreateOrderInput is a booking request.
type CreateOrderInput struct {
	CustomerID  uuid.UUID
	ServiceID   uuid.UUID
	VendorID    uuid.UUID
	ScheduledAt time.Time
	Address     types.Address
	Notes       *string
	CouponCode  *string
}

// TransitionInput asks for one lifecycle edge. ExpectedVersion is the version
// the caller last read.
type TransitionInput struct {
	OrderID         uuid.UUID
	ExpectedVersion int
	To              enums.OrderStatus
	Actor           Actor
	Reason          *string
}

// OrderView is an order together with its derived stage and pricing snapshot.
type OrderView struct {
	Order   models.Order      `json:"order"`
	Stage   enums.OrderStatus `json:"stage"`
	Pricing pricing.Breakdown `json:"pricing"`
}

type ListParams struct {
	Status          *enums.OrderStatus
	IncludeArchived bool
	pagination.Params
}

type OrderList struct {
	Orders     []models.Order `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// Snapshot rebuilds the pricing breakdown frozen onto order.
func Snapshot(order *models.Order) pricing.Breakdown {
	return pricing.Breakdown{
		BasePriceCents:       order.BasePriceCents,
		ServiceDiscountCents: order.ServiceDiscountCents,
		CouponCode:           order.CouponCode,
		CouponDiscountCents:  order.CouponDiscountCents,
		SubtotalCents:        order.BasePriceCents - order.ServiceDiscountCents - order.CouponDiscountCents,
		TaxCents:             order.TaxCents,
		PlatformFeeCents:     order.PlatformFeeCents,
		TotalCents:           order.TotalCents,
	}
}
