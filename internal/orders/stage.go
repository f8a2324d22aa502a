package orders

import (
	"fmt"

	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
)

// Stage is the lifecycle position of an order. Each variant carries only what
// is meaningful at that stage; StageOf refuses status/payment combinations no
// legal sequence of operations can produce.
type Stage interface {
	Status() enums.OrderStatus
	isStage()
}

// Pending orders await a vendor decision and may still be paid.
type Pending struct {
	Payment enums.PaymentStatus
}

// Accepted orders are confirmed by the vendor.
type Accepted struct {
	Payment enums.PaymentStatus
}

// InProgress orders are being delivered.
type InProgress struct {
	Payment enums.PaymentStatus
}

// Completed orders were paid before completion; Payment may since have moved
// to a refunded state.
type Completed struct {
	Payment enums.PaymentStatus
}

// Rejected orders were declined by the vendor.
type Rejected struct {
	Payment enums.PaymentStatus
}

// Cancelled orders were withdrawn before delivery started.
type Cancelled struct {
	Payment enums.PaymentStatus
}

func (Pending) Status() enums.OrderStatus    { return enums.OrderPending }
func (Accepted) Status() enums.OrderStatus   { return enums.OrderAccepted }
func (InProgress) Status() enums.OrderStatus { return enums.OrderInProgress }
func (Completed) Status() enums.OrderStatus  { return enums.OrderCompleted }
func (Rejected) Status() enums.OrderStatus   { return enums.OrderRejected }
func (Cancelled) Status() enums.OrderStatus  { return enums.OrderCancelled }

func (Pending) isStage()    {}
func (Accepted) isStage()   {}
func (InProgress) isStage() {}
func (Completed) isStage()  {}
func (Rejected) isStage()   {}
func (Cancelled) isStage()  {}

// StageOf derives the explicit stage of a persisted order.
func StageOf(order *models.Order) (Stage, error) {
	if order == nil {
		return nil, fmt.Errorf("nil order")
	}
	p := order.PaymentStatus
	if !p.IsValid() {
		return nil, fmt.Errorf("order %s: invalid payment status %q", order.ID, p)
	}
	switch order.Status {
	case enums.OrderPending:
		return Pending{Payment: p}, nil
	case enums.OrderAccepted:
		return Accepted{Payment: p}, nil
	case enums.OrderInProgress:
		return InProgress{Payment: p}, nil
	case enums.OrderCompleted:
		if p.IsPayable() {
			return nil, fmt.Errorf("order %s: completed without payment", order.ID)
		}
		return Completed{Payment: p}, nil
	case enums.OrderRejected:
		return Rejected{Payment: p}, nil
	case enums.OrderCancelled:
		return Cancelled{Payment: p}, nil
	default:
		return nil, fmt.Errorf("order %s: invalid status %q", order.ID, order.Status)
	}
}

var edges = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderPending:    {enums.OrderAccepted, enums.OrderRejected, enums.OrderCancelled},
	enums.OrderAccepted:   {enums.OrderInProgress, enums.OrderCancelled},
	enums.OrderInProgress: {enums.OrderCompleted},
}

// CanTransition reports whether from -> to is an edge of the lifecycle.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, next := range edges[from] {
		if next == to {
			return true
		}
	}
	return false
}
