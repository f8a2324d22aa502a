package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-engine/internal/catalog"
	"github.com/angelmondragon/settlement-engine/internal/coupons"
	"github.com/angelmondragon/settlement-engine/internal/pricing"
	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
	"github.com/angelmondragon/settlement-engine/pkg/metrics"
	"github.com/angelmondragon/settlement-engine/pkg/outbox"
	"github.com/angelmondragon/settlement-engine/pkg/outbox/payloads"
	"github.com/angelmondragon/settlement-engine/pkg/pagination"
)

const maxNotesLength = 2000

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type couponValidator interface {
	Validate(ctx context.Context, input coupons.ValidateInput) (*models.Coupon, error)
}

type quoter interface {
	Quote(req pricing.Request) (pricing.Breakdown, error)
}

// Service owns order status. Payment status is read here but only the ledger
// writes it.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*OrderView, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*OrderView, error)
	Transition(ctx context.Context, input TransitionInput) (*OrderView, error)
	Accept(ctx context.Context, id uuid.UUID, version int, actor Actor) (*OrderView, error)
	Start(ctx context.Context, id uuid.UUID, version int, actor Actor) (*OrderView, error)
	Complete(ctx context.Context, id uuid.UUID, version int, actor Actor) (*OrderView, error)
	Reject(ctx context.Context, id uuid.UUID, version int, actor Actor, reason string) (*OrderView, error)
	Cancel(ctx context.Context, id uuid.UUID, version int, actor Actor, reason string) (*OrderView, error)
	Archive(ctx context.Context, id uuid.UUID, actor Actor) (*OrderView, error)
	ListForVendor(ctx context.Context, vendorID uuid.UUID, params ListParams) (*OrderList, error)
	ListForCustomer(ctx context.Context, customerID uuid.UUID, params ListParams) (*OrderList, error)
}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outbox.Emitter
	catalog  catalog.Lookup
	coupons  couponValidator
	pricing  quoter
	currency string
	logg     *logger.Logger
	metrics  *metrics.Settlement
	now      func() time.Time
}

// NewService builds the order lifecycle service. logg and m may be nil.
func NewService(
	repo Repository,
	tx txRunner,
	emitter outbox.Emitter,
	lookup catalog.Lookup,
	couponSvc couponValidator,
	engine quoter,
	currency string,
	logg *logger.Logger,
	m *metrics.Settlement,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if lookup == nil {
		return nil, fmt.Errorf("catalog lookup required")
	}
	if couponSvc == nil {
		return nil, fmt.Errorf("coupon validator required")
	}
	if engine == nil {
		return nil, fmt.Errorf("pricing engine required")
	}
	if strings.TrimSpace(currency) == "" {
		return nil, fmt.Errorf("currency required")
	}
	return &service{
		repo:     repo,
		tx:       tx,
		outbox:   emitter,
		catalog:  lookup,
		coupons:  couponSvc,
		pricing:  engine,
		currency: strings.ToUpper(currency),
		logg:     logg,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*OrderView, error) {
	if err := s.validateCreate(input); err != nil {
		return nil, err
	}

	offering, err := s.catalog.GetOffering(ctx, input.ServiceID)
	if err != nil {
		return nil, err
	}
	if offering.VendorID != input.VendorID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "service does not belong to vendor")
	}

	req := pricing.Request{
		BasePriceCents:         offering.BasePriceCents,
		ServiceDiscountPercent: offering.DiscountPercent,
		DeliveryFeeCents:       offering.DeliveryFeeCents,
	}
	if input.CouponCode != nil && strings.TrimSpace(*input.CouponCode) != "" {
		coupon, err := s.coupons.Validate(ctx, coupons.ValidateInput{
			Code:        *input.CouponCode,
			OrderAmount: pricing.DiscountedBase(offering.BasePriceCents, offering.DiscountPercent),
			UserID:      input.CustomerID,
			ServiceID:   input.ServiceID,
			VendorID:    input.VendorID,
		})
		if err != nil {
			return nil, err
		}
		req.Coupon = coupons.Terms(coupon)
	}

	quote, err := s.pricing.Quote(req)
	if err != nil {
		return nil, err
	}
	if !quote.Reconciles() {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "pricing breakdown does not reconcile")
	}

	order := &models.Order{
		CustomerID:           input.CustomerID,
		VendorID:             input.VendorID,
		ServiceID:            input.ServiceID,
		Status:               enums.OrderPending,
		PaymentStatus:        enums.PaymentPending,
		Currency:             s.currency,
		BasePriceCents:       quote.BasePriceCents,
		ServiceDiscountCents: quote.ServiceDiscountCents,
		CouponCode:           quote.CouponCode,
		CouponDiscountCents:  quote.CouponDiscountCents,
		TaxCents:             quote.TaxCents,
		PlatformFeeCents:     quote.PlatformFeeCents,
		TotalCents:           quote.TotalCents,
		ScheduledAt:          input.ScheduledAt.UTC(),
		Address:              input.Address,
		Notes:                input.Notes,
		Version:              1,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{ActorID: input.CustomerID, Role: enums.RoleCustomer.String()},
			Data: payloads.OrderCreated{
				OrderID:    order.ID,
				CustomerID: order.CustomerID,
				VendorID:   order.VendorID,
				TotalCents: order.TotalCents,
				Currency:   order.Currency,
				CouponCode: order.CouponCode,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, order.ID.String())
		logCtx = s.logg.WithField(logCtx, "total_cents", order.TotalCents)
		s.logg.Info(logCtx, "order created")
	}
	return newView(order), nil
}

func (s *service) validateCreate(input CreateOrderInput) error {
	switch {
	case input.CustomerID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	case input.ServiceID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "service id is required")
	case input.VendorID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	case input.ScheduledAt.IsZero():
		return pkgerrors.New(pkgerrors.CodeValidation, "scheduled time is required")
	case !input.ScheduledAt.After(s.now()):
		return pkgerrors.New(pkgerrors.CodeValidation, "scheduled time must be in the future")
	}
	if err := input.Address.Validate(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid address")
	}
	if input.Notes != nil && len(*input.Notes) > maxNotesLength {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("notes must be at most %d characters", maxNotesLength))
	}
	return nil
}

func (s *service) GetOrder(ctx context.Context, id uuid.UUID) (*OrderView, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return newView(order), nil
}

// Transition applies one lifecycle edge as a single conditional write on the
// version the caller presented. A rejected transition leaves status and
// version untouched.
func (s *service) Transition(ctx context.Context, input TransitionInput) (*OrderView, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if input.ExpectedVersion <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "expected version is required")
	}
	if !input.To.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid target status %q", input.To))
	}

	var (
		updated *models.Order
		from    enums.OrderStatus
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, input.OrderID)
		if err != nil {
			return notFoundOr(err)
		}
		if err := authorize(order, input.Actor, input.To); err != nil {
			return err
		}
		if order.ArchivedAt != nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is archived")
		}
		if order.Version != input.ExpectedVersion {
			return concurrentModification(order.Version)
		}
		if !CanTransition(order.Status, input.To) {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("transition %s -> %s is not allowed", order.Status, input.To))
		}
		requirePaid := input.To == enums.OrderCompleted
		if requirePaid && order.PaymentStatus != enums.PaymentPaid {
			return pkgerrors.New(pkgerrors.CodeBusinessRule, "order must be paid before completion")
		}

		from = order.Status
		ok, err := repo.CompareAndSetStatus(ctx, StatusCAS{
			OrderID:         order.ID,
			ExpectedVersion: input.ExpectedVersion,
			From:            order.Status,
			To:              input.To,
			RequirePaid:     requirePaid,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !ok {
			current, err := repo.FindByID(ctx, order.ID)
			if err != nil {
				return notFoundOr(err)
			}
			if requirePaid && current.Version == input.ExpectedVersion && current.PaymentStatus != enums.PaymentPaid {
				return pkgerrors.New(pkgerrors.CodeBusinessRule, "order must be paid before completion")
			}
			return concurrentModification(current.Version)
		}

		updated, err = repo.FindByID(ctx, order.ID)
		if err != nil {
			return notFoundOr(err)
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorRef(input.Actor),
			Data: payloads.OrderStatusChanged{
				OrderID: order.ID,
				From:    from.String(),
				To:      input.To.String(),
				Version: updated.Version,
				Reason:  input.Reason,
			},
		})
	})
	if err != nil {
		s.metrics.ObserveTransition(input.To, outcomeOf(err))
		return nil, err
	}
	s.metrics.ObserveTransition(input.To, "ok")

	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, updated.ID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{"from": from, "to": input.To, "version": updated.Version})
		s.logg.Info(logCtx, "order status changed")
	}
	return newView(updated), nil
}

func (s *service) Accept(ctx context.Context, id uuid.UUID, version int, actor Actor) (*OrderView, error) {
	return s.Transition(ctx, TransitionInput{OrderID: id, ExpectedVersion: version, To: enums.OrderAccepted, Actor: actor})
}

func (s *service) Start(ctx context.Context, id uuid.UUID, version int, actor Actor) (*OrderView, error) {
	return s.Transition(ctx, TransitionInput{OrderID: id, ExpectedVersion: version, To: enums.OrderInProgress, Actor: actor})
}

func (s *service) Complete(ctx context.Context, id uuid.UUID, version int, actor Actor) (*OrderView, error) {
	return s.Transition(ctx, TransitionInput{OrderID: id, ExpectedVersion: version, To: enums.OrderCompleted, Actor: actor})
}

func (s *service) Reject(ctx context.Context, id uuid.UUID, version int, actor Actor, reason string) (*OrderView, error) {
	return s.Transition(ctx, TransitionInput{OrderID: id, ExpectedVersion: version, To: enums.OrderRejected, Actor: actor, Reason: optional(reason)})
}

func (s *service) Cancel(ctx context.Context, id uuid.UUID, version int, actor Actor, reason string) (*OrderView, error) {
	return s.Transition(ctx, TransitionInput{OrderID: id, ExpectedVersion: version, To: enums.OrderCancelled, Actor: actor, Reason: optional(reason)})
}

// Archive soft-archives a terminal order. Archived orders are hidden from
// listings by default and accept no further transitions.
func (s *service) Archive(ctx context.Context, id uuid.UUID, actor Actor) (*OrderView, error) {
	if actor.Role != enums.RoleAdmin && actor.Role != enums.RoleSystem {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only admins can archive orders")
	}
	var archived *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, id)
		if err != nil {
			return notFoundOr(err)
		}
		if order.ArchivedAt != nil {
			archived = order
			return nil
		}
		if !order.Status.IsTerminal() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only terminal orders can be archived")
		}
		if _, err := repo.Archive(ctx, id, s.now()); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "archive order")
		}
		archived, err = repo.FindByID(ctx, id)
		if err != nil {
			return notFoundOr(err)
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderArchived,
			AggregateType: enums.AggregateOrder,
			AggregateID:   id,
			Actor:         actorRef(actor),
			Data: payloads.OrderStatusChanged{
				OrderID: id,
				From:    order.Status.String(),
				To:      order.Status.String(),
				Version: archived.Version,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return newView(archived), nil
}

func (s *service) ListForVendor(ctx context.Context, vendorID uuid.UUID, params ListParams) (*OrderList, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	return s.list(ctx, ListFilter{VendorID: &vendorID}, params)
}

func (s *service) ListForCustomer(ctx context.Context, customerID uuid.UUID, params ListParams) (*OrderList, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	return s.list(ctx, ListFilter{CustomerID: &customerID}, params)
}

func (s *service) list(ctx context.Context, filter ListFilter, params ListParams) (*OrderList, error) {
	after, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	filter.Status = params.Status
	filter.IncludeArchived = params.IncludeArchived
	filter.AfterID = after
	filter.Limit = pagination.LimitWithBuffer(params.Limit)

	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	page, next := pagination.Trim(rows, params.Limit, func(o models.Order) uuid.UUID { return o.ID })
	return &OrderList{Orders: page, NextCursor: next}, nil
}

// authorize checks who may request a transition: vendors drive their own
// orders, customers may only cancel theirs, admins and the system may do any
// legal transition.
func authorize(order *models.Order, actor Actor, to enums.OrderStatus) error {
	if actor.ID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	switch actor.Role {
	case enums.RoleAdmin, enums.RoleSystem:
		return nil
	case enums.RoleVendor:
		if actor.ID != order.VendorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to vendor")
		}
		return nil
	case enums.RoleCustomer:
		if actor.ID != order.CustomerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to customer")
		}
		if to != enums.OrderCancelled {
			return pkgerrors.New(pkgerrors.CodeForbidden, "customers can only cancel orders")
		}
		return nil
	default:
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "actor role missing")
	}
}

func concurrentModification(current int) error {
	return pkgerrors.New(pkgerrors.CodeConcurrentModification, "order was modified concurrently; re-read and retry").
		WithDetails(map[string]any{"current_version": current})
}

func newView(order *models.Order) *OrderView {
	view := &OrderView{Order: *order, Stage: order.Status, Pricing: Snapshot(order)}
	if stage, err := StageOf(order); err == nil {
		view.Stage = stage.Status()
	}
	return view
}

func actorRef(actor Actor) *outbox.ActorRef {
	return &outbox.ActorRef{ActorID: actor.ID, Role: actor.Role.String()}
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func outcomeOf(err error) string {
	if e := pkgerrors.As(err); e != nil {
		return strings.ToLower(string(e.Code()))
	}
	return "error"
}

func notFoundOr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}
