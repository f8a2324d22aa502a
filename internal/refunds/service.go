package refunds

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-engine/internal/ledger"
	"github.com/angelmondragon/settlement-engine/internal/orders"
	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
	"github.com/angelmondragon/settlement-engine/pkg/metrics"
	"github.com/angelmondragon/settlement-engine/pkg/outbox"
	"github.com/angelmondragon/settlement-engine/pkg/outbox/payloads"
)

const maxReasonLength = 1000

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type orderReader interface {
	GetOrder(ctx context.Context, id uuid.UUID) (*orders.OrderView, error)
}

// GatewayRefunder returns money through the gateway that captured a payment.
type GatewayRefunder interface {
	RefundPayment(ctx context.Context, payment *models.Transaction, amountCents int64, idempotencyKey string) error
}

// Service runs the refund workflow: requested -> approved -> processed, or
// requested -> rejected.
type Service interface {
	Request(ctx context.Context, input RequestInput) (*models.RefundRequest, error)
	Approve(ctx context.Context, id, adminID uuid.UUID) (*models.RefundRequest, error)
	Process(ctx context.Context, id, adminID uuid.UUID) (*models.RefundRequest, error)
	Reject(ctx context.Context, id, adminID uuid.UUID, reason string) (*models.RefundRequest, error)
	Get(ctx context.Context, id uuid.UUID) (*models.RefundRequest, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.RefundRequest, error)
}

type RequestInput struct {
	OrderID     uuid.UUID
	AmountCents int64
	Reason      string
	Actor       orders.Actor
}

type service struct {
	repo     Repository
	tx       txRunner
	ledger   ledger.Service
	orders   orderReader
	refunder GatewayRefunder
	outbox   outbox.Emitter
	logg     *logger.Logger
	metrics  *metrics.Settlement
	now      func() time.Time
}

// NewService wires the refund workflow. logg and m may be nil.
func NewService(
	repo Repository,
	tx txRunner,
	ledgerSvc ledger.Service,
	orderSvc orderReader,
	refunder GatewayRefunder,
	emitter outbox.Emitter,
	logg *logger.Logger,
	m *metrics.Settlement,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("refunds repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if orderSvc == nil {
		return nil, fmt.Errorf("order reader required")
	}
	if refunder == nil {
		return nil, fmt.Errorf("gateway refunder required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{
		repo:     repo,
		tx:       tx,
		ledger:   ledgerSvc,
		orders:   orderSvc,
		refunder: refunder,
		outbox:   emitter,
		logg:     logg,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Request records a customer refund request. The amount is only checked
// against the order total here; the remaining refundable figure is checked
// at approval.
func (s *service) Request(ctx context.Context, input RequestInput) (*models.RefundRequest, error) {
	reason := strings.TrimSpace(input.Reason)
	switch {
	case input.OrderID == uuid.Nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	case input.AmountCents <= 0:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	case reason == "":
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund reason is required")
	case len(reason) > maxReasonLength:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund reason is too long")
	}

	view, err := s.orders.GetOrder(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	order := view.Order
	if err := authorizeRequester(&order, input.Actor); err != nil {
		return nil, err
	}
	if !order.PaymentStatus.IsRefundable() {
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule,
			fmt.Sprintf("order payment status %s is not refundable", order.PaymentStatus))
	}
	if input.AmountCents > order.TotalCents {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount exceeds order total").
			WithDetails(map[string]any{"total_cents": order.TotalCents})
	}

	req := &models.RefundRequest{
		OrderID:     order.ID,
		CustomerID:  order.CustomerID,
		AmountCents: input.AmountCents,
		Reason:      reason,
		Status:      enums.RefundRequested,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, req); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create refund request")
		}
		return s.emit(ctx, tx, enums.EventRefundRequested, req, input.Actor.ID, input.Actor.Role)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveDecision("refund", "requested")
	return req, nil
}

// Approve moves a request to approved after re-checking the remaining
// refundable amount, then processes it.
func (s *service) Approve(ctx context.Context, id, adminID uuid.UUID) (*models.RefundRequest, error) {
	if adminID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "admin identity missing")
	}
	req, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != enums.RefundRequested {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "refund request is %s", req.Status)
	}
	remaining, err := s.ledger.RemainingRefundable(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if req.AmountCents > remaining {
		s.metrics.ObserveDecision("refund", "exceeds_remaining")
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule,
			fmt.Sprintf("refund %d exceeds remaining refundable %d", req.AmountCents, remaining)).
			WithDetails(map[string]any{"remaining_refundable_cents": remaining})
	}

	decidedAt := s.now()
	ok, err := s.repo.Advance(ctx, req.ID, enums.RefundRequested, StatusChange{
		To:        enums.RefundApproved,
		DecidedBy: &adminID,
		DecidedAt: &decidedAt,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "approve refund request")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeConcurrentModification, "refund request changed concurrently")
	}
	req.Status = enums.RefundApproved
	req.DecidedBy = &adminID
	req.DecidedAt = &decidedAt
	return s.process(ctx, req, adminID)
}

// Process retries an approved request whose posting or gateway refund did not
// complete, for example after the vendor balance has been replenished.
func (s *service) Process(ctx context.Context, id, adminID uuid.UUID) (*models.RefundRequest, error) {
	if adminID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "admin identity missing")
	}
	req, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != enums.RefundApproved {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "refund request is %s", req.Status)
	}
	return s.process(ctx, req, adminID)
}

// process posts the ledger refund and calls the gateway inside one
// transaction. The order lock, remaining refundable check and vendor debit
// all succeed before any money leaves; a gateway failure rolls the posting
// back. The gateway call reuses the request's idempotency key, so a retry
// after a failed commit cannot refund twice.
func (s *service) process(ctx context.Context, req *models.RefundRequest, adminID uuid.UUID) (*models.RefundRequest, error) {
	payment, err := s.originatingPayment(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	key := idempotencyKey(req.ID)
	gatewayCalled := false

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		// claiming the row first serialises concurrent retries of one request
		ok, err := repo.Advance(ctx, req.ID, enums.RefundApproved, StatusChange{To: enums.RefundProcessed})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim refund request")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "refund request is no longer approved")
		}
		posted, err := s.ledger.PostRefund(ctx, tx, ledger.RefundPosting{
			OrderID:                  req.OrderID,
			AmountCents:              req.AmountCents,
			OriginatingTransactionID: &payment.ID,
			ExternalReference:        &key,
		})
		if err != nil {
			return err
		}
		if _, err := repo.Advance(ctx, req.ID, enums.RefundProcessed, StatusChange{
			To:            enums.RefundProcessed,
			TransactionID: &posted.ID,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "link refund transaction")
		}
		req.Status = enums.RefundProcessed
		req.TransactionID = &posted.ID
		if err := s.emit(ctx, tx, enums.EventRefundProcessed, req, adminID, enums.RoleAdmin); err != nil {
			return err
		}

		gatewayCalled = true
		if err := s.refunder.RefundPayment(ctx, payment, req.AmountCents, key); err != nil {
			s.metrics.ObserveDecision("refund", "gateway_failure")
			return err
		}
		return nil
	})
	if err != nil {
		req.Status = enums.RefundApproved
		req.TransactionID = nil
		if s.logg != nil {
			logCtx := s.logg.WithOrderID(ctx, req.OrderID.String())
			logCtx = s.logg.WithTransactionID(logCtx, payment.ID.String())
			logCtx = s.logg.WithFields(logCtx, map[string]any{
				"refund_id":      req.ID.String(),
				"amount_cents":   req.AmountCents,
				"gateway_called": gatewayCalled,
			})
			s.logg.Error(logCtx, "refund not processed", err)
		}
		if !gatewayCalled {
			s.metrics.ObserveDecision("refund", "posting_failed")
		}
		return nil, err
	}
	s.metrics.ObserveDecision("refund", "processed")
	return req, nil
}

func (s *service) Reject(ctx context.Context, id, adminID uuid.UUID, reason string) (*models.RefundRequest, error) {
	if adminID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "admin identity missing")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rejection reason is required")
	}
	req, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != enums.RefundRequested {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "refund request is %s", req.Status)
	}

	decidedAt := s.now()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).Advance(ctx, req.ID, enums.RefundRequested, StatusChange{
			To:              enums.RefundRejected,
			DecidedBy:       &adminID,
			DecidedAt:       &decidedAt,
			RejectionReason: &reason,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reject refund request")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConcurrentModification, "refund request changed concurrently")
		}
		req.Status = enums.RefundRejected
		req.DecidedBy = &adminID
		req.DecidedAt = &decidedAt
		req.RejectionReason = &reason
		return s.emit(ctx, tx, enums.EventRefundRejected, req, adminID, enums.RoleAdmin)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveDecision("refund", "rejected")
	return req, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.RefundRequest, error) {
	req, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "refund request not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load refund request")
	}
	return req, nil
}

func (s *service) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.RefundRequest, error) {
	rows, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list refund requests")
	}
	return rows, nil
}

func (s *service) originatingPayment(ctx context.Context, orderID uuid.UUID) (*models.Transaction, error) {
	rows, err := s.ledger.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		if rows[i].Type == enums.TransactionPayment && rows[i].Status == enums.TransactionCompleted {
			return &rows[i], nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, "order has no completed payment")
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, req *models.RefundRequest, actorID uuid.UUID, role enums.ActorRole) error {
	data := payloads.RefundEvent{
		RefundID:      req.ID,
		OrderID:       req.OrderID,
		AmountCents:   req.AmountCents,
		Status:        req.Status.String(),
		TransactionID: req.TransactionID,
		Reason:        req.RejectionReason,
	}
	if eventType == enums.EventRefundRequested {
		data.Reason = &req.Reason
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateRefund,
		AggregateID:   req.ID,
		Actor:         &outbox.ActorRef{ActorID: actorID, Role: role.String()},
		Data:          data,
	})
}

func idempotencyKey(id uuid.UUID) string {
	return "refund_" + id.String()
}

func authorizeRequester(order *models.Order, actor orders.Actor) error {
	if actor.ID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	switch actor.Role {
	case enums.RoleAdmin, enums.RoleSystem:
		return nil
	case enums.RoleCustomer:
		if actor.ID == order.CustomerID {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "only the ordering customer can request a refund")
}
