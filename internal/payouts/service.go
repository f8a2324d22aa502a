package payouts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-engine/internal/ledger"
	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
	"github.com/angelmondragon/settlement-engine/pkg/metrics"
	"github.com/angelmondragon/settlement-engine/pkg/outbox"
	"github.com/angelmondragon/settlement-engine/pkg/outbox/payloads"
	"github.com/angelmondragon/settlement-engine/pkg/pagination"
)

// ReasonInsufficientBalance is recorded on payouts rejected at approval
// because the balance shrank after the request.
const ReasonInsufficientBalance = "insufficient_balance"

const maxBatchSize = 100

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type balanceLedger interface {
	VendorAvailableBalance(ctx context.Context, vendorID uuid.UUID) (int64, error)
	PostPayout(ctx context.Context, tx *gorm.DB, input ledger.PayoutPosting) (*models.Transaction, error)
}

// Service runs vendor withdrawals: pending -> approved -> paid, or
// pending -> rejected. A payout is never partially paid.
type Service interface {
	Request(ctx context.Context, input RequestInput) (*models.Payout, error)
	Approve(ctx context.Context, id, adminID uuid.UUID) (*models.Payout, error)
	Reject(ctx context.Context, id, adminID uuid.UUID, reason string) (*models.Payout, error)
	ApproveBatch(ctx context.Context, ids []uuid.UUID, adminID uuid.UUID) ([]BatchResult, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	ListPending(ctx context.Context, params pagination.Params) (*PayoutList, error)
	ListByVendor(ctx context.Context, vendorID uuid.UUID, params pagination.Params) (*PayoutList, error)
}

type RequestInput struct {
	VendorID    uuid.UUID
	AmountCents int64
	ActorID     uuid.UUID
	ActorRole   enums.ActorRole
}

// BatchResult is the outcome of one payout in ApproveBatch. Error is empty
// when the payout was paid.
type BatchResult struct {
	PayoutID uuid.UUID          `json:"payout_id"`
	Status   enums.PayoutStatus `json:"status,omitempty"`
	Error    string             `json:"error,omitempty"`
}

type PayoutList struct {
	Payouts    []models.Payout `json:"payouts"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type service struct {
	repo     Repository
	tx       txRunner
	ledger   balanceLedger
	outbox   outbox.Emitter
	currency string
	logg     *logger.Logger
	metrics  *metrics.Settlement
	now      func() time.Time
}

// NewService wires the payout workflow. logg and m may be nil.
func NewService(
	repo Repository,
	tx txRunner,
	ledgerSvc balanceLedger,
	emitter outbox.Emitter,
	currency string,
	logg *logger.Logger,
	m *metrics.Settlement,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payouts repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if strings.TrimSpace(currency) == "" {
		return nil, fmt.Errorf("currency required")
	}
	return &service{
		repo:     repo,
		tx:       tx,
		ledger:   ledgerSvc,
		outbox:   emitter,
		currency: strings.ToUpper(currency),
		logg:     logg,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Request opens a payout for at most the vendor's current available balance.
// The balance is checked again at approval.
func (s *service) Request(ctx context.Context, input RequestInput) (*models.Payout, error) {
	if input.VendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout amount must be positive")
	}
	switch input.ActorRole {
	case enums.RoleAdmin, enums.RoleSystem:
	case enums.RoleVendor:
		if input.ActorID != input.VendorID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "vendors can only request their own payouts")
		}
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only vendors can request payouts")
	}

	balance, err := s.ledger.VendorAvailableBalance(ctx, input.VendorID)
	if err != nil {
		return nil, err
	}
	if input.AmountCents > balance {
		s.metrics.ObserveDecision("payout", "exceeds_balance")
		return nil, pkgerrors.Wrap(pkgerrors.CodeBusinessRule, ledger.ErrInsufficientBalance,
			fmt.Sprintf("payout %d exceeds available balance %d", input.AmountCents, balance)).
			WithDetails(map[string]any{"available_cents": balance})
	}

	payout := &models.Payout{
		VendorID:    input.VendorID,
		AmountCents: input.AmountCents,
		Currency:    s.currency,
		Status:      enums.PayoutPending,
		RequestedAt: s.now(),
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, payout); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payout")
		}
		return s.emit(ctx, tx, enums.EventPayoutRequested, payout, input.ActorID, input.ActorRole)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveDecision("payout", "requested")
	return payout, nil
}

// Approve pays a pending payout in one database transaction: approved, the
// payout posting with its conditional balance debit, then paid. When the
// balance no longer covers the amount the payout is rejected with
// ReasonInsufficientBalance and the returned error wraps
// ledger.ErrInsufficientBalance.
func (s *service) Approve(ctx context.Context, id, adminID uuid.UUID) (*models.Payout, error) {
	if adminID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "admin identity missing")
	}
	payout, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if payout.Status != enums.PayoutPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("payout is %s", payout.Status))
	}

	decidedAt := s.now()
	insufficient := false
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.Advance(ctx, payout.ID, enums.PayoutPending, StatusChange{
			To:        enums.PayoutApproved,
			DecidedBy: &adminID,
			DecidedAt: &decidedAt,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "approve payout")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConcurrentModification, "payout changed concurrently")
		}
		payout.DecidedBy = &adminID
		payout.DecidedAt = &decidedAt

		txn, err := s.ledger.PostPayout(ctx, tx, ledger.PayoutPosting{
			VendorID:    payout.VendorID,
			AmountCents: payout.AmountCents,
			PayoutID:    payout.ID,
			Currency:    payout.Currency,
		})
		if errors.Is(err, ledger.ErrInsufficientBalance) {
			insufficient = true
			reason := ReasonInsufficientBalance
			if _, err := repo.Advance(ctx, payout.ID, enums.PayoutApproved, StatusChange{
				To:              enums.PayoutRejected,
				RejectionReason: &reason,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reject payout")
			}
			payout.Status = enums.PayoutRejected
			payout.RejectionReason = &reason
			return s.emit(ctx, tx, enums.EventPayoutRejected, payout, adminID, enums.RoleAdmin)
		}
		if err != nil {
			return err
		}

		if _, err := repo.Advance(ctx, payout.ID, enums.PayoutApproved, StatusChange{
			To:            enums.PayoutPaid,
			TransactionID: &txn.ID,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payout paid")
		}
		payout.Status = enums.PayoutPaid
		payout.TransactionID = &txn.ID
		return s.emit(ctx, tx, enums.EventPayoutPaid, payout, adminID, enums.RoleAdmin)
	})
	if err != nil {
		return nil, err
	}

	if insufficient {
		s.metrics.ObserveDecision("payout", ReasonInsufficientBalance)
		if s.logg != nil {
			logCtx := s.logg.WithVendorID(ctx, payout.VendorID.String())
			logCtx = s.logg.WithFields(logCtx, map[string]any{"payout_id": payout.ID.String(), "amount_cents": payout.AmountCents})
			s.logg.Warn(logCtx, "payout rejected at approval: balance shrank")
		}
		return payout, pkgerrors.Wrap(pkgerrors.CodeBusinessRule, ledger.ErrInsufficientBalance,
			"payout rejected: vendor balance no longer covers the amount")
	}
	s.metrics.ObserveDecision("payout", "paid")
	if s.logg != nil {
		logCtx := s.logg.WithVendorID(ctx, payout.VendorID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{"payout_id": payout.ID.String(), "amount_cents": payout.AmountCents})
		s.logg.Info(logCtx, "payout paid")
	}
	return payout, nil
}

func (s *service) Reject(ctx context.Context, id, adminID uuid.UUID, reason string) (*models.Payout, error) {
	if adminID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "admin identity missing")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rejection reason is required")
	}
	payout, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if payout.Status != enums.PayoutPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("payout is %s", payout.Status))
	}

	decidedAt := s.now()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).Advance(ctx, payout.ID, enums.PayoutPending, StatusChange{
			To:              enums.PayoutRejected,
			DecidedBy:       &adminID,
			DecidedAt:       &decidedAt,
			RejectionReason: &reason,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reject payout")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConcurrentModification, "payout changed concurrently")
		}
		payout.Status = enums.PayoutRejected
		payout.DecidedBy = &adminID
		payout.DecidedAt = &decidedAt
		payout.RejectionReason = &reason
		return s.emit(ctx, tx, enums.EventPayoutRejected, payout, adminID, enums.RoleAdmin)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveDecision("payout", "rejected")
	return payout, nil
}

// ApproveBatch approves each payout independently. Every id gets a result;
// the returned error combines the individual failures.
func (s *service) ApproveBatch(ctx context.Context, ids []uuid.UUID, adminID uuid.UUID) ([]BatchResult, error) {
	if len(ids) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one payout id is required")
	}
	if len(ids) > maxBatchSize {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("batch exceeds %d payouts", maxBatchSize))
	}

	results := make([]BatchResult, 0, len(ids))
	var errs error
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if err := ctx.Err(); err != nil {
			results = append(results, BatchResult{PayoutID: id, Error: err.Error()})
			errs = multierr.Append(errs, fmt.Errorf("payout %s: %w", id, err))
			continue
		}
		payout, err := s.Approve(ctx, id, adminID)
		res := BatchResult{PayoutID: id}
		if payout != nil {
			res.Status = payout.Status
		}
		if err != nil {
			res.Error = err.Error()
			errs = multierr.Append(errs, fmt.Errorf("payout %s: %w", id, err))
		}
		results = append(results, res)
	}
	return results, errs
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	payout, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout")
	}
	return payout, nil
}

func (s *service) ListPending(ctx context.Context, params pagination.Params) (*PayoutList, error) {
	status := enums.PayoutPending
	return s.list(ctx, ListFilter{Status: &status}, params)
}

func (s *service) ListByVendor(ctx context.Context, vendorID uuid.UUID, params pagination.Params) (*PayoutList, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	return s.list(ctx, ListFilter{VendorID: &vendorID}, params)
}

func (s *service) list(ctx context.Context, filter ListFilter, params pagination.Params) (*PayoutList, error) {
	after, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	filter.AfterID = after
	filter.Limit = pagination.LimitWithBuffer(params.Limit)
	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payouts")
	}
	page, next := pagination.Trim(rows, params.Limit, func(p models.Payout) uuid.UUID { return p.ID })
	return &PayoutList{Payouts: page, NextCursor: next}, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, payout *models.Payout, actorID uuid.UUID, role enums.ActorRole) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregatePayout,
		AggregateID:   payout.ID,
		Actor:         &outbox.ActorRef{ActorID: actorID, Role: role.String()},
		Data: payloads.PayoutEvent{
			PayoutID:      payout.ID,
			VendorID:      payout.VendorID,
			AmountCents:   payout.AmountCents,
			Status:        payout.Status.String(),
			TransactionID: payout.TransactionID,
			Reason:        payout.RejectionReason,
			DecidedAt:     payout.DecidedAt,
		},
	})
}
