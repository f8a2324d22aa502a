package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
	"github.com/angelmondragon/settlement-engine/pkg/metrics"
	"github.com/angelmondragon/settlement-engine/pkg/money"
	"github.com/angelmondragon/settlement-engine/pkg/pagination"
)

const (
	defaultExpiryBatch = 200
	expiredReason      = "payment window expired"
)

var (
	// ErrInsufficientBalance marks a debit the vendor balance cannot cover.
	ErrInsufficientBalance = errors.New("insufficient vendor balance")
	// ErrAlreadyPaid marks a second capture against an order that is already paid.
	ErrAlreadyPaid = errors.New("order already paid")
)

// Service is the single source of truth for money. Every posting runs inside
// the supplied transaction, or in its own when tx is nil.
type Service interface {
	AppendInitiated(ctx context.Context, tx *gorm.DB, input InitiatedPayment) (*models.Transaction, error)
	AttachProof(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID, proof string) (*models.Transaction, error)
	MarkFailed(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID, reason string) (*models.Transaction, error)
	ExpireStalePayments(ctx context.Context, before time.Time, limit int) (int, error)
	PostPayment(ctx context.Context, tx *gorm.DB, input PaymentPosting) (*PaymentResult, error)
	PostRefund(ctx context.Context, tx *gorm.DB, input RefundPosting) (*models.Transaction, error)
	PostPayout(ctx context.Context, tx *gorm.DB, input PayoutPosting) (*models.Transaction, error)

	VendorAvailableBalance(ctx context.Context, vendorID uuid.UUID) (int64, error)
	RemainingRefundable(ctx context.Context, orderID uuid.UUID) (int64, error)
	GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	FindByExternalReference(ctx context.Context, tx *gorm.DB, ref string) (*models.Transaction, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Transaction, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// InitiatedPayment opens a payment attempt awaiting gateway confirmation.
type InitiatedPayment struct {
	Order             *models.Order
	Method            enums.PaymentMethod
	ExternalReference string
}

// PaymentPosting records a captured payment. When an initiated row with the
// same ExternalReference exists it is finalised instead of appending a new one.
type PaymentPosting struct {
	OrderID           uuid.UUID
	AmountCents       int64
	Method            enums.PaymentMethod
	CommissionRate    decimal.Decimal
	ExternalReference string
}

// PaymentResult is the outcome of PostPayment. Replayed is set when the
// reference had already been posted and nothing was written.
type PaymentResult struct {
	Transaction *models.Transaction
	Replayed    bool
}

// RefundPosting reverses part or all of a completed payment. A nil
// OriginatingTransactionID selects the order's completed payment.
type RefundPosting struct {
	OrderID                  uuid.UUID
	AmountCents              int64
	OriginatingTransactionID *uuid.UUID
	ExternalReference        *string
}

// PayoutPosting withdraws vendor balance for an approved payout.
type PayoutPosting struct {
	VendorID    uuid.UUID
	AmountCents int64
	PayoutID    uuid.UUID
	Currency    string
}

type ListParams struct {
	VendorID *uuid.UUID
	OrderID  *uuid.UUID
	Type     *enums.TransactionType
	Status   *enums.TransactionStatus
	pagination.Params
}

type ListResult struct {
	Transactions []models.Transaction `json:"transactions"`
	NextCursor   string               `json:"next_cursor,omitempty"`
}

type service struct {
	repo    Repository
	tx      txRunner
	logg    *logger.Logger
	metrics *metrics.Settlement
	now     func() time.Time
}

// NewService wires the ledger with its repository and transaction runner.
// logg and m may be nil.
func NewService(repo Repository, tx txRunner, logg *logger.Logger, m *metrics.Settlement) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx, logg: logg, metrics: m, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *service) inTx(ctx context.Context, tx *gorm.DB, fn func(repo Repository) error) error {
	if tx != nil {
		return fn(s.repo.WithTx(tx))
	}
	return s.tx.WithTx(ctx, func(own *gorm.DB) error {
		return fn(s.repo.WithTx(own))
	})
}

func (s *service) AppendInitiated(ctx context.Context, tx *gorm.DB, input InitiatedPayment) (*models.Transaction, error) {
	if input.Order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order is required")
	}
	if !input.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment method %q", input.Method))
	}
	if input.ExternalReference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "external reference is required")
	}
	orderID := input.Order.ID
	method := input.Method
	ref := input.ExternalReference
	txn := &models.Transaction{
		OrderID:           &orderID,
		VendorID:          input.Order.VendorID,
		Type:              enums.TransactionPayment,
		Status:            enums.TransactionInitiated,
		AmountCents:       input.Order.TotalCents,
		Currency:          input.Order.Currency,
		PaymentMethod:     &method,
		ExternalReference: &ref,
	}
	err := s.inTx(ctx, tx, func(repo Repository) error {
		return repo.Create(ctx, txn)
	})
	if err != nil {
		if isUnique(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "external reference already recorded")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append initiated payment")
	}
	return txn, nil
}

func (s *service) AttachProof(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID, proof string) (*models.Transaction, error) {
	if proof == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "proof reference is required")
	}
	var out *models.Transaction
	err := s.inTx(ctx, tx, func(repo Repository) error {
		ok, err := repo.SetProof(ctx, transactionID, proof)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "attach proof")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "proof can only be attached to an initiated payment")
		}
		out, err = repo.FindByID(ctx, transactionID)
		return err
	})
	return out, err
}

func (s *service) MarkFailed(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID, reason string) (*models.Transaction, error) {
	var out *models.Transaction
	err := s.inTx(ctx, tx, func(repo Repository) error {
		current, err := repo.FindByID(ctx, transactionID)
		if err != nil {
			return notFoundOr(err, "transaction")
		}
		if current.Type != enums.TransactionPayment {
			return pkgerrors.New(pkgerrors.CodeValidation, "only payment attempts can fail")
		}
		r := reason
		ok, err := repo.Finalize(ctx, transactionID, FinalizeFields{
			Status:        enums.TransactionFailed,
			FailureReason: &r,
			CompletedAt:   s.now(),
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment failed")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("transaction already %s", current.Status))
		}
		// payment status is left as is so the order stays payable
		out, err = repo.FindByID(ctx, transactionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ObservePosting(enums.TransactionPayment, enums.TransactionFailed, out.AmountCents)
	return out, nil
}

// ExpireStalePayments fails gateway attempts left initiated past before. A
// confirmation racing the sweep wins; the row is then skipped.
func (s *service) ExpireStalePayments(ctx context.Context, before time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultExpiryBatch
	}
	rows, err := s.repo.ListStaleInitiated(ctx, before, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale payments")
	}
	var (
		expired int
		errs    error
	)
	for _, row := range rows {
		_, err := s.MarkFailed(ctx, nil, row.ID, expiredReason)
		switch {
		case err == nil:
			expired++
		case pkgerrors.IsCode(err, pkgerrors.CodeStateConflict):
		default:
			errs = multierr.Append(errs, fmt.Errorf("expire %s: %w", row.ID, err))
		}
	}
	return expired, errs
}

// PostPayment records a captured payment, splits it into commission and
// vendor share, marks the order paid and credits the vendor balance as one
// atomic unit.
func (s *service) PostPayment(ctx context.Context, tx *gorm.DB, input PaymentPosting) (*PaymentResult, error) {
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be positive")
	}
	if !input.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment method %q", input.Method))
	}
	if input.CommissionRate.IsNegative() || input.CommissionRate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "commission rate must be between 0 and 1")
	}

	var (
		out      *models.Transaction
		replayed bool
	)
	err := s.inTx(ctx, tx, func(repo Repository) error {
		order, err := repo.LockOrder(ctx, input.OrderID)
		if err != nil {
			return notFoundOr(err, "order")
		}

		var existing *models.Transaction
		if input.ExternalReference != "" {
			existing, err = repo.FindByExternalReference(ctx, input.ExternalReference)
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment attempt")
			}
			if existing != nil && existing.Status == enums.TransactionCompleted {
				out = existing
				replayed = true
				return nil
			}
		}

		if !order.PaymentStatus.IsPayable() {
			return pkgerrors.Wrap(pkgerrors.CodeBusinessRule, ErrAlreadyPaid,
				fmt.Sprintf("order payment status is %s", order.PaymentStatus))
		}
		if input.AmountCents != order.TotalCents {
			return pkgerrors.New(pkgerrors.CodeBusinessRule,
				fmt.Sprintf("payment amount %d does not match order total %d", input.AmountCents, order.TotalCents))
		}

		commission, vendor := money.Split(input.AmountCents, input.CommissionRate)
		completedAt := s.now()

		if existing != nil {
			if existing.Status != enums.TransactionInitiated {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "payment attempt already failed")
			}
			if existing.OrderIDValue() != order.ID {
				return pkgerrors.New(pkgerrors.CodeValidation, "external reference belongs to another order")
			}
			ok, err := repo.Finalize(ctx, existing.ID, FinalizeFields{
				Status:          enums.TransactionCompleted,
				CommissionCents: commission,
				VendorCents:     vendor,
				CompletedAt:     completedAt,
			})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "finalize payment")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeConcurrentModification, "payment attempt finalized concurrently")
			}
			out, err = repo.FindByID(ctx, existing.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload payment")
			}
		} else {
			orderID := order.ID
			method := input.Method
			txn := &models.Transaction{
				OrderID:         &orderID,
				VendorID:        order.VendorID,
				Type:            enums.TransactionPayment,
				Status:          enums.TransactionCompleted,
				AmountCents:     input.AmountCents,
				CommissionCents: commission,
				VendorCents:     vendor,
				Currency:        order.Currency,
				PaymentMethod:   &method,
				CompletedAt:     &completedAt,
			}
			if input.ExternalReference != "" {
				ref := input.ExternalReference
				txn.ExternalReference = &ref
			}
			if err := repo.Create(ctx, txn); err != nil {
				if isUnique(err) {
					return pkgerrors.Wrap(pkgerrors.CodeConcurrentModification, err, "payment recorded concurrently")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append payment")
			}
			out = txn
		}

		ok, err := repo.SetPaymentStatus(ctx, order.ID,
			[]enums.PaymentStatus{enums.PaymentPending, enums.PaymentFailed}, enums.PaymentPaid)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConcurrentModification, "order payment status changed concurrently")
		}
		if err := repo.CreditVendor(ctx, order.VendorID, vendor); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "credit vendor balance")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !replayed {
		s.metrics.ObservePosting(enums.TransactionPayment, enums.TransactionCompleted, out.AmountCents)
	}
	return &PaymentResult{Transaction: out, Replayed: replayed}, nil
}

// PostRefund appends a refund against a completed payment after re-checking
// the remaining refundable amount under the order row lock. The vendor share
// of the refund is pro-rata to the originating payment's split.
func (s *service) PostRefund(ctx context.Context, tx *gorm.DB, input RefundPosting) (*models.Transaction, error) {
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}

	var out *models.Transaction
	err := s.inTx(ctx, tx, func(repo Repository) error {
		order, err := repo.LockOrder(ctx, input.OrderID)
		if err != nil {
			return notFoundOr(err, "order")
		}
		if !order.PaymentStatus.IsRefundable() {
			return pkgerrors.New(pkgerrors.CodeBusinessRule,
				fmt.Sprintf("order payment status %s is not refundable", order.PaymentStatus))
		}

		paid, err := repo.SumCompleted(ctx, order.ID, enums.TransactionPayment)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum payments")
		}
		refunded, err := repo.SumCompleted(ctx, order.ID, enums.TransactionRefund)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum refunds")
		}
		remaining := paid - refunded
		if input.AmountCents > remaining {
			return pkgerrors.New(pkgerrors.CodeBusinessRule,
				fmt.Sprintf("refund %d exceeds remaining refundable %d", input.AmountCents, remaining)).
				WithDetails(map[string]any{"remaining_refundable_cents": remaining})
		}

		origin, err := s.originatingPayment(ctx, repo, order.ID, input.OriginatingTransactionID)
		if err != nil {
			return err
		}

		vendorShare := money.ProRata(input.AmountCents, origin.VendorCents, origin.AmountCents)
		priorVendor, err := repo.SumRefundVendorShare(ctx, origin.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum refund vendor share")
		}
		if input.AmountCents == remaining || priorVendor+vendorShare > origin.VendorCents {
			// the final refund absorbs rounding so shares sum to the original split
			vendorShare = origin.VendorCents - priorVendor
		}
		commissionShare := input.AmountCents - vendorShare

		if vendorShare > 0 {
			ok, err := repo.DebitVendorIfSufficient(ctx, order.VendorID, vendorShare)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "debit vendor balance")
			}
			if !ok {
				return pkgerrors.Wrap(pkgerrors.CodeBusinessRule, ErrInsufficientBalance,
					"vendor balance cannot absorb the refund")
			}
		}

		orderID := order.ID
		originID := origin.ID
		completedAt := s.now()
		txn := &models.Transaction{
			OrderID:                  &orderID,
			VendorID:                 order.VendorID,
			Type:                     enums.TransactionRefund,
			Status:                   enums.TransactionCompleted,
			AmountCents:              input.AmountCents,
			CommissionCents:          commissionShare,
			VendorCents:              vendorShare,
			Currency:                 order.Currency,
			PaymentMethod:            origin.PaymentMethod,
			ExternalReference:        input.ExternalReference,
			OriginatingTransactionID: &originID,
			CompletedAt:              &completedAt,
		}
		if err := repo.Create(ctx, txn); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append refund")
		}

		next := enums.PaymentPartiallyRefunded
		if refunded+input.AmountCents == paid {
			next = enums.PaymentRefunded
		}
		ok, err := repo.SetPaymentStatus(ctx, order.ID,
			[]enums.PaymentStatus{enums.PaymentPaid, enums.PaymentPartiallyRefunded}, next)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConcurrentModification, "order payment status changed concurrently")
		}
		out = txn
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ObservePosting(enums.TransactionRefund, enums.TransactionCompleted, out.AmountCents)
	return out, nil
}

// PostPayout debits the vendor balance in a single conditional write and
// appends the payout row; an insufficient balance leaves everything untouched.
func (s *service) PostPayout(ctx context.Context, tx *gorm.DB, input PayoutPosting) (*models.Transaction, error) {
	if input.VendorID == uuid.Nil || input.PayoutID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id and payout id are required")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout amount must be positive")
	}

	var out *models.Transaction
	err := s.inTx(ctx, tx, func(repo Repository) error {
		ok, err := repo.DebitVendorIfSufficient(ctx, input.VendorID, input.AmountCents)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "debit vendor balance")
		}
		if !ok {
			return pkgerrors.Wrap(pkgerrors.CodeBusinessRule, ErrInsufficientBalance,
				"payout exceeds vendor available balance")
		}
		payoutID := input.PayoutID
		completedAt := s.now()
		txn := &models.Transaction{
			VendorID:    input.VendorID,
			Type:        enums.TransactionPayout,
			Status:      enums.TransactionCompleted,
			AmountCents: input.AmountCents,
			VendorCents: input.AmountCents,
			Currency:    input.Currency,
			PayoutID:    &payoutID,
			CompletedAt: &completedAt,
		}
		if err := repo.Create(ctx, txn); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append payout")
		}
		out = txn
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ObservePosting(enums.TransactionPayout, enums.TransactionCompleted, out.AmountCents)
	return out, nil
}

func (s *service) VendorAvailableBalance(ctx context.Context, vendorID uuid.UUID) (int64, error) {
	if vendorID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	balance, err := s.repo.ScanVendorBalance(ctx, vendorID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "scan vendor balance")
	}
	if s.logg != nil {
		if counter, cerr := s.repo.VendorCounter(ctx, vendorID); cerr == nil && counter != balance {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"vendor_id":     vendorID.String(),
				"ledger_cents":  balance,
				"counter_cents": counter,
			})
			s.logg.Warn(logCtx, "vendor balance counter diverges from ledger")
		}
	}
	return balance, nil
}

func (s *service) RemainingRefundable(ctx context.Context, orderID uuid.UUID) (int64, error) {
	paid, err := s.repo.SumCompleted(ctx, orderID, enums.TransactionPayment)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum payments")
	}
	refunded, err := s.repo.SumCompleted(ctx, orderID, enums.TransactionRefund)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum refunds")
	}
	return paid - refunded, nil
}

func (s *service) GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	txn, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "transaction")
	}
	return txn, nil
}

func (s *service) FindByExternalReference(ctx context.Context, tx *gorm.DB, ref string) (*models.Transaction, error) {
	txn, err := s.repo.WithTx(tx).FindByExternalReference(ctx, ref)
	if err != nil {
		return nil, notFoundOr(err, "transaction")
	}
	return txn, nil
}

func (s *service) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Transaction, error) {
	rows, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions")
	}
	return rows, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	after, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, ListFilter{
		VendorID: params.VendorID,
		OrderID:  params.OrderID,
		Type:     params.Type,
		Status:   params.Status,
		AfterID:  after,
		Limit:    pagination.LimitWithBuffer(params.Limit),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions")
	}
	page, next := pagination.Trim(rows, params.Limit, func(t models.Transaction) uuid.UUID { return t.ID })
	return &ListResult{Transactions: page, NextCursor: next}, nil
}

func (s *service) originatingPayment(ctx context.Context, repo Repository, orderID uuid.UUID, id *uuid.UUID) (*models.Transaction, error) {
	if id != nil {
		origin, err := repo.FindByID(ctx, *id)
		if err != nil {
			return nil, notFoundOr(err, "originating transaction")
		}
		if origin.Type != enums.TransactionPayment || origin.Status != enums.TransactionCompleted || origin.OrderIDValue() != orderID {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "originating transaction is not a completed payment for this order")
		}
		return origin, nil
	}
	rows, err := repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list order transactions")
	}
	for i := range rows {
		if rows[i].Type == enums.TransactionPayment && rows[i].Status == enums.TransactionCompleted {
			return &rows[i], nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, "order has no completed payment")
}

func notFoundOr(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, what+" not found")
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load "+what)
}
