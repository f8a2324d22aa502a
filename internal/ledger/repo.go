package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/settlement-engine/pkg/db"
	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
)

// Repository manages ledger rows plus the two pieces of derived state the
// ledger owns: order payment status and the vendor balance counter.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, txn *models.Transaction) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	FindByExternalReference(ctx context.Context, ref string) (*models.Transaction, error)
	Finalize(ctx context.Context, id uuid.UUID, fields FinalizeFields) (bool, error)
	SetProof(ctx context.Context, id uuid.UUID, proof string) (bool, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Transaction, error)
	List(ctx context.Context, filter ListFilter) ([]models.Transaction, error)
	ListStaleInitiated(ctx context.Context, before time.Time, limit int) ([]models.Transaction, error)
	SumCompleted(ctx context.Context, orderID uuid.UUID, txnType enums.TransactionType) (int64, error)
	SumRefundVendorShare(ctx context.Context, originatingID uuid.UUID) (int64, error)
	ScanVendorBalance(ctx context.Context, vendorID uuid.UUID) (int64, error)

	LockOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	SetPaymentStatus(ctx context.Context, orderID uuid.UUID, from []enums.PaymentStatus, to enums.PaymentStatus) (bool, error)

	CreditVendor(ctx context.Context, vendorID uuid.UUID, amount int64) error
	DebitVendorIfSufficient(ctx context.Context, vendorID uuid.UUID, amount int64) (bool, error)
	VendorCounter(ctx context.Context, vendorID uuid.UUID) (int64, error)
}

// FinalizeFields is the one-shot write that moves an initiated row to a
// terminal status.
type FinalizeFields struct {
	Status          enums.TransactionStatus
	CommissionCents int64
	VendorCents     int64
	FailureReason   *string
	CompletedAt     time.Time
}

// ListFilter narrows admin ledger queries. AfterID is the exclusive cursor.
type ListFilter struct {
	VendorID *uuid.UUID
	OrderID  *uuid.UUID
	Type     *enums.TransactionType
	Status   *enums.TransactionStatus
	AfterID  uuid.UUID
	Limit    int
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, txn *models.Transaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var txn models.Transaction
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) FindByExternalReference(ctx context.Context, ref string) (*models.Transaction, error) {
	var txn models.Transaction
	if err := r.db.WithContext(ctx).Where("external_reference = ?", ref).First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

// Finalize applies fields only while the row is still initiated.
func (r *repository) Finalize(ctx context.Context, id uuid.UUID, fields FinalizeFields) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, enums.TransactionInitiated).
		Updates(map[string]any{
			"status":           fields.Status,
			"commission_cents": fields.CommissionCents,
			"vendor_cents":     fields.VendorCents,
			"failure_reason":   fields.FailureReason,
			"completed_at":     fields.CompletedAt,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *repository) SetProof(ctx context.Context, id uuid.UUID, proof string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, enums.TransactionInitiated).
		Update("proof_reference", proof)
	return res.RowsAffected == 1, res.Error
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Transaction, error) {
	var rows []models.Transaction
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.Transaction, error) {
	q := r.db.WithContext(ctx).Model(&models.Transaction{})
	if filter.VendorID != nil {
		q = q.Where("vendor_id = ?", *filter.VendorID)
	}
	if filter.OrderID != nil {
		q = q.Where("order_id = ?", *filter.OrderID)
	}
	if filter.Type != nil {
		q = q.Where("type = ?", *filter.Type)
	}
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	if filter.AfterID != uuid.Nil {
		q = q.Where("id > ?", filter.AfterID)
	}
	var rows []models.Transaction
	if err := q.Order("id ASC").Limit(filter.Limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListStaleInitiated returns gateway payment attempts still initiated at
// before. Manual attempts wait on operator review and never go stale.
func (r *repository) ListStaleInitiated(ctx context.Context, before time.Time, limit int) ([]models.Transaction, error) {
	var rows []models.Transaction
	err := r.db.WithContext(ctx).
		Where("type = ? AND status = ? AND created_at < ?", enums.TransactionPayment, enums.TransactionInitiated, before).
		Where("payment_method IS NULL OR payment_method <> ?", enums.PaymentMethodManual).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) SumCompleted(ctx context.Context, orderID uuid.UUID, txnType enums.TransactionType) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Select("COALESCE(SUM(amount_cents), 0)").
		Where("order_id = ? AND type = ? AND status = ?", orderID, txnType, enums.TransactionCompleted).
		Scan(&total).Error
	return total, err
}

func (r *repository) SumRefundVendorShare(ctx context.Context, originatingID uuid.UUID) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Select("COALESCE(SUM(vendor_cents), 0)").
		Where("originating_transaction_id = ? AND type = ? AND status = ?", originatingID, enums.TransactionRefund, enums.TransactionCompleted).
		Scan(&total).Error
	return total, err
}

// ScanVendorBalance derives the available balance from completed ledger rows:
// payment vendor shares minus refund vendor shares minus payouts.
func (r *repository) ScanVendorBalance(ctx context.Context, vendorID uuid.UUID) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(CASE
			WHEN type = ? THEN vendor_cents
			WHEN type = ? THEN -vendor_cents
			WHEN type = ? THEN -amount_cents
			ELSE 0 END), 0)
		 FROM transactions
		 WHERE vendor_id = ? AND status = ?`,
		enums.TransactionPayment, enums.TransactionRefund, enums.TransactionPayout,
		vendorID, enums.TransactionCompleted,
	).Scan(&total).Error
	return total, err
}

func (r *repository) LockOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", orderID).
		First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) SetPaymentStatus(ctx context.Context, orderID uuid.UUID, from []enums.PaymentStatus, to enums.PaymentStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status IN ?", orderID, from).
		Update("payment_status", to)
	return res.RowsAffected == 1, res.Error
}

func (r *repository) CreditVendor(ctx context.Context, vendorID uuid.UUID, amount int64) error {
	row := models.VendorBalance{VendorID: vendorID, AvailableCents: amount}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "vendor_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"available_cents": gorm.Expr("vendor_balances.available_cents + ?", amount),
			"updated_at":      time.Now().UTC(),
		}),
	}).Create(&row).Error
}

// DebitVendorIfSufficient subtracts amount in one conditional write and
// reports false when the balance would go negative.
func (r *repository) DebitVendorIfSufficient(ctx context.Context, vendorID uuid.UUID, amount int64) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE vendor_balances
		 SET available_cents = available_cents - ?, updated_at = CURRENT_TIMESTAMP
		 WHERE vendor_id = ? AND available_cents >= ?`,
		amount, vendorID, amount,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) VendorCounter(ctx context.Context, vendorID uuid.UUID) (int64, error) {
	var row models.VendorBalance
	err := r.db.WithContext(ctx).Where("vendor_id = ?", vendorID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return row.AvailableCents, nil
}

func isUnique(err error) bool {
	return db.IsUniqueViolation(err, "")
}
