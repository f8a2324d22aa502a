package refunds

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
)

// Repository persists refund requests. Status changes are conditional on the
// status the caller expects.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, req *models.RefundRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.RefundRequest, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.RefundRequest, error)
	Advance(ctx context.Context, id uuid.UUID, from enums.RefundStatus, change StatusChange) (bool, error)
}

// StatusChange is the set of columns written alongside a status move. Zero
// fields are left untouched.
type StatusChange struct {
	To              enums.RefundStatus
	DecidedBy       *uuid.UUID
	DecidedAt       *time.Time
	TransactionID   *uuid.UUID
	RejectionReason *string
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, req *models.RefundRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.RefundRequest, error) {
	var req models.RefundRequest
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.RefundRequest, error) {
	var rows []models.RefundRequest
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) Advance(ctx context.Context, id uuid.UUID, from enums.RefundStatus, change StatusChange) (bool, error) {
	updates := map[string]any{"status": change.To}
	if change.DecidedBy != nil {
		updates["decided_by"] = *change.DecidedBy
	}
	if change.DecidedAt != nil {
		updates["decided_at"] = *change.DecidedAt
	}
	if change.TransactionID != nil {
		updates["transaction_id"] = *change.TransactionID
	}
	if change.RejectionReason != nil {
		updates["rejection_reason"] = *change.RejectionReason
	}
	res := r.db.WithContext(ctx).
		Model(&models.RefundRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
