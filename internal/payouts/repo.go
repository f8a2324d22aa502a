package payouts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payout *models.Payout) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	Advance(ctx context.Context, id uuid.UUID, from enums.PayoutStatus, change StatusChange) (bool, error)
	List(ctx context.Context, filter ListFilter) ([]models.Payout, error)
}

// StatusChange is the set of columns written alongside a status move.
type StatusChange struct {
	To              enums.PayoutStatus
	DecidedBy       *uuid.UUID
	DecidedAt       *time.Time
	TransactionID   *uuid.UUID
	RejectionReason *string
}

type ListFilter struct {
	VendorID *uuid.UUID
	Status   *enums.PayoutStatus
	AfterID  uuid.UUID
	Limit    int
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

func (r *repository) Create(ctx context.Context, payout *models.Payout) error {
	return r.db.WithContext(ctx).Create(payout).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&payout).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repository) Advance(ctx context.Context, id uuid.UUID, from enums.PayoutStatus, change StatusChange) (bool, error) {
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
		Model(&models.Payout{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.Payout, error) {
	q := r.db.WithContext(ctx).Model(&models.Payout{})
	if filter.VendorID != nil {
		q = q.Where("vendor_id = ?", *filter.VendorID)
	}
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	if filter.AfterID != uuid.Nil {
		q = q.Where("id > ?", filter.AfterID)
	}
	var rows []models.Payout
	err := q.Order("id ASC").Limit(filter.Limit).Find(&rows).Error
	return rows, err
}
