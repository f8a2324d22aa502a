package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
)

// Repository persists orders. Status only changes through CompareAndSetStatus.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	CompareAndSetStatus(ctx context.Context, cas StatusCAS) (bool, error)
	Archive(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	List(ctx context.Context, filter ListFilter) ([]models.Order, error)
}

// StatusCAS is a single conditional status write. RequirePaid additionally
// guards on payment_status = paid.
type StatusCAS struct {
	OrderID         uuid.UUID
	ExpectedVersion int
	From            enums.OrderStatus
	To              enums.OrderStatus
	RequirePaid     bool
}

type ListFilter struct {
	CustomerID      *uuid.UUID
	VendorID        *uuid.UUID
	Status          *enums.OrderStatus
	IncludeArchived bool
	AfterID         uuid.UUID
	Limit           int
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) CompareAndSetStatus(ctx context.Context, cas StatusCAS) (bool, error) {
	q := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND version = ? AND status = ?", cas.OrderID, cas.ExpectedVersion, cas.From)
	if cas.RequirePaid {
		q = q.Where("payment_status = ?", enums.PaymentPaid)
	}
	res := q.Updates(map[string]any{
		"status":  cas.To,
		"version": gorm.Expr("version + 1"),
	})
	return res.RowsAffected == 1, res.Error
}

// Archive stamps archived_at on a terminal, not yet archived order.
func (r *repository) Archive(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND archived_at IS NULL AND status IN ?", id,
			[]enums.OrderStatus{enums.OrderCompleted, enums.OrderRejected, enums.OrderCancelled}).
		Update("archived_at", at)
	return res.RowsAffected == 1, res.Error
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.Order, error) {
	q := r.db.WithContext(ctx).Model(&models.Order{})
	if filter.CustomerID != nil {
		q = q.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.VendorID != nil {
		q = q.Where("vendor_id = ?", *filter.VendorID)
	}
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	if !filter.IncludeArchived {
		q = q.Where("archived_at IS NULL")
	}
	if filter.AfterID != uuid.Nil {
		q = q.Where("id > ?", filter.AfterID)
	}
	var rows []models.Order
	if err := q.Order("id ASC").Limit(filter.Limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
