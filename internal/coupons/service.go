package coupons

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-engine/internal/pricing"
	dbpkg "github.com/angelmondragon/settlement-engine/pkg/db"
	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
)

// Service validates coupon codes and consumes redemption slots.
type Service interface {
	Validate(ctx context.Context, input ValidateInput) (*models.Coupon, error)
	Reserve(ctx context.Context, tx *gorm.DB, input ReserveInput) error
	Create(ctx context.Context, input CreateInput) (*models.Coupon, error)
	Get(ctx context.Context, code string) (*models.Coupon, error)
	SetActive(ctx context.Context, code string, active bool) error
}

// ValidateInput identifies the order a code is being applied to. OrderAmount
// is the post-service-discount price the coupon will apply to.
type ValidateInput struct {
	Code        string
	OrderAmount int64
	UserID      uuid.UUID
	ServiceID   uuid.UUID
	VendorID    uuid.UUID
}

// ReserveInput identifies the redemption being consumed.
type ReserveInput struct {
	Code    string
	UserID  uuid.UUID
	OrderID uuid.UUID
}

// CreateInput is the admin definition of a coupon.
type CreateInput struct {
	Code             string           `json:"code" validate:"required,max=64"`
	Type             enums.CouponType `json:"type" validate:"required"`
	Value            decimal.Decimal  `json:"value"`
	MaxDiscountCents int64            `json:"max_discount_cents" validate:"gte=0"`
	MinOrderCents    int64            `json:"min_order_cents" validate:"gte=0"`
	UsageLimit       int              `json:"usage_limit" validate:"gte=0"`
	UserUsageLimit   int              `json:"user_usage_limit" validate:"gte=0"`
	ServiceID        *uuid.UUID       `json:"service_id,omitempty"`
	VendorID         *uuid.UUID       `json:"vendor_id,omitempty"`
	StartsAt         *time.Time       `json:"starts_at,omitempty"`
	EndsAt           *time.Time       `json:"ends_at,omitempty"`
}

type service struct {
	repo Repository
	now  func() time.Time
}

// NewService wires the coupon service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("coupon repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

// Validate runs the checks in a fixed order and returns the first failure:
// existence and active flag, validity window, minimum order, scope, global
// limit, per-user limit. It never consumes a redemption slot.
func (s *service) Validate(ctx context.Context, input ValidateInput) (*models.Coupon, error) {
	code := normalizeCode(input.Code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon code is required")
	}

	coupon, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &Rejection{Code: code, Reason: ReasonNotFound}
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}
	if !coupon.IsActive {
		return nil, &Rejection{Code: code, Reason: ReasonInactive}
	}

	now := s.now()
	if coupon.StartsAt != nil && now.Before(*coupon.StartsAt) {
		return nil, &Rejection{Code: code, Reason: ReasonNotStarted}
	}
	if coupon.EndsAt != nil && !now.Before(*coupon.EndsAt) {
		return nil, &Rejection{Code: code, Reason: ReasonExpired}
	}
	if input.OrderAmount < coupon.MinOrderCents {
		return nil, &Rejection{Code: code, Reason: ReasonMinOrderNotMet}
	}
	if coupon.ServiceID != nil && *coupon.ServiceID != input.ServiceID {
		return nil, &Rejection{Code: code, Reason: ReasonScopeMismatch}
	}
	if coupon.VendorID != nil && *coupon.VendorID != input.VendorID {
		return nil, &Rejection{Code: code, Reason: ReasonScopeMismatch}
	}
	if coupon.UsageLimit > 0 && coupon.UsageCount >= coupon.UsageLimit {
		return nil, &Rejection{Code: code, Reason: ReasonUsageLimitReached}
	}
	if coupon.UserUsageLimit > 0 {
		used, err := s.repo.CountUserRedemptions(ctx, code, input.UserID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count coupon redemptions")
		}
		if used >= int64(coupon.UserUsageLimit) {
			return nil, &Rejection{Code: code, Reason: ReasonUserLimitReached}
		}
	}
	return coupon, nil
}

// Reserve consumes one redemption slot for the order inside tx. It runs in a
// savepoint so a rejected reservation leaves the caller's transaction usable.
// Reserving the same order twice is a no-op.
func (s *service) Reserve(ctx context.Context, tx *gorm.DB, input ReserveInput) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	code := normalizeCode(input.Code)
	if code == "" || input.UserID == uuid.Nil || input.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "code, user id and order id are required")
	}

	return tx.Transaction(func(sp *gorm.DB) error {
		repo := s.repo.WithTx(sp)

		existing, err := repo.FindRedemptionByOrder(ctx, input.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load redemption")
		}
		if existing != nil {
			return nil
		}

		// The conditional increment also takes the coupon row lock, so the
		// per-user count below cannot race another reservation of this code.
		ok, err := repo.IncrementUsageIfAvailable(ctx, code)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment coupon usage")
		}
		if !ok {
			return s.exhaustedRejection(ctx, repo, code)
		}

		coupon, err := repo.FindByCode(ctx, code)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload coupon")
		}
		if coupon.UserUsageLimit > 0 {
			used, err := repo.CountUserRedemptions(ctx, code, input.UserID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count coupon redemptions")
			}
			if used >= int64(coupon.UserUsageLimit) {
				return &Rejection{Code: code, Reason: ReasonUserLimitReached}
			}
		}

		return repo.InsertRedemption(ctx, &models.CouponRedemption{
			CouponCode: code,
			UserID:     input.UserID,
			OrderID:    input.OrderID,
		})
	})
}

// exhaustedRejection names why the conditional increment matched no row.
func (s *service) exhaustedRejection(ctx context.Context, repo Repository, code string) error {
	coupon, err := repo.FindByCode(ctx, code)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return &Rejection{Code: code, Reason: ReasonNotFound}
	case err != nil:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload coupon")
	case !coupon.IsActive:
		return &Rejection{Code: code, Reason: ReasonInactive}
	}
	return &Rejection{Code: code, Reason: ReasonUsageLimitReached}
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Coupon, error) {
	code := normalizeCode(input.Code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon code is required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid coupon type %q", input.Type))
	}
	if input.Value.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon value must not be negative")
	}
	if input.Type == enums.CouponPercentage && input.Value.GreaterThan(decimal.NewFromInt(100)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "percentage coupon must not exceed 100")
	}
	if input.StartsAt != nil && input.EndsAt != nil && !input.EndsAt.After(*input.StartsAt) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ends_at must be after starts_at")
	}

	coupon := &models.Coupon{
		Code:             code,
		Type:             input.Type,
		Value:            input.Value,
		MaxDiscountCents: input.MaxDiscountCents,
		MinOrderCents:    input.MinOrderCents,
		UsageLimit:       input.UsageLimit,
		UserUsageLimit:   input.UserUsageLimit,
		ServiceID:        input.ServiceID,
		VendorID:         input.VendorID,
		StartsAt:         input.StartsAt,
		EndsAt:           input.EndsAt,
		IsActive:         true,
	}
	if err := s.repo.Create(ctx, coupon); err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "coupon code already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create coupon")
	}
	return coupon, nil
}

func (s *service) Get(ctx context.Context, code string) (*models.Coupon, error) {
	coupon, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "coupon not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}
	return coupon, nil
}

func (s *service) SetActive(ctx context.Context, code string, active bool) error {
	ok, err := s.repo.SetActive(ctx, code, active)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update coupon")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "coupon not found")
	}
	return nil
}

// Terms converts a stored coupon into the pricing engine's input.
func Terms(c *models.Coupon) *pricing.CouponTerms {
	if c == nil {
		return nil
	}
	return &pricing.CouponTerms{
		Code:             c.Code,
		Type:             c.Type,
		Value:            c.Value,
		MaxDiscountCents: c.MaxDiscountCents,
		MinOrderCents:    c.MinOrderCents,
	}
}
