// Package catalog reads the bookable service offerings owned by the catalog
// collaborator. The settlement engine never writes offerings outside seeding
// and tests.
package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
)

// Lookup resolves a service offering for pricing.
type Lookup interface {
	GetOffering(ctx context.Context, serviceID uuid.UUID) (*models.ServiceOffering, error)
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// GetOffering returns the active offering or a NOT_FOUND error.
func (r *Repository) GetOffering(ctx context.Context, serviceID uuid.UUID) (*models.ServiceOffering, error) {
	var offering models.ServiceOffering
	err := r.db.WithContext(ctx).
		Where("id = ? AND is_active = ?", serviceID, true).
		First(&offering).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "service offering not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load service offering")
	}
	return &offering, nil
}

// Create stores an offering.
func (r *Repository) Create(ctx context.Context, offering *models.ServiceOffering) error {
	return r.db.WithContext(ctx).Create(offering).Error
}
