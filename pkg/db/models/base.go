package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.Must(uuid.NewV7())
	}
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

func (t *Transaction) BeforeCreate(*gorm.DB) error {
	ensureID(&t.ID)
	return nil
}

func (c *CouponRedemption) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

func (p *Payout) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

func (r *RefundRequest) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}

func (e *OutboxEvent) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}

func (s *ServiceOffering) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}
