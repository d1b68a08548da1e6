package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	BookingStatusActive    = "active"
	BookingStatusCancelled = "cancelled"
)

// Booking is a charter reservation. PaidAmount and Balance are derived fields
// owned by the balance recalculator. TotalDue is nullable on purpose: a null
// due amount means the charge data is incomplete and must never be read as zero.
type Booking struct {
	ID           uuid.UUID           `gorm:"type:uuid;primaryKey"`
	Reference    string              `gorm:"uniqueIndex"`
	CustomerName string              `gorm:"index"`
	TotalDue     decimal.NullDecimal `gorm:"type:numeric(14,2)"`
	PaidAmount   decimal.Decimal     `gorm:"type:numeric(14,2)"`
	Balance      decimal.Decimal     `gorm:"type:numeric(14,2)"`
	Status       string              `gorm:"index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
