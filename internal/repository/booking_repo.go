package repository

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"charter-reconciliation-backend/internal/models"
)

type BookingRepository struct {
	db *gorm.DB
}

func NewBookingRepository(db *gorm.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

func (r *BookingRepository) WithTx(tx *gorm.DB) *BookingRepository {
	return &BookingRepository{db: tx}
}

func (r *BookingRepository) Create(b *models.Booking) error {
	return r.db.Create(b).Error
}

func (r *BookingRepository) GetByID(id uuid.UUID) (*models.Booking, error) {
	var b models.Booking
	if err := r.db.First(&b, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// UpdateDerived persists the recalculator's output. Only paid and balance move
// here; total_due belongs to the charge data, not to reconciliation.
func (r *BookingRepository) UpdateDerived(id uuid.UUID, paid, balance decimal.Decimal) error {
	return r.db.Model(&models.Booking{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"paid_amount": paid,
			"balance":     balance,
		}).Error
}
