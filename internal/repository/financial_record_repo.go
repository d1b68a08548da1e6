package repository

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"charter-reconciliation-backend/internal/models"
)

type FinancialRecordRepository struct {
	db *gorm.DB
}

func NewFinancialRecordRepository(db *gorm.DB) *FinancialRecordRepository {
	return &FinancialRecordRepository{db: db}
}

func (r *FinancialRecordRepository) WithTx(tx *gorm.DB) *FinancialRecordRepository {
	return &FinancialRecordRepository{db: tx}
}

func (r *FinancialRecordRepository) Create(rec *models.FinancialRecord) error {
	return r.db.Create(rec).Error
}

func (r *FinancialRecordRepository) GetByID(id uuid.UUID) (*models.FinancialRecord, error) {
	var rec models.FinancialRecord
	if err := r.db.First(&rec, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// FindUnlinkedInDateRange returns payments/receipts of the given kind inside
// [from, to] that have no active link. The date range rides the index; amount
// tolerance is the candidate generator's job.
func (r *FinancialRecordRepository) FindUnlinkedInDateRange(kind string, from, to time.Time) ([]models.FinancialRecord, error) {
	var recs []models.FinancialRecord
	err := r.db.
		Joins("LEFT JOIN links ON links.financial_record_id = financial_records.id AND links.superseded_at IS NULL").
		Where("links.id IS NULL").
		Where("financial_records.kind = ?", kind).
		Where("financial_records.record_date BETWEEN ? AND ?", from, to).
		Order("financial_records.record_date ASC, financial_records.id ASC").
		Find(&recs).Error
	return recs, err
}

// FindByBooking returns a booking's records of one kind, ordered by date.
func (r *FinancialRecordRepository) FindByBooking(bookingID uuid.UUID, kind string) ([]models.FinancialRecord, error) {
	var recs []models.FinancialRecord
	err := r.db.
		Where("booking_id = ? AND kind = ?", bookingID, kind).
		Order("record_date ASC, id ASC").
		Find(&recs).Error
	return recs, err
}
