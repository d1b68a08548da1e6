package repository

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"charter-reconciliation-backend/internal/models"
)

type ExternalTransactionRepository struct {
	db *gorm.DB
}

func NewExternalTransactionRepository(db *gorm.DB) *ExternalTransactionRepository {
	return &ExternalTransactionRepository{db: db}
}

// WithTx returns a copy of the repository bound to a transaction handle.
func (r *ExternalTransactionRepository) WithTx(tx *gorm.DB) *ExternalTransactionRepository {
	return &ExternalTransactionRepository{db: tx}
}

// InsertIfAbsent writes the transaction unless a row with the same fingerprint
// already exists. Returns true when a row was actually inserted.
func (r *ExternalTransactionRepository) InsertIfAbsent(tx *models.ExternalTransaction) (bool, error) {
	res := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "fingerprint"}},
		DoNothing: true,
	}).Create(tx)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *ExternalTransactionRepository) GetByID(id uuid.UUID) (*models.ExternalTransaction, error) {
	var tx models.ExternalTransaction
	if err := r.db.First(&tx, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &tx, nil
}

// FindPendingByBatch returns the batch's transactions that have no outcome yet,
// in a stable order so preview and apply walk them identically.
func (r *ExternalTransactionRepository) FindPendingByBatch(batchID uuid.UUID) ([]models.ExternalTransaction, error) {
	var txs []models.ExternalTransaction
	err := r.db.
		Where("import_batch_id = ? AND status = ?", batchID, models.TxStatusPending).
		Order("transaction_date ASC, id ASC").
		Find(&txs).Error
	return txs, err
}

// FindOffsetting returns transactions on the same source account whose amount
// exactly negates the given one, within the window. Used to spot reversal pairs.
func (r *ExternalTransactionRepository) FindOffsetting(tx *models.ExternalTransaction, windowDays int) ([]models.ExternalTransaction, error) {
	from := tx.TransactionDate.AddDate(0, 0, -windowDays)
	to := tx.TransactionDate.AddDate(0, 0, windowDays)

	var siblings []models.ExternalTransaction
	err := r.db.
		Where("source_account = ? AND id <> ?", tx.SourceAccount, tx.ID).
		Where("amount = ?", tx.Amount.Neg()).
		Where("transaction_date BETWEEN ? AND ?", from, to).
		Order("transaction_date ASC, id ASC").
		Find(&siblings).Error
	return siblings, err
}

func (r *ExternalTransactionRepository) UpdateStatus(id uuid.UUID, status string) error {
	return r.db.Model(&models.ExternalTransaction{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// ListByBatch pages through a batch's transactions, optionally filtered by
// status, with a cursor on id.
func (r *ExternalTransactionRepository) ListByBatch(batchID uuid.UUID, status, cursor string, limit int) ([]models.ExternalTransaction, string, bool, error) {
	var txs []models.ExternalTransaction
	q := r.db.
		Where("import_batch_id = ?", batchID).
		Order("id ASC").
		Limit(limit + 1)

	if status != "" && status != "all" {
		q = q.Where("status = ?", status)
	}
	if cursor != "" {
		q = q.Where("id > ?", cursor)
	}
	if err := q.Find(&txs).Error; err != nil {
		return nil, "", false, err
	}

	hasMore := false
	nextCursor := ""
	if len(txs) > limit {
		hasMore = true
		nextCursor = txs[limit-1].ID.String()
		txs = txs[:limit]
	}
	return txs, nextCursor, hasMore, nil
}

// DeleteByBatch removes a batch's rows. Only the audited batch-rollback path
// calls this; reconciliation itself never deletes transactions.
func (r *ExternalTransactionRepository) DeleteByBatch(batchID uuid.UUID) (int64, error) {
	res := r.db.Where("import_batch_id = ?", batchID).Delete(&models.ExternalTransaction{})
	return res.RowsAffected, res.Error
}

func (r *ExternalTransactionRepository) CountByBatch(batchID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.Model(&models.ExternalTransaction{}).
		Where("import_batch_id = ?", batchID).Count(&n).Error
	return n, err
}
