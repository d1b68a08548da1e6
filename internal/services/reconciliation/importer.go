package reconciliation

import (
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"charter-reconciliation-backend/internal/fingerprint"
	"charter-reconciliation-backend/internal/models"
)

// FeedRow is one raw line from the import feed, before identity is computed.
type FeedRow struct {
	Date          time.Time       `json:"date"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	SourceAccount string          `json:"source_account"`
	Channel       string          `json:"channel"`
	Counterparty  string          `json:"counterparty,omitempty"`
}

// ImportResult summarizes one feed import.
type ImportResult struct {
	BatchID     uuid.UUID     `json:"batch_id"`
	TotalRows   int           `json:"total_rows"`
	Imported    int           `json:"imported"`
	Skipped     int           `json:"skipped"`
	Quarantined int           `json:"quarantined"`
	Errors      []RecordError `json:"errors,omitempty"`
}

// CreateBatch opens a new import batch.
func (s *Service) CreateBatch(filename, sourceAccount string) (*models.ImportBatch, error) {
	batch := &models.ImportBatch{
		ID:            uuid.New(),
		Filename:      filename,
		SourceAccount: sourceAccount,
		Status:        "processing",
		StartedAt:     time.Now(),
		CreatedAt:     time.Now(),
	}
	if err := s.db.Create(batch).Error; err != nil {
		return nil, err
	}
	return batch, nil
}

// ImportFeed fingerprints and stores each row. A row whose fingerprint key
// already exists is skipped silently, so re-importing the same file yields zero
// new rows. A row missing a required field is quarantined with its reason and
// the import continues; it is never written under a degraded key. The whole
// feed commits in one transaction: a storage failure mid-feed leaves no rows
// behind and the batch still in its processing state.
func (s *Service) ImportFeed(batch *models.ImportBatch, rows []FeedRow) (*ImportResult, error) {
	result := &ImportResult{BatchID: batch.ID, TotalRows: len(rows)}

	err := s.db.Transaction(func(dbTx *gorm.DB) error {
		txRepo := s.txRepo.WithTx(dbTx)

		for _, row := range rows {
			key, err := fingerprint.Compute(fingerprint.Input{
				Date:          row.Date,
				Amount:        row.Amount,
				Description:   row.Description,
				SourceAccount: row.SourceAccount,
			})
			if err != nil {
				var mfe *fingerprint.MissingFieldError
				if !errors.As(err, &mfe) {
					return err
				}
				if qerr := quarantine(dbTx, batch.ID, row, err.Error()); qerr != nil {
					return qerr
				}
				result.Quarantined++
				result.Errors = append(result.Errors, RecordError{
					Stage:   "import",
					Message: err.Error(),
				})
				continue
			}

			tx := &models.ExternalTransaction{
				ID:              uuid.New(),
				ImportBatchID:   batch.ID,
				Fingerprint:     key,
				TransactionDate: row.Date,
				Amount:          row.Amount,
				Description:     row.Description,
				SourceAccount:   row.SourceAccount,
				Channel:         row.Channel,
				Counterparty:    row.Counterparty,
				Status:          models.TxStatusPending,
				CreatedAt:       time.Now(),
			}
			inserted, err := txRepo.InsertIfAbsent(tx)
			if err != nil {
				return err
			}
			if inserted {
				result.Imported++
			} else {
				result.Skipped++
			}
		}

		now := time.Now()
		return dbTx.Model(&models.ImportBatch{}).
			Where("id = ?", batch.ID).
			Updates(map[string]interface{}{
				"total_rows":        result.TotalRows,
				"imported_count":    result.Imported,
				"skipped_count":     result.Skipped,
				"quarantined_count": result.Quarantined,
				"status":            "imported",
				"completed_at":      now,
			}).Error
	})
	if err != nil {
		return nil, err
	}

	log.Printf("import batch %s: %d rows, %d imported, %d skipped, %d quarantined",
		batch.ID, result.TotalRows, result.Imported, result.Skipped, result.Quarantined)
	return result, nil
}

func quarantine(db *gorm.DB, batchID uuid.UUID, row FeedRow, reason string) error {
	raw, err := json.Marshal(row)
	if err != nil {
		return err
	}
	return db.Create(&models.QuarantinedRecord{
		ID:            uuid.New(),
		ImportBatchID: batchID,
		Reason:        reason,
		Raw:           datatypes.JSON(raw),
		CreatedAt:     time.Now(),
	}).Error
}
