package reconciliation

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"charter-reconciliation-backend/internal/models"
)

// snapshotRow persists a verbatim copy of a row immediately before an apply
// mutates it, keyed by run, table and primary key so an operator can restore
// it by hand.
func snapshotRow(tx *gorm.DB, runID uuid.UUID, table, rowID string, row interface{}) error {
	payload, err := json.Marshal(row)
	if err != nil {
		return err
	}
	return tx.Create(&models.RowSnapshot{
		ID:        uuid.New(),
		RunID:     runID,
		TableName: table,
		RowID:     rowID,
		Payload:   datatypes.JSON(payload),
		TakenAt:   time.Now(),
	}).Error
}
