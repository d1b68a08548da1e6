package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ImportBatch tracks one feed file's journey through import.
type ImportBatch struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	Filename         string
	SourceAccount    string
	TotalRows        int
	ImportedCount    int
	SkippedCount     int
	QuarantinedCount int
	Status           string
	StartedAt        time.Time
	CompletedAt      *time.Time
	CreatedAt        time.Time
}

// QuarantinedRecord holds a feed row that could not be fingerprinted. The raw
// row is kept verbatim for manual review; it is never imported with a
// placeholder key.
type QuarantinedRecord struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	ImportBatchID uuid.UUID `gorm:"index"`
	Reason        string
	Raw           datatypes.JSON
	CreatedAt     time.Time
}
