package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Run states. A run is previewed exactly once and applied at most once;
// there is no transition back from applied.
const (
	RunStatePreview = "preview"
	RunStateApplied = "applied"
)

// ReconciliationRun is the persisted record of one preview/apply cycle over an
// import batch.
type ReconciliationRun struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	ImportBatchID  uuid.UUID `gorm:"index"`
	State          string    `gorm:"index"`
	PlannedLinks   int
	AppliedLinks   int
	AmbiguousCount int
	UnmatchedCount int
	ReversalPairs  int
	CreatedBy      string
	PreviewedAt    time.Time
	AppliedAt      *time.Time
	CreatedAt      time.Time
}

// RowSnapshot is a point-in-time copy of a row taken immediately before an
// apply mutates it, keyed so an operator can restore the row verbatim.
type RowSnapshot struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	RunID     uuid.UUID `gorm:"index"`
	TableName string
	RowID     string `gorm:"index"`
	Payload   datatypes.JSON
	TakenAt   time.Time
}
