package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Link match types, ordered roughly by strength.
const (
	MatchTypeExactHash       = "exact_hash"
	MatchTypeExactAmountDate = "exact_amount_date"
	MatchTypeFuzzy           = "fuzzy"
	MatchTypeManual          = "manual"
)

// Link associates one ExternalTransaction with one FinancialRecord. The ledger
// is append-only: unlinking supersedes a row instead of deleting it, so the
// provenance of every past association survives. At most one link per
// transaction is active (SupersededAt IS NULL) at a time.
type Link struct {
	ID                    uuid.UUID `gorm:"type:uuid;primaryKey"`
	ExternalTransactionID uuid.UUID `gorm:"index"`
	FinancialRecordID     uuid.UUID `gorm:"index"`
	MatchType             string
	Confidence            float64
	Details               datatypes.JSON
	CreatedBy             string
	CreatedAt             time.Time
	SupersededAt          *time.Time `gorm:"index"`
	SupersededBy          string
}

// Active reports whether the link is the transaction's current association.
func (l *Link) Active() bool {
	return l.SupersededAt == nil
}
