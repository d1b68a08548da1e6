package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction statuses as they move through a reconciliation run.
const (
	TxStatusPending      = "pending"
	TxStatusLinked       = "linked"
	TxStatusAmbiguous    = "ambiguous"
	TxStatusUnmatched    = "unmatched"
	TxStatusReversalPair = "reversal_pair"
)

// ExternalTransaction is one bank-feed line. Rows are immutable after import:
// corrections are new rows plus a reversal, never an edit of amount or date.
type ExternalTransaction struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey"`
	ImportBatchID   uuid.UUID       `gorm:"index"`
	Fingerprint     string          `gorm:"uniqueIndex;size:64"`
	TransactionDate time.Time       `gorm:"index"`
	Amount          decimal.Decimal `gorm:"type:numeric(14,2)"` // signed: negative = money out
	Description     string
	SourceAccount   string `gorm:"index"`
	Channel         string `gorm:"index"` // card, etransfer, transfer, legacy
	Counterparty    string
	Status          string `gorm:"index"`
	CreatedAt       time.Time
}
