package reconciliation

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"charter-reconciliation-backend/internal/services/matching"
)

// TransactionOutcome is one transaction's verdict within a run.
type TransactionOutcome struct {
	TransactionID  uuid.UUID            `json:"transaction_id"`
	Outcome        matching.OutcomeKind `json:"outcome"`
	RecordID       *uuid.UUID           `json:"record_id,omitempty"`
	MatchType      string               `json:"match_type,omitempty"`
	Confidence     float64              `json:"confidence,omitempty"`
	CandidateIDs   []uuid.UUID          `json:"candidate_ids,omitempty"`
	ReversalWithID *uuid.UUID           `json:"reversal_with_id,omitempty"`
}

// BalanceChange records a booking balance movement with old and new values.
type BalanceChange struct {
	BookingID  uuid.UUID       `json:"booking_id"`
	OldPaid    decimal.Decimal `json:"old_paid"`
	NewPaid    decimal.Decimal `json:"new_paid"`
	OldBalance decimal.Decimal `json:"old_balance"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

// SampleDiff is one literal before/after row pair carried by a preview so an
// operator can eyeball what apply will do.
type SampleDiff struct {
	Table  string         `json:"table"`
	RowID  string         `json:"row_id"`
	Before datatypes.JSON `json:"before"`
	After  datatypes.JSON `json:"after"`
}

// RecordError is a per-record soft failure: collected and reported, never
// fatal to the batch.
type RecordError struct {
	Stage     string     `json:"stage"` // import, resolve, recompute
	RowID     *uuid.UUID `json:"row_id,omitempty"`
	BookingID *uuid.UUID `json:"booking_id,omitempty"`
	Message   string     `json:"message"`
}

// RunReport is the structured result of a run. A preview and its subsequent
// apply share the shape, so their counts can be compared directly.
type RunReport struct {
	RunID   uuid.UUID `json:"run_id"`
	BatchID uuid.UUID `json:"batch_id"`
	State   string    `json:"state"`

	Outcomes []TransactionOutcome `json:"outcomes"`

	PlannedLinks   int `json:"planned_links"`
	AmbiguousCount int `json:"ambiguous_count"`
	UnmatchedCount int `json:"unmatched_count"`
	ReversalPairs  int `json:"reversal_pairs"`

	// Populated on applied runs only. LinksSuperseded carries the ids of
	// links retired by the unlink and batch-rollback operations.
	LinksCreated    []uuid.UUID `json:"links_created,omitempty"`
	LinksSuperseded []uuid.UUID `json:"links_superseded,omitempty"`

	// RowsDeleted is nonzero only for a batch rollback, the single
	// sanctioned deletion path.
	RowsDeleted int `json:"rows_deleted,omitempty"`

	BalanceChanges []BalanceChange `json:"balance_changes"`
	Samples        []SampleDiff    `json:"samples,omitempty"`
	Errors         []RecordError   `json:"errors,omitempty"`
}
