// Package ledger owns the only mutable shared state in the reconciliation
// core: transaction-to-record links and derived booking balances.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"charter-reconciliation-backend/internal/models"
)

// ErrNoActiveLink is returned by Unlink when the transaction has nothing to
// unlink.
var ErrNoActiveLink = errors.New("ledger: transaction has no active link")

// AmbiguousLinkConflictError reports an attempt to link a transaction that is
// already actively linked to a different record. This is never resolved
// automatically; an operator has to look at it.
type AmbiguousLinkConflictError struct {
	TxID             uuid.UUID
	ExistingRecordID uuid.UUID
	NewRecordID      uuid.UUID
}

func (e *AmbiguousLinkConflictError) Error() string {
	return fmt.Sprintf("ledger: transaction %s already linked to record %s, refusing link to %s",
		e.TxID, e.ExistingRecordID, e.NewRecordID)
}

// RecordClaimedError is the record-side conflict: the record is already
// actively claimed by another transaction. The holder is named so the operator
// resolving the conflict knows which link to inspect.
type RecordClaimedError struct {
	RecordID   uuid.UUID
	HolderTxID uuid.UUID
	NewTxID    uuid.UUID
}

func (e *RecordClaimedError) Error() string {
	return fmt.Sprintf("ledger: record %s already claimed by transaction %s, refusing link from %s",
		e.RecordID, e.HolderTxID, e.NewTxID)
}

// Ledger is the append-only link store. All writes go through the gorm handle
// it was built with, which during an apply is the batch transaction.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

func (l *Ledger) WithTx(tx *gorm.DB) *Ledger {
	return &Ledger{db: tx}
}

// Link records the association between a transaction and a record.
// Calling it again with the same pair is a no-op returning the existing link
// id. A different record for an already-linked transaction is an
// AmbiguousLinkConflictError; a record already claimed by another transaction
// is a RecordClaimedError.
func (l *Ledger) Link(txID, recordID uuid.UUID, matchType string, confidence float64, createdBy string) (uuid.UUID, error) {
	existing, err := l.ActiveLink(txID)
	if err != nil {
		return uuid.Nil, err
	}
	if existing != nil {
		if existing.FinancialRecordID == recordID {
			return existing.ID, nil
		}
		return uuid.Nil, &AmbiguousLinkConflictError{
			TxID:             txID,
			ExistingRecordID: existing.FinancialRecordID,
			NewRecordID:      recordID,
		}
	}

	claimed, err := l.ActiveLinkForRecord(recordID)
	if err != nil {
		return uuid.Nil, err
	}
	if claimed != nil {
		return uuid.Nil, &RecordClaimedError{
			RecordID:   recordID,
			HolderTxID: claimed.ExternalTransactionID,
			NewTxID:    txID,
		}
	}

	link := models.Link{
		ID:                    uuid.New(),
		ExternalTransactionID: txID,
		FinancialRecordID:     recordID,
		MatchType:             matchType,
		Confidence:            confidence,
		CreatedBy:             createdBy,
		CreatedAt:             time.Now(),
	}
	if err := l.db.Create(&link).Error; err != nil {
		return uuid.Nil, err
	}
	return link.ID, nil
}

// Unlink supersedes the transaction's active link and returns the booking id
// of the record it pointed at, if any, so the caller can recompute that
// booking's balance. The link row itself is kept.
func (l *Ledger) Unlink(txID uuid.UUID, supersededBy string) (*uuid.UUID, error) {
	link, err := l.ActiveLink(txID)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, ErrNoActiveLink
	}

	now := time.Now()
	err = l.db.Model(&models.Link{}).
		Where("id = ?", link.ID).
		Updates(map[string]interface{}{
			"superseded_at": now,
			"superseded_by": supersededBy,
		}).Error
	if err != nil {
		return nil, err
	}

	var rec models.FinancialRecord
	if err := l.db.First(&rec, "id = ?", link.FinancialRecordID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Orphaned link: the record endpoint is gone. Nothing to recompute.
			return nil, nil
		}
		return nil, err
	}
	return rec.BookingID, nil
}

// ActiveLink returns the transaction's current link, or nil.
func (l *Ledger) ActiveLink(txID uuid.UUID) (*models.Link, error) {
	var link models.Link
	err := l.db.
		Where("external_transaction_id = ? AND superseded_at IS NULL", txID).
		First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// ActiveLinkForRecord returns the link currently claiming the record, or nil.
func (l *Ledger) ActiveLinkForRecord(recordID uuid.UUID) (*models.Link, error) {
	var link models.Link
	err := l.db.
		Where("financial_record_id = ? AND superseded_at IS NULL", recordID).
		First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}
