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

	"charter-reconciliation-backend/internal/ledger"
	"charter-reconciliation-backend/internal/models"
	"charter-reconciliation-backend/internal/services/matching"
)

// proposedLink is one planned association, carried from preview to apply.
type proposedLink struct {
	TxID       uuid.UUID
	RecordID   uuid.UUID
	MatchType  string
	Confidence float64
	BookingID  *uuid.UUID
}

// Run is the dry-run/apply controller for one batch. PlanRun builds it in the
// Preview state without touching storage; Apply commits the change-set
// all-or-nothing, exactly once.
type Run struct {
	svc      *Service
	model    *models.ReconciliationRun
	report   *RunReport
	proposed []proposedLink
	statuses map[uuid.UUID]string
}

// Report returns the change-set computed so far: the preview report before
// Apply, the applied report after.
func (r *Run) Report() *RunReport { return r.report }

// PlanRun computes the full change-set for a batch's pending transactions
// against a read view. Pure: no write happens here, and an abandoned preview
// leaves zero side effects.
func (s *Service) PlanRun(batchID uuid.UUID, createdBy string) (*Run, error) {
	txs, err := s.txRepo.FindPendingByBatch(batchID)
	if err != nil {
		return nil, err
	}

	run := &Run{
		svc:      s,
		statuses: make(map[uuid.UUID]string),
	}
	report := &RunReport{
		BatchID: batchID,
		State:   models.RunStatePreview,
	}

	claimedRecords := make(map[uuid.UUID]bool)
	pairedTxs := make(map[uuid.UUID]uuid.UUID)

	for i := range txs {
		tx := txs[i]

		if sibling, ok := pairedTxs[tx.ID]; ok {
			// Second leg of a pair already classified from the first leg.
			sib := sibling
			report.Outcomes = append(report.Outcomes, TransactionOutcome{
				TransactionID:  tx.ID,
				Outcome:        matching.OutcomeReversalPair,
				ReversalWithID: &sib,
			})
			continue
		}

		offsetting, err := s.txRepo.FindOffsetting(&tx, s.cfg.ReversalWindowDays)
		if err != nil {
			return nil, err
		}
		offsetting = filterPending(offsetting, run.statuses)

		var cands []matching.Candidate
		if len(offsetting) == 0 {
			kind := models.RecordKindPayment
			if tx.Amount.Sign() < 0 {
				kind = models.RecordKindReceipt
			}
			from, to := s.generator.Window(&tx)
			pool, err := s.recordRepo.FindUnlinkedInDateRange(kind, from, to)
			if err != nil {
				return nil, err
			}
			cands = s.generator.Candidates(&tx, pool)
		}

		outcome := s.resolver.Resolve(&tx, cands, offsetting)

		// A record can only be claimed once per run; a second transaction
		// contending for it is ambiguous, not a guess.
		if outcome.Kind == matching.OutcomeSingleMatch && claimedRecords[outcome.Record.ID] {
			outcome = matching.Outcome{
				Kind:       matching.OutcomeAmbiguous,
				Candidates: cands,
			}
		}

		switch outcome.Kind {
		case matching.OutcomeSingleMatch:
			claimedRecords[outcome.Record.ID] = true
			run.proposed = append(run.proposed, proposedLink{
				TxID:       tx.ID,
				RecordID:   outcome.Record.ID,
				MatchType:  outcome.MatchType,
				Confidence: outcome.Confidence,
				BookingID:  outcome.Record.BookingID,
			})
			run.statuses[tx.ID] = models.TxStatusLinked
			recID := outcome.Record.ID
			report.Outcomes = append(report.Outcomes, TransactionOutcome{
				TransactionID: tx.ID,
				Outcome:       outcome.Kind,
				RecordID:      &recID,
				MatchType:     outcome.MatchType,
				Confidence:    outcome.Confidence,
			})
			report.PlannedLinks++

		case matching.OutcomeAmbiguous:
			run.statuses[tx.ID] = models.TxStatusAmbiguous
			var ids []uuid.UUID
			for _, c := range outcome.Candidates {
				ids = append(ids, c.Record.ID)
			}
			report.Outcomes = append(report.Outcomes, TransactionOutcome{
				TransactionID: tx.ID,
				Outcome:       outcome.Kind,
				CandidateIDs:  ids,
			})
			report.AmbiguousCount++

		case matching.OutcomeReversalPair:
			sibID := outcome.ReversalWith.ID
			run.statuses[tx.ID] = models.TxStatusReversalPair
			run.statuses[sibID] = models.TxStatusReversalPair
			pairedTxs[sibID] = tx.ID
			pairedTxs[tx.ID] = sibID
			report.Outcomes = append(report.Outcomes, TransactionOutcome{
				TransactionID:  tx.ID,
				Outcome:        outcome.Kind,
				ReversalWithID: &sibID,
			})
			report.ReversalPairs++

		default:
			run.statuses[tx.ID] = models.TxStatusUnmatched
			report.Outcomes = append(report.Outcomes, TransactionOutcome{
				TransactionID: tx.ID,
				Outcome:       outcome.Kind,
			})
			report.UnmatchedCount++
		}
	}

	if err := s.previewBalances(run, report); err != nil {
		return nil, err
	}
	s.previewSamples(txs, run, report)

	model := &models.ReconciliationRun{
		ID:             uuid.New(),
		ImportBatchID:  batchID,
		State:          models.RunStatePreview,
		PlannedLinks:   report.PlannedLinks,
		AmbiguousCount: report.AmbiguousCount,
		UnmatchedCount: report.UnmatchedCount,
		ReversalPairs:  report.ReversalPairs,
		CreatedBy:      createdBy,
		PreviewedAt:    time.Now(),
		CreatedAt:      time.Now(),
	}
	// The run row is only persisted when Apply commits; an abandoned preview
	// leaves no trace in storage.

	report.RunID = model.ID
	run.model = model
	run.report = report
	return run, nil
}

// previewBalances computes the would-be balance deltas for every booking a
// proposed link touches, in memory, without persisting anything.
func (s *Service) previewBalances(run *Run, report *RunReport) error {
	seen := make(map[uuid.UUID]bool)
	for _, pl := range run.proposed {
		if pl.BookingID == nil || seen[*pl.BookingID] {
			continue
		}
		seen[*pl.BookingID] = true

		booking, err := s.bookingRepo.GetByID(*pl.BookingID)
		if err != nil {
			return err
		}
		if !booking.TotalDue.Valid {
			bid := booking.ID
			report.Errors = append(report.Errors, RecordError{
				Stage:     "recompute",
				BookingID: &bid,
				Message:   (&ledger.IncompleteBookingError{BookingID: bid}).Error(),
			})
			continue
		}

		payments, err := s.recordRepo.FindByBooking(booking.ID, models.RecordKindPayment)
		if err != nil {
			return err
		}
		newPaid := decimal.Zero
		for _, p := range payments {
			newPaid = newPaid.Add(p.Amount)
		}
		newBalance := booking.TotalDue.Decimal.Sub(newPaid)

		if !newPaid.Equal(booking.PaidAmount) || !newBalance.Equal(booking.Balance) {
			report.BalanceChanges = append(report.BalanceChanges, BalanceChange{
				BookingID:  booking.ID,
				OldPaid:    booking.PaidAmount,
				NewPaid:    newPaid,
				OldBalance: booking.Balance,
				NewBalance: newBalance,
			})
		}
	}
	return nil
}

// previewSamples attaches up to SampleLimit literal before/after rows.
func (s *Service) previewSamples(txs []models.ExternalTransaction, run *Run, report *RunReport) {
	byID := make(map[uuid.UUID]*models.ExternalTransaction, len(txs))
	for i := range txs {
		byID[txs[i].ID] = &txs[i]
	}

	for _, pl := range run.proposed {
		if len(report.Samples) >= s.cfg.SampleLimit {
			break
		}
		tx, ok := byID[pl.TxID]
		if !ok {
			continue
		}
		before, err := json.Marshal(tx)
		if err != nil {
			continue
		}
		after := *tx
		after.Status = models.TxStatusLinked
		afterJSON, err := json.Marshal(&after)
		if err != nil {
			continue
		}
		report.Samples = append(report.Samples, SampleDiff{
			Table:  "external_transactions",
			RowID:  tx.ID.String(),
			Before: datatypes.JSON(before),
			After:  datatypes.JSON(afterJSON),
		})
	}
}

// Apply commits the previewed change-set in one transaction: snapshots of
// every row about to change first, then links, then statuses, then balance
// recomputation for the affected bookings; links strictly before balances.
// Any mutation failure aborts the whole batch; per-booking incomplete-data
// errors are collected, not fatal.
func (r *Run) Apply(appliedBy string) (*RunReport, error) {
	if r.report == nil {
		return nil, ErrApplyWithoutPreview
	}
	if r.model.State != models.RunStatePreview {
		return nil, ErrAlreadyApplied
	}

	s := r.svc
	applied := *r.report
	applied.State = models.RunStateApplied
	applied.LinksCreated = nil
	applied.BalanceChanges = nil
	applied.Errors = append([]RecordError(nil), r.report.Errors...)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		links := s.links.WithTx(tx)
		txRepo := s.txRepo.WithTx(tx)
		bookingRepo := s.bookingRepo.WithTx(tx)
		recalc := s.recalc.WithTx(tx)

		if err := tx.Create(r.model).Error; err != nil {
			return err
		}

		// Snapshot every transaction whose status will change.
		for txID := range r.statuses {
			row, err := txRepo.GetByID(txID)
			if err != nil {
				return err
			}
			if err := snapshotRow(tx, r.model.ID, "external_transactions", txID.String(), row); err != nil {
				return err
			}
		}

		// Snapshot records and bookings the links will touch.
		affectedBookings := make(map[uuid.UUID]bool)
		for _, pl := range r.proposed {
			rec, err := s.recordRepo.WithTx(tx).GetByID(pl.RecordID)
			if err != nil {
				return err
			}
			if err := snapshotRow(tx, r.model.ID, "financial_records", rec.ID.String(), rec); err != nil {
				return err
			}
			if pl.BookingID != nil && !affectedBookings[*pl.BookingID] {
				affectedBookings[*pl.BookingID] = true
				booking, err := bookingRepo.GetByID(*pl.BookingID)
				if err != nil {
					return err
				}
				if err := snapshotRow(tx, r.model.ID, "bookings", booking.ID.String(), booking); err != nil {
					return err
				}
			}
		}

		// Write every link before any balance is recomputed.
		for _, pl := range r.proposed {
			linkID, err := links.Link(pl.TxID, pl.RecordID, pl.MatchType, pl.Confidence, appliedBy)
			if err != nil {
				return err
			}
			applied.LinksCreated = append(applied.LinksCreated, linkID)
		}
		for txID, status := range r.statuses {
			if err := txRepo.UpdateStatus(txID, status); err != nil {
				return err
			}
		}

		for bookingID := range affectedBookings {
			before, err := bookingRepo.GetByID(bookingID)
			if err != nil {
				return err
			}
			bal, err := recalc.Recompute(bookingID)
			if err != nil {
				var ibe *ledger.IncompleteBookingError
				if errors.As(err, &ibe) {
					bid := bookingID
					applied.Errors = append(applied.Errors, RecordError{
						Stage:     "recompute",
						BookingID: &bid,
						Message:   err.Error(),
					})
					continue
				}
				return err
			}
			if !bal.Paid.Equal(before.PaidAmount) || !bal.Balance.Equal(before.Balance) {
				applied.BalanceChanges = append(applied.BalanceChanges, BalanceChange{
					BookingID:  bookingID,
					OldPaid:    before.PaidAmount,
					NewPaid:    bal.Paid,
					OldBalance: before.Balance,
					NewBalance: bal.Balance,
				})
			}
		}

		now := time.Now()
		return tx.Model(&models.ReconciliationRun{}).
			Where("id = ?", r.model.ID).
			Updates(map[string]interface{}{
				"state":         models.RunStateApplied,
				"applied_links": len(applied.LinksCreated),
				"applied_at":    now,
			}).Error
	})
	if err != nil {
		return nil, &ApplyAbortError{RunID: r.model.ID, Err: err}
	}

	r.model.State = models.RunStateApplied
	r.report = &applied

	log.Printf("run %s applied: %d links, %d balance changes, %d errors",
		r.model.ID, len(applied.LinksCreated), len(applied.BalanceChanges), len(applied.Errors))
	return &applied, nil
}

// filterPending drops siblings that are not pending in storage or that this
// plan already classified.
func filterPending(txs []models.ExternalTransaction, planned map[uuid.UUID]string) []models.ExternalTransaction {
	var out []models.ExternalTransaction
	for _, t := range txs {
		if _, ok := planned[t.ID]; ok {
			continue
		}
		if t.Status != models.TxStatusPending {
			continue
		}
		out = append(out, t)
	}
	return out
}
