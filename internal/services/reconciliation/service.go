// Package reconciliation orchestrates the matching pipeline: feed import with
// fingerprint deduplication, candidate generation and resolution, and the
// preview/apply controller that gates every write.
package reconciliation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"charter-reconciliation-backend/internal/config"
	"charter-reconciliation-backend/internal/ledger"
	"charter-reconciliation-backend/internal/models"
	"charter-reconciliation-backend/internal/repository"
	"charter-reconciliation-backend/internal/services/matching"
)

// Service wires the reconciliation components over one database handle.
// Nothing here keeps package-level state; construct one per process.
type Service struct {
	db  *gorm.DB
	cfg *config.MatchingConfig

	txRepo      *repository.ExternalTransactionRepository
	recordRepo  *repository.FinancialRecordRepository
	bookingRepo *repository.BookingRepository

	generator *matching.Generator
	resolver  *matching.Resolver
	links     *ledger.Ledger
	recalc    *ledger.Recalculator
}

func NewService(db *gorm.DB, cfg *config.MatchingConfig) *Service {
	return &Service{
		db:          db,
		cfg:         cfg,
		txRepo:      repository.NewExternalTransactionRepository(db),
		recordRepo:  repository.NewFinancialRecordRepository(db),
		bookingRepo: repository.NewBookingRepository(db),
		generator:   matching.NewGenerator(cfg),
		resolver:    matching.NewResolver(cfg),
		links:       ledger.NewLedger(db),
		recalc:      ledger.NewRecalculator(db),
	}
}

func (s *Service) DB() *gorm.DB { return s.db }

// GetBatch loads an import batch.
func (s *Service) GetBatch(batchID uuid.UUID) (*models.ImportBatch, error) {
	var batch models.ImportBatch
	if err := s.db.First(&batch, "id = ?", batchID).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

// ListTransactions pages a batch's transactions for review UIs.
func (s *Service) ListTransactions(batchID uuid.UUID, status, cursor string, limit int) ([]models.ExternalTransaction, string, bool, error) {
	return s.txRepo.ListByBatch(batchID, status, cursor, limit)
}

// ManualLink is the operator override: link a transaction to a chosen record
// at full confidence, snapshot first, recompute after. Runs in its own
// apply-style transaction.
func (s *Service) ManualLink(txID, recordID uuid.UUID, operator string) (*ledger.BookingBalance, error) {
	extTx, err := s.txRepo.GetByID(txID)
	if err != nil {
		return nil, err
	}
	rec, err := s.recordRepo.GetByID(recordID)
	if err != nil {
		return nil, err
	}

	var balance *ledger.BookingBalance
	err = s.db.Transaction(func(tx *gorm.DB) error {
		run, err := createAppliedRun(tx, extTx.ImportBatchID, operator, 1)
		if err != nil {
			return err
		}

		if err := snapshotRow(tx, run.ID, "external_transactions", extTx.ID.String(), extTx); err != nil {
			return err
		}
		if err := snapshotRow(tx, run.ID, "financial_records", rec.ID.String(), rec); err != nil {
			return err
		}
		if rec.BookingID != nil {
			booking, err := s.bookingRepo.WithTx(tx).GetByID(*rec.BookingID)
			if err != nil {
				return err
			}
			if err := snapshotRow(tx, run.ID, "bookings", booking.ID.String(), booking); err != nil {
				return err
			}
		}

		if _, err := s.links.WithTx(tx).Link(txID, recordID, models.MatchTypeManual, 100, operator); err != nil {
			return err
		}
		if err := s.txRepo.WithTx(tx).UpdateStatus(txID, models.TxStatusLinked); err != nil {
			return err
		}
		if rec.BookingID != nil {
			b, err := s.recalc.WithTx(tx).Recompute(*rec.BookingID)
			if err != nil {
				return err
			}
			balance = b
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return balance, nil
}

// UnlinkTransaction supersedes the transaction's active link. A payment that
// was attributed to a booking through this bank link loses that attribution;
// that reference change is what forces the recompute. The applied report
// names the superseded link and the balance movement it caused.
func (s *Service) UnlinkTransaction(txID uuid.UUID, operator string) (*RunReport, error) {
	extTx, err := s.txRepo.GetByID(txID)
	if err != nil {
		return nil, err
	}
	link, err := s.links.ActiveLink(txID)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, ledger.ErrNoActiveLink
	}
	rec, err := s.recordRepo.GetByID(link.FinancialRecordID)
	if err != nil {
		return nil, err
	}

	var report *RunReport
	err = s.db.Transaction(func(tx *gorm.DB) error {
		run, err := createAppliedRun(tx, extTx.ImportBatchID, operator, 0)
		if err != nil {
			return err
		}
		report = &RunReport{
			RunID:           run.ID,
			BatchID:         extTx.ImportBatchID,
			State:           models.RunStateApplied,
			LinksSuperseded: []uuid.UUID{link.ID},
		}

		if err := snapshotRow(tx, run.ID, "external_transactions", extTx.ID.String(), extTx); err != nil {
			return err
		}
		if err := snapshotRow(tx, run.ID, "financial_records", rec.ID.String(), rec); err != nil {
			return err
		}

		var booking *models.Booking
		if rec.BookingID != nil {
			booking, err = s.bookingRepo.WithTx(tx).GetByID(*rec.BookingID)
			if err != nil {
				return err
			}
			if err := snapshotRow(tx, run.ID, "bookings", booking.ID.String(), booking); err != nil {
				return err
			}
		}

		if _, err := s.links.WithTx(tx).Unlink(txID, operator); err != nil {
			return err
		}
		if err := s.txRepo.WithTx(tx).UpdateStatus(txID, models.TxStatusPending); err != nil {
			return err
		}

		if booking != nil {
			err := tx.Model(&models.FinancialRecord{}).
				Where("id = ?", rec.ID).
				Update("booking_id", nil).Error
			if err != nil {
				return err
			}
			bal, err := s.recalc.WithTx(tx).Recompute(booking.ID)
			if err != nil {
				return err
			}
			if !bal.Paid.Equal(booking.PaidAmount) || !bal.Balance.Equal(booking.Balance) {
				report.BalanceChanges = append(report.BalanceChanges, BalanceChange{
					BookingID:  booking.ID,
					OldPaid:    booking.PaidAmount,
					NewPaid:    bal.Paid,
					OldBalance: booking.Balance,
					NewBalance: bal.Balance,
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// RecomputeBooking exposes the recalculator for callers outside a run.
func (s *Service) RecomputeBooking(bookingID uuid.UUID) (*ledger.BookingBalance, error) {
	return s.recalc.Recompute(bookingID)
}

// RollbackBatch is the audited escape hatch for a bad import: it snapshots
// then deletes every transaction the batch created. The only path that ever
// deletes ExternalTransaction rows. Links to deleted transactions are
// superseded, never cascaded into their record endpoints; their ids are
// reported so the retirement is auditable.
func (s *Service) RollbackBatch(batchID uuid.UUID, operator string) (*RunReport, error) {
	var report *RunReport
	err := s.db.Transaction(func(tx *gorm.DB) error {
		run, err := createAppliedRun(tx, batchID, operator, 0)
		if err != nil {
			return err
		}
		report = &RunReport{
			RunID:   run.ID,
			BatchID: batchID,
			State:   models.RunStateApplied,
		}

		var txs []models.ExternalTransaction
		if err := tx.Where("import_batch_id = ?", batchID).Find(&txs).Error; err != nil {
			return err
		}
		for i := range txs {
			if link, err := s.links.WithTx(tx).ActiveLink(txs[i].ID); err != nil {
				return err
			} else if link != nil {
				if _, err := s.links.WithTx(tx).Unlink(txs[i].ID, operator); err != nil {
					return err
				}
				report.LinksSuperseded = append(report.LinksSuperseded, link.ID)
			}
			if err := snapshotRow(tx, run.ID, "external_transactions", txs[i].ID.String(), &txs[i]); err != nil {
				return err
			}
		}

		n, err := s.txRepo.WithTx(tx).DeleteByBatch(batchID)
		if err != nil {
			return err
		}
		report.RowsDeleted = int(n)

		return tx.Model(&models.ImportBatch{}).
			Where("id = ?", batchID).
			Update("status", "rolled_back").Error
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func createAppliedRun(tx *gorm.DB, batchID uuid.UUID, operator string, plannedLinks int) (*models.ReconciliationRun, error) {
	now := time.Now()
	run := &models.ReconciliationRun{
		ID:            uuid.New(),
		ImportBatchID: batchID,
		State:         models.RunStateApplied,
		PlannedLinks:  plannedLinks,
		AppliedLinks:  plannedLinks,
		CreatedBy:     operator,
		PreviewedAt:   now,
		AppliedAt:     &now,
		CreatedAt:     now,
	}
	if err := tx.Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

// BatchStats aggregates a batch's transactions per status, in the shape the
// review UI consumes.
type BatchStats struct {
	Total       int64           `json:"total"`
	TotalAmount decimal.Decimal `json:"total_amount"`

	LinkedCount    int64           `json:"linked_count"`
	LinkedSum      decimal.Decimal `json:"linked_sum"`
	AmbiguousCount int64           `json:"ambiguous_count"`
	AmbiguousSum   decimal.Decimal `json:"ambiguous_sum"`
	UnmatchedCount int64           `json:"unmatched_count"`
	UnmatchedSum   decimal.Decimal `json:"unmatched_sum"`
	PendingCount   int64           `json:"pending_count"`
	PendingSum     decimal.Decimal `json:"pending_sum"`
	ReversalCount  int64           `json:"reversal_count"`
	ReversalSum    decimal.Decimal `json:"reversal_sum"`
}

type statRow struct {
	Status string
	Count  int64
	Sum    decimal.Decimal
}

func (s *Service) GetBatchStats(batchID uuid.UUID) (BatchStats, error) {
	stats := BatchStats{
		TotalAmount:  decimal.Zero,
		LinkedSum:    decimal.Zero,
		AmbiguousSum: decimal.Zero,
		UnmatchedSum: decimal.Zero,
		PendingSum:   decimal.Zero,
		ReversalSum:  decimal.Zero,
	}

	var rows []statRow
	err := s.db.Model(&models.ExternalTransaction{}).
		Where("import_batch_id = ?", batchID).
		Select("status, COUNT(*) as count, COALESCE(SUM(amount),0) as sum").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return stats, err
	}

	for _, r := range rows {
		stats.Total += r.Count
		stats.TotalAmount = stats.TotalAmount.Add(r.Sum)

		switch r.Status {
		case models.TxStatusLinked:
			stats.LinkedCount, stats.LinkedSum = r.Count, r.Sum
		case models.TxStatusAmbiguous:
			stats.AmbiguousCount, stats.AmbiguousSum = r.Count, r.Sum
		case models.TxStatusUnmatched:
			stats.UnmatchedCount, stats.UnmatchedSum = r.Count, r.Sum
		case models.TxStatusPending:
			stats.PendingCount, stats.PendingSum = r.Count, r.Sum
		case models.TxStatusReversalPair:
			stats.ReversalCount, stats.ReversalSum = r.Count, r.Sum
		}
	}
	return stats, nil
}
