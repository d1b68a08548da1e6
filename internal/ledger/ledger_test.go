package ledger

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"charter-reconciliation-backend/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Booking{},
		&models.FinancialRecord{},
		&models.ExternalTransaction{},
		&models.Link{},
	))
	return db
}

func seedBooking(t *testing.T, db *gorm.DB, totalDue string) *models.Booking {
	t.Helper()
	b := &models.Booking{
		ID:           uuid.New(),
		Reference:    "CH-" + uuid.NewString()[:8],
		CustomerName: "Smith",
		Status:       models.BookingStatusActive,
		PaidAmount:   decimal.Zero,
		Balance:      decimal.Zero,
		CreatedAt:    time.Now(),
	}
	if totalDue != "" {
		b.TotalDue = decimal.NewNullDecimal(decimal.RequireFromString(totalDue))
	}
	require.NoError(t, db.Create(b).Error)
	return b
}

func seedPayment(t *testing.T, db *gorm.DB, amount string, bookingID *uuid.UUID) *models.FinancialRecord {
	t.Helper()
	rec := &models.FinancialRecord{
		ID:         uuid.New(),
		Kind:       models.RecordKindPayment,
		Amount:     decimal.RequireFromString(amount),
		RecordDate: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		BookingID:  bookingID,
		CreatedAt:  time.Now(),
	}
	require.NoError(t, db.Create(rec).Error)
	return rec
}

func TestLink_IdempotentSamePair(t *testing.T) {
	db := openTestDB(t)
	l := NewLedger(db)

	txID := uuid.New()
	rec := seedPayment(t, db, "500.00", nil)

	first, err := l.Link(txID, rec.ID, models.MatchTypeExactAmountDate, 90, "run-a")
	require.NoError(t, err)

	second, err := l.Link(txID, rec.ID, models.MatchTypeExactAmountDate, 90, "run-b")
	require.NoError(t, err)
	assert.Equal(t, first, second, "re-linking the same pair is a no-op")

	var count int64
	require.NoError(t, db.Model(&models.Link{}).
		Where("external_transaction_id = ? AND superseded_at IS NULL", txID).
		Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestLink_ConflictingRecordRefused(t *testing.T) {
	db := openTestDB(t)
	l := NewLedger(db)

	txID := uuid.New()
	recA := seedPayment(t, db, "500.00", nil)
	recB := seedPayment(t, db, "500.00", nil)

	_, err := l.Link(txID, recA.ID, models.MatchTypeExactAmountDate, 90, "run")
	require.NoError(t, err)

	_, err = l.Link(txID, recB.ID, models.MatchTypeExactAmountDate, 90, "run")
	var conflict *AmbiguousLinkConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, txID, conflict.TxID)
	assert.Equal(t, recA.ID, conflict.ExistingRecordID)
}

func TestLink_RecordAlreadyClaimed(t *testing.T) {
	db := openTestDB(t)
	l := NewLedger(db)

	rec := seedPayment(t, db, "500.00", nil)
	holder := uuid.New()
	_, err := l.Link(holder, rec.ID, models.MatchTypeExactAmountDate, 90, "run")
	require.NoError(t, err)

	contender := uuid.New()
	_, err = l.Link(contender, rec.ID, models.MatchTypeExactAmountDate, 90, "run")
	var conflict *RecordClaimedError
	require.ErrorAs(t, err, &conflict)

	// The diagnostic names the actual holder, not the contender.
	assert.Equal(t, rec.ID, conflict.RecordID)
	assert.Equal(t, holder, conflict.HolderTxID)
	assert.Equal(t, contender, conflict.NewTxID)
}

func TestUnlink_SupersedesAndReturnsBooking(t *testing.T) {
	db := openTestDB(t)
	l := NewLedger(db)

	booking := seedBooking(t, db, "1000.00")
	rec := seedPayment(t, db, "500.00", &booking.ID)
	txID := uuid.New()

	_, err := l.Link(txID, rec.ID, models.MatchTypeExactAmountDate, 90, "run")
	require.NoError(t, err)

	bookingID, err := l.Unlink(txID, "operator")
	require.NoError(t, err)
	require.NotNil(t, bookingID)
	assert.Equal(t, booking.ID, *bookingID)

	active, err := l.ActiveLink(txID)
	require.NoError(t, err)
	assert.Nil(t, active)

	// The ledger is append-only: the superseded row survives.
	var total int64
	require.NoError(t, db.Model(&models.Link{}).
		Where("external_transaction_id = ?", txID).Count(&total).Error)
	assert.EqualValues(t, 1, total)
}

func TestUnlink_NoActiveLink(t *testing.T) {
	db := openTestDB(t)
	l := NewLedger(db)

	_, err := l.Unlink(uuid.New(), "operator")
	assert.ErrorIs(t, err, ErrNoActiveLink)
}

func TestUnlink_ThenRelinkAllowed(t *testing.T) {
	db := openTestDB(t)
	l := NewLedger(db)

	rec := seedPayment(t, db, "500.00", nil)
	txID := uuid.New()

	_, err := l.Link(txID, rec.ID, models.MatchTypeExactAmountDate, 90, "run")
	require.NoError(t, err)
	_, err = l.Unlink(txID, "operator")
	require.NoError(t, err)

	// Superseding frees both endpoints for a fresh association.
	_, err = l.Link(txID, rec.ID, models.MatchTypeManual, 100, "operator")
	require.NoError(t, err)
}

func TestRecompute_BalanceInvariant(t *testing.T) {
	db := openTestDB(t)
	r := NewRecalculator(db)

	booking := seedBooking(t, db, "1000.00")
	seedPayment(t, db, "300.00", &booking.ID)
	seedPayment(t, db, "200.50", &booking.ID)
	seedPayment(t, db, "99.99", nil) // unrelated

	bal, err := r.Recompute(booking.ID)
	require.NoError(t, err)
	assert.True(t, bal.Paid.Equal(decimal.RequireFromString("500.50")), "paid = %s", bal.Paid)
	assert.True(t, bal.Balance.Equal(decimal.RequireFromString("499.50")), "balance = %s", bal.Balance)
	assert.True(t, bal.TotalDue.Sub(bal.Paid).Equal(bal.Balance))

	// Persisted on the booking row.
	var stored models.Booking
	require.NoError(t, db.First(&stored, "id = ?", booking.ID).Error)
	assert.True(t, stored.PaidAmount.Equal(bal.Paid))
	assert.True(t, stored.Balance.Equal(bal.Balance))
}

func TestRecompute_Idempotent(t *testing.T) {
	db := openTestDB(t)
	r := NewRecalculator(db)

	booking := seedBooking(t, db, "1000.00")
	seedPayment(t, db, "250.00", &booking.ID)

	first, err := r.Recompute(booking.ID)
	require.NoError(t, err)
	second, err := r.Recompute(booking.ID)
	require.NoError(t, err)

	assert.True(t, first.Paid.Equal(second.Paid))
	assert.True(t, first.Balance.Equal(second.Balance))
}

func TestRecompute_NullTotalDueRefused(t *testing.T) {
	db := openTestDB(t)
	r := NewRecalculator(db)

	booking := seedBooking(t, db, "")
	seedPayment(t, db, "250.00", &booking.ID)

	_, err := r.Recompute(booking.ID)
	var ibe *IncompleteBookingError
	require.ErrorAs(t, err, &ibe)
	assert.Equal(t, booking.ID, ibe.BookingID)
}

func TestRecompute_ChargeMismatchReported(t *testing.T) {
	db := openTestDB(t)
	r := NewRecalculator(db)

	booking := seedBooking(t, db, "1000.00")
	charge := &models.FinancialRecord{
		ID:         uuid.New(),
		Kind:       models.RecordKindCharge,
		Amount:     decimal.RequireFromString("900.00"),
		RecordDate: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		BookingID:  &booking.ID,
		CreatedAt:  time.Now(),
	}
	require.NoError(t, db.Create(charge).Error)

	bal, err := r.Recompute(booking.ID)
	require.NoError(t, err)
	assert.True(t, bal.ChargesMismatch)
	assert.True(t, bal.ChargeSum.Equal(decimal.RequireFromString("900.00")))
}
