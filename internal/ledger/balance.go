package ledger

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"charter-reconciliation-backend/internal/models"
	"charter-reconciliation-backend/internal/repository"
)

// IncompleteBookingError means the booking has no total due set. Recomputing
// a balance against a null due amount would silently mask missing charge
// data, so it is refused instead of defaulted to zero.
type IncompleteBookingError struct {
	BookingID uuid.UUID
}

func (e *IncompleteBookingError) Error() string {
	return fmt.Sprintf("ledger: booking %s has no total due set, cannot recompute balance", e.BookingID)
}

// BookingBalance is the recalculator's output.
type BookingBalance struct {
	BookingID uuid.UUID       `json:"booking_id"`
	TotalDue  decimal.Decimal `json:"total_due"`
	Paid      decimal.Decimal `json:"paid"`
	Balance   decimal.Decimal `json:"balance"`

	// ChargesMismatch flags a booking whose charge line items do not sum to
	// total due. Reported, not enforced.
	ChargeSum       decimal.Decimal `json:"charge_sum"`
	ChargesMismatch bool            `json:"charges_mismatch"`
}

// Recalculator recomputes a booking's derived fields from its payments.
// Paid is the sum over payments referencing the booking directly, whether or
// not each payment has a bank-feed link of its own.
type Recalculator struct {
	bookings *repository.BookingRepository
	records  *repository.FinancialRecordRepository
}

func NewRecalculator(db *gorm.DB) *Recalculator {
	return &Recalculator{
		bookings: repository.NewBookingRepository(db),
		records:  repository.NewFinancialRecordRepository(db),
	}
}

func (r *Recalculator) WithTx(tx *gorm.DB) *Recalculator {
	return NewRecalculator(tx)
}

// Recompute derives paid and balance for the booking and persists them.
// Idempotent: with no intervening mutation a second call is a no-op arriving
// at the same numbers.
func (r *Recalculator) Recompute(bookingID uuid.UUID) (*BookingBalance, error) {
	booking, err := r.bookings.GetByID(bookingID)
	if err != nil {
		return nil, err
	}
	if !booking.TotalDue.Valid {
		return nil, &IncompleteBookingError{BookingID: bookingID}
	}

	payments, err := r.records.FindByBooking(bookingID, models.RecordKindPayment)
	if err != nil {
		return nil, err
	}
	paid := decimal.Zero
	for _, p := range payments {
		paid = paid.Add(p.Amount)
	}

	charges, err := r.records.FindByBooking(bookingID, models.RecordKindCharge)
	if err != nil {
		return nil, err
	}
	chargeSum := decimal.Zero
	for _, c := range charges {
		chargeSum = chargeSum.Add(c.Amount)
	}

	totalDue := booking.TotalDue.Decimal
	balance := totalDue.Sub(paid)

	if err := r.bookings.UpdateDerived(bookingID, paid, balance); err != nil {
		return nil, err
	}

	return &BookingBalance{
		BookingID:       bookingID,
		TotalDue:        totalDue,
		Paid:            paid,
		Balance:         balance,
		ChargeSum:       chargeSum,
		ChargesMismatch: len(charges) > 0 && !chargeSum.Equal(totalDue),
	}, nil
}
