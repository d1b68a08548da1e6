package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FinancialRecord kinds. Payments are customer money in, receipts are vendor
// money out, charges are booking line items that sum to the booking's total due.
const (
	RecordKindPayment = "payment"
	RecordKindReceipt = "receipt"
	RecordKindCharge  = "charge"
)

// FinancialRecord is money recognized on the business side: an expense receipt
// or a customer payment, optionally attached to a Booking. Whether a record is
// linked to an ExternalTransaction is tracked in the link ledger, not here:
// many records legitimately never get a bank trace (cash expenses).
type FinancialRecord struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Kind        string          `gorm:"index"`
	Amount      decimal.Decimal `gorm:"type:numeric(14,2)"`
	RecordDate  time.Time       `gorm:"index"`
	Description string
	Vendor      string
	BookingID   *uuid.UUID `gorm:"index"`
	CreatedAt   time.Time
}
