package matching

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"charter-reconciliation-backend/internal/config"
	"charter-reconciliation-backend/internal/models"
)

// Candidate is a FinancialRecord that survived the window and tolerance
// filters, with its deltas precomputed for scoring and ordering.
type Candidate struct {
	Record        models.FinancialRecord
	AmountDelta   decimal.Decimal // absolute
	DateDeltaDays int             // absolute
}

// Generator filters a record pool down to plausible counterparts for one
// transaction. Read-only; it never touches storage.
type Generator struct {
	cfg *config.MatchingConfig
}

func NewGenerator(cfg *config.MatchingConfig) *Generator {
	return &Generator{cfg: cfg}
}

// Window returns the date range a repository should prefilter the pool to for
// this transaction's channel.
func (g *Generator) Window(tx *models.ExternalTransaction) (time.Time, time.Time) {
	p := g.cfg.ProfileFor(tx.Channel)
	return tx.TransactionDate.AddDate(0, 0, -p.WindowDays),
		tx.TransactionDate.AddDate(0, 0, p.WindowDays)
}

// Candidates filters pool to records within the channel's date window and
// amount tolerance, ordered by ascending amount delta, then date delta, then
// record id. The order is total, so repeated runs over the same state rank
// candidates identically.
func (g *Generator) Candidates(tx *models.ExternalTransaction, pool []models.FinancialRecord) []Candidate {
	p := g.cfg.ProfileFor(tx.Channel)
	target := tx.Amount.Abs()

	var out []Candidate
	for _, rec := range pool {
		amountDelta := rec.Amount.Sub(target).Abs()
		if amountDelta.GreaterThan(p.AmountTolerance) {
			continue
		}
		days := dateDeltaDays(tx.TransactionDate, rec.RecordDate)
		if days > p.WindowDays {
			continue
		}
		out = append(out, Candidate{
			Record:        rec,
			AmountDelta:   amountDelta,
			DateDeltaDays: days,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].AmountDelta.Equal(out[j].AmountDelta) {
			return out[i].AmountDelta.LessThan(out[j].AmountDelta)
		}
		if out[i].DateDeltaDays != out[j].DateDeltaDays {
			return out[i].DateDeltaDays < out[j].DateDeltaDays
		}
		return out[i].Record.ID.String() < out[j].Record.ID.String()
	})
	return out
}

func dateDeltaDays(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	d := int(da.Sub(db).Hours() / 24)
	if d < 0 {
		d = -d
	}
	return d
}
