package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charter-reconciliation-backend/internal/models"
)

func TestResolve_NoCandidates(t *testing.T) {
	r := NewResolver(testConfig())
	tx := feedTx("500.00", day(1), "E-TRANSFER", "etransfer")

	out := r.Resolve(tx, nil, nil)
	assert.Equal(t, OutcomeNoMatch, out.Kind)
}

func TestResolve_SingleExactMatch(t *testing.T) {
	cfg := testConfig()
	g := NewGenerator(cfg)
	r := NewResolver(cfg)

	tx := feedTx("500.00", day(1), "E-TRANSFER", "etransfer")
	pool := []models.FinancialRecord{payment("500.00", day(1), "charter deposit")}

	out := r.Resolve(tx, g.Candidates(tx, pool), nil)
	require.Equal(t, OutcomeSingleMatch, out.Kind)
	assert.Equal(t, pool[0].ID, out.Record.ID)
	assert.Equal(t, models.MatchTypeExactAmountDate, out.MatchType)
	assert.GreaterOrEqual(t, out.Confidence, cfg.AcceptThreshold)
}

func TestResolve_ExactHashWhenDescriptionsAgree(t *testing.T) {
	cfg := testConfig()
	g := NewGenerator(cfg)
	r := NewResolver(cfg)

	tx := feedTx("500.00", day(1), "E-TRANSFER SMITH", "etransfer")
	pool := []models.FinancialRecord{payment("500.00", day(1), "e-transfer smith")}

	out := r.Resolve(tx, g.Candidates(tx, pool), nil)
	require.Equal(t, OutcomeSingleMatch, out.Kind)
	assert.Equal(t, models.MatchTypeExactHash, out.MatchType)
}

func TestResolve_FuzzyMatchOnDateDrift(t *testing.T) {
	cfg := testConfig()
	g := NewGenerator(cfg)
	r := NewResolver(cfg)

	// Exact amount, two days late, description tokens fully covered.
	tx := feedTx("500.00", day(3), "E-TRANSFER JOHN SMITH", "etransfer")
	pool := []models.FinancialRecord{payment("500.00", day(1), "John Smith")}

	out := r.Resolve(tx, g.Candidates(tx, pool), nil)
	require.Equal(t, OutcomeSingleMatch, out.Kind)
	assert.Equal(t, models.MatchTypeFuzzy, out.MatchType)
}

func TestResolve_AmbiguousTwins(t *testing.T) {
	cfg := testConfig()
	g := NewGenerator(cfg)
	r := NewResolver(cfg)

	// Scenario: one $300 transaction, two indistinguishable $300 records.
	tx := feedTx("300.00", day(1), "DEPOSIT", "etransfer")
	pool := []models.FinancialRecord{
		payment("300.00", day(1), "deposit"),
		payment("300.00", day(1), "deposit"),
	}

	out := r.Resolve(tx, g.Candidates(tx, pool), nil)
	require.Equal(t, OutcomeAmbiguous, out.Kind)
	assert.Len(t, out.Candidates, 2)
	assert.Nil(t, out.Record)
}

func TestResolve_WithinMarginNeverGuesses(t *testing.T) {
	cfg := testConfig()
	g := NewGenerator(cfg)
	r := NewResolver(cfg)

	// Both candidates clear the threshold; the text bonus separates them by
	// less than the margin, so neither may win.
	tx := feedTx("500.00", day(1), "E-TRANSFER SMITH", "etransfer")
	pool := []models.FinancialRecord{
		payment("500.00", day(1), "smith"),
		payment("500.00", day(1), "smyth"),
	}

	out := r.Resolve(tx, g.Candidates(tx, pool), nil)
	assert.Equal(t, OutcomeAmbiguous, out.Kind)
}

func TestResolve_AmbiguousReportsOnlyContenders(t *testing.T) {
	cfg := testConfig()
	g := NewGenerator(cfg)
	r := NewResolver(cfg)

	// Two near-identical candidates within the margin plus one far off both
	// amount and text: the report must carry the two contenders, not all three.
	tx := feedTx("500.00", day(1), "E-TRANSFER SMITH", "etransfer")
	pool := []models.FinancialRecord{
		payment("500.00", day(1), "smith"),
		payment("500.00", day(1), "smyth"),
		payment("501.50", day(3), "quarterly mooring fees"),
	}

	out := r.Resolve(tx, g.Candidates(tx, pool), nil)
	require.Equal(t, OutcomeAmbiguous, out.Kind)
	assert.Len(t, out.Candidates, 2)
	for _, c := range out.Candidates {
		assert.True(t, c.AmountDelta.IsZero())
	}
}

func TestResolve_ClearWinnerBeatsMargin(t *testing.T) {
	cfg := testConfig()
	g := NewGenerator(cfg)
	r := NewResolver(cfg)

	tx := feedTx("500.00", day(1), "E-TRANSFER SMITH", "etransfer")
	exact := payment("500.00", day(1), "smith")
	off := payment("501.50", day(3), "unrelated vendor")

	out := r.Resolve(tx, g.Candidates(tx, []models.FinancialRecord{off, exact}), nil)
	require.Equal(t, OutcomeSingleMatch, out.Kind)
	assert.Equal(t, exact.ID, out.Record.ID)
}

func TestResolve_BelowThresholdIsAmbiguous(t *testing.T) {
	cfg := testConfig()
	g := NewGenerator(cfg)
	r := NewResolver(cfg)

	// Unique candidate, but amount off and a day late: not good enough to link.
	tx := feedTx("500.00", day(2), "WIRE IN", "etransfer")
	pool := []models.FinancialRecord{payment("501.00", day(1), "deposit")}

	out := r.Resolve(tx, g.Candidates(tx, pool), nil)
	require.Equal(t, OutcomeAmbiguous, out.Kind)
	assert.Len(t, out.Candidates, 1)
}

func TestResolve_ReversalPairShortCircuits(t *testing.T) {
	cfg := testConfig()
	g := NewGenerator(cfg)
	r := NewResolver(cfg)

	tx := feedTx("200.00", day(1), "E-TRANSFER", "etransfer")
	sibling := feedTx("-200.00", day(2), "E-TRANSFER REVERSAL", "etransfer")

	// A perfect record candidate exists, but the offsetting sibling wins:
	// a netting pair must never be matched against a record.
	pool := []models.FinancialRecord{payment("200.00", day(1), "e-transfer")}

	out := r.Resolve(tx, g.Candidates(tx, pool), []models.ExternalTransaction{*sibling})
	require.Equal(t, OutcomeReversalPair, out.Kind)
	assert.Equal(t, sibling.ID, out.ReversalWith.ID)
	assert.Nil(t, out.Record)
}
