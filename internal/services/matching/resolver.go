package matching

import (
	"sort"

	"charter-reconciliation-backend/internal/config"
	"charter-reconciliation-backend/internal/fingerprint"
	"charter-reconciliation-backend/internal/models"
)

// OutcomeKind classifies what the resolver decided for one transaction.
type OutcomeKind string

const (
	OutcomeNoMatch      OutcomeKind = "no_match"
	OutcomeSingleMatch  OutcomeKind = "single_match"
	OutcomeAmbiguous    OutcomeKind = "ambiguous"
	OutcomeReversalPair OutcomeKind = "reversal_pair"
)

// Outcome is the resolver's verdict. Exactly one of Record / Candidates /
// ReversalWith is populated depending on Kind.
type Outcome struct {
	Kind         OutcomeKind
	Record       *models.FinancialRecord // single match
	MatchType    string
	Confidence   float64
	Candidates   []Candidate // ambiguous: everything in contention
	ReversalWith *models.ExternalTransaction
}

// Score weights. Amount dominates, date seconds it, description text breaks
// what is left. An exact amount + exact date with zero text overlap lands on
// 80, clear of the default acceptance threshold.
const (
	amountExactWeight = 55.0
	dateExactWeight   = 25.0
	textWeight        = 20.0
)

type scored struct {
	cand  Candidate
	score float64
}

// Resolver scores candidates and picks a winner, or refuses to.
type Resolver struct {
	cfg *config.MatchingConfig
}

func NewResolver(cfg *config.MatchingConfig) *Resolver {
	return &Resolver{cfg: cfg}
}

// Resolve classifies the transaction against its candidates. Offsetting holds
// sibling transactions that exactly negate tx on the same account: when any
// exist the transaction is one leg of a reversal pair and must not be matched
// against a record at all.
func (r *Resolver) Resolve(tx *models.ExternalTransaction, candidates []Candidate, offsetting []models.ExternalTransaction) Outcome {
	if len(offsetting) > 0 {
		sibling := offsetting[0]
		return Outcome{Kind: OutcomeReversalPair, ReversalWith: &sibling}
	}

	if len(candidates) == 0 {
		return Outcome{Kind: OutcomeNoMatch}
	}

	scores := make([]scored, len(candidates))
	for i, c := range candidates {
		scores[i] = scored{cand: c, score: r.score(tx, c)}
	}

	// Rank by score, then by the tie-break order the generator already
	// established (smaller amount delta, then earlier record date).
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		if !scores[i].cand.AmountDelta.Equal(scores[j].cand.AmountDelta) {
			return scores[i].cand.AmountDelta.LessThan(scores[j].cand.AmountDelta)
		}
		return scores[i].cand.Record.RecordDate.Before(scores[j].cand.Record.RecordDate)
	})

	top := scores[0]
	if top.score < r.cfg.AcceptThreshold {
		return ambiguous(scores)
	}
	if len(scores) > 1 && top.score-scores[1].score < r.cfg.MinMargin {
		// Two candidates this close are never decided automatically.
		return ambiguous(withinMargin(scores, r.cfg.MinMargin))
	}

	rec := top.cand.Record
	return Outcome{
		Kind:       OutcomeSingleMatch,
		Record:     &rec,
		MatchType:  classify(tx, top.cand),
		Confidence: top.score,
	}
}

func (r *Resolver) score(tx *models.ExternalTransaction, c Candidate) float64 {
	s := 0.0
	if c.AmountDelta.IsZero() {
		s += amountExactWeight
	}
	if c.DateDeltaDays == 0 {
		s += dateExactWeight
	}
	s += textWeight * tokenSimilarity(tx.Description, c.Record.Description+" "+c.Record.Vendor)
	return s
}

// ambiguous returns the given candidates as an outcome needing review.
func ambiguous(scores []scored) Outcome {
	out := Outcome{Kind: OutcomeAmbiguous}
	for _, s := range scores {
		out.Candidates = append(out.Candidates, s.cand)
	}
	return out
}

// withinMargin keeps the leader and every candidate scoring within margin of
// it, so the reported contenders are only those actually too close to call.
func withinMargin(scores []scored, margin float64) []scored {
	out := []scored{scores[0]}
	for _, s := range scores[1:] {
		if scores[0].score-s.score < margin {
			out = append(out, s)
		}
	}
	return out
}

func classify(tx *models.ExternalTransaction, c Candidate) string {
	if c.AmountDelta.IsZero() && c.DateDeltaDays == 0 {
		if fingerprint.Normalize(tx.Description) == fingerprint.Normalize(c.Record.Description) {
			return models.MatchTypeExactHash
		}
		return models.MatchTypeExactAmountDate
	}
	return models.MatchTypeFuzzy
}
