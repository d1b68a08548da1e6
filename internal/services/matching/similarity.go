package matching

import (
	"math"
	"strings"

	"charter-reconciliation-backend/internal/fingerprint"
)

// tokenSimilarity scores how well a bank description covers a record's
// description/vendor text, 0..1. Each record token is credited with its best
// levenshtein similarity against any bank token.
func tokenSimilarity(bankDesc, recordDesc string) float64 {
	bTokens := strings.Fields(fingerprint.Normalize(bankDesc))
	rTokens := strings.Fields(fingerprint.Normalize(recordDesc))

	if len(rTokens) == 0 || len(bTokens) == 0 {
		return 0
	}

	total := 0.0
	for _, rt := range rTokens {
		best := 0.0
		for _, bt := range bTokens {
			dist := levenshtein(rt, bt)
			maxLen := math.Max(float64(len(rt)), float64(len(bt)))
			sim := 1 - float64(dist)/maxLen
			if sim > best {
				best = sim
			}
		}
		total += best
	}
	return total / float64(len(rTokens))
}

func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	dp := make([][]int, len(a)+1)
	for i := range dp {
		dp[i] = make([]int, len(b)+1)
	}
	for i := 0; i <= len(a); i++ {
		dp[i][0] = i
	}
	for j := 0; j <= len(b); j++ {
		dp[0][j] = j
	}

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			dp[i][j] = minOf(
				dp[i-1][j]+1,
				dp[i][j-1]+1,
				dp[i-1][j-1]+cost,
			)
		}
	}
	return dp[len(a)][len(b)]
}

func minOf(a, b, c int) int {
	if a < b && a < c {
		return a
	}
	if b < c {
		return b
	}
	return c
}
