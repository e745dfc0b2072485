// Package similarity holds the text and hash comparison primitives used by
// document scanning and classifier feature engineering.
package similarity

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// TextSimilarity is the character-level sequence ratio 2*M/T of the lowercased
// inputs. It is symmetric and returns 0 when either side is empty.
//
// The matcher picks its longest blocks from the first sequence, so the ratio
// depends on argument order; both orders are scored and the larger kept.
func TextSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	ca, cb := chars(strings.ToLower(a)), chars(strings.ToLower(b))
	return max(ratio(ca, cb), ratio(cb, ca))
}

func ratio(a, b []string) float64 {
	return difflib.NewMatcher(a, b).Ratio()
}

func chars(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// HashEqual compares content hashes case-insensitively. Blank hashes never match.
func HashEqual(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return false
	}
	return strings.EqualFold(a, b)
}
