// Package strings provides normalization helpers for identity fields and
// configuration lists.
package strings

import (
	"strings"
)

// DedupeAndTrim removes duplicates and empty strings from a slice,
// trimming whitespace from each element. Order is preserved.
//
// Example:
//
//	DedupeAndTrim([]string{" Title Deed ", "Affidavit", "Title Deed", ""})
//	// Returns: []string{"Title Deed", "Affidavit"}
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}

	return result
}

// SplitList splits a comma-separated setting and applies DedupeAndTrim.
func SplitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return DedupeAndTrim(strings.Split(raw, ","))
}

// NormalizeName lowercases and trims a person's name for comparison.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// SameName reports whether two applicant names refer to the same person under
// case-insensitive, whitespace-trimmed comparison. Two blank names are not a match.
func SameName(a, b string) bool {
	na, nb := NormalizeName(a), NormalizeName(b)
	return na != "" && na == nb
}

// NormalizeIdentifier canonicalizes national and tax identifiers: surrounding
// whitespace is dropped and letters are uppercased. Separators such as '/' are kept
// because they are part of the registered format.
func NormalizeIdentifier(v string) string {
	return strings.ToUpper(strings.TrimSpace(v))
}
