// Package suggest ranks known names by similarity to a mistyped one. It backs
// the "did you mean" hints for subcommands, config keys and model ids.
package suggest

import (
	"cmp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Suggestion pairs a known name with its similarity score (0-1, higher is better).
type Suggestion struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// DefaultThreshold is the minimum similarity score for a suggestion to be returned.
const DefaultThreshold = 0.5

// DefaultTopN is the maximum number of suggestions returned.
const DefaultTopN = 3

// Suggest returns known names similar to name, ranked by similarity score.
// Only suggestions scoring at least DefaultThreshold are returned, up to
// DefaultTopN results.
func Suggest(name string, known []string) []Suggestion {
	return SuggestN(name, known, DefaultTopN, DefaultThreshold)
}

// SuggestN returns up to topN known names similar to name, with score >= threshold.
// Ties keep the order of known.
func SuggestN(name string, known []string, topN int, threshold float64) []Suggestion {
	if name == "" || len(known) == 0 {
		return nil
	}

	normName := normalize(name)
	var results []Suggestion
	for _, k := range known {
		score := similarity(normName, normalize(k))
		if score >= threshold {
			results = append(results, Suggestion{Name: k, Score: score})
		}
	}

	slices.SortStableFunc(results, func(a, b Suggestion) int {
		return cmp.Compare(b.Score, a.Score)
	})

	if topN > 0 && len(results) > topN {
		results = results[:topN]
	}
	return results
}

// Names returns just the names of Suggest's results.
func Names(name string, known []string) []string {
	var out []string
	for _, s := range Suggest(name, known) {
		out = append(out, s.Name)
	}
	return out
}

// similarity combines normalized Levenshtein distance with a small bonus for
// a shared prefix, so "expl" ranks "explain" above "extract-sources".
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	if la == 0 || lb == 0 {
		return 0.0
	}
	maxLen := max(la, lb)

	dist := levenshtein.ComputeDistance(a, b)
	lev := 1.0 - float64(dist)/float64(maxLen)

	prefixBonus := 0.1 * float64(commonPrefixLen(a, b)) / float64(maxLen)

	return min(lev+prefixBonus, 1.0)
}

// normalize lowercases s and treats '_', '-' and camelCase boundaries as
// single spaces, so "max_error_tokens", "max-error-tokens" and
// "maxErrorTokens" compare equal.
func normalize(s string) string {
	runes := []rune(s)
	var parts []string
	var current []rune

	for i, r := range runes {
		switch {
		case r == '_' || r == '-':
			if len(current) > 0 {
				parts = append(parts, string(current))
				current = current[:0]
			}
		case unicode.IsUpper(r):
			if len(current) > 0 && i > 0 && unicode.IsLower(runes[i-1]) {
				parts = append(parts, string(current))
				current = current[:0]
			}
			current = append(current, unicode.ToLower(r))
		default:
			current = append(current, unicode.ToLower(r))
		}
	}
	if len(current) > 0 {
		parts = append(parts, string(current))
	}
	return strings.Join(parts, " ")
}

// commonPrefixLen returns the number of leading runes a and b share.
func commonPrefixLen(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	n := min(len(ra), len(rb))
	for i := 0; i < n; i++ {
		if ra[i] != rb[i] {
			return i
		}
	}
	return n
}
