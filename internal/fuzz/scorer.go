// Package fuzz implements the string similarity scorers used by the fuzzy
// search strategy. Every scorer returns a value on a 0-100 scale where 100
// means identical.
//
// Distances are computed on bytes by xrash/smetrics. For ASCII text this is
// identical to a code point comparison; for other scripts it slightly
// penalises edits to multi-byte characters.
package fuzz

import (
	"sort"
	"strings"

	"github.com/xrash/smetrics"
)

// Scorer compares a query against a candidate text.
type Scorer func(query, text string) float64

// Scorer names accepted by Lookup.
const (
	NameRatio          = "ratio"
	NamePartialRatio   = "partial_ratio"
	NameTokenSortRatio = "token_sort_ratio"
	NameTokenSetRatio  = "token_set_ratio"
	NameWRatio         = "WRatio"
	NameQRatio         = "QRatio"
	NameJaroWinkler    = "jaro_winkler"
)

var scorers = map[string]Scorer{
	strings.ToLower(NameRatio):          Ratio,
	strings.ToLower(NamePartialRatio):   PartialRatio,
	strings.ToLower(NameTokenSortRatio): TokenSortRatio,
	strings.ToLower(NameTokenSetRatio):  TokenSetRatio,
	strings.ToLower(NameWRatio):         WRatio,
	strings.ToLower(NameQRatio):         QRatio,
	strings.ToLower(NameJaroWinkler):    JaroWinkler,
}

// Lookup resolves a scorer by name, ignoring case.
func Lookup(name string) (Scorer, bool) {
	s, ok := scorers[strings.ToLower(strings.TrimSpace(name))]
	return s, ok
}

// Names lists the accepted scorer names.
func Names() []string {
	return []string{
		NameRatio, NamePartialRatio, NameTokenSortRatio, NameTokenSetRatio,
		NameWRatio, NameQRatio, NameJaroWinkler,
	}
}

// indel is the insertion/deletion edit distance: a substitution costs two.
func indel(a, b string) int {
	return smetrics.WagnerFischer(a, b, 1, 1, 2)
}

// Ratio is the normalized Indel similarity, 100 * (1 - d / (len(a)+len(b))).
// Two empty strings are identical.
func Ratio(a, b string) float64 {
	total := len(a) + len(b)
	if total == 0 {
		return 100
	}
	return 100 * (1 - float64(indel(a, b))/float64(total))
}

// QRatio is Ratio that scores 0 when either side is empty.
func QRatio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	return Ratio(a, b)
}

// PartialRatio aligns the shorter string against every window of the longer
// one, including windows clipped at either end, and returns the best Ratio.
func PartialRatio(a, b string) float64 {
	short, long := a, b
	if len(short) > len(long) {
		short, long = long, short
	}
	if short == "" {
		if long == "" {
			return 100
		}
		return 0
	}

	m, n := len(short), len(long)
	best := 0.0
	consider := func(window string) bool {
		if r := Ratio(short, window); r > best {
			best = r
		}
		return best == 100
	}

	for start := 0; start+m <= n; start++ {
		if consider(long[start : start+m]) {
			return best
		}
	}
	for k := 1; k < m && k <= n; k++ {
		if consider(long[:k]) || consider(long[n-k:]) {
			return best
		}
	}
	return best
}

// TokenSortRatio compares the strings after sorting their whitespace tokens.
func TokenSortRatio(a, b string) float64 {
	return Ratio(sortedTokens(a), sortedTokens(b))
}

// TokenSetRatio compares the shared token set against each side's remainder.
// A side whose tokens are a subset of the other's scores 100.
func TokenSetRatio(a, b string) float64 {
	sect, onlyA, onlyB := tokenSets(a, b)
	if sect == "" && onlyA == "" && onlyB == "" {
		return 100
	}
	if sect != "" && (onlyA == "" || onlyB == "") {
		return 100
	}

	withA := joinNonEmpty(sect, onlyA)
	withB := joinNonEmpty(sect, onlyB)
	return max(Ratio(sect, withA), Ratio(sect, withB), Ratio(withA, withB))
}

// WRatio weighs the other scorers by how different the string lengths are.
func WRatio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}

	const unbaseScale = 0.95
	shorter, longer := float64(len(a)), float64(len(b))
	if shorter > longer {
		shorter, longer = longer, shorter
	}
	lenRatio := longer / shorter

	best := Ratio(a, b)
	if lenRatio < 1.5 {
		tokens := max(TokenSortRatio(a, b), TokenSetRatio(a, b))
		return max(best, tokens*unbaseScale)
	}

	partialScale := 0.9
	if lenRatio >= 8 {
		partialScale = 0.6
	}
	best = max(best, PartialRatio(a, b)*partialScale)

	sect, onlyA, onlyB := tokenSets(a, b)
	partialTokens := max(
		PartialRatio(sortedTokens(a), sortedTokens(b)),
		PartialRatio(joinNonEmpty(sect, onlyA), joinNonEmpty(sect, onlyB)),
	)
	return max(best, partialTokens*unbaseScale*partialScale)
}

// JaroWinkler is the Jaro-Winkler similarity scaled to 0-100.
func JaroWinkler(a, b string) float64 {
	if a == "" && b == "" {
		return 100
	}
	return 100 * smetrics.JaroWinkler(a, b, 0.7, 4)
}

func sortedTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// tokenSets returns the sorted intersection and the two sorted differences
// of the whitespace token sets of a and b, each joined by spaces.
func tokenSets(a, b string) (sect, onlyA, onlyB string) {
	setA := tokenSet(a)
	setB := tokenSet(b)

	var both, diffA, diffB []string
	for t := range setA {
		if _, ok := setB[t]; ok {
			both = append(both, t)
		} else {
			diffA = append(diffA, t)
		}
	}
	for t := range setB {
		if _, ok := setA[t]; !ok {
			diffB = append(diffB, t)
		}
	}
	sort.Strings(both)
	sort.Strings(diffA)
	sort.Strings(diffB)
	return strings.Join(both, " "), strings.Join(diffA, " "), strings.Join(diffB, " ")
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range strings.Fields(s) {
		set[t] = struct{}{}
	}
	return set
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}
