package store

import (
	"strings"
	"unicode"
)

// Tokenize splits text into runs of letters and digits. Tokens are
// lowercased unless caseSensitive is set. It mirrors what the Bleve unicode
// tokenizer and the FTS5 unicode61 tokenizer produce for plain prose.
func Tokenize(text string, caseSensitive bool) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if caseSensitive {
		return fields
	}
	for i, f := range fields {
		fields[i] = strings.ToLower(f)
	}
	return fields
}

// ContainsAllTokens reports whether every query token appears in text.
// Used to enforce exact-case matching on backends that fold case.
func ContainsAllTokens(text string, queryTokens []string, caseSensitive bool) bool {
	present := make(map[string]struct{})
	for _, t := range Tokenize(text, caseSensitive) {
		present[t] = struct{}{}
	}
	for _, q := range queryTokens {
		if _, ok := present[q]; !ok {
			return false
		}
	}
	return true
}

// ftsQuery quotes each token so FTS5 treats it as a literal term.
// Space-separated terms are ANDed by FTS5.
func ftsQuery(tokens []string) string {
	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " ")
}
