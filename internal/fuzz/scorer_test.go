package fuzz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRatio(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "hello world", "hello world", 100},
		{"both empty", "", "", 100},
		{"one empty", "", "abc", 0},
		{"truncated query", "hello wor", "hello world", 90},
		{"unrelated", "hello wor", "test document", 100 * (1 - 16.0/22.0)},
		{"single substitution", "abcd", "abed", 75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Ratio(tt.a, tt.b), 0.001)
		})
	}
}

func TestQRatio_EmptyScoresZero(t *testing.T) {
	assert.Equal(t, 0.0, QRatio("", ""))
	assert.Equal(t, 0.0, QRatio("abc", ""))
	assert.Equal(t, 100.0, QRatio("abc", "abc"))
}

func TestPartialRatio(t *testing.T) {
	// Given: a query embedded in a longer text
	assert.Equal(t, 100.0, PartialRatio("hello", "say hello world"))

	// Then: argument order does not matter
	assert.Equal(t, 100.0, PartialRatio("say hello world", "hello"))

	// And: a one-letter typo still scores high
	assert.InDelta(t, 80.0, PartialRatio("helo", "say hello world"), 10)

	assert.Equal(t, 0.0, PartialRatio("", "abc"))
	assert.Equal(t, 100.0, PartialRatio("", ""))
}

func TestPartialRatio_ClippedWindowAtEdge(t *testing.T) {
	// "ldx" only overlaps the tail "ld" of the text
	got := PartialRatio("ldx", "hello world")
	assert.InDelta(t, 80.0, got, 0.001)
}

func TestTokenSortRatio_IgnoresWordOrder(t *testing.T) {
	assert.Equal(t, 100.0, TokenSortRatio("world hello", "hello world"))
	assert.Less(t, Ratio("world hello", "hello world"), 100.0)
}

func TestTokenSetRatio(t *testing.T) {
	assert.Equal(t, 100.0, TokenSetRatio("hello", "hello big world"))
	assert.Equal(t, 100.0, TokenSetRatio("", ""))
	assert.Less(t, TokenSetRatio("hello there", "hello world"), 100.0)
	assert.Greater(t, TokenSetRatio("hello there", "hello world"), Ratio("there", "world"))
}

func TestWRatio(t *testing.T) {
	assert.Equal(t, 100.0, WRatio("hello world", "hello world"))
	assert.Equal(t, 0.0, WRatio("", "hello"))

	// Very different lengths fall back to scaled partial matching
	got := WRatio("hello", "hello world this is a long sentence about greetings")
	assert.InDelta(t, 60.0, got, 0.001)
}

func TestJaroWinkler(t *testing.T) {
	assert.Equal(t, 100.0, JaroWinkler("", ""))
	assert.InDelta(t, 100.0, JaroWinkler("martha", "martha"), 0.001)
	assert.Greater(t, JaroWinkler("martha", "marhta"), 90.0)
}

func TestLookup(t *testing.T) {
	for _, name := range Names() {
		s, ok := Lookup(name)
		require.True(t, ok, name)
		require.NotNil(t, s)
	}

	s, ok := Lookup("  wratio ")
	require.True(t, ok)
	assert.Equal(t, 100.0, s("a", "a"))

	_, ok = Lookup("levenshtein")
	assert.False(t, ok)
}
