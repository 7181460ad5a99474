package embed

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync/atomic"
	"unicode"
)

// errEmbedderClosed is returned by a closed in-process embedder.
var errEmbedderClosed = errors.New("embedder is closed")

// Feature weights of the static embedder. Whole words dominate; letter
// trigrams give partial credit to inflections and typos.
const (
	wordWeight    = 0.7
	trigramWeight = 0.3
)

// stopWords carry no topical signal and are not hashed as words.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "for": {}, "from": {}, "in": {}, "is": {}, "it": {}, "of": {},
	"on": {}, "or": {}, "the": {}, "to": {}, "was": {}, "with": {},
}

// StaticEmbedder hashes words and letter trigrams into a fixed-size vector.
// It needs no model or network, is deterministic, and puts texts that share
// vocabulary close together. It does not know synonyms.
type StaticEmbedder struct {
	closed atomic.Bool
}

// NewStaticEmbedder creates a static embedder.
func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{}
}

// Embed implements Embedder. Text without letters or digits maps to the
// zero vector.
func (e *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.closed.Load() {
		return nil, errEmbedderClosed
	}
	return e.encode(text), nil
}

// EmbedBatch implements Embedder.
func (e *StaticEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if e.closed.Load() {
		return nil, errEmbedderClosed
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.encode(t)
	}
	return out, nil
}

func (e *StaticEmbedder) encode(text string) []float32 {
	v := make([]float32, StaticDimensions)
	lower := strings.ToLower(text)

	words := strings.FieldsFunc(lower, func(r rune) bool { return !isWordRune(r) })
	for _, w := range words {
		if _, skip := stopWords[w]; !skip {
			v[bucket(w)] += wordWeight
		}
	}

	// Trigrams span word boundaries.
	letters := []rune(strings.Join(words, ""))
	for i := 0; i+3 <= len(letters); i++ {
		v[bucket(string(letters[i:i+3]))] += trigramWeight
	}
	return unitLength(v)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func bucket(feature string) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(feature))
	return int(h.Sum64() % StaticDimensions)
}

// Dimensions implements Embedder.
func (e *StaticEmbedder) Dimensions() int { return StaticDimensions }

// ModelName implements Embedder.
func (e *StaticEmbedder) ModelName() string { return string(ProviderStatic) }

// Available reports true until Close.
func (e *StaticEmbedder) Available(context.Context) bool { return !e.closed.Load() }

// Close implements Embedder. Later calls to Embed fail.
func (e *StaticEmbedder) Close() error {
	e.closed.Store(true)
	return nil
}

var _ Embedder = (*StaticEmbedder)(nil)
