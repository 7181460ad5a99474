// Package strategy implements the interchangeable search backends: plain
// substring containment, a BM25 keyword index, typo-tolerant fuzzy scoring,
// embedding similarity and a hybrid of fuzzy and semantic.
//
// Every strategy follows a single-writer, multi-reader discipline: mutations
// take an exclusive lock, so a search never observes a half-applied batch.
// Strategies are created closed; call Open before use.
package strategy

import (
	"context"
	"log/slog"
	"strings"

	"github.com/Aman-CERP/docsearch/internal/embed"
	docerrors "github.com/Aman-CERP/docsearch/internal/errors"
	"github.com/Aman-CERP/docsearch/pkg/document"
)

// Strategy names.
const (
	NameSubstring = "substring"
	NameKeyword   = "keyword"
	NameFuzzy     = "fuzzy"
	NameSemantic  = "semantic"
	NameHybrid    = "hybrid"
)

// Names lists every strategy name accepted by New.
func Names() []string {
	return []string{NameSubstring, NameKeyword, NameFuzzy, NameSemantic, NameHybrid}
}

// Strategy is the contract shared by every search backend.
type Strategy interface {
	// Name returns the strategy name.
	Name() string

	// Open creates the backing store. Opening an open strategy is a no-op.
	Open(ctx context.Context) error

	// Close releases the backing store. Closing twice is a no-op.
	Close() error

	// UpsertDocuments inserts new chunks or replaces existing ones by ChunkID.
	UpsertDocuments(ctx context.Context, docs []document.SearchableDocument) error

	// DeleteDocuments removes the given chunks. Missing chunks are ignored.
	DeleteDocuments(ctx context.Context, docs []document.SearchableDocument) error

	// DeleteDocument removes one chunk. A missing chunk is ignored.
	DeleteDocument(ctx context.Context, chunkID string) error

	// Search returns the payloads of matching documents, best first, with
	// repeated payloads collapsed.
	Search(ctx context.Context, query string, filter document.Filter, opts ...SearchOption) ([]any, error)

	// RawSearch returns matching documents, best first.
	RawSearch(ctx context.Context, query string, filter document.Filter, opts ...SearchOption) ([]document.SearchableDocument, error)

	// ClearIndex removes every document.
	ClearIndex(ctx context.Context) error
}

// SearchOption adjusts a single search call.
type SearchOption func(*searchOptions)

type searchOptions struct {
	limit        int
	requireQuery bool
}

// WithLimit overrides the strategy's DefaultLimit for one call.
func WithLimit(n int) SearchOption {
	return func(o *searchOptions) { o.limit = n }
}

// RequireQuery turns a query with nothing to match on (blank, no indexable
// token, or no encodable content) into an InvalidQuery error instead of an
// empty result.
func RequireQuery() SearchOption {
	return func(o *searchOptions) { o.requireQuery = true }
}

func applySearchOptions(defaultLimit int, opts []SearchOption) searchOptions {
	o := searchOptions{limit: defaultLimit}
	for _, opt := range opts {
		opt(&o)
	}
	if o.limit <= 0 {
		o.limit = defaultLimit
	}
	return o
}

// emptyQuery handles a query with nothing to match on.
func (o searchOptions) emptyQuery(strategyName string) error {
	if o.requireQuery {
		return docerrors.InvalidQuery("query has no searchable content", nil).
			WithDetail("strategy", strategyName)
	}
	return nil
}

func isBlank(query string) bool {
	return strings.TrimSpace(query) == ""
}

// Option configures a strategy at construction.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	embedder embed.Embedder
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithEmbedder makes a semantic or hybrid strategy use e instead of building
// one from its config. The caller keeps ownership and closes it.
func WithEmbedder(e embed.Embedder) Option {
	return func(o *options) { o.embedder = e }
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// scored is a matched document with the strategy's ranking score.
type scored struct {
	doc   document.SearchableDocument
	score float64
	seq   uint64
}

func documentsOf(hits []scored, limit int) []document.SearchableDocument {
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	docs := make([]document.SearchableDocument, len(hits))
	for i, h := range hits {
		docs[i] = h.doc
	}
	return docs
}

// Unwrap strips decorators such as Instrument and returns the concrete strategy.
func Unwrap(s Strategy) Strategy {
	for {
		u, ok := s.(interface{ Unwrap() Strategy })
		if !ok {
			return s
		}
		s = u.Unwrap()
	}
}

// Generational is implemented by strategies that can lose their contents
// without a delete: Open starts from an empty index and ClearIndex empties
// it. The generation changes on both and on nothing else, so a caller that
// remembers it can tell whether documents it wrote are still there.
type Generational interface {
	Generation() uint64
}

// Generation returns the index generation of s, looking through decorators.
// ok is false when s does not track one.
func Generation(s Strategy) (gen uint64, ok bool) {
	g, ok := Unwrap(s).(Generational)
	if !ok {
		return 0, false
	}
	return g.Generation(), true
}
