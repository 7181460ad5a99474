package strategy

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	docerrors "github.com/Aman-CERP/docsearch/internal/errors"
	"github.com/Aman-CERP/docsearch/pkg/document"
)

// Substring matches documents whose text contains the query verbatim.
// Results come back in insertion order.
type Substring struct {
	mu     sync.RWMutex
	cfg    SubstringConfig
	logger *slog.Logger
	docs   *table
	open   bool
}

var _ Strategy = (*Substring)(nil)

// NewSubstring creates a closed Substring strategy.
func NewSubstring(cfg SubstringConfig, opts ...Option) (*Substring, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.DefaultLimit = limitOrDefault(cfg.DefaultLimit)
	o := applyOptions(opts)
	return &Substring{
		cfg:    cfg,
		logger: o.logger.With(slog.String("strategy", NameSubstring)),
	}, nil
}

// Name implements Strategy.
func (s *Substring) Name() string { return NameSubstring }

// Generation implements Generational.
func (s *Substring) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.docs.generation()
}

// Open implements Strategy.
func (s *Substring) Open(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open {
		return nil
	}
	s.docs = newTable()
	s.open = true
	s.logger.Debug("strategy_opened")
	return nil
}

// Close implements Strategy.
func (s *Substring) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = nil
	s.open = false
	return nil
}

// UpsertDocuments implements Strategy.
func (s *Substring) UpsertDocuments(_ context.Context, docs []document.SearchableDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return docerrors.IndexNotInitialized(NameSubstring)
	}
	for _, d := range document.PrepareAll(docs) {
		s.docs.put(d)
	}
	return nil
}

// DeleteDocuments implements Strategy.
func (s *Substring) DeleteDocuments(ctx context.Context, docs []document.SearchableDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return docerrors.IndexNotInitialized(NameSubstring)
	}
	for _, d := range docs {
		s.docs.remove(d.ChunkID)
	}
	return nil
}

// DeleteDocument implements Strategy.
func (s *Substring) DeleteDocument(ctx context.Context, chunkID string) error {
	return s.DeleteDocuments(ctx, []document.SearchableDocument{{ChunkID: chunkID}})
}

// ClearIndex implements Strategy.
func (s *Substring) ClearIndex(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return docerrors.IndexNotInitialized(NameSubstring)
	}
	s.docs.reset()
	return nil
}

// Search implements Strategy.
func (s *Substring) Search(ctx context.Context, query string, filter document.Filter, opts ...SearchOption) ([]any, error) {
	o := applySearchOptions(s.cfg.DefaultLimit, opts)
	docs, err := s.match(query, filter, o)
	if err != nil {
		return nil, err
	}
	return document.UniquePayloads(docs, o.limit), nil
}

// RawSearch implements Strategy.
func (s *Substring) RawSearch(ctx context.Context, query string, filter document.Filter, opts ...SearchOption) ([]document.SearchableDocument, error) {
	o := applySearchOptions(s.cfg.DefaultLimit, opts)
	docs, err := s.match(query, filter, o)
	if err != nil {
		return nil, err
	}
	if len(docs) > o.limit {
		docs = docs[:o.limit]
	}
	return docs, nil
}

// match returns every matching document in insertion order.
func (s *Substring) match(query string, filter document.Filter, o searchOptions) ([]document.SearchableDocument, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if isBlank(query) {
		return nil, o.emptyQuery(NameSubstring)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.open {
		return nil, nil
	}

	needle := query
	if !s.cfg.CaseSensitive {
		needle = strings.ToLower(query)
	}
	var out []document.SearchableDocument
	for _, d := range s.docs.ordered() {
		text := d.TextContent
		if !s.cfg.CaseSensitive {
			text = strings.ToLower(text)
		}
		if strings.Contains(text, needle) && filter.Matches(d.Metadata) {
			out = append(out, d)
		}
	}
	return out, nil
}
