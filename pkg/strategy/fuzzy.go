package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	docerrors "github.com/Aman-CERP/docsearch/internal/errors"
	"github.com/Aman-CERP/docsearch/internal/fuzz"
	"github.com/Aman-CERP/docsearch/pkg/document"
)

// Fuzzy scores every document against the query with a fuzz scorer and keeps
// those at or above the cutoff.
type Fuzzy struct {
	mu     sync.RWMutex
	cfg    FuzzyConfig
	scorer fuzz.Scorer
	logger *slog.Logger
	docs   *table
	open   bool
}

var _ Strategy = (*Fuzzy)(nil)

// NewFuzzy creates a closed Fuzzy strategy.
func NewFuzzy(cfg FuzzyConfig, opts ...Option) (*Fuzzy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Scorer == "" {
		cfg.Scorer = fuzz.NameRatio
	}
	scorer, _ := fuzz.Lookup(cfg.Scorer)
	cfg.DefaultLimit = limitOrDefault(cfg.DefaultLimit)
	o := applyOptions(opts)
	return &Fuzzy{
		cfg:    cfg,
		scorer: scorer,
		logger: o.logger.With(slog.String("strategy", NameFuzzy), slog.String("scorer", cfg.Scorer)),
	}, nil
}

// Name implements Strategy.
func (f *Fuzzy) Name() string { return NameFuzzy }

// Generation implements Generational.
func (f *Fuzzy) Generation() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.docs.generation()
}

// ScoreCutoff returns the current inclusion cutoff.
func (f *Fuzzy) ScoreCutoff() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.cfg.ScoreCutoff
}

// SetScoreCutoff changes the inclusion cutoff for later searches.
func (f *Fuzzy) SetScoreCutoff(cutoff float64) error {
	if cutoff < 0 || cutoff > 100 {
		return docerrors.ConfigError(fmt.Sprintf("score_cutoff must be between 0 and 100, got %v", cutoff), nil).
			WithDetail("strategy", NameFuzzy)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg.ScoreCutoff = cutoff
	return nil
}

// Open implements Strategy.
func (f *Fuzzy) Open(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.open {
		return nil
	}
	f.docs = newTable()
	f.open = true
	f.logger.Debug("strategy_opened")
	return nil
}

// Close implements Strategy.
func (f *Fuzzy) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = nil
	f.open = false
	return nil
}

// UpsertDocuments implements Strategy.
func (f *Fuzzy) UpsertDocuments(_ context.Context, docs []document.SearchableDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return docerrors.IndexNotInitialized(NameFuzzy)
	}
	for _, d := range document.PrepareAll(docs) {
		f.docs.put(d)
	}
	return nil
}

// DeleteDocuments implements Strategy.
func (f *Fuzzy) DeleteDocuments(_ context.Context, docs []document.SearchableDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return docerrors.IndexNotInitialized(NameFuzzy)
	}
	for _, d := range docs {
		f.docs.remove(d.ChunkID)
	}
	return nil
}

// DeleteDocument implements Strategy.
func (f *Fuzzy) DeleteDocument(ctx context.Context, chunkID string) error {
	return f.DeleteDocuments(ctx, []document.SearchableDocument{{ChunkID: chunkID}})
}

// ClearIndex implements Strategy.
func (f *Fuzzy) ClearIndex(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return docerrors.IndexNotInitialized(NameFuzzy)
	}
	f.docs.reset()
	return nil
}

// Search implements Strategy.
func (f *Fuzzy) Search(_ context.Context, query string, filter document.Filter, opts ...SearchOption) ([]any, error) {
	o := applySearchOptions(f.cfg.DefaultLimit, opts)
	hits, err := f.scored(query, filter, o)
	if err != nil {
		return nil, err
	}
	return document.UniquePayloads(documentsOf(hits, 0), o.limit), nil
}

// RawSearch implements Strategy.
func (f *Fuzzy) RawSearch(_ context.Context, query string, filter document.Filter, opts ...SearchOption) ([]document.SearchableDocument, error) {
	o := applySearchOptions(f.cfg.DefaultLimit, opts)
	hits, err := f.scored(query, filter, o)
	if err != nil {
		return nil, err
	}
	return documentsOf(hits, o.limit), nil
}

// scored returns every document at or above the cutoff, best first. The
// filter is applied before scoring.
func (f *Fuzzy) scored(query string, filter document.Filter, o searchOptions) ([]scored, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if isBlank(query) {
		return nil, o.emptyQuery(NameFuzzy)
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.open {
		return nil, nil
	}

	q := query
	if !f.cfg.CaseSensitive {
		q = strings.ToLower(q)
	}
	var hits []scored
	for _, d := range f.docs.ordered() {
		if !filter.Matches(d.Metadata) {
			continue
		}
		text := d.TextContent
		if !f.cfg.CaseSensitive {
			text = strings.ToLower(text)
		}
		score := f.scorer(q, text)
		if score < f.cfg.ScoreCutoff {
			continue
		}
		hits = append(hits, scored{doc: d, score: score, seq: f.docs.order(d.ChunkID)})
	}
	sortScored(hits)
	return hits, nil
}
