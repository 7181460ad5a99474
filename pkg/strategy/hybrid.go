package strategy

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	docerrors "github.com/Aman-CERP/docsearch/internal/errors"
	"github.com/Aman-CERP/docsearch/pkg/document"
)

// Hybrid runs a Fuzzy and a Semantic strategy over the same documents and
// fuses their rankings.
type Hybrid struct {
	mu       sync.RWMutex
	cfg      HybridConfig
	logger   *slog.Logger
	fuzzy    *Fuzzy
	semantic *Semantic
	open     bool
}

var _ Strategy = (*Hybrid)(nil)

// NewHybrid creates a closed Hybrid strategy. Options are passed on to both
// branches.
func NewHybrid(cfg HybridConfig, opts ...Option) (*Hybrid, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Fusion == "" {
		cfg.Fusion = FusionUnion
	}
	cfg.DefaultLimit = limitOrDefault(cfg.DefaultLimit)

	fz, err := NewFuzzy(cfg.Fuzzy, opts...)
	if err != nil {
		return nil, err
	}
	sem, err := NewSemantic(cfg.Semantic, opts...)
	if err != nil {
		return nil, err
	}
	o := applyOptions(opts)
	return &Hybrid{
		cfg:      cfg,
		logger:   o.logger.With(slog.String("strategy", NameHybrid), slog.String("fusion", string(cfg.Fusion))),
		fuzzy:    fz,
		semantic: sem,
	}, nil
}

// Name implements Strategy.
func (h *Hybrid) Name() string { return NameHybrid }

// Generation implements Generational. Each branch generation is fresh when
// issued, so the larger of the two changes whenever either branch is
// reopened or cleared.
func (h *Hybrid) Generation() uint64 {
	return max(h.fuzzy.Generation(), h.semantic.Generation())
}

// Fuzzy returns the fuzzy branch.
func (h *Hybrid) Fuzzy() *Fuzzy { return h.fuzzy }

// Semantic returns the semantic branch.
func (h *Hybrid) Semantic() *Semantic { return h.semantic }

// Open implements Strategy.
func (h *Hybrid) Open(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.open {
		return nil
	}
	if err := h.fuzzy.Open(ctx); err != nil {
		return err
	}
	if err := h.semantic.Open(ctx); err != nil {
		_ = h.fuzzy.Close()
		return err
	}
	h.open = true
	h.logger.Debug("strategy_opened")
	return nil
}

// Close implements Strategy.
func (h *Hybrid) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.open = false
	return errors.Join(h.fuzzy.Close(), h.semantic.Close())
}

// UpsertDocuments implements Strategy. Chunk ids are fixed before the fan
// out so both branches index the same ids.
//
// Every mutation writes the semantic branch first. Once open, the fuzzy
// branch is an in-memory table whose writes cannot fail, so an error from
// either call leaves both branches as they were.
func (h *Hybrid) UpsertDocuments(ctx context.Context, docs []document.SearchableDocument) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.open {
		return docerrors.IndexNotInitialized(NameHybrid)
	}
	prepared := document.PrepareAll(docs)
	if err := h.semantic.UpsertDocuments(ctx, prepared); err != nil {
		return err
	}
	return h.fuzzy.UpsertDocuments(ctx, prepared)
}

// DeleteDocuments implements Strategy.
func (h *Hybrid) DeleteDocuments(ctx context.Context, docs []document.SearchableDocument) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.open {
		return docerrors.IndexNotInitialized(NameHybrid)
	}
	if err := h.semantic.DeleteDocuments(ctx, docs); err != nil {
		return err
	}
	return h.fuzzy.DeleteDocuments(ctx, docs)
}

// DeleteDocument implements Strategy.
func (h *Hybrid) DeleteDocument(ctx context.Context, chunkID string) error {
	return h.DeleteDocuments(ctx, []document.SearchableDocument{{ChunkID: chunkID}})
}

// ClearIndex implements Strategy.
func (h *Hybrid) ClearIndex(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.open {
		return docerrors.IndexNotInitialized(NameHybrid)
	}
	if err := h.semantic.ClearIndex(ctx); err != nil {
		return err
	}
	return h.fuzzy.ClearIndex(ctx)
}

// Search implements Strategy.
func (h *Hybrid) Search(ctx context.Context, query string, filter document.Filter, opts ...SearchOption) ([]any, error) {
	o := applySearchOptions(h.cfg.DefaultLimit, opts)
	hits, err := h.fused(ctx, query, filter, o)
	if err != nil {
		return nil, err
	}
	return document.UniquePayloads(documentsOf(hits, 0), o.limit), nil
}

// RawSearch implements Strategy.
func (h *Hybrid) RawSearch(ctx context.Context, query string, filter document.Filter, opts ...SearchOption) ([]document.SearchableDocument, error) {
	o := applySearchOptions(h.cfg.DefaultLimit, opts)
	hits, err := h.fused(ctx, query, filter, o)
	if err != nil {
		return nil, err
	}
	return documentsOf(hits, o.limit), nil
}

// fused queries both branches in parallel, limit*2 hits each, and merges
// them. Either branch failing fails the search.
func (h *Hybrid) fused(ctx context.Context, query string, filter document.Filter, o searchOptions) ([]scored, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.open {
		if isBlank(query) {
			return nil, o.emptyQuery(NameHybrid)
		}
		return nil, nil
	}

	fetch := o.limit * 2
	var fuzzyHits, semanticHits []scored
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := h.fuzzy.scored(query, filter, o)
		if len(hits) > fetch {
			hits = hits[:fetch]
		}
		fuzzyHits = hits
		return err
	})
	g.Go(func() error {
		hits, err := h.semantic.scored(gctx, query, filter, o, fetch)
		semanticHits = hits
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if h.cfg.Fusion == FusionRRF {
		return fuseRRF(semanticHits, fuzzyHits), nil
	}
	return fuseUnion(semanticHits, fuzzyHits), nil
}

// fuseUnion lists semantic hits first, then fuzzy hits the semantic branch
// did not return. Each branch keeps its own order.
func fuseUnion(semantic, fuzzy []scored) []scored {
	out := make([]scored, 0, len(semantic)+len(fuzzy))
	seen := make(map[string]struct{}, len(semantic))
	for _, s := range semantic {
		seen[s.doc.ChunkID] = struct{}{}
		out = append(out, s)
	}
	for _, f := range fuzzy {
		if _, dup := seen[f.doc.ChunkID]; dup {
			continue
		}
		seen[f.doc.ChunkID] = struct{}{}
		out = append(out, f)
	}
	return out
}

// fuseRRF scores each chunk by the sum of 1/(RRFK+rank) over the branches
// that returned it, rank starting at 1. Ties keep first-seen order,
// semantic before fuzzy.
func fuseRRF(semantic, fuzzy []scored) []scored {
	byID := make(map[string]int)
	var out []scored
	for _, list := range [][]scored{semantic, fuzzy} {
		for rank, hit := range list {
			contribution := 1.0 / float64(RRFK+rank+1)
			if i, ok := byID[hit.doc.ChunkID]; ok {
				out[i].score += contribution
				continue
			}
			byID[hit.doc.ChunkID] = len(out)
			out = append(out, scored{doc: hit.doc, score: contribution, seq: uint64(len(out))})
		}
	}
	sortScored(out)
	return out
}
