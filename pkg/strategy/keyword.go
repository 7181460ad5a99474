package strategy

import (
	"context"
	"log/slog"
	"sync"

	docerrors "github.com/Aman-CERP/docsearch/internal/errors"
	"github.com/Aman-CERP/docsearch/internal/store"
	"github.com/Aman-CERP/docsearch/pkg/document"
)

// Keyword ranks documents by BM25 over a tokenized inverted index. A query
// matches when every one of its terms is present.
type Keyword struct {
	mu     sync.RWMutex
	cfg    KeywordConfig
	logger *slog.Logger

	index store.KeywordIndex
	lock  *store.FileLock // nil for in-memory indexes
	docs  *table
	open  bool
}

var _ Strategy = (*Keyword)(nil)

// NewKeyword creates a closed Keyword strategy.
func NewKeyword(cfg KeywordConfig, opts ...Option) (*Keyword, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Backend, _ = store.ParseKeywordBackend(string(cfg.Backend))
	cfg.DefaultLimit = limitOrDefault(cfg.DefaultLimit)
	o := applyOptions(opts)
	return &Keyword{
		cfg: cfg,
		logger: o.logger.With(
			slog.String("strategy", NameKeyword),
			slog.String("backend", string(cfg.Backend))),
	}, nil
}

// Name implements Strategy.
func (k *Keyword) Name() string { return NameKeyword }

// Generation implements Generational.
func (k *Keyword) Generation() uint64 {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.docs.generation()
}

// Open creates or reopens the index. Documents left on disk by a previous
// process are cleared, since their payloads are not persisted.
func (k *Keyword) Open(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.open {
		return nil
	}

	var lock *store.FileLock
	if k.cfg.IndexDir != "" {
		var err error
		if lock, err = store.NewFileLock(k.cfg.IndexDir); err != nil {
			return docerrors.IndexWrite(NameKeyword, err)
		}
	}

	index, err := store.NewKeywordIndex(k.cfg.Backend, k.cfg.IndexDir, k.cfg.CaseSensitive)
	if err != nil {
		return docerrors.IndexWrite(NameKeyword, err)
	}

	if n, err := index.Count(ctx); err == nil && n > 0 {
		if err := withLock(lock, func() error { return index.Clear(ctx) }); err != nil {
			_ = index.Close()
			return docerrors.IndexWrite(NameKeyword, err)
		}
		k.logger.Info("keyword_index_reset",
			slog.String("dir", k.cfg.IndexDir),
			slog.Int("stale_docs", n))
	}

	k.index = index
	k.lock = lock
	k.docs = newTable()
	k.open = true
	k.logger.Debug("strategy_opened", slog.String("dir", k.cfg.IndexDir))
	return nil
}

// Close implements Strategy.
func (k *Keyword) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.open {
		return nil
	}
	err := k.index.Close()
	k.index = nil
	k.lock = nil
	k.docs = nil
	k.open = false
	return err
}

// UpsertDocuments implements Strategy. Chunks whose text did not change are
// not re-indexed.
func (k *Keyword) UpsertDocuments(ctx context.Context, docs []document.SearchableDocument) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.open {
		return docerrors.IndexNotInitialized(NameKeyword)
	}

	prepared := document.PrepareAll(docs)
	changed := make([]store.KeywordDoc, 0, len(prepared))
	for _, d := range prepared {
		if old, ok := k.docs.get(d.ChunkID); ok && old.TextContent == d.TextContent {
			continue
		}
		changed = append(changed, store.KeywordDoc{ID: d.ChunkID, Text: d.TextContent})
	}

	if len(changed) > 0 {
		if err := withLock(k.lock, func() error { return k.index.Index(ctx, changed) }); err != nil {
			k.logger.Error("keyword_index_write_failed",
				slog.Int("docs", len(changed)),
				slog.String("error", err.Error()))
			return docerrors.IndexWrite(NameKeyword, err)
		}
	}
	for _, d := range prepared {
		k.docs.put(d)
	}
	return nil
}

// DeleteDocuments implements Strategy.
func (k *Keyword) DeleteDocuments(ctx context.Context, docs []document.SearchableDocument) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.open {
		return docerrors.IndexNotInitialized(NameKeyword)
	}
	ids := k.docs.present(document.ChunkIDs(docs))
	if len(ids) == 0 {
		return nil
	}
	if err := withLock(k.lock, func() error { return k.index.Delete(ctx, ids) }); err != nil {
		return docerrors.IndexWrite(NameKeyword, err)
	}
	for _, id := range ids {
		k.docs.remove(id)
	}
	return nil
}

// DeleteDocument implements Strategy.
func (k *Keyword) DeleteDocument(ctx context.Context, chunkID string) error {
	return k.DeleteDocuments(ctx, []document.SearchableDocument{{ChunkID: chunkID}})
}

// ClearIndex implements Strategy.
func (k *Keyword) ClearIndex(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.open {
		return docerrors.IndexNotInitialized(NameKeyword)
	}
	if err := withLock(k.lock, func() error { return k.index.Clear(ctx) }); err != nil {
		return docerrors.IndexWrite(NameKeyword, err)
	}
	k.docs.reset()
	return nil
}

// Search implements Strategy.
func (k *Keyword) Search(ctx context.Context, query string, filter document.Filter, opts ...SearchOption) ([]any, error) {
	o := applySearchOptions(k.cfg.DefaultLimit, opts)
	hits, err := k.match(ctx, query, filter, o)
	if err != nil {
		return nil, err
	}
	return document.UniquePayloads(documentsOf(hits, 0), o.limit), nil
}

// RawSearch implements Strategy.
func (k *Keyword) RawSearch(ctx context.Context, query string, filter document.Filter, opts ...SearchOption) ([]document.SearchableDocument, error) {
	o := applySearchOptions(k.cfg.DefaultLimit, opts)
	hits, err := k.match(ctx, query, filter, o)
	if err != nil {
		return nil, err
	}
	return documentsOf(hits, o.limit), nil
}

func (k *Keyword) match(ctx context.Context, query string, filter document.Filter, o searchOptions) ([]scored, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	tokens := store.Tokenize(query, k.cfg.CaseSensitive)
	if len(tokens) == 0 {
		return nil, o.emptyQuery(NameKeyword)
	}

	k.mu.RLock()
	defer k.mu.RUnlock()
	if !k.open || k.docs.len() == 0 {
		return nil, nil
	}

	// Filtering happens after matching, so every hit is requested.
	raw, err := k.index.Search(ctx, query, 0)
	if err != nil {
		return nil, searchFailed(NameKeyword, err)
	}

	hits := make([]scored, 0, len(raw))
	for _, h := range raw {
		d, ok := k.docs.get(h.ID)
		if !ok {
			continue
		}
		if k.cfg.CaseSensitive && !store.ContainsAllTokens(d.TextContent, tokens, true) {
			continue
		}
		if !filter.Matches(d.Metadata) {
			continue
		}
		hits = append(hits, scored{doc: d, score: h.Score, seq: k.docs.order(h.ID)})
	}
	sortScored(hits)
	return hits, nil
}

// withLock runs fn while holding lock. A nil lock runs fn directly.
func withLock(lock *store.FileLock, fn func() error) error {
	if lock == nil {
		return fn()
	}
	if err := lock.Lock(); err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()
	return fn()
}
