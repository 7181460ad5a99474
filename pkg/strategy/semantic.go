package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/docsearch/internal/embed"
	docerrors "github.com/Aman-CERP/docsearch/internal/errors"
	"github.com/Aman-CERP/docsearch/internal/store"
	"github.com/Aman-CERP/docsearch/pkg/document"
)

// Semantic embeds document text and ranks documents by cosine similarity to
// the embedded query.
type Semantic struct {
	mu     sync.RWMutex
	cfg    SemanticConfig
	logger *slog.Logger

	embedder     embed.Embedder
	ownsEmbedder bool
	collection   store.VectorCollection
	created      bool // collection exists with a known dimension
	docs         *table
	vectors      map[string][]float32 // by chunk id, reused while the text is unchanged
	open         bool
}

var _ Strategy = (*Semantic)(nil)

// NewSemantic creates a closed Semantic strategy. A missing collection name
// is generated here so it stays fixed across Open and Close.
func NewSemantic(cfg SemanticConfig, opts ...Option) (*Semantic, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.CollectionName == "" {
		cfg.CollectionName = generatedCollectionName()
	}
	cfg.DefaultLimit = limitOrDefault(cfg.DefaultLimit)
	o := applyOptions(opts)
	return &Semantic{
		cfg:      cfg,
		embedder: o.embedder,
		logger: o.logger.With(
			slog.String("strategy", NameSemantic),
			slog.String("collection", cfg.CollectionName)),
	}, nil
}

// Name implements Strategy.
func (s *Semantic) Name() string { return NameSemantic }

// Generation implements Generational.
func (s *Semantic) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.docs.generation()
}

// CollectionName returns the vector collection name.
func (s *Semantic) CollectionName() string { return s.cfg.CollectionName }

// ScoreThreshold returns the current similarity threshold.
func (s *Semantic) ScoreThreshold() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.ScoreThreshold
}

// SetScoreThreshold changes the similarity threshold for later searches.
func (s *Semantic) SetScoreThreshold(threshold float64) error {
	if threshold < 0 || threshold > 1 {
		return docerrors.ConfigError(fmt.Sprintf("score_threshold must be between 0 and 1, got %v", threshold), nil).
			WithDetail("strategy", NameSemantic)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.ScoreThreshold = threshold
	return nil
}

// Open connects the embedder and the vector collection. A collection left
// over from a previous process is dropped.
func (s *Semantic) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open {
		return nil
	}

	if s.embedder == nil {
		e, err := embed.New(ctx, s.cfg.Encoder)
		if err != nil {
			return docerrors.New(docerrors.ErrCodeEmbeddingFailed, "failed to create embedder", err).
				WithDetail("strategy", NameSemantic)
		}
		s.embedder = e
		s.ownsEmbedder = true
	}

	collection, err := store.NewVectorCollection(s.cfg.CollectionName, s.cfg.Vector)
	if err != nil {
		s.releaseEmbedder()
		return docerrors.IndexWrite(NameSemantic, err)
	}
	exists, err := collection.Exists(ctx)
	if err != nil {
		_ = collection.Close()
		s.releaseEmbedder()
		return docerrors.IndexWrite(NameSemantic, err)
	}
	if exists {
		if err := collection.Drop(ctx); err != nil {
			_ = collection.Close()
			s.releaseEmbedder()
			return docerrors.IndexWrite(NameSemantic, err)
		}
		s.logger.Info("vector_collection_reset")
	}

	s.collection = collection
	s.created = false
	s.docs = newTable()
	s.vectors = make(map[string][]float32)
	s.open = true
	s.logger.Debug("strategy_opened",
		slog.String("backend", string(s.cfg.Vector.Backend)),
		slog.String("model", s.embedder.ModelName()))
	return nil
}

func (s *Semantic) releaseEmbedder() {
	if s.ownsEmbedder {
		_ = s.embedder.Close()
		s.embedder = nil
		s.ownsEmbedder = false
	}
}

// Close implements Strategy. An embedder passed with WithEmbedder stays open.
func (s *Semantic) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil
	}
	err := s.collection.Close()
	s.releaseEmbedder()
	s.collection = nil
	s.created = false
	s.docs = nil
	s.vectors = nil
	s.open = false
	return err
}

// UpsertDocuments implements Strategy. The collection is created on the
// first batch, once the vector dimension is known. A chunk whose text did
// not change keeps its vector and only its metadata and payload are updated.
func (s *Semantic) UpsertDocuments(ctx context.Context, docs []document.SearchableDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return docerrors.IndexNotInitialized(NameSemantic)
	}

	prepared := document.PrepareAll(docs)
	if len(prepared) == 0 {
		return nil
	}

	vectors, err := s.vectorsFor(ctx, prepared)
	if err != nil {
		s.logger.Error("embedding_failed",
			slog.Int("docs", len(prepared)),
			slog.String("error", err.Error()))
		return docerrors.IndexWrite(NameSemantic, err)
	}

	if !s.created {
		if err := s.collection.Create(ctx, len(vectors[0])); err != nil {
			return docerrors.IndexWrite(NameSemantic, err)
		}
		s.created = true
	}

	points := make([]store.VectorPoint, len(prepared))
	for i, d := range prepared {
		points[i] = store.VectorPoint{ID: d.ChunkID, Vector: vectors[i], Document: d}
	}
	if err := s.collection.Upsert(ctx, points); err != nil {
		return docerrors.IndexWrite(NameSemantic, err)
	}
	for i, d := range prepared {
		s.docs.put(d)
		s.vectors[d.ChunkID] = vectors[i]
	}
	return nil
}

// vectorsFor returns one vector per document, embedding only the documents
// that are new or whose text changed. Requires s.mu.
func (s *Semantic) vectorsFor(ctx context.Context, docs []document.SearchableDocument) ([][]float32, error) {
	vectors := make([][]float32, len(docs))
	var pending []document.SearchableDocument
	var slots []int
	for i, d := range docs {
		if old, ok := s.docs.get(d.ChunkID); ok && old.TextContent == d.TextContent {
			if v, ok := s.vectors[d.ChunkID]; ok {
				vectors[i] = v
				continue
			}
		}
		pending = append(pending, d)
		slots = append(slots, i)
	}
	if len(pending) == 0 {
		return vectors, nil
	}
	fresh, err := s.embedAll(ctx, pending)
	if err != nil {
		return nil, err
	}
	for j, i := range slots {
		vectors[i] = fresh[j]
	}
	return vectors, nil
}

// embedAll embeds document texts in batches of embed.DefaultBatchSize,
// running the batches concurrently.
func (s *Semantic) embedAll(ctx context.Context, docs []document.SearchableDocument) ([][]float32, error) {
	vectors := make([][]float32, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for start := 0; start < len(docs); start += embed.DefaultBatchSize {
		end := min(start+embed.DefaultBatchSize, len(docs))
		g.Go(func() error {
			texts := make([]string, 0, end-start)
			for _, d := range docs[start:end] {
				texts = append(texts, d.TextContent)
			}
			batch, err := s.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return err
			}
			if len(batch) != len(texts) {
				return fmt.Errorf("embedder returned %d vectors for %d texts", len(batch), len(texts))
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// DeleteDocuments implements Strategy.
func (s *Semantic) DeleteDocuments(ctx context.Context, docs []document.SearchableDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return docerrors.IndexNotInitialized(NameSemantic)
	}
	ids := s.docs.present(document.ChunkIDs(docs))
	if len(ids) == 0 {
		return nil
	}
	if err := s.collection.Delete(ctx, ids); err != nil {
		return docerrors.IndexWrite(NameSemantic, err)
	}
	for _, id := range ids {
		s.docs.remove(id)
		delete(s.vectors, id)
	}
	return nil
}

// DeleteDocument implements Strategy.
func (s *Semantic) DeleteDocument(ctx context.Context, chunkID string) error {
	return s.DeleteDocuments(ctx, []document.SearchableDocument{{ChunkID: chunkID}})
}

// ClearIndex drops the collection. The next upsert recreates it.
func (s *Semantic) ClearIndex(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return docerrors.IndexNotInitialized(NameSemantic)
	}
	if s.created {
		if err := s.collection.Drop(ctx); err != nil {
			return docerrors.IndexWrite(NameSemantic, err)
		}
		s.created = false
	}
	s.docs.reset()
	clear(s.vectors)
	return nil
}

// Search implements Strategy.
func (s *Semantic) Search(ctx context.Context, query string, filter document.Filter, opts ...SearchOption) ([]any, error) {
	o := applySearchOptions(s.cfg.DefaultLimit, opts)
	hits, err := s.scored(ctx, query, filter, o, o.limit)
	if err != nil {
		return nil, err
	}
	payloads := document.UniquePayloads(documentsOf(hits, 0), o.limit)
	if len(payloads) < o.limit && len(hits) >= o.limit {
		// Repeated payloads used up the limit; fetch every match instead.
		if hits, err = s.scored(ctx, query, filter, o, 0); err != nil {
			return nil, err
		}
		payloads = document.UniquePayloads(documentsOf(hits, 0), o.limit)
	}
	return payloads, nil
}

// RawSearch implements Strategy.
func (s *Semantic) RawSearch(ctx context.Context, query string, filter document.Filter, opts ...SearchOption) ([]document.SearchableDocument, error) {
	o := applySearchOptions(s.cfg.DefaultLimit, opts)
	hits, err := s.scored(ctx, query, filter, o, o.limit)
	if err != nil {
		return nil, err
	}
	return documentsOf(hits, o.limit), nil
}

// scored returns up to limit hits at or above the threshold, best first.
// limit <= 0 returns every qualifying hit.
func (s *Semantic) scored(ctx context.Context, query string, filter document.Filter, o searchOptions, limit int) ([]scored, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if isBlank(query) {
		return nil, o.emptyQuery(NameSemantic)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.open || !s.created || s.docs.len() == 0 {
		return nil, nil
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, docerrors.New(docerrors.ErrCodeEmbeddingFailed, "failed to embed query", err).
			WithDetail("strategy", NameSemantic)
	}
	if isZeroVector(vec) {
		return nil, o.emptyQuery(NameSemantic)
	}

	raw, err := s.collection.Query(ctx, store.VectorQuery{
		Vector:    vec,
		Limit:     limit,
		Threshold: s.cfg.ScoreThreshold,
		Filter:    filter,
	})
	if errors.Is(err, store.ErrCollectionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, searchFailed(NameSemantic, err)
	}

	hits := make([]scored, 0, len(raw))
	for _, h := range raw {
		d, ok := s.docs.get(h.ID)
		if !ok {
			continue
		}
		hits = append(hits, scored{doc: d, score: h.Score, seq: s.docs.order(h.ID)})
	}
	sortScored(hits)
	return hits, nil
}

func isZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
