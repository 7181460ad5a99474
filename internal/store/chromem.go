package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/Aman-CERP/docsearch/pkg/document"
)

// ChromemConfig configures the chromem-go backend.
type ChromemConfig struct {
	// Path persists the database to disk. Empty keeps it in memory.
	Path string `yaml:"path,omitempty"`

	// Compress gzips the persisted files.
	Compress bool `yaml:"compress,omitempty"`
}

// ChromemCollection implements VectorCollection on an embedded chromem-go DB.
// Documents are stored as JSON in the chromem content field; the live
// documents are kept alongside so payloads come back with their Go types.
type ChromemCollection struct {
	mu     sync.RWMutex
	name   string
	db     *chromem.DB
	dims   int
	docs   map[string]document.SearchableDocument
	closed bool
}

var _ VectorCollection = (*ChromemCollection)(nil)

// errNoEmbeddingFunc is returned if chromem ever tries to embed text itself.
var errNoEmbeddingFunc = errors.New("chromem: embeddings are computed by the caller")

func noEmbedding(_ context.Context, _ string) ([]float32, error) {
	return nil, errNoEmbeddingFunc
}

// NewChromemCollection opens the chromem database.
func NewChromemCollection(name string, cfg ChromemConfig) (*ChromemCollection, error) {
	var db *chromem.DB
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", cfg.Path, err)
		}
		var err error
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("opening chromem database at %s: %w", cfg.Path, err)
		}
	}
	return &ChromemCollection{
		name: name,
		db:   db,
		docs: make(map[string]document.SearchableDocument),
	}, nil
}

// Name returns the collection name.
func (c *ChromemCollection) Name() string { return c.name }

func (c *ChromemCollection) collection() *chromem.Collection {
	return c.db.GetCollection(c.name, noEmbedding)
}

// Exists reports whether the collection is present in the database.
func (c *ChromemCollection) Exists(_ context.Context) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false, fmt.Errorf("collection is closed")
	}
	return c.collection() != nil, nil
}

// Create creates the collection, recording its dimension as metadata.
func (c *ChromemCollection) Create(_ context.Context, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("invalid dimension %d", dims)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("collection is closed")
	}
	meta := map[string]string{"dims": strconv.Itoa(dims)}
	if _, err := c.db.GetOrCreateCollection(c.name, meta, noEmbedding); err != nil {
		return fmt.Errorf("creating collection %s: %w", c.name, err)
	}
	if c.dims == 0 {
		c.dims = dims
	}
	return nil
}

// Upsert adds or overwrites documents by ID.
func (c *ChromemCollection) Upsert(ctx context.Context, points []VectorPoint) error {
	if len(points) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("collection is closed")
	}
	col := c.collection()
	if col == nil {
		return ErrCollectionNotFound
	}

	chromemDocs := make([]chromem.Document, len(points))
	for i, p := range points {
		if len(p.Vector) != c.dims {
			return ErrDimensionMismatch{Expected: c.dims, Got: len(p.Vector)}
		}
		content, err := json.Marshal(p.Document)
		if err != nil {
			return fmt.Errorf("encoding document %s: %w", p.ID, err)
		}
		vec := make([]float32, len(p.Vector))
		copy(vec, p.Vector)
		chromemDocs[i] = chromem.Document{
			ID:        p.ID,
			Embedding: vec,
			Content:   string(content),
		}
	}

	if err := col.AddDocuments(ctx, chromemDocs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("adding documents to %s: %w", c.name, err)
	}
	for _, p := range points {
		c.docs[p.ID] = p.Document
	}
	return nil
}

// Delete removes documents by ID.
func (c *ChromemCollection) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("collection is closed")
	}
	col := c.collection()
	if col == nil {
		return nil
	}
	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("deleting from %s: %w", c.name, err)
	}
	for _, id := range ids {
		delete(c.docs, id)
	}
	return nil
}

// Query runs an exhaustive cosine search. Metadata filters are applied
// here rather than through chromem's string-only where clause, so the
// whole collection is fetched when a filter is present.
func (c *ChromemCollection) Query(ctx context.Context, q VectorQuery) ([]VectorHit, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, fmt.Errorf("collection is closed")
	}
	col := c.collection()
	if col == nil {
		return nil, ErrCollectionNotFound
	}
	if len(q.Vector) != c.dims {
		return nil, ErrDimensionMismatch{Expected: c.dims, Got: len(q.Vector)}
	}
	if _, norm := normalizedCopy(q.Vector); norm == 0 {
		return []VectorHit{}, nil
	}

	// chromem requires nResults <= doc count
	count := col.Count()
	if count == 0 {
		return []VectorHit{}, nil
	}
	n := q.Limit
	if n <= 0 || len(q.Filter) > 0 || n > count {
		n = count
	}

	results, err := col.QueryEmbedding(ctx, q.Vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", c.name, err)
	}

	hits := make([]VectorHit, 0, len(results))
	for _, r := range results {
		doc, ok := c.docs[r.ID]
		if !ok {
			if err := json.Unmarshal([]byte(r.Content), &doc); err != nil {
				return nil, fmt.Errorf("decoding document %s: %w", r.ID, err)
			}
		}
		if !q.Filter.Matches(doc.Metadata) {
			continue
		}
		hits = append(hits, VectorHit{
			ID:       r.ID,
			Document: doc,
			Score:    clampScore(float64(r.Similarity)),
		})
	}
	return rankHits(hits, q.Threshold, q.Limit), nil
}

// Count returns the number of documents.
func (c *ChromemCollection) Count(_ context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return 0, fmt.Errorf("collection is closed")
	}
	col := c.collection()
	if col == nil {
		return 0, nil
	}
	return col.Count(), nil
}

// Drop deletes the collection.
func (c *ChromemCollection) Drop(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("collection is closed")
	}
	if c.collection() != nil {
		if err := c.db.DeleteCollection(c.name); err != nil {
			return fmt.Errorf("deleting collection %s: %w", c.name, err)
		}
	}
	c.docs = make(map[string]document.SearchableDocument)
	c.dims = 0
	return nil
}

// Close releases the handle. chromem has nothing to flush.
func (c *ChromemCollection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.docs = nil
	return nil
}
