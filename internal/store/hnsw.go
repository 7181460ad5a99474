package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/coder/hnsw"

	"github.com/Aman-CERP/docsearch/pkg/document"
)

// DefaultExactSearchThreshold is the collection size up to which queries
// scan every vector instead of walking the graph.
const DefaultExactSearchThreshold = 1024

// HNSWConfig tunes the in-process HNSW collection.
type HNSWConfig struct {
	// M is max connections per layer (default: 16).
	M int `yaml:"m,omitempty"`

	// EfSearch is the query-time search width (default: 20).
	EfSearch int `yaml:"ef_search,omitempty"`

	// ExactSearchThreshold switches to graph search above this many points.
	// Zero uses the default, negative always uses the graph.
	ExactSearchThreshold int `yaml:"exact_search_threshold,omitempty"`
}

type hnswPoint struct {
	vector []float32 // normalized
	zero   bool
	doc    document.SearchableDocument
}

// HNSWCollection implements VectorCollection using coder/hnsw.
// Replaced and deleted points are removed lazily: their graph nodes stay
// but are orphaned from the ID maps and skipped in results.
type HNSWCollection struct {
	mu     sync.RWMutex
	name   string
	config HNSWConfig

	created bool
	dims    int
	graph   *hnsw.Graph[uint64]
	points  map[string]hnswPoint

	// ID mapping (string <-> uint64)
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	closed bool
}

var _ VectorCollection = (*HNSWCollection)(nil)

// NewHNSWCollection creates an HNSW collection handle.
func NewHNSWCollection(name string, cfg HNSWConfig) *HNSWCollection {
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}
	if cfg.ExactSearchThreshold == 0 {
		cfg.ExactSearchThreshold = DefaultExactSearchThreshold
	}
	c := &HNSWCollection{name: name, config: cfg}
	c.reset()
	return c
}

func (c *HNSWCollection) reset() {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = c.config.M
	graph.EfSearch = c.config.EfSearch
	graph.Ml = 0.25

	c.graph = graph
	c.points = make(map[string]hnswPoint)
	c.idMap = make(map[string]uint64)
	c.keyMap = make(map[uint64]string)
	c.nextKey = 0
	c.created = false
	c.dims = 0
}

// Name returns the collection name.
func (c *HNSWCollection) Name() string { return c.name }

// Exists reports whether Create has been called since the last Drop.
func (c *HNSWCollection) Exists(_ context.Context) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false, fmt.Errorf("collection is closed")
	}
	return c.created, nil
}

// Create fixes the vector dimension.
func (c *HNSWCollection) Create(_ context.Context, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("invalid dimension %d", dims)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("collection is closed")
	}
	if c.created {
		return nil
	}
	c.created = true
	c.dims = dims
	return nil
}

// Upsert inserts or replaces points.
func (c *HNSWCollection) Upsert(_ context.Context, points []VectorPoint) error {
	if len(points) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("collection is closed")
	}
	if !c.created {
		return ErrCollectionNotFound
	}
	for _, p := range points {
		if len(p.Vector) != c.dims {
			return ErrDimensionMismatch{Expected: c.dims, Got: len(p.Vector)}
		}
	}

	for _, p := range points {
		// Lazy deletion: orphan the old key instead of graph.Delete, which
		// misbehaves when removing the last node.
		if existingKey, exists := c.idMap[p.ID]; exists {
			delete(c.keyMap, existingKey)
			delete(c.idMap, p.ID)
		}

		vec, norm := normalizedCopy(p.Vector)
		c.points[p.ID] = hnswPoint{vector: vec, zero: norm == 0, doc: p.Document}
		if norm == 0 {
			continue
		}

		key := c.nextKey
		c.nextKey++
		c.graph.Add(hnsw.MakeNode(key, vec))
		c.idMap[p.ID] = key
		c.keyMap[key] = p.ID
	}
	return nil
}

// Delete removes points by ID.
func (c *HNSWCollection) Delete(_ context.Context, ids []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("collection is closed")
	}
	for _, id := range ids {
		if key, exists := c.idMap[id]; exists {
			delete(c.keyMap, key)
			delete(c.idMap, id)
		}
		delete(c.points, id)
	}
	return nil
}

// Query scans every point for small or filtered collections and walks
// the HNSW graph otherwise.
func (c *HNSWCollection) Query(_ context.Context, q VectorQuery) ([]VectorHit, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, fmt.Errorf("collection is closed")
	}
	if !c.created {
		return nil, ErrCollectionNotFound
	}
	if len(q.Vector) != c.dims {
		return nil, ErrDimensionMismatch{Expected: c.dims, Got: len(q.Vector)}
	}

	query, norm := normalizedCopy(q.Vector)
	if norm == 0 || len(c.points) == 0 {
		return []VectorHit{}, nil
	}

	exact := len(q.Filter) > 0 || q.Limit <= 0 ||
		(c.config.ExactSearchThreshold > 0 && len(c.points) <= c.config.ExactSearchThreshold)
	if exact {
		return c.scan(query, q), nil
	}
	return c.searchGraph(query, q), nil
}

func (c *HNSWCollection) scan(query []float32, q VectorQuery) []VectorHit {
	hits := make([]VectorHit, 0, len(c.points))
	for id, p := range c.points {
		if !q.Filter.Matches(p.doc.Metadata) {
			continue
		}
		score := 0.0
		if !p.zero {
			score = clampScore(dot(query, p.vector))
		}
		hits = append(hits, VectorHit{ID: id, Document: p.doc, Score: score})
	}
	// Map iteration is random; order equal scores by ID for determinism.
	sortHitsByID(hits)
	return rankHits(hits, q.Threshold, q.Limit)
}

func (c *HNSWCollection) searchGraph(query []float32, q VectorQuery) []VectorHit {
	if c.graph.Len() == 0 {
		return []VectorHit{}
	}
	orphans := c.graph.Len() - len(c.idMap)
	nodes := c.graph.Search(query, q.Limit+orphans)

	hits := make([]VectorHit, 0, len(nodes))
	for _, node := range nodes {
		id, exists := c.keyMap[node.Key]
		if !exists {
			continue
		}
		p := c.points[id]
		hits = append(hits, VectorHit{
			ID:       id,
			Document: p.doc,
			Score:    clampScore(dot(query, p.vector)),
		})
	}
	return rankHits(hits, q.Threshold, q.Limit)
}

// Count returns the number of live points.
func (c *HNSWCollection) Count(_ context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return 0, fmt.Errorf("collection is closed")
	}
	return len(c.points), nil
}

// Orphans returns how many graph nodes are lazily deleted.
func (c *HNSWCollection) Orphans() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.graph == nil {
		return 0
	}
	return c.graph.Len() - len(c.idMap)
}

// Drop discards the graph and every point.
func (c *HNSWCollection) Drop(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("collection is closed")
	}
	c.reset()
	return nil
}

// Close releases the collection.
func (c *HNSWCollection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.graph = nil
	c.points = nil
	return nil
}
