// Package store provides the index backends behind the search strategies:
// keyword indexes (Bleve, SQLite FTS5) and vector collections (HNSW,
// chromem-go, Qdrant).
package store

import (
	"context"
	"fmt"

	"github.com/Aman-CERP/docsearch/pkg/document"
)

// KeywordDoc is the unit stored in a keyword index.
type KeywordDoc struct {
	ID   string // Chunk ID
	Text string // Text content
}

// KeywordHit is a single keyword search result.
type KeywordHit struct {
	ID    string
	Score float64
}

// KeywordIndex is a tokenized inverted index scored by BM25.
// A query matches a document only when every query term is present.
type KeywordIndex interface {
	// Index adds documents, replacing the postings of existing IDs.
	Index(ctx context.Context, docs []KeywordDoc) error

	// Search returns up to limit matches, best first. limit <= 0 means all.
	Search(ctx context.Context, query string, limit int) ([]KeywordHit, error)

	// Delete removes documents. Missing IDs are ignored.
	Delete(ctx context.Context, ids []string) error

	// Clear removes every document.
	Clear(ctx context.Context) error

	// Count returns the number of indexed documents.
	Count(ctx context.Context) (int, error)

	Close() error
}

// KeywordConfig configures a keyword index.
type KeywordConfig struct {
	// Path is the index location. Empty creates an in-memory index.
	Path string

	// CaseSensitive disables lowercasing where the backend allows it.
	CaseSensitive bool
}

// VectorPoint is a vector with the document it was computed from.
type VectorPoint struct {
	ID       string
	Vector   []float32
	Document document.SearchableDocument
}

// VectorHit is a single nearest-neighbour result.
type VectorHit struct {
	ID       string
	Document document.SearchableDocument
	Score    float64 // Cosine similarity clamped to [0,1]
}

// VectorQuery constrains a nearest-neighbour search.
type VectorQuery struct {
	Vector    []float32
	Limit     int     // <= 0 means all
	Threshold float64 // Minimum score, inclusive
	Filter    document.Filter
}

// VectorCollection is a named collection of vectors with document payloads.
// Collections are created explicitly once the vector dimension is known.
type VectorCollection interface {
	// Name returns the collection name.
	Name() string

	// Exists reports whether the collection has been created.
	Exists(ctx context.Context) (bool, error)

	// Create creates the collection. Creating an existing collection is a no-op.
	Create(ctx context.Context, dims int) error

	// Upsert inserts or replaces points by ID.
	Upsert(ctx context.Context, points []VectorPoint) error

	// Delete removes points by ID. Missing IDs are ignored.
	Delete(ctx context.Context, ids []string) error

	// Query returns hits ordered by descending score.
	Query(ctx context.Context, q VectorQuery) ([]VectorHit, error)

	// Count returns the number of points.
	Count(ctx context.Context) (int, error)

	// Drop deletes the collection and every point in it.
	Drop(ctx context.Context) error

	Close() error
}

// ErrDimensionMismatch indicates vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (clear the index after switching encoders)", e.Expected, e.Got)
}

// ErrCollectionNotFound is returned by operations on a collection that was never created.
var ErrCollectionNotFound = fmt.Errorf("collection not found")
