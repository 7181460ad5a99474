package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

const (
	// TextAnalyzerName is the analyzer used for the text field.
	TextAnalyzerName = "docsearch_text"

	textField = "text"
)

// BleveIndex implements KeywordIndex on Bleve v2.
type BleveIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	config KeywordConfig
	closed bool
}

var _ KeywordIndex = (*BleveIndex)(nil)

// bleveDocument is the document structure for Bleve indexing.
type bleveDocument struct {
	Text string `json:"text"`
}

// validateBleveIntegrity checks if a Bleve index is valid before opening.
// Returns nil if valid or absent, an error describing corruption if not.
func validateBleveIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

// isCorruptionError checks if an error indicates Bleve index corruption.
func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "unexpected end of JSON") ||
		strings.Contains(errStr, "error parsing mapping JSON") ||
		strings.Contains(errStr, "failed to load segment") ||
		strings.Contains(errStr, "error opening bolt") ||
		err == bleve.ErrorIndexMetaCorrupt
}

// NewBleveIndex opens or creates a Bleve index at cfg.Path, or an in-memory
// index when the path is empty. A corrupted on-disk index is removed and
// recreated; its content is derived data and is rebuilt by the next sync.
func NewBleveIndex(cfg KeywordConfig) (*BleveIndex, error) {
	idx, err := openBleve(cfg)
	if err != nil {
		return nil, err
	}
	return &BleveIndex{index: idx, config: cfg}, nil
}

func openBleve(cfg KeywordConfig) (bleve.Index, error) {
	indexMapping, err := createIndexMapping(cfg.CaseSensitive)
	if err != nil {
		return nil, fmt.Errorf("failed to create index mapping: %w", err)
	}

	if cfg.Path == "" {
		return bleve.NewMemOnly(indexMapping)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", cfg.Path, err)
	}

	if validErr := validateBleveIntegrity(cfg.Path); validErr != nil {
		slog.Warn("keyword_index_corrupted",
			slog.String("path", cfg.Path),
			slog.String("error", validErr.Error()))
		if removeErr := os.RemoveAll(cfg.Path); removeErr != nil {
			return nil, fmt.Errorf("keyword index corrupted at %s and cannot remove: %w (original error: %v)", cfg.Path, removeErr, validErr)
		}
	}

	idx, err := bleve.Open(cfg.Path)
	switch {
	case err == bleve.ErrorIndexPathDoesNotExist:
		idx, err = bleve.New(cfg.Path, indexMapping)
	case err != nil && isCorruptionError(err):
		slog.Warn("keyword_index_open_failed",
			slog.String("path", cfg.Path),
			slog.String("error", err.Error()))
		if removeErr := os.RemoveAll(cfg.Path); removeErr != nil {
			return nil, fmt.Errorf("keyword index corrupted, cannot clear: %w (original: %v)", removeErr, err)
		}
		idx, err = bleve.New(cfg.Path, indexMapping)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open index: %w", err)
	}
	return idx, nil
}

// createIndexMapping builds a mapping whose default analyzer splits on
// unicode word boundaries and, unless case sensitive, lowercases.
func createIndexMapping(caseSensitive bool) (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	filters := []string{lowercase.Name}
	if caseSensitive {
		filters = []string{}
	}
	err := indexMapping.AddCustomAnalyzer(TextAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": filters,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}

	indexMapping.DefaultAnalyzer = TextAnalyzerName
	indexMapping.StoreDynamic = false
	return indexMapping, nil
}

// Index adds documents to the index in one batch.
func (b *BleveIndex) Index(ctx context.Context, docs []KeywordDoc) error {
	if len(docs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("index is closed")
	}

	batch := b.index.NewBatch()
	for _, doc := range docs {
		if err := batch.Index(doc.ID, bleveDocument{Text: doc.Text}); err != nil {
			return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}

// Search returns documents containing every query term, scored by BM25.
func (b *BleveIndex) Search(ctx context.Context, queryStr string, limit int) ([]KeywordHit, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("index is closed")
	}
	if strings.TrimSpace(queryStr) == "" {
		return []KeywordHit{}, nil
	}

	if limit <= 0 {
		count, err := b.index.DocCount()
		if err != nil {
			return nil, fmt.Errorf("failed to count documents: %w", err)
		}
		limit = int(count)
	}
	if limit == 0 {
		return []KeywordHit{}, nil
	}

	matchQuery := bleve.NewMatchQuery(queryStr)
	matchQuery.SetField(textField)
	matchQuery.SetOperator(query.MatchQueryOperatorAnd)

	req := bleve.NewSearchRequest(matchQuery)
	req.Size = limit

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]KeywordHit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		hits = append(hits, KeywordHit{ID: hit.ID, Score: hit.Score})
	}
	return hits, nil
}

// Delete removes documents from the index.
func (b *BleveIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("index is closed")
	}

	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

// Clear drops the index and recreates it empty.
func (b *BleveIndex) Clear(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("index is closed")
	}

	if err := b.index.Close(); err != nil {
		return fmt.Errorf("failed to close index: %w", err)
	}
	if b.config.Path != "" {
		if err := os.RemoveAll(b.config.Path); err != nil {
			b.closed = true
			return fmt.Errorf("failed to remove index %s: %w", b.config.Path, err)
		}
	}

	idx, err := openBleve(b.config)
	if err != nil {
		b.closed = true
		return err
	}
	b.index = idx
	return nil
}

// Count returns the number of indexed documents.
func (b *BleveIndex) Count(ctx context.Context) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0, fmt.Errorf("index is closed")
	}
	count, err := b.index.DocCount()
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// Close closes the index.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	if b.index != nil {
		return b.index.Close()
	}
	return nil
}
