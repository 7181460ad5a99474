package strategy

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docsearch/internal/store"
	"github.com/Aman-CERP/docsearch/pkg/document"
)

func openKeyword(t *testing.T, cfg KeywordConfig) *Keyword {
	t.Helper()
	k, err := NewKeyword(cfg, WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NoError(t, k.Open(context.Background()))
	t.Cleanup(func() { _ = k.Close() })
	return k
}

func keywordBackends() []store.KeywordBackend {
	return []store.KeywordBackend{store.KeywordBackendBleve, store.KeywordBackendSQLite}
}

// ============================================================================
// TS01: Matching and ranking
// ============================================================================

func TestKeyword_QueryIsAndOfTerms(t *testing.T) {
	for _, backend := range keywordBackends() {
		t.Run(string(backend), func(t *testing.T) {
			ctx := context.Background()
			k := openKeyword(t, KeywordConfig{Backend: backend})
			require.NoError(t, k.UpsertDocuments(ctx, sampleDocs()))

			docs, err := k.RawSearch(ctx, "hello world", nil)
			require.NoError(t, err)
			assert.Equal(t, []string{"doc1"}, chunkIDs(docs))

			docs, err = k.RawSearch(ctx, "hello document", nil)
			require.NoError(t, err)
			assert.Empty(t, docs)
		})
	}
}

func TestKeyword_RanksByRelevance(t *testing.T) {
	for _, backend := range keywordBackends() {
		t.Run(string(backend), func(t *testing.T) {
			// Given: a long document mentioning the term once, inserted first,
			// and a short one repeating it
			ctx := context.Background()
			k := openKeyword(t, KeywordConfig{Backend: backend})
			require.NoError(t, k.UpsertDocuments(ctx, []document.SearchableDocument{
				textDoc("sparse", "alpha gamma delta epsilon zeta theta"),
				textDoc("dense", "alpha alpha alpha"),
				textDoc("other", "gamma delta"),
			}))

			// When: searching the term
			docs, err := k.RawSearch(ctx, "alpha", nil)
			require.NoError(t, err)

			// Then: the dense document ranks first
			assert.Equal(t, []string{"dense", "sparse"}, chunkIDs(docs))
		})
	}
}

func TestKeyword_TiesKeepInsertionOrder(t *testing.T) {
	for _, backend := range keywordBackends() {
		t.Run(string(backend), func(t *testing.T) {
			ctx := context.Background()
			k := openKeyword(t, KeywordConfig{Backend: backend})
			require.NoError(t, k.UpsertDocuments(ctx, []document.SearchableDocument{
				textDoc("first", "same words here"),
				textDoc("second", "same words here"),
				textDoc("third", "same words here"),
			}))

			docs, err := k.RawSearch(ctx, "words", nil)
			require.NoError(t, err)
			assert.Equal(t, []string{"first", "second", "third"}, chunkIDs(docs))
		})
	}
}

func TestKeyword_CaseSensitive(t *testing.T) {
	for _, backend := range keywordBackends() {
		t.Run(string(backend), func(t *testing.T) {
			ctx := context.Background()
			k := openKeyword(t, KeywordConfig{Backend: backend, CaseSensitive: true})
			require.NoError(t, k.UpsertDocuments(ctx, []document.SearchableDocument{textDoc("a", "Hello World")}))

			docs, err := k.RawSearch(ctx, "hello", nil)
			require.NoError(t, err)
			assert.Empty(t, docs)

			docs, err = k.RawSearch(ctx, "Hello", nil)
			require.NoError(t, err)
			assert.Equal(t, []string{"a"}, chunkIDs(docs))
		})
	}
}

func TestKeyword_PunctuationOnlyQuery(t *testing.T) {
	ctx := context.Background()
	k := openKeyword(t, KeywordConfig{})
	require.NoError(t, k.UpsertDocuments(ctx, sampleDocs()))

	docs, err := k.RawSearch(ctx, "?!", nil)
	require.NoError(t, err)
	assert.Empty(t, docs)

	_, err = k.RawSearch(ctx, "?!", nil, RequireQuery())
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

// ============================================================================
// TS02: Updates
// ============================================================================

func TestKeyword_MetadataOnlyUpdate(t *testing.T) {
	// Given: doc1 indexed as a greeting
	ctx := context.Background()
	k := openKeyword(t, KeywordConfig{})
	require.NoError(t, k.UpsertDocuments(ctx, sampleDocs()))

	// When: doc1 is re-upserted with the same text and new metadata
	updated := doc1()
	updated.Metadata = map[string]any{"type": "salutation"}
	require.NoError(t, k.UpsertDocuments(ctx, []document.SearchableDocument{updated}))

	// Then: filters see the new metadata
	docs, err := k.RawSearch(ctx, "hello", document.Filter{"type": "salutation"})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc1"}, chunkIDs(docs))

	docs, err = k.RawSearch(ctx, "hello", document.Filter{"type": "greeting"})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestKeyword_TextUpdateReplacesPostings(t *testing.T) {
	for _, backend := range keywordBackends() {
		t.Run(string(backend), func(t *testing.T) {
			ctx := context.Background()
			k := openKeyword(t, KeywordConfig{Backend: backend})
			require.NoError(t, k.UpsertDocuments(ctx, sampleDocs()))

			changed := doc1()
			changed.TextContent = "goodbye world"
			require.NoError(t, k.UpsertDocuments(ctx, []document.SearchableDocument{changed}))

			docs, err := k.RawSearch(ctx, "hello", nil)
			require.NoError(t, err)
			assert.Empty(t, docs)

			docs, err = k.RawSearch(ctx, "goodbye", nil)
			require.NoError(t, err)
			assert.Equal(t, []string{"doc1"}, chunkIDs(docs))
		})
	}
}

// ============================================================================
// TS03: On-disk index
// ============================================================================

func TestKeyword_OnDiskTakesWriteLock(t *testing.T) {
	for _, backend := range keywordBackends() {
		t.Run(string(backend), func(t *testing.T) {
			// Given: a keyword strategy backed by a directory
			ctx := context.Background()
			dir := t.TempDir()
			k := openKeyword(t, KeywordConfig{IndexDir: dir, Backend: backend})

			// When: a batch is written
			require.NoError(t, k.UpsertDocuments(ctx, sampleDocs()))

			// Then: the lock file exists and is released afterwards
			lock, err := store.NewFileLock(dir)
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(dir, store.WriteLockName), lock.Path())
			ok, err := lock.TryLock()
			require.NoError(t, err)
			assert.True(t, ok)
			require.NoError(t, lock.Unlock())

			docs, err := k.RawSearch(ctx, "hello", nil)
			require.NoError(t, err)
			assert.Equal(t, []string{"doc1"}, chunkIDs(docs))
		})
	}
}

func TestKeyword_OpenClearsStaleIndex(t *testing.T) {
	for _, backend := range keywordBackends() {
		t.Run(string(backend), func(t *testing.T) {
			// Given: an index left on disk by an earlier instance
			ctx := context.Background()
			dir := t.TempDir()
			first, err := NewKeyword(KeywordConfig{IndexDir: dir, Backend: backend}, WithLogger(quietLogger()))
			require.NoError(t, err)
			require.NoError(t, first.Open(ctx))
			require.NoError(t, first.UpsertDocuments(ctx, sampleDocs()))
			require.NoError(t, first.Close())

			// When: a new instance opens the same directory
			second, err := NewKeyword(KeywordConfig{IndexDir: dir, Backend: backend}, WithLogger(quietLogger()))
			require.NoError(t, err)
			require.NoError(t, second.Open(ctx))
			require.NoError(t, second.Close())

			// Then: the stale documents are gone
			index, err := store.NewKeywordIndex(backend, dir, false)
			require.NoError(t, err)
			defer func() { _ = index.Close() }()
			n, err := index.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 0, n)
		})
	}
}
