package strategy

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docsearch/internal/store"
	"github.com/Aman-CERP/docsearch/internal/telemetry"
	"github.com/Aman-CERP/docsearch/pkg/document"
)

// contractCase runs the shared Strategy contract against one configuration.
// Each strategy matches differently, so every case names the queries that
// should hit doc1, doc2 and the "constant text" chunk.
type contractCase struct {
	label    string
	name     string
	cfg      Config
	hello    string // matches doc1 only
	test     string // matches doc2 only
	constant string // matches "constant text"
}

func contractCases() []contractCase {
	chromem := DefaultSemanticConfig()
	chromem.Vector.Backend = store.VectorBackendChromem

	return []contractCase{
		{"substring", NameSubstring, nil, "hello", "test", "constant tex"},
		{"keyword/bleve", NameKeyword, nil, "hello", "test", "constant text"},
		{"keyword/sqlite", NameKeyword, KeywordConfig{Backend: store.KeywordBackendSQLite}, "hello", "test", "constant text"},
		{"fuzzy", NameFuzzy, nil, "helo world", "test documnt", "constant tex"},
		{"semantic/hnsw", NameSemantic, nil, "hello", "test", "constant tex"},
		{"semantic/chromem", NameSemantic, chromem, "hello", "test", "constant tex"},
		{"hybrid", NameHybrid, nil, "hello", "test", "constant tex"},
	}
}

// ============================================================================
// TS01: Scenario A - match and AND filter
// ============================================================================

func TestContract_SearchWithFilter(t *testing.T) {
	for _, tc := range contractCases() {
		t.Run(tc.label, func(t *testing.T) {
			// Given: doc1 and doc2 indexed
			ctx := context.Background()
			s := openStrategy(t, tc.name, tc.cfg)
			require.NoError(t, s.UpsertDocuments(ctx, sampleDocs()))

			// When: searching for doc1 without and with a non-matching filter
			hits, err := s.Search(ctx, tc.hello, nil)
			require.NoError(t, err)
			filtered, err := s.Search(ctx, tc.hello, document.Filter{"type": "test"})
			require.NoError(t, err)

			// Then: only doc1's payload comes back, and the filter removes it
			assert.Equal(t, []any{map[string]any{"id": "doc1"}}, hits)
			assert.Empty(t, filtered)

			// And: a matching filter keeps it
			kept, err := s.Search(ctx, tc.hello, document.Filter{"type": "greeting"})
			require.NoError(t, err)
			assert.Len(t, kept, 1)
		})
	}
}

// ============================================================================
// TS02: Scenario C - replace on upsert
// ============================================================================

func TestContract_UpsertReplacesByChunkID(t *testing.T) {
	for _, tc := range contractCases() {
		t.Run(tc.label, func(t *testing.T) {
			// Given: chunk c1 indexed with version 1
			ctx := context.Background()
			s := openStrategy(t, tc.name, tc.cfg)
			require.NoError(t, s.UpsertDocuments(ctx, []document.SearchableDocument{{
				ChunkID:     "c1",
				TextContent: "constant text",
				Metadata:    map[string]any{"version": 1},
			}}))

			// When: c1 is upserted again with version 2 and a payload
			require.NoError(t, s.UpsertDocuments(ctx, []document.SearchableDocument{{
				ChunkID:     "c1",
				TextContent: "constant text",
				Metadata:    map[string]any{"version": 2},
				Original:    map[string]any{"value": 2},
			}}))

			// Then: a single, updated entry is returned
			hits, err := s.Search(ctx, tc.constant, nil)
			require.NoError(t, err)
			assert.Equal(t, []any{map[string]any{"value": 2}}, hits)

			// And: the old metadata no longer matches
			old, err := s.Search(ctx, tc.constant, document.Filter{"version": 1})
			require.NoError(t, err)
			assert.Empty(t, old)
		})
	}
}

func TestContract_UpsertIsIdempotent(t *testing.T) {
	for _, tc := range contractCases() {
		t.Run(tc.label, func(t *testing.T) {
			ctx := context.Background()
			s := openStrategy(t, tc.name, tc.cfg)

			require.NoError(t, s.UpsertDocuments(ctx, sampleDocs()))
			require.NoError(t, s.UpsertDocuments(ctx, sampleDocs()))

			docs, err := s.RawSearch(ctx, tc.hello, nil)
			require.NoError(t, err)
			assert.Equal(t, []string{"doc1"}, chunkIDs(docs))
		})
	}
}

// ============================================================================
// TS03: Scenario D - delete without cascade
// ============================================================================

func TestContract_DeleteDocument(t *testing.T) {
	for _, tc := range contractCases() {
		t.Run(tc.label, func(t *testing.T) {
			// Given: doc1 and doc2 indexed
			ctx := context.Background()
			s := openStrategy(t, tc.name, tc.cfg)
			require.NoError(t, s.UpsertDocuments(ctx, sampleDocs()))

			// When: doc1 is deleted, twice
			require.NoError(t, s.DeleteDocument(ctx, "doc1"))
			require.NoError(t, s.DeleteDocument(ctx, "doc1"))

			// Then: doc1 is gone and doc2 is unaffected
			hits, err := s.Search(ctx, tc.hello, nil)
			require.NoError(t, err)
			assert.Empty(t, hits)

			hits, err = s.Search(ctx, tc.test, nil)
			require.NoError(t, err)
			assert.Equal(t, []any{map[string]any{"id": "doc2"}}, hits)
		})
	}
}

func TestContract_ClearIndex(t *testing.T) {
	for _, tc := range contractCases() {
		t.Run(tc.label, func(t *testing.T) {
			ctx := context.Background()
			s := openStrategy(t, tc.name, tc.cfg)
			require.NoError(t, s.UpsertDocuments(ctx, sampleDocs()))

			require.NoError(t, s.ClearIndex(ctx))

			hits, err := s.Search(ctx, tc.test, nil)
			require.NoError(t, err)
			assert.Empty(t, hits)

			// The index is usable again after a clear.
			require.NoError(t, s.UpsertDocuments(ctx, []document.SearchableDocument{doc2()}))
			hits, err = s.Search(ctx, tc.test, nil)
			require.NoError(t, err)
			assert.Len(t, hits, 1)
		})
	}
}

// ============================================================================
// TS04: Query and filter validation
// ============================================================================

func TestContract_BlankQuery(t *testing.T) {
	for _, tc := range contractCases() {
		t.Run(tc.label, func(t *testing.T) {
			ctx := context.Background()
			s := openStrategy(t, tc.name, tc.cfg)
			require.NoError(t, s.UpsertDocuments(ctx, sampleDocs()))

			hits, err := s.Search(ctx, "   ", nil)
			require.NoError(t, err)
			assert.Empty(t, hits)

			_, err = s.Search(ctx, "   ", nil, RequireQuery())
			assert.ErrorIs(t, err, ErrInvalidQuery)
		})
	}
}

func TestContract_InvalidFilter(t *testing.T) {
	for _, tc := range contractCases() {
		t.Run(tc.label, func(t *testing.T) {
			ctx := context.Background()
			s := openStrategy(t, tc.name, tc.cfg)
			require.NoError(t, s.UpsertDocuments(ctx, sampleDocs()))

			_, err := s.Search(ctx, tc.hello, document.Filter{"type": []string{"greeting"}})
			assert.ErrorIs(t, err, ErrInvalidFilter)

			_, err = s.RawSearch(ctx, tc.hello, document.Filter{"type": map[string]any{}})
			assert.ErrorIs(t, err, ErrInvalidFilter)
		})
	}
}

// ============================================================================
// TS05: Lifecycle
// ============================================================================

func TestContract_Lifecycle(t *testing.T) {
	for _, tc := range contractCases() {
		t.Run(tc.label, func(t *testing.T) {
			ctx := context.Background()
			s, err := New(tc.name, tc.cfg, WithLogger(quietLogger()))
			require.NoError(t, err)
			assert.Equal(t, tc.name, s.Name())

			// Before Open: searches are empty, mutations fail.
			hits, err := s.Search(ctx, tc.hello, nil)
			require.NoError(t, err)
			assert.Empty(t, hits)
			assert.ErrorIs(t, s.UpsertDocuments(ctx, sampleDocs()), ErrIndexNotInitialized)

			// Open and Close are idempotent.
			require.NoError(t, s.Open(ctx))
			require.NoError(t, s.Open(ctx))
			require.NoError(t, s.UpsertDocuments(ctx, sampleDocs()))
			require.NoError(t, s.Close())
			require.NoError(t, s.Close())

			// Reopening starts from an empty index.
			require.NoError(t, s.Open(ctx))
			defer func() { _ = s.Close() }()
			hits, err = s.Search(ctx, tc.hello, nil)
			require.NoError(t, err)
			assert.Empty(t, hits)
		})
	}
}

// ============================================================================
// TS06: Limits and payload de-duplication
// ============================================================================

func TestSearch_WithLimit(t *testing.T) {
	ctx := context.Background()
	s := openStrategy(t, NameSubstring, nil)
	var docs []document.SearchableDocument
	for i := 0; i < 5; i++ {
		docs = append(docs, textDoc(fmt.Sprintf("c%d", i), fmt.Sprintf("hello number %d", i)))
	}
	require.NoError(t, s.UpsertDocuments(ctx, docs))

	got, err := s.RawSearch(ctx, "hello", nil, WithLimit(2))
	require.NoError(t, err)
	assert.Equal(t, []string{"c0", "c1"}, chunkIDs(got))

	all, err := s.RawSearch(ctx, "hello", nil)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestSearch_CollapsesRepeatedPayloads(t *testing.T) {
	// Given: two chunks of the same record sharing a payload
	ctx := context.Background()
	s := openStrategy(t, NameSubstring, nil)
	shared := map[string]any{"message": "m1"}
	require.NoError(t, s.UpsertDocuments(ctx, []document.SearchableDocument{
		{ChunkID: "m1#0", ParentDocID: "m1", TextContent: "hello part one", Original: shared},
		{ChunkID: "m1#1", ParentDocID: "m1", TextContent: "hello part two", Original: shared},
	}))

	// When: searching with Search and RawSearch
	payloads, err := s.Search(ctx, "hello", nil)
	require.NoError(t, err)
	docs, err := s.RawSearch(ctx, "hello", nil)
	require.NoError(t, err)

	// Then: Search collapses the payload, RawSearch keeps both chunks
	assert.Equal(t, []any{shared}, payloads)
	assert.Len(t, docs, 2)
}

func TestSubstring_CaseSensitivity(t *testing.T) {
	ctx := context.Background()

	insensitive := openStrategy(t, NameSubstring, nil)
	sensitive := openStrategy(t, NameSubstring, SubstringConfig{CaseSensitive: true})
	for _, s := range []Strategy{insensitive, sensitive} {
		require.NoError(t, s.UpsertDocuments(ctx, []document.SearchableDocument{textDoc("a", "Hello World")}))
	}

	got, err := insensitive.RawSearch(ctx, "hello", nil)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = sensitive.RawSearch(ctx, "hello", nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = sensitive.RawSearch(ctx, "Hello", nil)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSubstring_ReplaceKeepsInsertionPosition(t *testing.T) {
	ctx := context.Background()
	s := openStrategy(t, NameSubstring, nil)
	require.NoError(t, s.UpsertDocuments(ctx, []document.SearchableDocument{
		textDoc("a", "note one"), textDoc("b", "note two"),
	}))

	require.NoError(t, s.UpsertDocuments(ctx, []document.SearchableDocument{textDoc("a", "note one edited")}))

	got, err := s.RawSearch(ctx, "note", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, chunkIDs(got))
}

func TestUpsert_GeneratesMissingChunkIDs(t *testing.T) {
	ctx := context.Background()
	s := openStrategy(t, NameSubstring, nil)

	require.NoError(t, s.UpsertDocuments(ctx, []document.SearchableDocument{
		{TextContent: "first anonymous"},
		{TextContent: "second anonymous"},
	}))

	got, err := s.RawSearch(ctx, "anonymous", nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.NotEmpty(t, got[0].ChunkID)
	assert.NotEqual(t, got[0].ChunkID, got[1].ChunkID)
}

// ============================================================================
// TS07: Index generation
// ============================================================================

func TestContract_GenerationChangesOnOpenAndClear(t *testing.T) {
	for _, tc := range contractCases() {
		t.Run(tc.label, func(t *testing.T) {
			// Given: an open strategy holding documents
			ctx := context.Background()
			s := openStrategy(t, tc.name, tc.cfg)
			require.NoError(t, s.UpsertDocuments(ctx, sampleDocs()))
			opened, ok := Generation(s)
			require.True(t, ok)

			// When: documents are deleted, the generation holds
			require.NoError(t, s.DeleteDocument(ctx, "doc1"))
			afterDelete, _ := Generation(s)
			assert.Equal(t, opened, afterDelete)

			// Then: clearing and reopening each issue a new one
			require.NoError(t, s.ClearIndex(ctx))
			cleared, _ := Generation(s)
			assert.NotEqual(t, opened, cleared)

			require.NoError(t, s.Close())
			require.NoError(t, s.Open(ctx))
			reopened, _ := Generation(s)
			assert.NotEqual(t, cleared, reopened)
			assert.NotZero(t, reopened)
		})
	}
}

func TestGeneration_SeesThroughInstrumentation(t *testing.T) {
	base := openStrategy(t, NameFuzzy, nil)
	want, _ := Generation(base)

	got, ok := Generation(Instrument(base, telemetry.NewMetrics()))

	assert.True(t, ok)
	assert.Equal(t, want, got)
}
