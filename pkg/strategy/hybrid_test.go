package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docsearch/internal/embed"
	"github.com/Aman-CERP/docsearch/pkg/document"
)

func hybridDocs() []document.SearchableDocument {
	return []document.SearchableDocument{
		textDoc("exact", "hello world"),
		textDoc("near", "hello world again"),
		textDoc("typo", "helo wrld"),
		textDoc("other", "test document"),
	}
}

func openHybrid(t *testing.T, cfg HybridConfig, opts ...Option) *Hybrid {
	t.Helper()
	h, err := NewHybrid(cfg, append([]Option{WithLogger(quietLogger())}, opts...)...)
	require.NoError(t, err)
	require.NoError(t, h.Open(context.Background()))
	t.Cleanup(func() { _ = h.Close() })
	return h
}

// ============================================================================
// TS01: Fusion
// ============================================================================

func TestHybrid_UnionListsSemanticHitsFirst(t *testing.T) {
	// Given: documents where the typo is only found by the fuzzy branch
	ctx := context.Background()
	h := openHybrid(t, DefaultHybridConfig())
	require.NoError(t, h.UpsertDocuments(ctx, hybridDocs()))

	// When: searching the exact text
	docs, err := h.RawSearch(ctx, "hello world", nil)
	require.NoError(t, err)

	// Then: semantic hits by similarity, then the fuzzy-only hit
	assert.Equal(t, []string{"exact", "near", "typo"}, chunkIDs(docs))

	// And: the limit applies after fusion
	docs, err = h.RawSearch(ctx, "hello world", nil, WithLimit(2))
	require.NoError(t, err)
	assert.Equal(t, []string{"exact", "near"}, chunkIDs(docs))
}

func TestHybrid_RRF(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultHybridConfig()
	cfg.Fusion = FusionRRF
	h := openHybrid(t, cfg)
	require.NoError(t, h.UpsertDocuments(ctx, hybridDocs()))

	docs, err := h.RawSearch(ctx, "hello world", nil)
	require.NoError(t, err)

	require.Len(t, docs, 3)
	assert.Equal(t, "exact", docs[0].ChunkID)
	assert.ElementsMatch(t, []string{"exact", "near", "typo"}, chunkIDs(docs))
}

func TestFuseUnion(t *testing.T) {
	a := scored{doc: textDoc("a", "")}
	b := scored{doc: textDoc("b", "")}
	c := scored{doc: textDoc("c", "")}

	got := fuseUnion([]scored{b, a}, []scored{a, c, b})

	assert.Equal(t, []string{"b", "a", "c"}, chunkIDs(documentsOf(got, 0)))
}

func TestFuseRRF(t *testing.T) {
	// Given: "c" is second in both branches, "a" first in one only
	a := scored{doc: textDoc("a", "")}
	b := scored{doc: textDoc("b", "")}
	c := scored{doc: textDoc("c", "")}
	d := scored{doc: textDoc("d", "")}

	got := fuseRRF([]scored{a, c}, []scored{d, c, b})

	// Then: c (1/62 + 1/62) beats a and d (1/61); a wins the tie with d
	// because the semantic branch is seen first
	ids := chunkIDs(documentsOf(got, 0))
	assert.Equal(t, []string{"c", "a", "d", "b"}, ids)
	assert.InDelta(t, 2.0/62.0, got[0].score, 1e-12)
}

// ============================================================================
// TS02: Fan out
// ============================================================================

func TestHybrid_MutationsReachBothBranches(t *testing.T) {
	ctx := context.Background()
	h := openHybrid(t, DefaultHybridConfig())

	require.NoError(t, h.UpsertDocuments(ctx, []document.SearchableDocument{{TextContent: "hello world"}}))

	fz, err := h.Fuzzy().RawSearch(ctx, "hello world", nil)
	require.NoError(t, err)
	sem, err := h.Semantic().RawSearch(ctx, "hello world", nil)
	require.NoError(t, err)
	require.Len(t, fz, 1)
	require.Len(t, sem, 1)
	assert.Equal(t, fz[0].ChunkID, sem[0].ChunkID, "generated ids are shared")

	require.NoError(t, h.DeleteDocument(ctx, fz[0].ChunkID))
	fz, err = h.Fuzzy().RawSearch(ctx, "hello world", nil)
	require.NoError(t, err)
	sem, err = h.Semantic().RawSearch(ctx, "hello world", nil)
	require.NoError(t, err)
	assert.Empty(t, fz)
	assert.Empty(t, sem)
}

func TestHybrid_BranchFailureFailsSearch(t *testing.T) {
	ctx := context.Background()
	e := &failingEmbedder{StaticEmbedder: embed.NewStaticEmbedder()}
	h := openHybrid(t, DefaultHybridConfig(), WithEmbedder(e))
	require.NoError(t, h.UpsertDocuments(ctx, hybridDocs()))

	e.failQuery = true
	_, err := h.Search(ctx, "hello world", nil)

	assert.Error(t, err)
}

func TestHybrid_FailedUpsertLeavesBothBranchesUnchanged(t *testing.T) {
	// Given: a hybrid whose encoder is down
	ctx := context.Background()
	e := &failingEmbedder{StaticEmbedder: embed.NewStaticEmbedder(), failBatch: true}
	h := openHybrid(t, DefaultHybridConfig(), WithEmbedder(e))

	// When: a document is upserted
	err := h.UpsertDocuments(ctx, []document.SearchableDocument{doc1()})

	// Then: the write fails and neither branch can find the document
	assert.ErrorIs(t, err, ErrIndexWrite)
	fz, err := h.Fuzzy().RawSearch(ctx, "hello world", nil)
	require.NoError(t, err)
	assert.Empty(t, fz)
	got, err := h.Search(ctx, "hello world", nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHybrid_FailedReplaceKeepsPreviousText(t *testing.T) {
	// Given: a hybrid holding doc1
	ctx := context.Background()
	e := &failingEmbedder{StaticEmbedder: embed.NewStaticEmbedder()}
	h := openHybrid(t, DefaultHybridConfig(), WithEmbedder(e))
	require.NoError(t, h.UpsertDocuments(ctx, []document.SearchableDocument{doc1()}))

	// When: a replacement with new text fails to encode
	e.failBatch = true
	replaced := doc1()
	replaced.TextContent = "goodbye moon"
	require.Error(t, h.UpsertDocuments(ctx, []document.SearchableDocument{replaced}))

	// Then: the fuzzy branch still holds the old text
	fz, err := h.Fuzzy().RawSearch(ctx, "hello world", nil)
	require.NoError(t, err)
	require.Len(t, fz, 1)
	assert.Equal(t, "hello world", fz[0].TextContent)
	fz, err = h.Fuzzy().RawSearch(ctx, "goodbye moon", nil)
	require.NoError(t, err)
	assert.Empty(t, fz)
}
