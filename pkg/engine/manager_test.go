package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docsearch/internal/config"
	docerrors "github.com/Aman-CERP/docsearch/internal/errors"
	"github.com/Aman-CERP/docsearch/internal/telemetry"
	"github.com/Aman-CERP/docsearch/pkg/document"
	"github.com/Aman-CERP/docsearch/pkg/strategy"
)

func newManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	m, err := New(config.NewConfig(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func greeting() []document.SearchableDocument {
	return []document.SearchableDocument{{
		ChunkID:     "doc1",
		ParentDocID: "m1",
		TextContent: "hello world",
		Original:    map[string]any{"id": "m1"},
	}}
}

func chunkIDs(t *testing.T, s strategy.Strategy, query string) []string {
	t.Helper()
	docs, err := s.RawSearch(context.Background(), query, nil)
	require.NoError(t, err)
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ChunkID
	}
	return ids
}

// =============================================================================
// TS01: Construction
// =============================================================================

func TestNew_NilConfigUsesDefaults(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)
	defer func() { _ = m.Close() }()

	assert.Equal(t, config.EngineKeyword, m.DefaultEngine())
	assert.Equal(t, []string{"fuzzy", "keyword", "semantic"}, m.Engines())
}

func TestNew_InvalidConfigFails(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Engines["broken"] = "nope"

	_, err := New(cfg)

	assert.Error(t, err)
}

// =============================================================================
// TS02: GetEngine
// =============================================================================

func TestGetEngine_BindsConfiguredStrategyLazily(t *testing.T) {
	// Given: a manager with the default bindings
	m := newManager(t)
	ctx := context.Background()

	// When: each engine is requested
	for _, name := range []string{"keyword", "fuzzy", "semantic"} {
		s, err := m.GetEngine(ctx, name)

		// Then: it is bound to the strategy of the same name, already open
		require.NoError(t, err)
		assert.Equal(t, name, s.Name())
		require.NoError(t, s.UpsertDocuments(ctx, greeting()))
	}
}

func TestGetEngine_EmptyNameUsesDefault(t *testing.T) {
	m := newManager(t)

	s, err := m.GetEngine(context.Background(), "")

	require.NoError(t, err)
	assert.Equal(t, strategy.NameKeyword, s.Name())
}

func TestGetEngine_ReturnsSameInstance(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	a, err := m.GetEngine(ctx, "Fuzzy")
	require.NoError(t, err)
	b, err := m.GetEngine(ctx, "fuzzy")
	require.NoError(t, err)

	assert.Same(t, a, b)
}

func TestGetEngine_UnknownEngine(t *testing.T) {
	m := newManager(t)

	_, err := m.GetEngine(context.Background(), "vector")

	require.Error(t, err)
	assert.True(t, docerrors.IsConfigInvalid(err))
}

func TestGetEngine_SharesStrategyInstance(t *testing.T) {
	// Given: two engines bound to the fuzzy strategy
	cfg := config.NewConfig()
	cfg.Engines["typo"] = strategy.NameFuzzy
	m, err := New(cfg, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	defer func() { _ = m.Close() }()
	ctx := context.Background()

	// When: documents are written through one engine
	fuzzy, err := m.GetEngine(ctx, "fuzzy")
	require.NoError(t, err)
	require.NoError(t, fuzzy.UpsertDocuments(ctx, greeting()))

	// Then: the other engine and the shared instance see them
	typo, err := m.GetEngine(ctx, "typo")
	require.NoError(t, err)
	shared, err := m.GetStrategyInstance(ctx, strategy.NameFuzzy)
	require.NoError(t, err)

	assert.Same(t, fuzzy, typo)
	assert.Same(t, fuzzy, shared)
	assert.Equal(t, []string{"doc1"}, chunkIDs(t, typo, "hello world"))
}

func TestGetStrategyInstance_UnknownStrategy(t *testing.T) {
	m := newManager(t)

	_, err := m.GetStrategyInstance(context.Background(), "bogus")

	assert.True(t, docerrors.IsConfigInvalid(err))
}

// =============================================================================
// TS03: OverrideStrategyForEngine
// =============================================================================

func TestOverride_SwitchesStrategyAndClearsPrevious(t *testing.T) {
	// Given: the keyword engine holding a document through a dedicated instance
	m := newManager(t)
	ctx := context.Background()
	first, err := m.OverrideStrategyForEngine(ctx, "keyword", "", nil)
	require.NoError(t, err)
	require.NoError(t, first.UpsertDocuments(ctx, greeting()))

	// When: the engine is rebound to substring
	next, err := m.OverrideStrategyForEngine(ctx, "keyword", strategy.NameSubstring, nil)
	require.NoError(t, err)

	// Then: the engine resolves to the new, open, empty instance
	got, err := m.GetEngine(ctx, "keyword")
	require.NoError(t, err)
	assert.Same(t, next, got)
	assert.Equal(t, strategy.NameSubstring, got.Name())
	assert.Empty(t, chunkIDs(t, got, "hello"))

	// And: the previous instance is closed
	err = first.UpsertDocuments(ctx, greeting())
	assert.True(t, docerrors.IsIndexNotInitialized(err))
}

func TestOverride_EmptyStrategyKeepsType(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	_, err := m.OverrideStrategyForEngine(ctx, "fuzzy", strategy.NameSubstring, nil)
	require.NoError(t, err)
	s, err := m.OverrideStrategyForEngine(ctx, "fuzzy", "", nil)
	require.NoError(t, err)

	assert.Equal(t, strategy.NameSubstring, s.Name())
}

func TestOverride_UsesGivenConfig(t *testing.T) {
	// Given: a fuzzy config with a low cutoff
	m := newManager(t)
	ctx := context.Background()
	cfg := strategy.DefaultFuzzyConfig()
	cfg.ScoreCutoff = 20

	// When: the fuzzy engine is overridden with it
	s, err := m.OverrideStrategyForEngine(ctx, "fuzzy", "", cfg)
	require.NoError(t, err)
	require.NoError(t, s.UpsertDocuments(ctx, []document.SearchableDocument{
		{ChunkID: "doc1", TextContent: "hello world"},
		{ChunkID: "doc2", TextContent: "test document"},
	}))

	// Then: the weaker match passes the lowered cutoff
	assert.Equal(t, []string{"doc1", "doc2"}, chunkIDs(t, s, "hello wor"))
}

func TestOverride_ConfigMismatchFails(t *testing.T) {
	m := newManager(t)

	_, err := m.OverrideStrategyForEngine(context.Background(), "fuzzy", strategy.NameKeyword, strategy.DefaultFuzzyConfig())

	assert.True(t, docerrors.IsConfigInvalid(err))
}

func TestOverride_UnknownEngine(t *testing.T) {
	m := newManager(t)

	_, err := m.OverrideStrategyForEngine(context.Background(), "vector", strategy.NameFuzzy, nil)

	assert.True(t, docerrors.IsConfigInvalid(err))
}

func TestOverride_SharedInstanceSurvivesForOtherEngines(t *testing.T) {
	// Given: two engines sharing the fuzzy instance, holding a document
	cfg := config.NewConfig()
	cfg.Engines["typo"] = strategy.NameFuzzy
	m, err := New(cfg, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	defer func() { _ = m.Close() }()
	ctx := context.Background()

	shared, err := m.GetEngine(ctx, "fuzzy")
	require.NoError(t, err)
	_, err = m.GetEngine(ctx, "typo")
	require.NoError(t, err)
	require.NoError(t, shared.UpsertDocuments(ctx, greeting()))

	// When: only one engine is overridden
	_, err = m.OverrideStrategyForEngine(ctx, "fuzzy", "", nil)
	require.NoError(t, err)

	// Then: the other engine keeps its data
	typo, err := m.GetEngine(ctx, "typo")
	require.NoError(t, err)
	assert.Same(t, shared, typo)
	assert.Equal(t, []string{"doc1"}, chunkIDs(t, typo, "hello world"))
}

// =============================================================================
// TS04: Reset and Close
// =============================================================================

func TestResetAllEngines(t *testing.T) {
	// Given: a bound engine with data
	m := newManager(t)
	ctx := context.Background()
	before, err := m.GetEngine(ctx, "keyword")
	require.NoError(t, err)
	require.NoError(t, before.UpsertDocuments(ctx, greeting()))

	// When: every engine is reset
	require.NoError(t, m.ResetAllEngines(ctx))

	// Then: the next lookup builds a fresh, empty instance
	after, err := m.GetEngine(ctx, "keyword")
	require.NoError(t, err)
	assert.NotSame(t, before, after)
	assert.Empty(t, chunkIDs(t, after, "hello"))
	assert.True(t, docerrors.IsIndexNotInitialized(before.UpsertDocuments(ctx, greeting())))
}

func TestClose(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	s, err := m.GetEngine(ctx, "fuzzy")
	require.NoError(t, err)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err = m.GetEngine(ctx, "fuzzy")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = m.OverrideStrategyForEngine(ctx, "fuzzy", "", nil)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.ResetAllEngines(ctx), ErrClosed)
	assert.True(t, docerrors.IsIndexNotInitialized(s.UpsertDocuments(ctx, greeting())))
}

// =============================================================================
// TS05: Metrics and concurrency
// =============================================================================

func TestWithMetrics_RecordsSearches(t *testing.T) {
	metrics := telemetry.NewMetrics()
	m := newManager(t, WithMetrics(metrics))
	ctx := context.Background()

	s, err := m.GetEngine(ctx, "fuzzy")
	require.NoError(t, err)
	require.NoError(t, s.UpsertDocuments(ctx, greeting()))
	_, err = s.Search(ctx, "hello world", nil)
	require.NoError(t, err)

	assert.Equal(t, int64(1), metrics.Queries().Snapshot().TotalQueries)
}

func TestGetEngine_Concurrent(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	got := make([]strategy.Strategy, 16)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := m.GetEngine(ctx, "fuzzy")
			assert.NoError(t, err)
			got[i] = s
		}(i)
	}
	wg.Wait()

	for _, s := range got {
		assert.Same(t, got[0], s)
	}
}
