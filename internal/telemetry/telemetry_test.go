package telemetry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// CircularBuffer Tests
// =============================================================================

func TestCircularBuffer_MaintainsCapacity(t *testing.T) {
	buf := NewCircularBuffer[string](3)

	buf.Add("query1")
	buf.Add("query2")
	buf.Add("query3")
	buf.Add("query4") // Evicts query1
	buf.Add("query5") // Evicts query2

	assert.Equal(t, []string{"query3", "query4", "query5"}, buf.Items())
	assert.Equal(t, 3, buf.Size())
}

func TestCircularBuffer_EmptyItems(t *testing.T) {
	buf := NewCircularBuffer[string](10)

	items := buf.Items()
	assert.Empty(t, items)
	assert.NotNil(t, items)
}

func TestCircularBuffer_Clear(t *testing.T) {
	buf := NewCircularBuffer[string](10)
	buf.Add("query1")
	buf.Add("query2")

	buf.Clear()

	assert.Equal(t, 0, buf.Size())
	assert.Empty(t, buf.Items())
}

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		latency  time.Duration
		expected LatencyBucket
	}{
		{5 * time.Millisecond, BucketP10},
		{10 * time.Millisecond, BucketP50},
		{49 * time.Millisecond, BucketP50},
		{50 * time.Millisecond, BucketP100},
		{100 * time.Millisecond, BucketP500},
		{499 * time.Millisecond, BucketP500},
		{500 * time.Millisecond, BucketP1000},
		{5 * time.Second, BucketP1000},
	}

	for _, tt := range tests {
		t.Run(tt.latency.String(), func(t *testing.T) {
			assert.Equal(t, tt.expected, LatencyToBucket(tt.latency))
		})
	}
}

func TestExtractTerms(t *testing.T) {
	assert.Equal(t, []string{"hello", "world"}, ExtractTerms("  Hello to World "))
	assert.Nil(t, ExtractTerms("   "))
	assert.Nil(t, ExtractTerms("a to"))
}

// =============================================================================
// QueryStats Tests
// =============================================================================

func TestQueryStats_Record_CountsStrategiesAndTerms(t *testing.T) {
	// Given: an empty collector
	s := NewQueryStats(DefaultQueryStatsConfig())

	// When: four queries are recorded across two strategies
	s.Record(QueryEvent{Query: "error handling", Strategy: "keyword", ResultCount: 5})
	s.Record(QueryEvent{Query: "error retry", Strategy: "keyword", ResultCount: 3})
	s.Record(QueryEvent{Query: "error backoff", Strategy: "fuzzy", ResultCount: 2})
	s.Record(QueryEvent{Query: "retry backoff", Strategy: "fuzzy", ResultCount: 1})

	// Then: per-strategy counts and top terms are tracked
	snap := s.Snapshot()
	assert.Equal(t, int64(4), snap.TotalQueries)
	assert.Equal(t, int64(2), snap.StrategyCounts["keyword"])
	assert.Equal(t, int64(2), snap.StrategyCounts["fuzzy"])
	require.NotEmpty(t, snap.TopTerms)
	assert.Equal(t, TermCount{Term: "error", Count: 3}, snap.TopTerms[0])
}

func TestQueryStats_Record_CapturesZeroResults(t *testing.T) {
	s := NewQueryStats(DefaultQueryStatsConfig())

	s.Record(QueryEvent{Query: "nonexistent function", ResultCount: 0})
	s.Record(QueryEvent{Query: "found something", ResultCount: 5})
	s.Record(QueryEvent{Query: "another miss", ResultCount: 0})

	snap := s.Snapshot()
	assert.Equal(t, []string{"nonexistent function", "another miss"}, snap.ZeroResultQueries)
	assert.Equal(t, int64(2), snap.ZeroResultCount)
	assert.InDelta(t, 66.67, snap.ZeroResultPercentage(), 0.01)
}

func TestQueryStats_Record_DetectsRepeats(t *testing.T) {
	// Given: a collector
	s := NewQueryStats(DefaultQueryStatsConfig())

	// When: the same query is recorded with different case and spacing
	s.Record(QueryEvent{Query: "hello world"})
	s.Record(QueryEvent{Query: "Hello   World"})
	s.Record(QueryEvent{Query: "other"})

	// Then: the second one counts as a repeat
	snap := s.Snapshot()
	assert.Equal(t, int64(1), snap.RepeatCount)
	assert.Equal(t, int64(2), snap.UniqueQueryCount)
	assert.InDelta(t, 1.0/3.0, snap.RepeatRate, 1e-9)
	assert.Contains(t, snap.Summary(), "queries=3")
}

func TestQueryStats_Reset(t *testing.T) {
	s := NewQueryStats(QueryStatsConfig{})
	s.Record(QueryEvent{Query: "something", Latency: 20 * time.Millisecond})

	s.Reset()

	snap := s.Snapshot()
	assert.Equal(t, int64(0), snap.TotalQueries)
	assert.Empty(t, snap.LatencyDistribution)
	assert.Equal(t, "no queries recorded", snap.Summary())
}

func TestQueryStats_ConcurrentRecord(t *testing.T) {
	s := NewQueryStats(DefaultQueryStatsConfig())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Record(QueryEvent{Query: "concurrent query", Strategy: "fuzzy", ResultCount: 1})
		}()
	}
	wg.Wait()

	snap := s.Snapshot()
	assert.Equal(t, int64(50), snap.TotalQueries)
	assert.Equal(t, int64(49), snap.RepeatCount)
}

// =============================================================================
// Prometheus Metrics Tests
// =============================================================================

func TestMetrics_ObserveSearch(t *testing.T) {
	// Given: fresh metrics
	m := NewMetrics()

	// When: two successful searches and one failure are observed
	m.ObserveSearch("keyword", "hello", 3, 2*time.Millisecond, "")
	m.ObserveSearch("keyword", "hello", 0, time.Millisecond, "")
	m.ObserveSearch("semantic", "hello", 0, time.Millisecond, "ERR_503_SEARCH_FAILED")

	// Then: counters are labelled by strategy and failures by code
	assert.Equal(t, 2.0, testutil.ToFloat64(m.searches.WithLabelValues("keyword")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.searches.WithLabelValues("semantic")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("semantic", "ERR_503_SEARCH_FAILED")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.duration))

	// And: only successful searches reach the query stats
	snap := m.Queries().Snapshot()
	assert.Equal(t, int64(2), snap.TotalQueries)
	assert.Equal(t, int64(1), snap.ZeroResultCount)
}

func TestMetrics_ObserveMutation(t *testing.T) {
	m := NewMetrics()

	m.ObserveMutation("fuzzy", OpUpsert, 10)
	m.ObserveMutation("fuzzy", OpUpsert, 5)
	m.ObserveMutation("fuzzy", OpClear, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.mutations.WithLabelValues("fuzzy", OpUpsert)))
	assert.Equal(t, 15.0, testutil.ToFloat64(m.documents.WithLabelValues("fuzzy", OpUpsert)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.mutations.WithLabelValues("fuzzy", OpClear)))
}

func TestMetrics_RegistriesAreIndependent(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.ObserveMutation("keyword", OpDelete, 1)

	families, err := b.Registry().Gather()
	require.NoError(t, err)
	assert.Empty(t, families)

	families, err = a.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestMetrics_Handler(t *testing.T) {
	// Given: metrics with one recorded search
	m := NewMetrics()
	m.ObserveSearch("fuzzy", "hello", 1, time.Millisecond, "")

	// When: scraping the handler
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	// Then: the exposition contains the namespaced counter
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `docsearch_search_total{strategy="fuzzy"} 1`)
}
