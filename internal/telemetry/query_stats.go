package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// =============================================================================
// Latency Buckets
// =============================================================================

// LatencyBucket represents a latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// =============================================================================
// Query Event
// =============================================================================

// QueryEvent is a single successful search.
type QueryEvent struct {
	Query       string
	Strategy    string
	ResultCount int
	Latency     time.Duration
	Timestamp   time.Time
}

// IsZeroResult returns true if this query returned no results.
func (e QueryEvent) IsZeroResult() bool {
	return e.ResultCount == 0
}

// =============================================================================
// Circular Buffer
// =============================================================================

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	items    []T
	head     int // Next write position
	size     int
	capacity int
	mu       sync.RWMutex
}

// NewCircularBuffer creates a new circular buffer with the given capacity.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Add adds an item to the buffer. If full, the oldest item is evicted.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Items returns all items in FIFO order (oldest first).
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]T, b.size)
	if b.size < b.capacity {
		copy(result, b.items[:b.size])
	} else {
		copy(result, b.items[b.head:])
		copy(result[b.capacity-b.head:], b.items[:b.head])
	}
	return result
}

// Size returns the current number of items in the buffer.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Clear removes all items from the buffer.
func (b *CircularBuffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = 0
	b.size = 0
}

// =============================================================================
// Term Extraction
// =============================================================================

// ExtractTerms returns the lowercased query words of at least 3 bytes.
func ExtractTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

// TermCount represents a term and its frequency count.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// =============================================================================
// Query Stats
// =============================================================================

// QueryStatsConfig bounds the memory used by QueryStats.
type QueryStatsConfig struct {
	TopTermsCapacity      int // Max terms to track (default: 100)
	ZeroResultsCapacity   int // Max zero-result queries to keep (default: 100)
	RecentQueriesCapacity int // Max query hashes kept for repeat detection (default: 500)
}

// DefaultQueryStatsConfig returns the default capacities.
func DefaultQueryStatsConfig() QueryStatsConfig {
	return QueryStatsConfig{
		TopTermsCapacity:      100,
		ZeroResultsCapacity:   100,
		RecentQueriesCapacity: 500,
	}
}

// QueryStatsSnapshot is an immutable copy of the query stats.
type QueryStatsSnapshot struct {
	StrategyCounts      map[string]int64        `json:"strategy_counts"`
	TopTerms            []TermCount             `json:"top_terms"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TotalQueries        int64                   `json:"total_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	RepeatCount         int64                   `json:"repeat_count"`
	RepeatRate          float64                 `json:"repeat_rate"`
	UniqueQueryCount    int64                   `json:"unique_query_count"`
	Since               time.Time               `json:"since"`
}

// ZeroResultPercentage returns the percentage of zero-result queries.
func (s *QueryStatsSnapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// Summary returns a one-line human-readable summary.
func (s *QueryStatsSnapshot) Summary() string {
	if s.TotalQueries == 0 {
		return "no queries recorded"
	}
	return fmt.Sprintf("queries=%d zero_results=%.1f%% repeats=%.1f%% unique=%d",
		s.TotalQueries, s.ZeroResultPercentage(), s.RepeatRate*100, s.UniqueQueryCount)
}

// QueryStats aggregates query patterns in memory: strategy mix, frequent
// terms, recent zero-result queries, latency and repeats. Safe for
// concurrent use.
type QueryStats struct {
	mu sync.RWMutex

	strategies      map[string]int64
	topTerms        *lru.Cache[string, int64]
	zeroResults     *CircularBuffer[string]
	latencies       map[LatencyBucket]int64
	totalQueries    int64
	zeroResultCount int64
	startTime       time.Time

	recentQueries *lru.Cache[string, struct{}] // LRU of query hashes
	repeatCount   int64

	config QueryStatsConfig
}

// NewQueryStats creates an empty collector.
func NewQueryStats(cfg QueryStatsConfig) *QueryStats {
	def := DefaultQueryStatsConfig()
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = def.TopTermsCapacity
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = def.ZeroResultsCapacity
	}
	if cfg.RecentQueriesCapacity <= 0 {
		cfg.RecentQueriesCapacity = def.RecentQueriesCapacity
	}
	s := &QueryStats{config: cfg}
	s.reset()
	return s
}

func (s *QueryStats) reset() {
	s.topTerms, _ = lru.New[string, int64](s.config.TopTermsCapacity)
	s.recentQueries, _ = lru.New[string, struct{}](s.config.RecentQueriesCapacity)
	s.zeroResults = NewCircularBuffer[string](s.config.ZeroResultsCapacity)
	s.strategies = make(map[string]int64)
	s.latencies = make(map[LatencyBucket]int64)
	s.totalQueries = 0
	s.zeroResultCount = 0
	s.repeatCount = 0
	s.startTime = time.Now()
}

// Record captures one query.
func (s *QueryStats) Record(event QueryEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.strategies[event.Strategy]++
	s.totalQueries++

	for _, term := range ExtractTerms(event.Query) {
		count, _ := s.topTerms.Get(term)
		s.topTerms.Add(term, count+1)
	}

	if event.IsZeroResult() {
		s.zeroResults.Add(event.Query)
		s.zeroResultCount++
	}

	s.latencies[LatencyToBucket(event.Latency)]++

	h := hashQuery(event.Query)
	if _, seen := s.recentQueries.Get(h); seen {
		s.repeatCount++
	}
	s.recentQueries.Add(h, struct{}{})
}

// hashQuery fingerprints a normalized query for repeat detection.
func hashQuery(query string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:16])
}

// Snapshot returns a copy of the current stats.
func (s *QueryStats) Snapshot() *QueryStatsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var topTerms []TermCount
	for _, key := range s.topTerms.Keys() {
		if count, ok := s.topTerms.Peek(key); ok {
			topTerms = append(topTerms, TermCount{Term: key, Count: count})
		}
	}
	sort.SliceStable(topTerms, func(i, j int) bool {
		if topTerms[i].Count != topTerms[j].Count {
			return topTerms[i].Count > topTerms[j].Count
		}
		return topTerms[i].Term < topTerms[j].Term
	})

	var repeatRate float64
	if s.totalQueries > 0 {
		repeatRate = float64(s.repeatCount) / float64(s.totalQueries)
	}

	return &QueryStatsSnapshot{
		StrategyCounts:      maps.Clone(s.strategies),
		TopTerms:            topTerms,
		ZeroResultQueries:   s.zeroResults.Items(),
		LatencyDistribution: maps.Clone(s.latencies),
		TotalQueries:        s.totalQueries,
		ZeroResultCount:     s.zeroResultCount,
		RepeatCount:         s.repeatCount,
		RepeatRate:          repeatRate,
		UniqueQueryCount:    int64(s.recentQueries.Len()),
		Since:               s.startTime,
	}
}

// Reset discards everything recorded so far.
func (s *QueryStats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}
