// Package adapter keeps search strategies in step with the record store that
// owns the data.
//
// A [ServiceAdapter] reads every record from a [RecordSource], maps each one
// into searchable chunks and pushes the result into a strategy. It never
// watches the store: owners call [ServiceAdapter.SyncFromDB] when they want to
// catch up, or [ServiceAdapter.InitFromDB] after a bulk reload.
package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/Aman-CERP/docsearch/pkg/document"
	"github.com/Aman-CERP/docsearch/pkg/strategy"
)

// DefaultBatchSize is the number of chunks sent per UpsertDocuments call.
const DefaultBatchSize = 500

// Record is one row of the owning store.
type Record struct {
	// ID is the record's primary key.
	ID string

	// Modified changes whenever the record changes, for example an updated_at
	// timestamp. When empty, the payload hash is used instead.
	Modified string

	// Payload is returned by Search when one of the record's chunks matches.
	Payload any
}

// RecordSource lists the current contents of the owning store.
type RecordSource interface {
	Records(ctx context.Context) ([]Record, error)
}

// RecordSourceFunc adapts a function to RecordSource.
type RecordSourceFunc func(ctx context.Context) ([]Record, error)

// Records calls f.
func (f RecordSourceFunc) Records(ctx context.Context) ([]Record, error) {
	return f(ctx)
}

// Mapper turns a record into the chunks to index. Chunks without a ChunkID
// get "<record id>#<position>", chunks without a ParentDocID get the record
// id and chunks without an Original get the record payload.
type Mapper func(Record) []document.SearchableDocument

// SyncStats summarizes one InitFromDB or SyncFromDB call.
type SyncStats struct {
	Records   int
	Upserted  int
	Deleted   int
	Unchanged int
	Full      bool
	Duration  time.Duration
}

// Option configures a ServiceAdapter.
type Option func(*ServiceAdapter)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *ServiceAdapter) { a.logger = l }
}

// WithBatchSize sets how many chunks go into one upsert call.
func WithBatchSize(n int) Option {
	return func(a *ServiceAdapter) {
		if n > 0 {
			a.batchSize = n
		}
	}
}

// syncState is what a strategy was last synced with. gen is the strategy's
// index generation at that point, when it reports one.
type syncState struct {
	markers map[string]string
	chunks  map[string][]string
	gen     uint64
	hasGen  bool
}

// stale reports whether s lost the documents this state describes.
func (st *syncState) stale(s strategy.Strategy) bool {
	gen, ok := strategy.Generation(s)
	return st.hasGen && (!ok || gen != st.gen)
}

func newSyncState() *syncState {
	return &syncState{
		markers: make(map[string]string),
		chunks:  make(map[string][]string),
	}
}

// ServiceAdapter synchronizes strategies with a RecordSource.
type ServiceAdapter struct {
	mu        sync.Mutex
	source    RecordSource
	mapper    Mapper
	logger    *slog.Logger
	batchSize int
	state     map[strategy.Strategy]*syncState
}

// New creates an adapter over source.
func New(source RecordSource, mapper Mapper, opts ...Option) (*ServiceAdapter, error) {
	if source == nil {
		return nil, fmt.Errorf("adapter: record source is required")
	}
	if mapper == nil {
		return nil, fmt.Errorf("adapter: mapper is required")
	}
	a := &ServiceAdapter{
		source:    source,
		mapper:    mapper,
		batchSize: DefaultBatchSize,
		state:     make(map[strategy.Strategy]*syncState),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a, nil
}

// InitFromDB clears s and indexes every record.
func (a *ServiceAdapter) InitFromDB(ctx context.Context, s strategy.Strategy) (SyncStats, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.initLocked(ctx, s)
}

// ResetFromDB is InitFromDB under the name used after bulk reloads.
func (a *ServiceAdapter) ResetFromDB(ctx context.Context, s strategy.Strategy) (SyncStats, error) {
	return a.InitFromDB(ctx, s)
}

// SyncFromDB brings s up to date with the source. Records whose marker
// changed are re-indexed, records that disappeared lose their chunks, and
// records that now map to fewer chunks lose the extra ones. A strategy the
// adapter has not seen yet, or whose index was reopened or cleared since the
// last sync, gets a full InitFromDB.
func (a *ServiceAdapter) SyncFromDB(ctx context.Context, s strategy.Strategy) (SyncStats, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := strategy.Unwrap(s)
	prev, ok := a.state[key]
	if !ok || prev.stale(s) {
		return a.initLocked(ctx, s)
	}

	start := time.Now()
	records, err := a.load(ctx)
	if err != nil {
		return SyncStats{}, err
	}

	next := newSyncState()
	stats := SyncStats{Records: len(records)}
	var upserts, deletes []document.SearchableDocument

	for _, r := range records {
		m := marker(r)
		if old, seen := prev.markers[r.ID]; seen && old == m {
			next.markers[r.ID] = m
			next.chunks[r.ID] = prev.chunks[r.ID]
			stats.Unchanged++
			continue
		}
		docs := a.chunksOf(r)
		ids := make(map[string]struct{}, len(docs))
		for _, d := range docs {
			ids[d.ChunkID] = struct{}{}
		}
		for _, id := range prev.chunks[r.ID] {
			if _, kept := ids[id]; !kept {
				deletes = append(deletes, document.SearchableDocument{ChunkID: id})
			}
		}
		upserts = append(upserts, docs...)
		next.markers[r.ID] = m
		next.chunks[r.ID] = document.ChunkIDs(docs)
	}
	for id, chunks := range prev.chunks {
		if _, alive := next.markers[id]; alive {
			continue
		}
		for _, c := range chunks {
			deletes = append(deletes, document.SearchableDocument{ChunkID: c})
		}
	}

	if err := a.apply(ctx, s, deletes, upserts); err != nil {
		// The index is now somewhere between prev and next.
		delete(a.state, key)
		return SyncStats{}, err
	}
	next.gen, next.hasGen = strategy.Generation(s)
	a.state[key] = next

	stats.Upserted = len(upserts)
	stats.Deleted = len(deletes)
	stats.Duration = time.Since(start)
	a.logCompleted(s, stats)
	return stats, nil
}

// Forget drops the sync state kept for s, so the next SyncFromDB starts over.
func (a *ServiceAdapter) Forget(s strategy.Strategy) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.state, strategy.Unwrap(s))
}

func (a *ServiceAdapter) initLocked(ctx context.Context, s strategy.Strategy) (SyncStats, error) {
	start := time.Now()
	key := strategy.Unwrap(s)
	delete(a.state, key)

	records, err := a.load(ctx)
	if err != nil {
		return SyncStats{}, err
	}

	next := newSyncState()
	var docs []document.SearchableDocument
	for _, r := range records {
		chunks := a.chunksOf(r)
		next.markers[r.ID] = marker(r)
		next.chunks[r.ID] = document.ChunkIDs(chunks)
		docs = append(docs, chunks...)
	}

	if err := s.ClearIndex(ctx); err != nil {
		return SyncStats{}, fmt.Errorf("clear %s index: %w", s.Name(), err)
	}
	if err := a.apply(ctx, s, nil, docs); err != nil {
		return SyncStats{}, err
	}
	next.gen, next.hasGen = strategy.Generation(s)
	a.state[key] = next

	stats := SyncStats{
		Records:  len(records),
		Upserted: len(docs),
		Full:     true,
		Duration: time.Since(start),
	}
	a.logCompleted(s, stats)
	return stats, nil
}

// load reads the source. A repeated record id keeps its last occurrence.
func (a *ServiceAdapter) load(ctx context.Context) ([]Record, error) {
	records, err := a.source.Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	pos := make(map[string]int, len(records))
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if i, ok := pos[r.ID]; ok {
			out[i] = r
			continue
		}
		pos[r.ID] = len(out)
		out = append(out, r)
	}
	return out, nil
}

func (a *ServiceAdapter) chunksOf(r Record) []document.SearchableDocument {
	docs := a.mapper(r)
	out := make([]document.SearchableDocument, 0, len(docs))
	seen := make(map[string]struct{}, len(docs))
	for i, d := range docs {
		if d.ChunkID == "" {
			d.ChunkID = r.ID + "#" + strconv.Itoa(i)
		}
		if d.ParentDocID == "" {
			d.ParentDocID = r.ID
		}
		if d.Original == nil {
			d.Original = r.Payload
		}
		if _, dup := seen[d.ChunkID]; dup {
			continue
		}
		seen[d.ChunkID] = struct{}{}
		out = append(out, d)
	}
	return out
}

func (a *ServiceAdapter) apply(ctx context.Context, s strategy.Strategy, deletes, upserts []document.SearchableDocument) error {
	if len(deletes) > 0 {
		if err := s.DeleteDocuments(ctx, deletes); err != nil {
			return fmt.Errorf("delete from %s index: %w", s.Name(), err)
		}
	}
	for start := 0; start < len(upserts); start += a.batchSize {
		end := min(start+a.batchSize, len(upserts))
		if err := s.UpsertDocuments(ctx, upserts[start:end]); err != nil {
			return fmt.Errorf("upsert into %s index: %w", s.Name(), err)
		}
	}
	return nil
}

func (a *ServiceAdapter) logCompleted(s strategy.Strategy, stats SyncStats) {
	a.logger.Info("adapter_sync_completed",
		slog.String("strategy", s.Name()),
		slog.Bool("full", stats.Full),
		slog.Int("records", stats.Records),
		slog.Int("upserted", stats.Upserted),
		slog.Int("deleted", stats.Deleted),
		slog.Int("unchanged", stats.Unchanged),
		slog.Duration("duration", stats.Duration))
}

func marker(r Record) string {
	if r.Modified != "" {
		return "m:" + r.Modified
	}
	return "h:" + document.PayloadHash(r.Payload)
}
