package strategy

import (
	"sort"
	"sync/atomic"

	"github.com/Aman-CERP/docsearch/pkg/document"
)

// generations hands out table generations. Values are unique across every
// table in the process, so a new table never repeats an old generation.
var generations atomic.Uint64

// table is the in-memory document store every strategy keeps: documents by
// chunk id plus the insertion sequence used for stable ordering. A replace
// keeps the original sequence number.
type table struct {
	docs map[string]document.SearchableDocument
	seq  map[string]uint64
	next uint64
	gen  uint64
}

func newTable() *table {
	return &table{
		docs: make(map[string]document.SearchableDocument),
		seq:  make(map[string]uint64),
		gen:  generations.Add(1),
	}
}

// generation of a nil table, that is a closed strategy, is 0.
func (t *table) generation() uint64 {
	if t == nil {
		return 0
	}
	return t.gen
}

func (t *table) get(id string) (document.SearchableDocument, bool) {
	d, ok := t.docs[id]
	return d, ok
}

func (t *table) put(d document.SearchableDocument) {
	if _, ok := t.seq[d.ChunkID]; !ok {
		t.seq[d.ChunkID] = t.next
		t.next++
	}
	t.docs[d.ChunkID] = d
}

func (t *table) remove(id string) bool {
	if _, ok := t.docs[id]; !ok {
		return false
	}
	delete(t.docs, id)
	delete(t.seq, id)
	return true
}

func (t *table) reset() {
	t.docs = make(map[string]document.SearchableDocument)
	t.seq = make(map[string]uint64)
	t.next = 0
	t.gen = generations.Add(1)
}

func (t *table) len() int {
	return len(t.docs)
}

func (t *table) order(id string) uint64 {
	return t.seq[id]
}

// ordered returns the documents in insertion order.
func (t *table) ordered() []document.SearchableDocument {
	out := make([]document.SearchableDocument, 0, len(t.docs))
	for _, d := range t.docs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		return t.seq[out[i].ChunkID] < t.seq[out[j].ChunkID]
	})
	return out
}

// present returns the chunk ids that are in the table.
func (t *table) present(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := t.docs[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// sortScored orders by descending score, then insertion order.
func sortScored(hits []scored) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].seq < hits[j].seq
	})
}
