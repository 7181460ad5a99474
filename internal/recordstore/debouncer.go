package recordstore

import (
	"log/slog"
	"sync"
	"time"
)

// Operation is the kind of change seen on a watched file.
type Operation int

const (
	// OpCreate means the file appeared.
	OpCreate Operation = iota
	// OpModify means the file was written.
	OpModify
	// OpDelete means the file was removed or renamed away.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// Change is one observed change to a records file.
type Change struct {
	Path      string
	Operation Operation
	Timestamp time.Time
}

// Debouncer coalesces bursts of changes so one save triggers one sync.
// Changes to the same path within the window are merged:
//   - CREATE + MODIFY = CREATE
//   - CREATE + DELETE = nothing (a temp file came and went)
//   - DELETE + CREATE = MODIFY (the file was replaced, as editors do)
//   - anything else keeps the latest operation
type Debouncer struct {
	window  time.Duration
	pending map[string]*pendingChange
	mu      sync.Mutex
	output  chan []Change
	timer   *time.Timer
	stopped bool
}

type pendingChange struct {
	change  Change
	firstOp Operation
}

// NewDebouncer creates a debouncer that emits after window of quiet.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]*pendingChange),
		output:  make(chan []Change, 10),
	}
}

// Add queues a change and restarts the quiet window.
func (d *Debouncer) Add(c Change) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if existing, ok := d.pending[c.Path]; ok {
		merged, keep := coalesce(existing, c)
		if !keep {
			delete(d.pending, c.Path)
		} else {
			existing.change = merged
		}
	} else {
		d.pending[c.Path] = &pendingChange{change: c, firstOp: c.Operation}
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

func coalesce(existing *pendingChange, next Change) (Change, bool) {
	switch existing.firstOp {
	case OpCreate:
		switch next.Operation {
		case OpModify:
			return existing.change, true
		case OpDelete:
			return Change{}, false
		}
	case OpDelete:
		if next.Operation == OpCreate {
			next.Operation = OpModify
		}
	}
	return next, true
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.pending) == 0 {
		return
	}

	batch := make([]Change, 0, len(d.pending))
	for _, pc := range d.pending {
		batch = append(batch, pc.change)
	}
	d.pending = make(map[string]*pendingChange)

	select {
	case d.output <- batch:
	default:
		slog.Warn("debouncer_output_full", slog.Int("batch_size", len(batch)))
	}
}

// Output returns the channel of coalesced batches.
func (d *Debouncer) Output() <-chan []Change {
	return d.output
}

// Stop stops the debouncer and closes Output. Safe to call multiple times.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
