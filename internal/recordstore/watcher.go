package recordstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher defaults.
const (
	DefaultDebounceWindow = 200 * time.Millisecond
	DefaultPollInterval   = 2 * time.Second
)

// WatchOptions configures a Watcher.
type WatchOptions struct {
	DebounceWindow time.Duration
	PollInterval   time.Duration
	// ForcePolling skips fsnotify. Useful on network mounts.
	ForcePolling bool
	Logger       *slog.Logger
}

func (o WatchOptions) withDefaults() WatchOptions {
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = DefaultDebounceWindow
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Watcher reports debounced changes to a single records file.
//
// fsnotify watches the parent directory, so the file may be replaced by
// rename, as most editors do. When fsnotify is unavailable the watcher
// polls the file's size and modification time.
type Watcher struct {
	path      string
	opts      WatchOptions
	debouncer *Debouncer
	fsWatcher *fsnotify.Watcher

	mu      sync.Mutex
	stopped bool
	stopCh  chan struct{}
}

// NewWatcher creates a watcher for path. The file need not exist yet.
func NewWatcher(path string, opts WatchOptions) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve absolute path: %w", err)
	}
	opts = opts.withDefaults()

	w := &Watcher{
		path:      abs,
		opts:      opts,
		debouncer: NewDebouncer(opts.DebounceWindow),
		stopCh:    make(chan struct{}),
	}
	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			w.fsWatcher = fsw
		} else {
			opts.Logger.Warn("fsnotify_unavailable", slog.String("error", err.Error()))
		}
	}
	return w, nil
}

// Run watches until ctx is done or Stop is called, calling onChange once
// per debounced batch. Errors from onChange are logged and watching
// continues.
func (w *Watcher) Run(ctx context.Context, onChange func(context.Context, []Change) error) error {
	if w.fsWatcher != nil {
		if err := w.fsWatcher.Add(filepath.Dir(w.path)); err != nil {
			return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
		}
		go w.readFsnotify(ctx)
	} else {
		go w.poll(ctx)
	}

	w.opts.Logger.Info("records_watch_started",
		slog.String("path", w.path),
		slog.Bool("polling", w.fsWatcher == nil))

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case batch, ok := <-w.debouncer.Output():
			if !ok {
				return nil
			}
			if len(batch) == 0 {
				continue
			}
			if err := onChange(ctx, batch); err != nil {
				w.opts.Logger.Error("records_change_failed",
					slog.String("path", w.path),
					slog.String("error", err.Error()))
			}
		}
	}
}

// Stop ends Run and releases the fsnotify watcher. Safe to call multiple times.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.debouncer.Stop()
	if w.fsWatcher != nil {
		return w.fsWatcher.Close()
	}
	return nil
}

func (w *Watcher) readFsnotify(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleFsnotifyEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.opts.Logger.Warn("records_watch_error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) handleFsnotifyEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}

	var op Operation
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		op = OpDelete
	default:
		return
	}
	w.debouncer.Add(Change{Path: w.path, Operation: op, Timestamp: time.Now()})
}

type fileSnapshot struct {
	exists  bool
	modTime time.Time
	size    int64
}

func (w *Watcher) snapshot() fileSnapshot {
	info, err := os.Stat(w.path)
	if err != nil {
		return fileSnapshot{}
	}
	return fileSnapshot{exists: true, modTime: info.ModTime(), size: info.Size()}
}

func (w *Watcher) poll(ctx context.Context) {
	prev := w.snapshot()
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			cur := w.snapshot()
			if op, changed := diffSnapshots(prev, cur); changed {
				w.debouncer.Add(Change{Path: w.path, Operation: op, Timestamp: time.Now()})
			}
			prev = cur
		}
	}
}

func diffSnapshots(prev, cur fileSnapshot) (Operation, bool) {
	switch {
	case !prev.exists && cur.exists:
		return OpCreate, true
	case prev.exists && !cur.exists:
		return OpDelete, true
	case cur.exists && (prev.modTime != cur.modTime || prev.size != cur.size):
		return OpModify, true
	default:
		return 0, false
	}
}
