package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestDefaultLogPath(t *testing.T) {
	path := DefaultLogPath()
	if filepath.Base(path) != "docsearch.log" {
		t.Errorf("DefaultLogPath should end with docsearch.log, got: %s", path)
	}
	if !strings.Contains(path, ".docsearch") {
		t.Errorf("DefaultLogPath should be under .docsearch, got: %s", path)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("expected level 'info', got: %s", cfg.Level)
	}
	if cfg.FilePath != "" {
		t.Errorf("expected no log file by default, got: %s", cfg.FilePath)
	}
	if !cfg.WriteToStderr {
		t.Error("expected WriteToStderr to be true")
	}
}

func TestDebugConfig(t *testing.T) {
	cfg := DebugConfig(DefaultConfig())
	if cfg.Level != "debug" {
		t.Errorf("expected level 'debug', got: %s", cfg.Level)
	}
	if cfg.FilePath != DefaultLogPath() {
		t.Errorf("expected default log path, got: %s", cfg.FilePath)
	}

	custom := DefaultConfig()
	custom.FilePath = "/tmp/custom.log"
	if got := DebugConfig(custom).FilePath; got != "/tmp/custom.log" {
		t.Errorf("DebugConfig should keep an explicit file, got: %s", got)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"nonsense", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := LevelFromString(tt.in); got != tt.want {
			t.Errorf("LevelFromString(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetup_FileAndStderr(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "docsearch.log")
	var stderr bytes.Buffer

	logger, cleanup, err := setup(Config{Level: "info", FilePath: path, WriteToStderr: true}, &stderr)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	logger.Debug("hidden_event")
	logger.Info("keyword_index_opened", slog.String("path", "/idx"))
	cleanup()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 file line, got %d: %q", len(lines), data)
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("file line is not JSON: %v", err)
	}
	if rec["msg"] != "keyword_index_opened" || rec["path"] != "/idx" {
		t.Errorf("unexpected record: %v", rec)
	}

	// A buffer is not a terminal, so stderr also gets JSON.
	if !strings.Contains(stderr.String(), `"msg":"keyword_index_opened"`) {
		t.Errorf("stderr missing record: %q", stderr.String())
	}
	if strings.Contains(stderr.String(), "hidden_event") {
		t.Error("debug record should be filtered at info level")
	}
}

func TestSetup_StderrOnly(t *testing.T) {
	var stderr bytes.Buffer
	logger, cleanup, err := setup(DefaultConfig(), &stderr)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer cleanup()

	logger.With(slog.String("strategy", "fuzzy")).Warn("search_failed")

	if !strings.Contains(stderr.String(), `"strategy":"fuzzy"`) {
		t.Errorf("expected attrs on stderr, got %q", stderr.String())
	}
}

func TestSetup_NoOutputs(t *testing.T) {
	logger, cleanup, err := setup(Config{Level: "info"}, nil)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer cleanup()
	logger.Info("dropped")
}

func TestFanoutHandler_GroupsAndLevels(t *testing.T) {
	var debugBuf, errorBuf bytes.Buffer
	h := fanoutHandler{
		slog.NewJSONHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewJSONHandler(&errorBuf, &slog.HandlerOptions{Level: slog.LevelError}),
	}
	logger := slog.New(h).WithGroup("adapter")

	logger.Info("adapter_sync_completed", slog.Int("records", 2))

	if !strings.Contains(debugBuf.String(), `"adapter":{"records":2}`) {
		t.Errorf("expected grouped attrs, got %q", debugBuf.String())
	}
	if errorBuf.Len() != 0 {
		t.Errorf("error-level handler should not receive info, got %q", errorBuf.String())
	}
}

func TestRotatingWriter_Rotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docsearch.log")
	w, err := NewRotatingWriter(path, 1, 2)
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	w.maxSize = 20

	for i := 0; i < 5; i++ {
		if _, err := w.Write([]byte("0123456789abcdef\n")); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	for _, p := range []string{path, path + ".1", path + ".2"} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected %s to exist: %v", p, err)
		}
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Errorf("expected at most 2 rotated files")
	}

	if _, err := w.Write([]byte("late")); err == nil {
		t.Error("write after close should fail")
	}
}

func TestRotatingWriter_ConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docsearch.log")
	w, err := NewRotatingWriter(path, 10, 3)
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	defer func() { _ = w.Close() }()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = w.Write([]byte("line\n"))
		}()
	}
	wg.Wait()
	_ = w.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := strings.Count(string(data), "line\n"); got != 20 {
		t.Errorf("expected 20 lines, got %d", got)
	}
}

func TestFindLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.log")
	if _, err := FindLogFile(path); err == nil {
		t.Error("expected error for missing explicit file")
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := FindLogFile(path)
	if err != nil || got != path {
		t.Errorf("FindLogFile(%q) = %q, %v", path, got, err)
	}
}

const sampleLog = `{"time":"2024-05-01T10:00:00.123Z","level":"DEBUG","msg":"vector_collection_reset","collection":"c1"}
{"time":"2024-05-01T10:00:01Z","level":"INFO","msg":"adapter_sync_completed","records":2,"strategy":"keyword"}
not json at all
{"time":"2024-05-01T10:00:02Z","level":"ERROR","msg":"keyword_index_write_failed","error":"disk full"}
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docsearch.log")
	if err := os.WriteFile(path, []byte(sampleLog), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestViewer_TailAndFilters(t *testing.T) {
	path := writeSample(t)

	all, err := NewViewer(ViewerConfig{NoColor: true}, nil).Tail(path, 0)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(all))
	}

	last, _ := NewViewer(ViewerConfig{NoColor: true}, nil).Tail(path, 2)
	if len(last) != 2 || last[1].Msg != "keyword_index_write_failed" {
		t.Errorf("unexpected tail: %+v", last)
	}

	// Non-JSON lines have no level and pass the level filter.
	warn, _ := NewViewer(ViewerConfig{Level: "warn", NoColor: true}, nil).Tail(path, 0)
	if len(warn) != 2 {
		t.Errorf("expected the error entry and the raw line, got %d", len(warn))
	}

	grep, _ := NewViewer(ViewerConfig{Pattern: regexp.MustCompile("adapter_"), NoColor: true}, nil).Tail(path, 0)
	if len(grep) != 1 || grep[0].Attrs["strategy"] != "keyword" {
		t.Errorf("unexpected grep result: %+v", grep)
	}
}

func TestViewer_FormatEntry(t *testing.T) {
	var out bytes.Buffer
	v := NewViewer(ViewerConfig{NoColor: true}, &out)

	entry := ParseLine(`{"time":"2024-05-01T10:00:01Z","level":"INFO","msg":"adapter_sync_completed","strategy":"keyword","records":2}`)
	raw := ParseLine("plain text")
	v.Print([]LogEntry{entry, raw})

	want := "10:00:01.000 INFO  adapter_sync_completed records=2 strategy=keyword\nplain text\n"
	if out.String() != want {
		t.Errorf("got %q, want %q", out.String(), want)
	}
}

func TestViewer_Follow(t *testing.T) {
	path := writeSample(t)
	v := NewViewer(ViewerConfig{NoColor: true}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan LogEntry, 4)
	done := make(chan error, 1)
	go func() {
		done <- v.Follow(ctx, path, func(e LogEntry) { got <- e })
	}()

	time.Sleep(200 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString(`{"time":"2024-05-01T10:00:03Z","level":"INFO","msg":"records_watch_started"}` + "\n")
	_ = f.Close()

	select {
	case e := <-got:
		if e.Msg != "records_watch_started" {
			t.Errorf("expected only the appended entry, got %q", e.Msg)
		}
	case <-ctx.Done():
		t.Fatal("timeout waiting for followed entry")
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Follow returned %v", err)
	}
}
