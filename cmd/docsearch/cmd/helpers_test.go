package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleRecords = `[
  {"id": "m1", "updated_at": "2024-05-01T10:00:00Z", "text": "hello world", "folder": "inbox", "size": 3},
  {"id": "m2", "updated_at": "2024-05-01T11:00:00Z", "text": "test document", "folder": "archive", "size": 7}
]`

// syncBuffer is a bytes.Buffer safe for a command writing in the background.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// testEnv holds an isolated config file and records file.
type testEnv struct {
	dir     string
	config  string
	records string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	for _, key := range []string{"DOCSEARCH_DEFAULT_ENGINE", "DOCSEARCH_LOG_LEVEL", "DOCSEARCH_LOG_FILE", "DOCSEARCH_METRICS_ADDR"} {
		t.Setenv(key, "")
	}

	env := testEnv{
		dir:     dir,
		config:  filepath.Join(dir, "docsearch.yaml"),
		records: filepath.Join(dir, "records.json"),
	}
	cfg := `logging:
  level: error
  write_to_stderr: false
records:
  metadata_fields: [folder, size]
  watch_debounce: 50ms
`
	require.NoError(t, os.WriteFile(env.config, []byte(cfg), 0o644))
	require.NoError(t, os.WriteFile(env.records, []byte(sampleRecords), 0o644))
	return env
}

// run executes the root command with the env's config file.
func (e testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &syncBuffer{}
	err := e.runContext(context.Background(), buf, args...)
	return buf.String(), err
}

func (e testEnv) runContext(ctx context.Context, out io.Writer, args ...string) error {
	root := NewRootCmd()
	root.SetOut(out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--config", e.config}, args...))
	return root.ExecuteContext(ctx)
}
