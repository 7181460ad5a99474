package strategy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docsearch/internal/embed"
	"github.com/Aman-CERP/docsearch/pkg/document"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// openStrategy builds and opens a strategy, closing it when the test ends.
func openStrategy(t *testing.T, name string, cfg Config, opts ...Option) Strategy {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	s, err := New(name, cfg, opts...)
	require.NoError(t, err)
	require.NoError(t, s.Open(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func doc1() document.SearchableDocument {
	return document.SearchableDocument{
		ChunkID:     "doc1",
		ParentDocID: "m1",
		TextContent: "hello world",
		Metadata:    map[string]any{"type": "greeting"},
		Original:    map[string]any{"id": "doc1"},
	}
}

func doc2() document.SearchableDocument {
	return document.SearchableDocument{
		ChunkID:     "doc2",
		ParentDocID: "m2",
		TextContent: "test document",
		Metadata:    map[string]any{"type": "test"},
		Original:    map[string]any{"id": "doc2"},
	}
}

func sampleDocs() []document.SearchableDocument {
	return []document.SearchableDocument{doc1(), doc2()}
}

func textDoc(id, text string) document.SearchableDocument {
	return document.SearchableDocument{
		ChunkID:     id,
		TextContent: text,
		Original:    map[string]any{"id": id},
	}
}

func chunkIDs(docs []document.SearchableDocument) []string {
	return document.ChunkIDs(docs)
}

// failingEmbedder wraps the static embedder, counts the passages it is
// asked to encode and fails on demand.
type failingEmbedder struct {
	*embed.StaticEmbedder
	failBatch bool
	failQuery bool
	passages  atomic.Int32
}

var errEncoderDown = errors.New("encoder down")

func (f *failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.failQuery {
		return nil, errEncoderDown
	}
	return f.StaticEmbedder.Embed(ctx, text)
}

func (f *failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.failBatch {
		return nil, errEncoderDown
	}
	f.passages.Add(int32(len(texts)))
	return f.StaticEmbedder.EmbedBatch(ctx, texts)
}
