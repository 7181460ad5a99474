//go:build cgo

package embed

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	fastembed "github.com/anush008/fastembed-go"
)

// fastEmbedModels maps accepted model names to fastembed constants and their dimensions.
var fastEmbedModels = map[string]struct {
	model fastembed.EmbeddingModel
	dims  int
}{
	"BAAI/bge-small-en-v1.5":                 {fastembed.BGESmallENV15, 384},
	"BAAI/bge-base-en-v1.5":                  {fastembed.BGEBaseENV15, 768},
	"sentence-transformers/all-MiniLM-L6-v2": {fastembed.AllMiniLML6V2, 384},
}

// DefaultFastEmbedModel is used when FastEmbedConfig.Model is empty.
const DefaultFastEmbedModel = "BAAI/bge-small-en-v1.5"

// FastEmbedEmbedder runs a local ONNX model through fastembed-go.
type FastEmbedEmbedder struct {
	mu        sync.RWMutex
	model     *fastembed.FlagEmbedding
	modelName string
	dims      int
}

var _ Embedder = (*FastEmbedEmbedder)(nil)

// NewFastEmbedEmbedder loads the model, downloading it into CacheDir on first use.
func NewFastEmbedEmbedder(cfg FastEmbedConfig) (*FastEmbedEmbedder, error) {
	name := cfg.Model
	if name == "" {
		name = DefaultFastEmbedModel
	}
	spec, ok := fastEmbedModels[name]
	if !ok {
		return nil, fmt.Errorf("unsupported fastembed model %q", name)
	}

	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(".", "local_cache")
	}
	maxLength := cfg.MaxLength
	if maxLength == 0 {
		maxLength = 512
	}
	showProgress := false

	model, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                spec.model,
		CacheDir:             cacheDir,
		MaxLength:            maxLength,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing fastembed: %w", err)
	}

	return &FastEmbedEmbedder{model: model, modelName: name, dims: spec.dims}, nil
}

// Embed embeds a search query ("query: " prefix).
func (e *FastEmbedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.model == nil {
		return nil, fmt.Errorf("embedder is closed")
	}
	return e.model.QueryEmbed(text)
}

// EmbedBatch embeds indexed passages ("passage: " prefix).
func (e *FastEmbedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.model == nil {
		return nil, fmt.Errorf("embedder is closed")
	}
	return e.model.PassageEmbed(texts, DefaultBatchSize)
}

// Dimensions returns the embedding dimension.
func (e *FastEmbedEmbedder) Dimensions() int { return e.dims }

// ModelName returns the model identifier.
func (e *FastEmbedEmbedder) ModelName() string { return e.modelName }

// Available reports whether the model is loaded.
func (e *FastEmbedEmbedder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.model != nil
}

// Close releases the ONNX session.
func (e *FastEmbedEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model == nil {
		return nil
	}
	err := e.model.Destroy()
	e.model = nil
	return err
}
