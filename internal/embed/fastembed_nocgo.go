//go:build !cgo

package embed

import (
	"context"
	"errors"
)

// ErrFastEmbedNotAvailable is returned when the binary was built without cgo.
var ErrFastEmbedNotAvailable = errors.New("fastembed: not available (binary built without cgo, use the static or ollama encoder)")

// FastEmbedEmbedder is a stub for builds without cgo.
type FastEmbedEmbedder struct{}

// NewFastEmbedEmbedder always fails without cgo.
func NewFastEmbedEmbedder(_ FastEmbedConfig) (*FastEmbedEmbedder, error) {
	return nil, ErrFastEmbedNotAvailable
}

func (e *FastEmbedEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return nil, ErrFastEmbedNotAvailable
}

func (e *FastEmbedEmbedder) EmbedBatch(_ context.Context, _ []string) ([][]float32, error) {
	return nil, ErrFastEmbedNotAvailable
}

func (e *FastEmbedEmbedder) Dimensions() int                  { return 0 }
func (e *FastEmbedEmbedder) ModelName() string                { return "fastembed" }
func (e *FastEmbedEmbedder) Available(_ context.Context) bool { return false }
func (e *FastEmbedEmbedder) Close() error                     { return nil }
