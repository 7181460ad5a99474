package embed

import (
	"context"
	"math"
	"time"
)

const (
	// DefaultBatchSize is how many passages go to the encoder per call.
	DefaultBatchSize = 32

	// MaxBatchSize caps a configured batch size.
	MaxBatchSize = 256

	// DefaultTimeout bounds one remote encoder request.
	DefaultTimeout = 60 * time.Second

	// StaticDimensions is the vector size of the static embedder.
	StaticDimensions = 256
)

// Embedder turns text into fixed-dimension vectors for the semantic strategy.
//
// Embed encodes a search query; EmbedBatch encodes chunk texts being indexed.
// Some models treat the two differently, so callers must not mix them up.
// Every returned vector is unit length, or all zeros for text with nothing to
// encode.
type Embedder interface {
	Embed(ctx context.Context, query string) ([]float32, error)
	EmbedBatch(ctx context.Context, passages []string) ([][]float32, error)

	// Dimensions is the length of every vector this embedder returns.
	Dimensions() int
	// ModelName identifies the model; vectors from different models are
	// never comparable.
	ModelName() string
	Available(ctx context.Context) bool
	Close() error
}

// unitLength scales v to length 1. A zero vector is returned unchanged.
func unitLength(v []float32) []float32 {
	var sq float64
	for _, x := range v {
		sq += float64(x) * float64(x)
	}
	if sq == 0 {
		return v
	}
	n := math.Sqrt(sq)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out
}
