package embed

import (
	"context"
	"math"
	"sync/atomic"
)

func norm(v []float32) float64 {
	var sq float64
	for _, x := range v {
		sq += float64(x) * float64(x)
	}
	return math.Sqrt(sq)
}

// cosine is 0 when either vector is zero.
func cosine(a, b []float32) float64 {
	na, nb := norm(a), norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (na * nb)
}

// countingEmbedder counts calls reaching the inner embedder.
type countingEmbedder struct {
	*StaticEmbedder
	single atomic.Int32
	batch  atomic.Int32
	texts  atomic.Int32
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.single.Add(1)
	return c.StaticEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.batch.Add(1)
	c.texts.Add(int32(len(texts)))
	return c.StaticEmbedder.EmbedBatch(ctx, texts)
}
