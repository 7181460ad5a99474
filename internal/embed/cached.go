package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultEmbeddingCacheSize is the number of vectors kept by New.
const DefaultEmbeddingCacheSize = 1000

// vectorKind separates query vectors from passage vectors in the cache.
type vectorKind byte

const (
	queryVector   vectorKind = 'q'
	passageVector vectorKind = 'p'
)

// CachedEmbedder keeps recent vectors in an LRU. Re-indexing a chunk whose
// text did not change, and repeating a query, both skip the encoder.
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

// NewCachedEmbedder wraps inner. size <= 0 uses DefaultEmbeddingCacheSize.
func NewCachedEmbedder(inner Embedder, size int) *CachedEmbedder {
	if size <= 0 {
		size = DefaultEmbeddingCacheSize
	}
	cache, _ := lru.New[string, []float32](size)
	return &CachedEmbedder{inner: inner, cache: cache}
}

// key includes the model name, so a model switch never serves old vectors.
func (c *CachedEmbedder) key(kind vectorKind, text string) string {
	sum := sha256.Sum256([]byte(string(kind) + "\x00" + c.inner.ModelName() + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// Embed implements Embedder.
func (c *CachedEmbedder) Embed(ctx context.Context, query string) ([]float32, error) {
	k := c.key(queryVector, query)
	if v, ok := c.cache.Get(k); ok {
		return v, nil
	}
	v, err := c.inner.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	c.cache.Add(k, v)
	return v, nil
}

// EmbedBatch implements Embedder. Misses go to the inner embedder as one
// batch, in their original order.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, passages []string) ([][]float32, error) {
	out := make([][]float32, len(passages))
	type miss struct {
		pos int
		key string
	}
	var misses []miss
	var texts []string
	for i, p := range passages {
		k := c.key(passageVector, p)
		if v, ok := c.cache.Get(k); ok {
			out[i] = v
			continue
		}
		misses = append(misses, miss{pos: i, key: k})
		texts = append(texts, p)
	}
	if len(misses) == 0 {
		return out, nil
	}

	vecs, err := c.inner.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	for j, m := range misses {
		out[m.pos] = vecs[j]
		c.cache.Add(m.key, vecs[j])
	}
	return out, nil
}

// Dimensions implements Embedder.
func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

// ModelName implements Embedder.
func (c *CachedEmbedder) ModelName() string { return c.inner.ModelName() }

// Available implements Embedder.
func (c *CachedEmbedder) Available(ctx context.Context) bool { return c.inner.Available(ctx) }

// Close empties the cache and closes the inner embedder.
func (c *CachedEmbedder) Close() error {
	c.cache.Purge()
	return c.inner.Close()
}

// Inner returns the wrapped embedder.
func (c *CachedEmbedder) Inner() Embedder { return c.inner }

// Len reports how many vectors are cached.
func (c *CachedEmbedder) Len() int { return c.cache.Len() }
