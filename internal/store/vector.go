package store

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// VectorBackend represents the vector collection backend type.
type VectorBackend string

const (
	// VectorBackendHNSW keeps vectors in process with coder/hnsw (default).
	VectorBackendHNSW VectorBackend = "hnsw"

	// VectorBackendChromem uses the embedded chromem-go database.
	VectorBackendChromem VectorBackend = "chromem"

	// VectorBackendQdrant talks to a Qdrant server over gRPC.
	VectorBackendQdrant VectorBackend = "qdrant"
)

// ParseVectorBackend normalizes a backend name. Empty means hnsw.
func ParseVectorBackend(name string) (VectorBackend, error) {
	switch b := VectorBackend(strings.ToLower(strings.TrimSpace(name))); b {
	case "":
		return VectorBackendHNSW, nil
	case VectorBackendHNSW, VectorBackendChromem, VectorBackendQdrant:
		return b, nil
	default:
		return "", fmt.Errorf("unknown vector backend: %s (valid options: hnsw, chromem, qdrant)", name)
	}
}

// VectorConfig selects and configures a vector collection.
type VectorConfig struct {
	Backend VectorBackend `yaml:"backend"`
	HNSW    HNSWConfig    `yaml:"hnsw"`
	Chromem ChromemConfig `yaml:"chromem"`
	Qdrant  QdrantConfig  `yaml:"qdrant"`
}

// NewVectorCollection creates a handle for the named collection. The
// collection itself is not created until Create is called.
func NewVectorCollection(name string, cfg VectorConfig) (VectorCollection, error) {
	backend, err := ParseVectorBackend(string(cfg.Backend))
	if err != nil {
		return nil, err
	}
	switch backend {
	case VectorBackendChromem:
		return NewChromemCollection(name, cfg.Chromem)
	case VectorBackendQdrant:
		return NewQdrantCollection(name, cfg.Qdrant)
	default:
		return NewHNSWCollection(name, cfg.HNSW), nil
	}
}

// normalizedCopy returns a unit-length copy of v and its original norm.
func normalizedCopy(v []float32) ([]float32, float64) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	if norm == 0 {
		return out, 0
	}
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out, norm
}

// dot returns the dot product of two equal-length vectors.
func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// clampScore maps a cosine similarity onto [0,1]. NaN becomes 0.
func clampScore(s float64) float64 {
	switch {
	case math.IsNaN(s) || s < 0:
		return 0
	case s > 1:
		return 1
	default:
		return s
	}
}

// rankHits drops hits below the threshold, orders the rest by descending
// score (stable) and applies the limit.
func rankHits(hits []VectorHit, threshold float64, limit int) []VectorHit {
	kept := hits[:0]
	for _, h := range hits {
		if h.Score >= threshold {
			kept = append(kept, h)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Score > kept[j].Score
	})
	if limit > 0 && len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}

// sortHitsByID orders hits by ID so equal scores rank deterministically.
func sortHitsByID(hits []VectorHit) {
	sort.Slice(hits, func(i, j int) bool {
		return hits[i].ID < hits[j].ID
	})
}
