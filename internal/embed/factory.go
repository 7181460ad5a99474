package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// ProviderType represents an embedding provider
type ProviderType string

const (
	// ProviderStatic uses hash-based embeddings (default, no dependencies)
	ProviderStatic ProviderType = "static"

	// ProviderOllama uses a local Ollama server
	ProviderOllama ProviderType = "ollama"

	// ProviderFastEmbed runs an ONNX model in process (requires cgo)
	ProviderFastEmbed ProviderType = "fastembed"
)

// Config selects and configures an embedder.
type Config struct {
	// Provider is one of static, ollama, fastembed (default static).
	Provider ProviderType `yaml:"provider"`

	// Model overrides the provider's default model.
	Model string `yaml:"model,omitempty"`

	// Host is the Ollama endpoint.
	Host string `yaml:"host,omitempty"`

	// Dimensions skips the Ollama dimension probe when set.
	Dimensions int `yaml:"dimensions,omitempty"`

	// CacheDir is where fastembed stores downloaded models.
	CacheDir string `yaml:"cache_dir,omitempty"`

	// CacheSize is the LRU size. Zero uses the default, negative disables caching.
	CacheSize int `yaml:"cache_size,omitempty"`
}

// FastEmbedConfig configures the fastembed provider.
type FastEmbedConfig struct {
	Model     string
	CacheDir  string
	MaxLength int
}

// ParseProvider normalizes a provider name. Empty means static.
func ParseProvider(name string) (ProviderType, error) {
	switch p := ProviderType(strings.ToLower(strings.TrimSpace(name))); p {
	case "":
		return ProviderStatic, nil
	case ProviderStatic, ProviderOllama, ProviderFastEmbed:
		return p, nil
	default:
		return "", fmt.Errorf("unknown embedder provider %q (expected static, ollama or fastembed)", name)
	}
}

// New creates the configured embedder, wrapped in a CachedEmbedder unless
// caching is disabled. An explicitly selected provider that fails to start
// is an error; there is no silent fallback to another provider.
func New(ctx context.Context, cfg Config) (Embedder, error) {
	provider, err := ParseProvider(string(cfg.Provider))
	if err != nil {
		return nil, err
	}

	var inner Embedder
	switch provider {
	case ProviderOllama:
		inner, err = NewOllamaEmbedder(ctx, OllamaConfig{
			Host:       cfg.Host,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
	case ProviderFastEmbed:
		inner, err = NewFastEmbedEmbedder(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
	default:
		inner = NewStaticEmbedder()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s embedder: %w", provider, err)
	}

	slog.Debug("embedder_created",
		slog.String("provider", string(provider)),
		slog.String("model", inner.ModelName()),
		slog.Int("dimensions", inner.Dimensions()))

	if cfg.CacheSize < 0 {
		return inner, nil
	}
	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}
