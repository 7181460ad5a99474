package strategy

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Aman-CERP/docsearch/internal/embed"
	docerrors "github.com/Aman-CERP/docsearch/internal/errors"
	"github.com/Aman-CERP/docsearch/internal/fuzz"
	"github.com/Aman-CERP/docsearch/internal/store"
)

// Defaults shared by every strategy.
const (
	// DefaultLimit is the maximum number of results absent a caller limit.
	DefaultLimit = 100

	// DefaultScoreCutoff is the fuzzy inclusion cutoff on the 0-100 scale.
	DefaultScoreCutoff = 70.0

	// DefaultScoreThreshold is the minimum cosine similarity for semantic hits.
	DefaultScoreThreshold = 0.5

	// RRFK is the reciprocal rank fusion constant.
	RRFK = 60
)

// Fusion selects how Hybrid merges its branches.
type Fusion string

const (
	// FusionUnion lists semantic hits first, then fuzzy-only hits.
	FusionUnion Fusion = "union"

	// FusionRRF ranks by reciprocal rank fusion across both branches.
	FusionRRF Fusion = "rrf"
)

// Config is implemented by every strategy's configuration.
type Config interface {
	// StrategyName returns the strategy the config belongs to.
	StrategyName() string

	// Validate reports an invalid configuration as ERR_102_CONFIG_INVALID.
	Validate() error
}

// SubstringConfig configures the Substring strategy.
type SubstringConfig struct {
	DefaultLimit  int  `yaml:"default_limit"`
	CaseSensitive bool `yaml:"case_sensitive"`
}

// StrategyName implements Config.
func (SubstringConfig) StrategyName() string { return NameSubstring }

// Validate implements Config.
func (c SubstringConfig) Validate() error {
	return validateLimit(NameSubstring, c.DefaultLimit)
}

// KeywordConfig configures the Keyword strategy.
type KeywordConfig struct {
	// IndexDir is the on-disk index location. Empty keeps the index in memory.
	IndexDir string `yaml:"index_dir"`

	DefaultLimit  int  `yaml:"default_limit"`
	CaseSensitive bool `yaml:"case_sensitive"`

	// Backend is bleve (default) or sqlite.
	Backend store.KeywordBackend `yaml:"backend"`
}

// StrategyName implements Config.
func (KeywordConfig) StrategyName() string { return NameKeyword }

// Validate implements Config.
func (c KeywordConfig) Validate() error {
	if err := validateLimit(NameKeyword, c.DefaultLimit); err != nil {
		return err
	}
	if _, err := store.ParseKeywordBackend(string(c.Backend)); err != nil {
		return docerrors.ConfigError("invalid keyword backend", err)
	}
	return nil
}

// FuzzyConfig configures the Fuzzy strategy.
type FuzzyConfig struct {
	// Scorer is a fuzz scorer name (default ratio).
	Scorer string `yaml:"scorer"`

	// ScoreCutoff is the inclusive minimum score, 0-100.
	ScoreCutoff float64 `yaml:"score_cutoff"`

	DefaultLimit int `yaml:"default_limit"`

	// CaseSensitive scores the raw texts. The default lowercases both sides,
	// like the other strategies; RapidFuzz itself compares case-sensitively.
	CaseSensitive bool `yaml:"case_sensitive"`
}

// StrategyName implements Config.
func (FuzzyConfig) StrategyName() string { return NameFuzzy }

// Validate implements Config.
func (c FuzzyConfig) Validate() error {
	if err := validateLimit(NameFuzzy, c.DefaultLimit); err != nil {
		return err
	}
	if c.ScoreCutoff < 0 || c.ScoreCutoff > 100 {
		return docerrors.ConfigError(fmt.Sprintf("score_cutoff must be between 0 and 100, got %v", c.ScoreCutoff), nil).
			WithDetail("strategy", NameFuzzy)
	}
	if c.Scorer != "" {
		if _, ok := fuzz.Lookup(c.Scorer); !ok {
			return docerrors.ConfigError(fmt.Sprintf("unknown scorer %q", c.Scorer), nil).
				WithDetail("strategy", NameFuzzy).
				WithSuggestion("use one of: " + strings.Join(fuzz.Names(), ", "))
		}
	}
	return nil
}

// SemanticConfig configures the Semantic strategy.
type SemanticConfig struct {
	// CollectionName names the vector collection. Empty generates one.
	CollectionName string `yaml:"collection_name"`

	// ScoreThreshold is the inclusive minimum cosine similarity, 0-1.
	ScoreThreshold float64 `yaml:"score_threshold"`

	DefaultLimit int `yaml:"default_limit"`

	// Encoder selects the embedder.
	Encoder embed.Config `yaml:"encoder"`

	// Vector selects the vector collection backend.
	Vector store.VectorConfig `yaml:"vector"`
}

// StrategyName implements Config.
func (SemanticConfig) StrategyName() string { return NameSemantic }

// Validate implements Config.
func (c SemanticConfig) Validate() error {
	if err := validateLimit(NameSemantic, c.DefaultLimit); err != nil {
		return err
	}
	if c.ScoreThreshold < 0 || c.ScoreThreshold > 1 {
		return docerrors.ConfigError(fmt.Sprintf("score_threshold must be between 0 and 1, got %v", c.ScoreThreshold), nil).
			WithDetail("strategy", NameSemantic)
	}
	if _, err := embed.ParseProvider(string(c.Encoder.Provider)); err != nil {
		return docerrors.ConfigError("invalid encoder", err)
	}
	if _, err := store.ParseVectorBackend(string(c.Vector.Backend)); err != nil {
		return docerrors.ConfigError("invalid vector backend", err)
	}
	return nil
}

// HybridConfig configures the Hybrid strategy.
type HybridConfig struct {
	Fuzzy        FuzzyConfig    `yaml:"fuzzy"`
	Semantic     SemanticConfig `yaml:"semantic"`
	DefaultLimit int            `yaml:"default_limit"`

	// Fusion is union (default) or rrf.
	Fusion Fusion `yaml:"fusion"`
}

// StrategyName implements Config.
func (HybridConfig) StrategyName() string { return NameHybrid }

// Validate implements Config.
func (c HybridConfig) Validate() error {
	if err := validateLimit(NameHybrid, c.DefaultLimit); err != nil {
		return err
	}
	switch c.Fusion {
	case "", FusionUnion, FusionRRF:
	default:
		return docerrors.ConfigError(fmt.Sprintf("unknown fusion %q (expected union or rrf)", c.Fusion), nil).
			WithDetail("strategy", NameHybrid)
	}
	if err := c.Fuzzy.Validate(); err != nil {
		return err
	}
	return c.Semantic.Validate()
}

func validateLimit(name string, limit int) error {
	if limit < 0 {
		return docerrors.ConfigError(fmt.Sprintf("default_limit must not be negative, got %d", limit), nil).
			WithDetail("strategy", name)
	}
	return nil
}

// limitOrDefault treats an unset limit as DefaultLimit.
func limitOrDefault(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}

// DefaultSubstringConfig returns the Substring defaults.
func DefaultSubstringConfig() SubstringConfig {
	return SubstringConfig{DefaultLimit: DefaultLimit}
}

// DefaultKeywordConfig returns the Keyword defaults: an in-memory Bleve index.
func DefaultKeywordConfig() KeywordConfig {
	return KeywordConfig{DefaultLimit: DefaultLimit, Backend: store.KeywordBackendBleve}
}

// DefaultFuzzyConfig returns the Fuzzy defaults.
func DefaultFuzzyConfig() FuzzyConfig {
	return FuzzyConfig{
		Scorer:       fuzz.NameRatio,
		ScoreCutoff:  DefaultScoreCutoff,
		DefaultLimit: DefaultLimit,
	}
}

// DefaultSemanticConfig returns the Semantic defaults: static encoder, HNSW
// collection, generated collection name.
func DefaultSemanticConfig() SemanticConfig {
	return SemanticConfig{
		ScoreThreshold: DefaultScoreThreshold,
		DefaultLimit:   DefaultLimit,
		Encoder:        embed.Config{Provider: embed.ProviderStatic},
		Vector:         store.VectorConfig{Backend: store.VectorBackendHNSW},
	}
}

// DefaultHybridConfig returns the Hybrid defaults.
func DefaultHybridConfig() HybridConfig {
	return HybridConfig{
		Fuzzy:        DefaultFuzzyConfig(),
		Semantic:     DefaultSemanticConfig(),
		DefaultLimit: DefaultLimit,
		Fusion:       FusionUnion,
	}
}

// DefaultConfig returns the defaults for a strategy name.
func DefaultConfig(name string) (Config, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case NameSubstring:
		return DefaultSubstringConfig(), nil
	case NameKeyword:
		return DefaultKeywordConfig(), nil
	case NameFuzzy:
		return DefaultFuzzyConfig(), nil
	case NameSemantic:
		return DefaultSemanticConfig(), nil
	case NameHybrid:
		return DefaultHybridConfig(), nil
	default:
		return nil, unknownStrategy(name)
	}
}

func unknownStrategy(name string) error {
	return docerrors.ConfigError(fmt.Sprintf("unknown strategy %q", name), nil).
		WithSuggestion("use one of: " + strings.Join(Names(), ", "))
}

// generatedCollectionName returns default_collection_<6 hex chars>.
func generatedCollectionName() string {
	return "default_collection_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
}
