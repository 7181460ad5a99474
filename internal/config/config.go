package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/docsearch/internal/embed"
	"github.com/Aman-CERP/docsearch/internal/logging"
	"github.com/Aman-CERP/docsearch/internal/store"
	"github.com/Aman-CERP/docsearch/pkg/strategy"
)

// Engine names known to the engine manager.
const (
	EngineKeyword  = "keyword"
	EngineFuzzy    = "fuzzy"
	EngineSemantic = "semantic"
)

// ProjectFileName is the per-directory config file.
const ProjectFileName = ".docsearch.yaml"

// Config is the complete docsearch configuration.
type Config struct {
	Version int `yaml:"version"`

	// DefaultEngine is used when a caller names no engine.
	DefaultEngine string `yaml:"default_engine"`

	// Engines binds each engine name to a strategy name.
	Engines map[string]string `yaml:"engines"`

	Strategies StrategiesConfig `yaml:"strategies"`
	Records    RecordsConfig    `yaml:"records"`
	Logging    logging.Config   `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// StrategiesConfig holds the default configuration of every strategy.
type StrategiesConfig struct {
	Substring strategy.SubstringConfig `yaml:"substring"`
	Keyword   strategy.KeywordConfig   `yaml:"keyword"`
	Fuzzy     strategy.FuzzyConfig     `yaml:"fuzzy"`
	Semantic  strategy.SemanticConfig  `yaml:"semantic"`
	Hybrid    strategy.HybridConfig    `yaml:"hybrid"`
}

// For returns the configured defaults for a strategy name.
func (s StrategiesConfig) For(name string) (strategy.Config, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case strategy.NameSubstring:
		return s.Substring, nil
	case strategy.NameKeyword:
		return s.Keyword, nil
	case strategy.NameFuzzy:
		return s.Fuzzy, nil
	case strategy.NameSemantic:
		return s.Semantic, nil
	case strategy.NameHybrid:
		return s.Hybrid, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q (expected one of %s)", name, strings.Join(strategy.Names(), ", "))
	}
}

// RecordsConfig describes the JSON records file read by the CLI.
type RecordsConfig struct {
	Path           string   `yaml:"path"`
	IDField        string   `yaml:"id_field"`
	ModifiedField  string   `yaml:"modified_field"`
	TextFields     []string `yaml:"text_fields"`
	MetadataFields []string `yaml:"metadata_fields"`

	// WatchDebounce is a duration string such as "200ms".
	WatchDebounce string `yaml:"watch_debounce"`
}

// MetricsConfig configures the Prometheus endpoint of the watch command.
type MetricsConfig struct {
	// Addr is the listen address, for example ":9464". Empty disables it.
	Addr string `yaml:"addr"`
}

// NewConfig returns a Config with the defaults.
func NewConfig() *Config {
	return &Config{
		Version:       1,
		DefaultEngine: EngineKeyword,
		Engines: map[string]string{
			EngineKeyword:  strategy.NameKeyword,
			EngineFuzzy:    strategy.NameFuzzy,
			EngineSemantic: strategy.NameSemantic,
		},
		Strategies: StrategiesConfig{
			Substring: strategy.DefaultSubstringConfig(),
			Keyword:   strategy.DefaultKeywordConfig(),
			Fuzzy:     strategy.DefaultFuzzyConfig(),
			Semantic:  strategy.DefaultSemanticConfig(),
			Hybrid:    strategy.DefaultHybridConfig(),
		},
		Records: RecordsConfig{
			IDField:        "id",
			ModifiedField:  "updated_at",
			TextFields:     []string{"text"},
			MetadataFields: []string{},
			WatchDebounce:  "200ms",
		},
		Logging: logging.DefaultConfig(),
	}
}

// GetUserConfigPath returns the user-level config file:
//   - $XDG_CONFIG_HOME/docsearch/config.yaml when XDG_CONFIG_HOME is set
//   - ~/.config/docsearch/config.yaml otherwise
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "docsearch", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "docsearch", "config.yaml")
	}
	return filepath.Join(home, ".config", "docsearch", "config.yaml")
}

// Load builds the configuration for dir. In order of increasing precedence:
//  1. defaults
//  2. user config (~/.config/docsearch/config.yaml)
//  3. project config (<dir>/.docsearch.yaml)
//  4. DOCSEARCH_* environment variables
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.loadYAMLIfExists(GetUserConfigPath()); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}
	if err := cfg.loadYAMLIfExists(filepath.Join(dir, ProjectFileName)); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFile applies a single YAML file on top of the defaults and the
// environment. Used for an explicit --config path.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadYAMLIfExists(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return c.loadYAML(path)
}

// loadYAML decodes path over the current values. Keys absent from the file
// keep their current value; engine bindings are merged key by key.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies DOCSEARCH_* environment variables. Malformed
// numeric values are ignored.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DOCSEARCH_DEFAULT_ENGINE"); v != "" {
		c.DefaultEngine = strings.ToLower(v)
	}
	if v := os.Getenv("DOCSEARCH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("DOCSEARCH_LOG_FILE"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("DOCSEARCH_FUZZY_SCORER"); v != "" {
		c.Strategies.Fuzzy.Scorer = v
		c.Strategies.Hybrid.Fuzzy.Scorer = v
	}
	if v := os.Getenv("DOCSEARCH_FUZZY_SCORE_CUTOFF"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			c.Strategies.Fuzzy.ScoreCutoff = f
			c.Strategies.Hybrid.Fuzzy.ScoreCutoff = f
		}
	}
	if v := os.Getenv("DOCSEARCH_SEMANTIC_SCORE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			c.Strategies.Semantic.ScoreThreshold = f
			c.Strategies.Hybrid.Semantic.ScoreThreshold = f
		}
	}
	if v := os.Getenv("DOCSEARCH_EMBEDDER"); v != "" {
		c.Strategies.Semantic.Encoder.Provider = embed.ProviderType(strings.ToLower(v))
		c.Strategies.Hybrid.Semantic.Encoder.Provider = c.Strategies.Semantic.Encoder.Provider
	}
	if v := os.Getenv("DOCSEARCH_OLLAMA_HOST"); v != "" {
		c.Strategies.Semantic.Encoder.Host = v
		c.Strategies.Hybrid.Semantic.Encoder.Host = v
	}
	if v := os.Getenv("DOCSEARCH_VECTOR_BACKEND"); v != "" {
		c.Strategies.Semantic.Vector.Backend = store.VectorBackend(strings.ToLower(v))
		c.Strategies.Hybrid.Semantic.Vector.Backend = c.Strategies.Semantic.Vector.Backend
	}
	if v := os.Getenv("DOCSEARCH_QDRANT_HOST"); v != "" {
		c.Strategies.Semantic.Vector.Qdrant.Host = v
		c.Strategies.Hybrid.Semantic.Vector.Qdrant.Host = v
	}
	if v := os.Getenv("DOCSEARCH_KEYWORD_BACKEND"); v != "" {
		c.Strategies.Keyword.Backend = store.KeywordBackend(strings.ToLower(v))
	}
	if v := os.Getenv("DOCSEARCH_KEYWORD_INDEX_DIR"); v != "" {
		c.Strategies.Keyword.IndexDir = v
	}
	if v := os.Getenv("DOCSEARCH_METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if len(c.Engines) == 0 {
		return fmt.Errorf("engines must bind at least one engine")
	}
	for engine, name := range c.Engines {
		if !slices.Contains(strategy.Names(), strings.ToLower(name)) {
			return fmt.Errorf("engines.%s: unknown strategy %q", engine, name)
		}
	}
	if _, ok := c.Engines[c.DefaultEngine]; !ok {
		return fmt.Errorf("default_engine %q is not bound in engines", c.DefaultEngine)
	}

	for _, name := range strategy.Names() {
		sc, err := c.Strategies.For(name)
		if err != nil {
			return err
		}
		if err := sc.Validate(); err != nil {
			return fmt.Errorf("strategies.%s: %w", name, err)
		}
	}

	if c.Records.IDField == "" {
		return fmt.Errorf("records.id_field must not be empty")
	}

	validLevels := []string{"debug", "info", "warn", "warning", "error"}
	if !slices.Contains(validLevels, strings.ToLower(c.Logging.Level)) {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}
	return nil
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
