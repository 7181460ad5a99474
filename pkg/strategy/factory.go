package strategy

import (
	"fmt"
	"strings"

	docerrors "github.com/Aman-CERP/docsearch/internal/errors"
)

// New builds an unopened strategy. A nil cfg uses the defaults for name.
// The config must belong to the named strategy and pass Validate.
func New(name string, cfg Config, opts ...Option) (Strategy, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if cfg == nil {
		def, err := DefaultConfig(name)
		if err != nil {
			return nil, err
		}
		cfg = def
	}
	if cfg.StrategyName() != name {
		return nil, docerrors.ConfigError(
			fmt.Sprintf("config for %q cannot configure strategy %q", cfg.StrategyName(), name), nil)
	}

	switch c := cfg.(type) {
	case SubstringConfig:
		return NewSubstring(c, opts...)
	case KeywordConfig:
		return NewKeyword(c, opts...)
	case FuzzyConfig:
		return NewFuzzy(c, opts...)
	case SemanticConfig:
		return NewSemantic(c, opts...)
	case HybridConfig:
		return NewHybrid(c, opts...)
	default:
		return nil, unknownStrategy(name)
	}
}
