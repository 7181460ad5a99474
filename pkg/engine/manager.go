// Package engine binds named search engines to strategy instances.
//
// An engine name such as "keyword" or "fuzzy" resolves to a strategy through
// the configured bindings. Instances are created on first use and opened
// before they are handed out. GetStrategyInstance returns one shared instance
// per strategy name; OverrideStrategyForEngine gives an engine its own.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/Aman-CERP/docsearch/internal/config"
	"github.com/Aman-CERP/docsearch/internal/embed"
	docerrors "github.com/Aman-CERP/docsearch/internal/errors"
	"github.com/Aman-CERP/docsearch/internal/telemetry"
	"github.com/Aman-CERP/docsearch/pkg/strategy"
)

// ErrClosed is returned by every call after Close.
var ErrClosed = errors.New("engine manager is closed")

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used by the manager and the strategies it builds.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics records every search and mutation of the managed strategies.
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithEmbedder shares one embedder between every semantic strategy the
// manager builds. The manager does not close it.
func WithEmbedder(e embed.Embedder) Option {
	return func(m *Manager) { m.embedder = e }
}

// Manager is the engine registry. It is safe for concurrent use.
type Manager struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	embedder embed.Embedder

	mu        sync.Mutex
	engines   map[string]strategy.Strategy
	instances map[string]strategy.Strategy
	closed    bool
}

// New creates a manager. A nil cfg uses config.NewConfig.
func New(cfg *config.Config, opts ...Option) (*Manager, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{
		cfg:       cfg,
		logger:    slog.Default(),
		engines:   make(map[string]strategy.Strategy),
		instances: make(map[string]strategy.Strategy),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// DefaultEngine returns the engine used when a caller names none.
func (m *Manager) DefaultEngine() string {
	return m.cfg.DefaultEngine
}

// Engines returns the configured engine names in order.
func (m *Manager) Engines() []string {
	names := make([]string, 0, len(m.cfg.Engines))
	for name := range m.cfg.Engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetEngine returns the strategy bound to an engine, binding the shared
// instance of its configured strategy on first use. An empty name selects
// the default engine.
func (m *Manager) GetEngine(ctx context.Context, engineName string) (strategy.Strategy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	engineName = m.resolveEngine(engineName)
	if s, ok := m.engines[engineName]; ok {
		return s, nil
	}
	strategyName, ok := m.cfg.Engines[engineName]
	if !ok {
		return nil, unknownEngine(engineName)
	}
	s, err := m.sharedInstance(ctx, strategyName)
	if err != nil {
		return nil, err
	}
	m.engines[engineName] = s
	m.logger.Debug("engine_bound",
		slog.String("engine", engineName),
		slog.String("strategy", strategyName))
	return s, nil
}

// GetStrategyInstance returns the shared, open instance for a strategy name.
// Engines bound through GetEngine use the same instance.
func (m *Manager) GetStrategyInstance(ctx context.Context, strategyName string) (strategy.Strategy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	return m.sharedInstance(ctx, strategyName)
}

// OverrideStrategyForEngine binds a new, open instance to an engine and
// returns it. An empty strategyName keeps the engine's current strategy
// type; a nil cfg uses the configured defaults for that strategy.
//
// The previous instance is cleared and closed unless another engine is
// still bound to it, in which case it is only unbound from this engine.
func (m *Manager) OverrideStrategyForEngine(ctx context.Context, engineName, strategyName string, cfg strategy.Config) (strategy.Strategy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	engineName = m.resolveEngine(engineName)
	previous, bound := m.engines[engineName]
	configured, known := m.cfg.Engines[engineName]
	if !bound && !known {
		return nil, unknownEngine(engineName)
	}

	strategyName = strings.ToLower(strings.TrimSpace(strategyName))
	if strategyName == "" {
		if bound {
			strategyName = previous.Name()
		} else {
			strategyName = configured
		}
	}

	s, err := m.build(ctx, strategyName, cfg)
	if err != nil {
		return nil, err
	}
	m.engines[engineName] = s

	if bound {
		m.release(ctx, previous)
	}
	m.logger.Info("engine_strategy_overridden",
		slog.String("engine", engineName),
		slog.String("strategy", strategyName))
	return s, nil
}

// ResetAllEngines drops every binding and shared instance, clearing and
// closing each instance once. The next GetEngine builds fresh instances.
func (m *Manager) ResetAllEngines(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	return m.drop(ctx, true)
}

// Close closes every instance without clearing it. Further calls fail with
// ErrClosed; closing twice is a no-op.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.drop(context.Background(), false)
}

func (m *Manager) resolveEngine(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return m.cfg.DefaultEngine
	}
	return name
}

// sharedInstance requires m.mu.
func (m *Manager) sharedInstance(ctx context.Context, strategyName string) (strategy.Strategy, error) {
	strategyName = strings.ToLower(strings.TrimSpace(strategyName))
	if s, ok := m.instances[strategyName]; ok {
		return s, nil
	}
	s, err := m.build(ctx, strategyName, nil)
	if err != nil {
		return nil, err
	}
	m.instances[strategyName] = s
	return s, nil
}

// build creates and opens an instance. A nil cfg uses the configured
// defaults for strategyName.
func (m *Manager) build(ctx context.Context, strategyName string, cfg strategy.Config) (strategy.Strategy, error) {
	if cfg == nil {
		def, err := m.cfg.Strategies.For(strategyName)
		if err != nil {
			return nil, docerrors.ConfigError(err.Error(), nil)
		}
		cfg = def
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []strategy.Option{strategy.WithLogger(m.logger)}
	if m.embedder != nil {
		opts = append(opts, strategy.WithEmbedder(m.embedder))
	}
	s, err := strategy.New(strategyName, cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.Open(ctx); err != nil {
		return nil, fmt.Errorf("failed to open %s strategy: %w", strategyName, err)
	}
	return strategy.Instrument(s, m.metrics), nil
}

// release clears and closes s unless another engine is still bound to it.
// A released shared instance leaves the registry too. Requires m.mu.
func (m *Manager) release(ctx context.Context, s strategy.Strategy) {
	for _, other := range m.engines {
		if other == s {
			return
		}
	}
	for name, shared := range m.instances {
		if shared == s {
			delete(m.instances, name)
		}
	}
	m.shutdown(ctx, s, true)
}

// drop empties both registries. Requires m.mu.
func (m *Manager) drop(ctx context.Context, clear bool) error {
	seen := make(map[strategy.Strategy]bool)
	var errs []error
	for _, registry := range []map[string]strategy.Strategy{m.engines, m.instances} {
		for _, s := range registry {
			if seen[s] {
				continue
			}
			seen[s] = true
			errs = append(errs, m.shutdown(ctx, s, clear))
		}
	}
	m.engines = make(map[string]strategy.Strategy)
	m.instances = make(map[string]strategy.Strategy)
	return errors.Join(errs...)
}

func (m *Manager) shutdown(ctx context.Context, s strategy.Strategy, clear bool) error {
	var clearErr error
	if clear {
		if clearErr = s.ClearIndex(ctx); clearErr != nil {
			m.logger.LogAttrs(ctx, slog.LevelWarn, "engine_clear_failed",
				append([]slog.Attr{slog.String("strategy", s.Name())}, docerrors.LogAttrs(clearErr)...)...)
		}
	}
	closeErr := s.Close()
	if closeErr != nil {
		m.logger.LogAttrs(ctx, slog.LevelWarn, "engine_close_failed",
			append([]slog.Attr{slog.String("strategy", s.Name())}, docerrors.LogAttrs(closeErr)...)...)
	}
	return errors.Join(clearErr, closeErr)
}

func unknownEngine(name string) error {
	return docerrors.ConfigError(fmt.Sprintf("unknown engine %q", name), nil).
		WithSuggestion("configure it under engines")
}
