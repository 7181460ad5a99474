package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Aman-CERP/docsearch/internal/config"
	"github.com/Aman-CERP/docsearch/internal/recordstore"
	"github.com/Aman-CERP/docsearch/internal/telemetry"
	"github.com/Aman-CERP/docsearch/pkg/adapter"
	"github.com/Aman-CERP/docsearch/pkg/document"
	"github.com/Aman-CERP/docsearch/pkg/engine"
	"github.com/Aman-CERP/docsearch/pkg/strategy"
)

// engineOptions selects the records file and the engine to load it into.
type engineOptions struct {
	records  string
	engine   string
	strategy string
}

// loadedEngine is an engine populated from a records file.
type loadedEngine struct {
	manager  *engine.Manager
	strategy strategy.Strategy
	adapter  *adapter.ServiceAdapter
	source   *recordstore.FileSource
	stats    adapter.SyncStats
}

func (l *loadedEngine) Close() error {
	return l.manager.Close()
}

// loadEngine builds the engine named in opts and indexes every record of
// the records file into it.
func (s *rootState) loadEngine(ctx context.Context, opts engineOptions, metrics *telemetry.Metrics) (*loadedEngine, error) {
	path := opts.records
	if path == "" {
		path = s.cfg.Records.Path
	}
	if path == "" {
		return nil, fmt.Errorf("no records file: pass --records or set records.path")
	}

	manager, err := engine.New(s.cfg, engine.WithLogger(s.logger), engine.WithMetrics(metrics))
	if err != nil {
		return nil, err
	}

	var st strategy.Strategy
	if opts.strategy != "" {
		st, err = manager.OverrideStrategyForEngine(ctx, opts.engine, opts.strategy, nil)
	} else {
		st, err = manager.GetEngine(ctx, opts.engine)
	}
	if err != nil {
		_ = manager.Close()
		return nil, err
	}

	source := recordstore.NewFileSource(path,
		recordstore.WithIDField(s.cfg.Records.IDField),
		recordstore.WithModifiedField(s.cfg.Records.ModifiedField))
	ad, err := adapter.New(source,
		recordstore.FieldMapper(s.cfg.Records.TextFields, s.cfg.Records.MetadataFields),
		adapter.WithLogger(s.logger))
	if err != nil {
		_ = manager.Close()
		return nil, err
	}

	stats, err := ad.InitFromDB(ctx, st)
	if err != nil {
		_ = manager.Close()
		return nil, fmt.Errorf("failed to index %s: %w", path, err)
	}

	return &loadedEngine{manager: manager, strategy: st, adapter: ad, source: source, stats: stats}, nil
}

// parseFilters turns "key=value" pairs into a metadata filter. Values that
// parse as integers, floats or booleans are matched as such.
func parseFilters(pairs []string) (document.Filter, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	filter := make(document.Filter, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid filter %q: expected key=value", pair)
		}
		filter[key] = parseScalar(value)
	}
	return filter, nil
}

func parseScalar(s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}

// engineName resolves an empty engine flag to the configured default.
func engineName(cfg *config.Config, name string) string {
	if name == "" {
		return cfg.DefaultEngine
	}
	return name
}
