package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	docerrors "github.com/Aman-CERP/docsearch/internal/errors"
	"github.com/Aman-CERP/docsearch/internal/output"
	"github.com/Aman-CERP/docsearch/internal/recordstore"
	"github.com/Aman-CERP/docsearch/internal/telemetry"
)

type watchOptions struct {
	engineOptions
	metricsAddr string
	poll        bool
}

func newWatchCmd(state *rootState) *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep an engine in sync with a records file",
		Long: `Index a records file, then re-sync the engine whenever the file changes.

Changes are debounced (records.watch_debounce) and applied incrementally:
only records whose modified field or content changed are re-indexed, and
records removed from the file are deleted from the engine.`,
		Example: `  docsearch watch --records mail.json --engine keyword
  docsearch watch --records mail.json --metrics-addr :9464`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, state, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.records, "records", "r", "", "Records file (default: records.path from config)")
	cmd.Flags().StringVarP(&opts.engine, "engine", "e", "", "Engine name (default: default_engine from config)")
	cmd.Flags().StringVar(&opts.strategy, "strategy", "", "Override the engine's strategy")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (default: metrics.addr from config)")
	cmd.Flags().BoolVar(&opts.poll, "poll", false, "Poll the file instead of using filesystem notifications")

	return cmd
}

func runWatch(cmd *cobra.Command, state *rootState, opts watchOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	debounce, err := time.ParseDuration(state.cfg.Records.WatchDebounce)
	if err != nil {
		return fmt.Errorf("invalid records.watch_debounce %q: %w", state.cfg.Records.WatchDebounce, err)
	}

	metrics := telemetry.NewMetrics()
	loaded, err := state.loadEngine(ctx, opts.engineOptions, metrics)
	if err != nil {
		return err
	}
	defer func() { _ = loaded.Close() }()

	out := output.New(cmd.OutOrStdout())
	out.Successf("Indexed %d records (%d chunks) from %s into %s",
		loaded.stats.Records, loaded.stats.Upserted, loaded.source.Path(), loaded.strategy.Name())

	watcher, err := recordstore.NewWatcher(loaded.source.Path(), recordstore.WatchOptions{
		DebounceWindow: debounce,
		ForcePolling:   opts.poll,
		Logger:         state.logger,
	})
	if err != nil {
		return err
	}

	addr := opts.metricsAddr
	if addr == "" {
		addr = state.cfg.Metrics.Addr
	}

	g, gctx := errgroup.WithContext(ctx)
	if addr != "" {
		srv := &http.Server{Addr: addr, Handler: metricsMux(metrics), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			state.logger.Info("metrics_server_started", slog.String("addr", addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		err := watcher.Run(gctx, func(ctx context.Context, changes []recordstore.Change) error {
			stats, err := loaded.adapter.SyncFromDB(ctx, loaded.strategy)
			if err != nil {
				out.Errorf("Sync failed: %v", err)
				state.logger.LogAttrs(ctx, slog.LevelError, "records_sync_failed", docerrors.LogAttrs(err)...)
				return nil
			}
			out.Successf("Synced %d records: %d upserted, %d deleted, %d unchanged (%s)",
				stats.Records, stats.Upserted, stats.Deleted, stats.Unchanged, stats.Duration.Round(time.Millisecond))
			state.logger.Debug("records_changed", slog.Int("events", len(changes)))
			return nil
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	return g.Wait()
}

func metricsMux(metrics *telemetry.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}
