// Package cmd provides the CLI commands for docsearch.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docsearch/internal/config"
	docerrors "github.com/Aman-CERP/docsearch/internal/errors"
	"github.com/Aman-CERP/docsearch/internal/logging"
	"github.com/Aman-CERP/docsearch/internal/profiling"
	"github.com/Aman-CERP/docsearch/pkg/version"
)

// rootState is shared by every subcommand of one root command.
type rootState struct {
	configPath string
	debug      bool
	profile    profiling.Options

	profiler       *profiling.Session

	cfg            *config.Config
	logger         *slog.Logger
	loggingCleanup func()
}

// NewRootCmd creates the root command for the docsearch CLI.
func NewRootCmd() *cobra.Command {
	state := &rootState{}

	cmd := &cobra.Command{
		Use:   "docsearch",
		Short: "Search records with interchangeable strategies",
		Long: `docsearch indexes records from a JSON file with one of several search
strategies (substring, keyword, fuzzy, semantic, hybrid) and queries them
through named engines.

Configuration precedence (lowest to highest):
  1. Defaults
  2. User config (~/.config/docsearch/config.yaml)
  3. Project config (.docsearch.yaml)
  4. Environment variables (DOCSEARCH_*)`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate(version.String() + "\n")

	cmd.PersistentFlags().StringVar(&state.configPath, "config", "", "Use this config file instead of the user and project files")
	cmd.PersistentFlags().BoolVar(&state.debug, "debug", false, "Enable debug logging to ~/.docsearch/logs/")
	cmd.PersistentFlags().StringVar(&state.profile.CPUPath, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&state.profile.HeapPath, "profile-mem", "", "Write memory profile to file")

	cmd.PersistentPreRunE = state.setup
	cmd.PersistentPostRunE = state.teardown

	cmd.AddCommand(newSearchCmd(state))
	cmd.AddCommand(newWatchCmd(state))
	cmd.AddCommand(newConfigCmd(state))
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command and prints a failure with its error code
// and hint.
func Execute() error {
	root := NewRootCmd()
	err := root.Execute()
	if err != nil {
		_, _ = fmt.Fprint(root.ErrOrStderr(), docerrors.FormatForCLI(err))
	}
	return err
}

// setup loads the configuration and installs the logger.
func (s *rootState) setup(_ *cobra.Command, _ []string) error {
	cfg, err := s.loadConfig()
	if err != nil {
		return err
	}
	s.cfg = cfg

	logCfg := cfg.Logging
	if s.debug {
		logCfg = logging.DebugConfig(logCfg)
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	s.logger = logger
	s.loggingCleanup = cleanup
	slog.SetDefault(logger)

	if s.debug {
		logger.Debug("debug_logging_enabled",
			slog.String("log_file", logCfg.FilePath),
			slog.String("version", version.Version))
	}

	profiler, err := profiling.Start(s.profile)
	if err != nil {
		return err
	}
	s.profiler = profiler
	return nil
}

func (s *rootState) teardown(_ *cobra.Command, _ []string) error {
	var err error
	if s.profiler != nil {
		err = s.profiler.Stop()
		s.profiler = nil
	}
	if s.loggingCleanup != nil {
		s.loggingCleanup()
		s.loggingCleanup = nil
	}
	return err
}

func (s *rootState) loadConfig() (*config.Config, error) {
	if s.configPath != "" {
		return config.LoadFile(s.configPath)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return config.Load(cwd)
}
