package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/loopkit/loopkit/internal/config"
	"github.com/loopkit/loopkit/internal/journal"
)

var (
	cfgPath     string
	journalPath string
	noJournal   bool
	logLevel    string
	quiet       bool
)

var rootCmd = &cobra.Command{
	Use:   "loopkit",
	Short: "Cooperative task group runner",
	Long: `Loopkit runs a group of named, stepwise tasks on a cooperative
single-threaded scheduler. Tasks yield between steps; a task that
suspends for an interval never resumes early, and ties are broken by
submission order, so a group's output is fully deterministic.`,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the root command under ctx.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "project config file (default .loopkit/config.json)")
	rootCmd.PersistentFlags().StringVar(&journalPath, "journal", "", "journal database path")
	rootCmd.PersistentFlags().BoolVar(&noJournal, "no-journal", false, "do not record this run in the journal")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: DEBUG, INFO, WARN or ERROR")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress run progress logging")
}

// loadConfig resolves the merged configuration, honoring --config.
func loadConfig() (*config.RunnerConfig, error) {
	projectPath := cfgPath
	if projectPath == "" {
		projectPath = config.DefaultProjectPath()
	}
	return config.Load(config.DefaultGlobalPath(), projectPath)
}

// openStore opens the journal named by flags and config, or returns
// (nil, nil) when journaling is off.
func openStore(ctx context.Context, cfg *config.RunnerConfig) (journal.Store, error) {
	if noJournal || !cfg.Journal.Enabled {
		return nil, nil
	}
	path := journalPath
	if path == "" {
		path = cfg.Journal.Path
	}
	if path == "" {
		path = config.DefaultJournalPath()
	}
	return journal.NewSQLiteStore(ctx, path)
}
