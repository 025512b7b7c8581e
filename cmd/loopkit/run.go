package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/loopkit/loopkit/internal/config"
	"github.com/loopkit/loopkit/internal/logging"
	"github.com/loopkit/loopkit/internal/run"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the configured task group",
	Long: `Run every task in the configured group to completion. Each task
writes its name once per step; the combined stream goes to stdout in
deterministic order. The run is recorded in the journal unless
journaling is disabled.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// buildLogger returns the run logger implied by flags and config.
// Progress logging is on by default at the configured level; --quiet
// turns it off and --log-level overrides the level.
func buildLogger(w io.Writer, cfg *config.RunnerConfig) *logging.Logger {
	if quiet {
		return logging.Discard()
	}
	level := logLevel
	if level == "" {
		level = cfg.Log.Level
	}
	return logging.New(w, level)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := buildLogger(os.Stderr, cfg)

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	if store != nil {
		defer store.Close()
	}

	report, runErr := run.Execute(ctx, cfg, run.Options{
		Out:   os.Stdout,
		Store: store,
		Log:   log,
	})

	printSummary(os.Stderr, report, runErr)
	if runErr != nil {
		return runErr
	}
	return nil
}

// printSummary writes the run outcome to w. The summary goes to stderr
// so stdout stays a pure step stream.
func printSummary(w io.Writer, report *run.Report, runErr error) {
	if report == nil {
		return
	}

	status := okStyle.Render("ok")
	if runErr != nil {
		status = failStyle.Render("failed")
	}

	fmt.Fprintf(w, "%s  %d steps, %d completed",
		status, report.Steps, report.Completed)
	if report.Failed > 0 || report.Skipped > 0 {
		fmt.Fprintf(w, ", %d failed, %d skipped", report.Failed, report.Skipped)
	}
	fmt.Fprintf(w, "  %s\n", dimStyle.Render(report.Duration.Round(0).String()))

	if report.RunID != "" {
		fmt.Fprintf(w, "%s\n", dimStyle.Render("run "+report.RunID))
	}
	if runErr != nil {
		fmt.Fprintf(w, "%s\n", failStyle.Render(runErr.Error()))
	}
}
