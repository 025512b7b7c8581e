package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loopkit/loopkit/internal/journal"
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show journaled runs",
	Long: `List recorded runs, most recent first. With a run ID, print that
run's step sequence instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	if store == nil {
		return fmt.Errorf("journaling is disabled; nothing to show")
	}
	defer store.Close()

	if len(args) == 1 {
		return printRunSteps(cmd, store, args[0])
	}
	return printRuns(cmd, store)
}

func printRuns(cmd *cobra.Command, store journal.Store) error {
	runs, err := store.ListRuns(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(os.Stderr, "no recorded runs")
		return nil
	}

	for _, r := range runs {
		status := okStyle.Render(r.Status)
		if r.Status != journal.RunStatusCompleted {
			status = failStyle.Render(r.Status)
		}
		fmt.Printf("%s  %s  %s", r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), status)
		if r.Error != "" {
			fmt.Printf("  %s", dimStyle.Render(r.Error))
		}
		fmt.Println()
	}
	return nil
}

func printRunSteps(cmd *cobra.Command, store journal.Store, runID string) error {
	steps, err := store.RunSteps(cmd.Context(), runID)
	if err != nil {
		return fmt.Errorf("reading run %s: %w", runID, err)
	}
	if len(steps) == 0 {
		fmt.Fprintln(os.Stderr, "no recorded steps for this run")
		return nil
	}

	for _, s := range steps {
		fmt.Printf("%4d  %s  %s\n", s.Seq, s.Task, dimStyle.Render(s.At.Format("15:04:05.000")))
	}
	return nil
}
