package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yairfalse/sweeper/pkg/resource"
)

var (
	onceWait    bool
	onceTimeout time.Duration
)

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single cleanup pass and exit",
	Long: `Run one cleanup pass. Deletes are dispatched and the command exits
without waiting for them unless --wait is given.`,
	Example: `  sweeper once --dry-run    # Show which groups have expired
  sweeper once --wait       # Delete and wait for Azure to finish`,
	RunE: runOnce,
}

func init() {
	rootCmd.AddCommand(onceCmd)

	onceCmd.Flags().BoolVar(&onceWait, "wait", false, "Wait for dispatched deletes to complete")
	onceCmd.Flags().DurationVar(&onceTimeout, "timeout", 30*time.Minute, "Upper bound for --wait")
}

func runOnce(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()

	result, err := a.coordinator.Reconcile(ctx)
	if err != nil {
		return fmt.Errorf("cleanup pass: %w", err)
	}
	printPassResult(cmd.OutOrStdout(), result)

	if onceWait {
		waitCtx, cancel := context.WithTimeout(ctx, onceTimeout)
		defer cancel()
		if err := a.coordinator.Wait(waitCtx); err != nil {
			return fmt.Errorf("wait for deletes: %w", err)
		}
		log.Info().Int("deletes", len(result.Dispatched)).Msg("all deletes completed")
	}
	return nil
}

func printPassResult(w io.Writer, r resource.PassResult) {
	fmt.Fprintf(w, "Cutoff:     %s\n", r.Cutoff.Format(time.RFC3339))
	fmt.Fprintf(w, "Expired:    %d\n", r.Eligible)
	fmt.Fprintf(w, "Dispatched: %d\n", len(r.Dispatched))
	for _, name := range r.Dispatched {
		fmt.Fprintf(w, "  - %s\n", name)
	}
	fmt.Fprintf(w, "In flight:  %d\n", len(r.InFlight))
	if len(r.Failed) > 0 {
		fmt.Fprintf(w, "Failed:     %d\n", len(r.Failed))
		for _, name := range r.Failed {
			fmt.Fprintf(w, "  - %s\n", name)
		}
	}
	fmt.Fprintf(w, "Duration:   %s\n", r.Duration.Round(time.Millisecond))
}
