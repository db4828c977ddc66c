package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/yairfalse/sweeper/internal/audit"
	"github.com/yairfalse/sweeper/pkg/resource"
)

var (
	historyOutput string
	historyPath   string
	historyLimit  int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded deletions",
	Long: `Show deletions recorded in the local audit mirror (audit.local_path).
The Azure table is the system of record; the local mirror holds what this
host dispatched.`,
	Example: `  sweeper history                      # Table of all deletions
  sweeper history --limit 10           # Most recent ten
  sweeper history --output json        # JSON for scripting
  sweeper history --path ./audit.db    # Read a specific file`,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().StringVarP(&historyOutput, "output", "o", "table", "Output format: table, json, yaml")
	historyCmd.Flags().StringVar(&historyPath, "path", "", "Audit mirror file (defaults to audit.local_path)")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "Show only the most recent N records")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	path := historyPath
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path = cfg.Audit.LocalPath
	}
	if path == "" {
		return errors.New("no audit mirror configured: set audit.local_path or --path")
	}

	store, err := audit.OpenBolt(path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	records, err := store.List()
	if err != nil {
		return err
	}
	if historyLimit > 0 && len(records) > historyLimit {
		records = records[len(records)-historyLimit:]
	}

	return writeHistory(cmd.OutOrStdout(), records, historyOutput)
}

func writeHistory(w io.Writer, records []resource.DeletionRecord, format string) error {
	switch format {
	case "table":
		table := tablewriter.NewWriter(w)
		table.Header("Removed On", "Name", "Partition Key", "Row Key")
		for _, rec := range records {
			if err := table.Append([]string{
				rec.RemovedOn.UTC().Format(time.RFC3339),
				rec.Name,
				rec.PartitionKey,
				rec.RowKey,
			}); err != nil {
				return fmt.Errorf("render history: %w", err)
			}
		}
		if err := table.Render(); err != nil {
			return fmt.Errorf("render history: %w", err)
		}
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer func() { _ = enc.Close() }()
		return enc.Encode(records)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
