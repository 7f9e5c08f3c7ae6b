package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/glennpai/graphetl/internal/journal"
)

// defaultHistoryLimit caps history output when --limit is not given.
const defaultHistoryLimit = 20

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent transfers from the journal",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}

	cmd.Flags().Int("limit", defaultHistoryLimit, "maximum number of entries to show")

	return cmd
}

// historyJSONEntry is the JSON output schema for one journal entry.
type historyJSONEntry struct {
	RunID      string `json:"run_id"`
	Op         string `json:"op"`
	RemotePath string `json:"remote_path"`
	Name       string `json:"name,omitempty"`
	Bytes      int64  `json:"bytes"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	FinishedAt string `json:"finished_at"`
}

func runHistory(cmd *cobra.Command, _ []string) error {
	if resolvedCfg.JournalPath == "" {
		return fmt.Errorf("no journal configured (set journal_path or --journal)")
	}

	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	logger := buildLogger()

	jnl, err := journal.Open(ctx, resolvedCfg.JournalPath, logger)
	if err != nil {
		return err
	}
	defer jnl.Close()

	entries, err := jnl.Recent(ctx, limit)
	if err != nil {
		return err
	}

	if flagJSON {
		return printHistoryJSON(entries)
	}

	printHistoryTable(entries)

	return nil
}

func printHistoryJSON(entries []journal.Entry) error {
	out := make([]historyJSONEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyJSONEntry{
			RunID:      e.RunID,
			Op:         e.Op,
			RemotePath: e.RemotePath,
			Name:       e.Name,
			Bytes:      e.Bytes,
			Status:     e.Status,
			Error:      e.Error,
			FinishedAt: e.FinishedAt.UTC().Format(time.RFC3339),
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(out)
}

func printHistoryTable(entries []journal.Entry) {
	headers := []string{"WHEN", "OP", "PATH", "NAME", "SIZE", "STATUS"}
	rows := make([][]string, 0, len(entries))

	for _, e := range entries {
		rows = append(rows, []string{
			formatTime(e.FinishedAt),
			e.Op,
			e.RemotePath,
			e.Name,
			formatSize(e.Bytes),
			e.Status,
		})
	}

	printTable(os.Stdout, headers, rows)
}
