package main

import (
	"encoding/json"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/glennpai/graphetl/internal/graph"
)

func newFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <remote-path>",
		Short: "Download every file under a remote folder",
		Args:  cobra.ExactArgs(1),
		RunE:  runFetch,
	}
}

func newUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <remote-path> <local-file>",
		Short: "Upload a local file to a remote folder",
		Args:  cobra.ExactArgs(2),
		RunE:  runUpload,
	}
}

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <remote-path> <filename>",
		Short: "Delete a file from a remote folder",
		Args:  cobra.ExactArgs(2),
		RunE:  runRm,
	}
}

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [remote-path]",
		Short: "List files and folders in a remote folder",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLs,
	}
}

// fetchJSONOutput is the JSON output schema for the fetch command.
type fetchJSONOutput struct {
	RemotePath string   `json:"remote_path"`
	Files      []string `json:"files"`
}

func runFetch(cmd *cobra.Command, args []string) error {
	remotePath := args[0]
	ctx := cmd.Context()

	e, jnl, logger, err := newETL(ctx)
	if err != nil {
		return err
	}

	if jnl != nil {
		defer jnl.Close()
	}

	logger.Debug("fetch", "remote_path", remotePath)

	files, err := e.Fetch(ctx, remotePath)
	if err != nil {
		return err
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(fetchJSONOutput{RemotePath: remotePath, Files: files})
	}

	for _, name := range files {
		statusf("Fetched %s\n", name)
	}

	statusf("%d file(s) fetched from %s\n", len(files), remotePath)

	return nil
}

func runUpload(cmd *cobra.Command, args []string) error {
	remotePath := args[0]
	localPath := args[1]
	ctx := cmd.Context()

	e, jnl, logger, err := newETL(ctx)
	if err != nil {
		return err
	}

	if jnl != nil {
		defer jnl.Close()
	}

	logger.Debug("upload", "remote_path", remotePath, "local_path", localPath)

	if err := e.Upload(ctx, remotePath, localPath); err != nil {
		return err
	}

	statusf("Uploaded %s to %s\n", localPath, remotePath)

	return nil
}

func runRm(cmd *cobra.Command, args []string) error {
	remotePath := args[0]
	filename := args[1]
	ctx := cmd.Context()

	e, jnl, logger, err := newETL(ctx)
	if err != nil {
		return err
	}

	if jnl != nil {
		defer jnl.Close()
	}

	logger.Debug("rm", "remote_path", remotePath, "filename", filename)

	if err := e.Delete(ctx, remotePath, filename); err != nil {
		return err
	}

	statusf("Deleted %s from %s\n", filename, remotePath)

	return nil
}

// lsJSONItem is the JSON output schema for a single item in ls output.
type lsJSONItem struct {
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	IsFolder   bool   `json:"is_folder"`
	ModifiedAt string `json:"modified_at"`
	ID         string `json:"id"`
}

func runLs(cmd *cobra.Command, args []string) error {
	remotePath := ""
	if len(args) > 0 {
		remotePath = args[0]
	}

	ctx := cmd.Context()
	logger := buildLogger()

	client, drive, err := newGraphClient(ctx, logger)
	if err != nil {
		return err
	}

	items, err := client.ListChildrenByPath(ctx, drive, graph.NormalizePath(remotePath))
	if err != nil {
		return err
	}

	if flagJSON {
		return printItemsJSON(items)
	}

	printItemsTable(items)

	return nil
}

func printItemsJSON(items []graph.Item) error {
	out := make([]lsJSONItem, 0, len(items))
	for i := range items {
		out = append(out, lsJSONItem{
			Name:       items[i].Name,
			Size:       items[i].Size,
			IsFolder:   items[i].IsFolder,
			ModifiedAt: items[i].ModifiedAt.UTC().Format(time.RFC3339),
			ID:         items[i].ID,
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(out)
}

func printItemsTable(items []graph.Item) {
	// Sort: folders first, then alphabetical.
	sort.Slice(items, func(i, j int) bool {
		if items[i].IsFolder != items[j].IsFolder {
			return items[i].IsFolder
		}

		return items[i].Name < items[j].Name
	})

	headers := []string{"NAME", "SIZE", "MODIFIED"}
	rows := make([][]string, 0, len(items))

	for i := range items {
		name := items[i].Name
		if items[i].IsFolder {
			name += "/"
		}

		rows = append(rows, []string{name, formatSize(items[i].Size), formatTime(items[i].ModifiedAt)})
	}

	printTable(os.Stdout, headers, rows)
}
