package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/glennpai/graphetl/internal/config"
	"github.com/glennpai/graphetl/internal/etl"
	"github.com/glennpai/graphetl/internal/graph"
	"github.com/glennpai/graphetl/internal/journal"
)

// version is set at build time via ldflags.
var version = "dev"

// graphBaseURL is the Microsoft Graph API endpoint.
const graphBaseURL = "https://graph.microsoft.com/v1.0"

// httpClientTimeout is the default timeout for HTTP requests.
// Prevents hung connections from blocking CLI commands indefinitely.
const httpClientTimeout = 5 * time.Minute

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagDest       string
	flagJournal    string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// resolvedCfg holds the effective configuration loaded by PersistentPreRunE.
var resolvedCfg *config.Config

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "graphetl",
		Short:   "SharePoint document library ETL helper",
		Long:    "Fetch, upload, and delete files in a SharePoint document library via the Microsoft Graph API.",
		Version: version,
		// Silence Cobra's default error/usage printing — we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadConfig()
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagDest, "dest", "", "destination directory for fetched files")
	cmd.PersistentFlags().StringVar(&flagJournal, "journal", "", "transfer journal database path")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newFetchCmd())
	cmd.AddCommand(newUploadCmd())
	cmd.AddCommand(newRmCmd())
	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newHistoryCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the override chain
// and stores the result in resolvedCfg for use by subcommands.
func loadConfig() error {
	cli := config.CLIOverrides{
		ConfigPath:  flagConfigPath,
		DestDir:     flagDest,
		JournalPath: flagJournal,
	}

	resolved, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfg = resolved

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win.
func buildLogger() *slog.Logger {
	level := slog.LevelInfo

	if resolvedCfg != nil {
		switch resolvedCfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// newGraphClient assembles the certificate token source and Graph client
// from the resolved configuration.
func newGraphClient(ctx context.Context, logger *slog.Logger) (*graph.Client, graph.Drive, error) {
	pemBytes, err := resolvedCfg.Credentials.ReadPrivateKey()
	if err != nil {
		return nil, graph.Drive{}, err
	}

	key, err := graph.ParsePrivateKey(pemBytes)
	if err != nil {
		return nil, graph.Drive{}, err
	}

	cred := graph.CertCredential{
		ClientID:   resolvedCfg.Library.ClientID,
		Authority:  resolvedCfg.Library.Authority,
		Scope:      resolvedCfg.Library.Scope,
		Thumbprint: resolvedCfg.Credentials.Thumbprint,
		PrivateKey: key,
	}

	httpClient := &http.Client{Timeout: httpClientTimeout}

	ts, err := graph.NewCertTokenSource(ctx, cred, httpClient, logger)
	if err != nil {
		return nil, graph.Drive{}, err
	}

	client := graph.NewClient(graphBaseURL, httpClient, ts, logger)
	drive := graph.Drive{SiteID: resolvedCfg.Library.SiteID, DriveID: resolvedCfg.Library.ResID}

	return client, drive, nil
}

// newETL assembles a ready-to-use ETL plus its journal (nil when no journal
// is configured). The caller must Close the journal when non-nil.
func newETL(ctx context.Context) (*etl.ETL, *journal.Journal, *slog.Logger, error) {
	logger := buildLogger()

	client, _, err := newGraphClient(ctx, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	lib := etl.DocumentLibrary{
		ClientID:  resolvedCfg.Library.ClientID,
		SiteID:    resolvedCfg.Library.SiteID,
		ResID:     resolvedCfg.Library.ResID,
		Authority: resolvedCfg.Library.Authority,
		Scope:     resolvedCfg.Library.Scope,
	}

	opts := []etl.Option{
		etl.WithDestDir(resolvedCfg.DestDir),
		etl.WithLogger(logger),
	}

	var jnl *journal.Journal

	if resolvedCfg.JournalPath != "" {
		jnl, err = journal.Open(ctx, resolvedCfg.JournalPath, logger)
		if err != nil {
			return nil, nil, nil, err
		}

		opts = append(opts, etl.WithRecorder(jnl))
	}

	e, err := etl.New(lib, client, opts...)
	if err != nil {
		if jnl != nil {
			jnl.Close()
		}

		return nil, nil, nil, err
	}

	return e, jnl, logger, nil
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
