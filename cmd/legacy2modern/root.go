package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/astrio-ai/legacy2modern/internal/cli"
	"github.com/astrio-ai/legacy2modern/internal/cli/config"
	"github.com/astrio-ai/legacy2modern/internal/llm"
	"github.com/astrio-ai/legacy2modern/pkg/engine"
	"github.com/astrio-ai/legacy2modern/pkg/workspace"
)

var (
	// Set at build time via -ldflags.
	version = "dev"
	commit  = "none"
	date    = "unknown"

	cfgFile     string
	profileName string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "legacy2modern -i <source> [-o <outputDir>]",
	Short: "Analyzes legacy websites and plans their migration to React.",
	Long: `legacy2modern scans a legacy website (local directory, zip archive or
git URL), splits its files into cost-bounded chunks, analyzes them in
parallel with an AI model, and produces a migration manifest with per-file
analyses, recurring patterns and a React component plan.

It features:
  - Rate-limited parallel chunk processing with per-chunk retry.
  - Content-based caching for fast incremental runs.
  - Heuristic offline analysis when no API key is configured.
  - An interactive Terminal UI (TUI) for monitoring progress.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		opts, logger, err := config.LoadAndValidate(cfgFile, profileName, version, verbose, cmd.Flags())
		if err != nil {
			return err
		}

		// Give the TUI a moment to take over the terminal before engine
		// output starts.
		if term.IsTerminal(int(os.Stderr.Fd())) && !verbose && opts.TuiEnabled {
			time.Sleep(100 * time.Millisecond)
		}

		return cli.Run(ctx, opts, logger)
	},
}

// Execute runs the root command; cobra prints any returned error and exits
// non-zero.
func Execute() {
	rootCmd.SetVersionTemplate(`{{.Use}} version {{.Version}}` + "\n")
	_ = rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Configuration file path (default is to search ., $HOME/.config/legacy2modern/)")
	rootCmd.PersistentFlags().StringVar(&profileName, "profile", "", "Name of configuration profile to use")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose (debug) logging output (disables TUI)")

	rootCmd.PersistentFlags().StringP("input", "i", "", "Required. Source: directory path, .zip archive or git URL.")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Output directory for the manifest and cache (default ./l2m-output)")
	_ = rootCmd.MarkPersistentFlagRequired("input")

	rootCmd.Flags().Bool("no-tui", false, "Disable interactive Terminal UI even if in a TTY")
	rootCmd.Flags().StringArray("ignore", []string{}, "Gitignore-style patterns for files/directories to skip (repeatable)")
	rootCmd.Flags().String("output-format", "json", `Manifest format ("json", "yaml", "toml")`)

	rootCmd.Flags().Int("concurrency", engine.DefaultMaxConcurrentChunks, "Maximum chunks processed in parallel")
	rootCmd.Flags().Int("chunk-files", engine.DefaultMaxItemsPerChunk, "Maximum files per chunk")
	rootCmd.Flags().Int("chunk-tokens", engine.DefaultMaxCostPerChunk, "Maximum estimated token cost per chunk")
	rootCmd.Flags().Duration("rate-interval", engine.DefaultMinDispatchInterval, "Minimum spacing between chunk dispatches (0 disables)")
	rootCmd.Flags().Int("retries", engine.DefaultRetryAttempts, "Attempts per chunk before giving up")
	rootCmd.Flags().Duration("retry-backoff", engine.DefaultRetryBackoffBase, "Base backoff between attempts (scales linearly)")

	rootCmd.Flags().Bool("no-cache", false, "Disable the chunk result cache")
	rootCmd.Flags().Bool("clear-cache", false, "Delete the cache file before starting")

	rootCmd.Flags().Bool("offline", false, "Skip the AI model and use heuristic analysis only")
	rootCmd.Flags().Bool("no-plan", false, "Skip the React component plan stage")
	rootCmd.Flags().String("model", llm.DefaultModel, "Model identifier for analysis requests")

	rootCmd.Flags().Int("large-file-threshold", workspace.DefaultLargeFileThresholdMB, "File size threshold in MB above which files are skipped")
	rootCmd.Flags().Bool("include-binary", false, "Keep binary files as payload-less items instead of skipping them")
}
