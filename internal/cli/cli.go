// Package cli orchestrates a full run after configuration loading: source
// acquisition, workspace scan, the analysis engine pass, the optional plan
// pass, and manifest output.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/astrio-ai/legacy2modern/internal/agents/modernizer"
	"github.com/astrio-ai/legacy2modern/internal/agents/parser"
	"github.com/astrio-ai/legacy2modern/internal/cli/config"
	"github.com/astrio-ai/legacy2modern/internal/cli/hooks"
	"github.com/astrio-ai/legacy2modern/internal/cli/ui"
	"github.com/astrio-ai/legacy2modern/internal/llm"
	"github.com/astrio-ai/legacy2modern/pkg/engine"
	"github.com/astrio-ai/legacy2modern/pkg/engine/cache"
	"github.com/astrio-ai/legacy2modern/pkg/workspace"
)

// ErrAllChunksFailed is returned when a run produced no successful chunks at
// all; partial failure is reported in the manifest but does not fail the
// command.
var ErrAllChunksFailed = errors.New("all chunks failed")

// Run executes the main application logic with validated options.
func Run(ctx context.Context, opts config.Options, logger *slog.Logger) error {
	sourceDir, cleanup, err := workspace.Resolve(ctx, opts.InputPath, opts.Logger)
	if err != nil {
		return err
	}
	defer cleanup()

	scanner, err := workspace.NewScanner(sourceDir, workspace.ScanOptions{
		IgnorePatterns:       opts.IgnorePatterns,
		LargeFileThresholdMB: opts.LargeFileThresholdMB,
		IncludeBinary:        opts.IncludeBinary,
	}, opts.Logger)
	if err != nil {
		return err
	}
	items, err := scanner.Scan()
	if err != nil {
		return err
	}
	if len(items) == 0 {
		logger.Warn("No processable files found", slog.String("input", opts.InputPath))
		return writeManifest(opts, logger, Manifest{
			AppVersion: opts.AppVersion,
			Source:     opts.InputPath,
		})
	}

	var model llm.Client
	if !opts.Offline {
		httpClient, err := llm.NewHTTPClient(opts.LLM, opts.Logger)
		if err != nil {
			return err
		}
		model = httpClient
	}
	analyst, err := parser.NewAgent(model, opts.Logger)
	if err != nil {
		return err
	}

	cacheManager := cache.NewFileCacheManager(opts.AppVersion, opts.Logger)
	if opts.ClearCache {
		if err := cacheManager.Clear(opts.CacheFilePath); err != nil {
			logger.Warn("Cache clear failed", slog.String("error", err.Error()))
		} else {
			logger.Info("Cache cleared", slog.String("path", opts.CacheFilePath))
		}
	}

	isTTY := term.IsTerminal(int(os.Stderr.Fd()))
	tuiActive := opts.TuiEnabled && !opts.Verbose && isTTY

	run := func(eventHooks engine.Hooks) (Manifest, error) {
		return runPipeline(ctx, opts, logger, items, analyst, model, cacheManager, eventHooks)
	}

	var manifest Manifest
	if tuiActive {
		manifest, err = runWithTUI(opts, run)
	} else {
		var bar hooks.ProgressBar
		if isTTY && !opts.Verbose {
			bar = newProgressBar()
		}
		manifest, err = run(hooks.NewCLIHooks(logger, false, opts.Verbose, nil, bar))
	}
	if err != nil {
		return err
	}

	if err := writeManifest(opts, logger, manifest); err != nil {
		return err
	}
	logSummary(logger, manifest)
	if manifest.Analysis.Summary.TotalChunks > 0 && manifest.Analysis.Summary.SuccessfulChunks == 0 {
		return ErrAllChunksFailed
	}
	return nil
}

// runPipeline executes the analysis pass and, when enabled, the plan pass,
// and assembles the manifest.
func runPipeline(
	ctx context.Context,
	opts config.Options,
	logger *slog.Logger,
	items []engine.WorkItem,
	analyst *parser.Agent,
	model llm.Client,
	cacheManager engine.CacheManager,
	eventHooks engine.Hooks,
) (Manifest, error) {
	eng, err := engine.New(opts.Engine, engine.Options{
		Logger:        opts.Logger,
		EventHooks:    eventHooks,
		Cache:         cacheManager,
		CacheEnabled:  opts.CacheEnabled,
		CacheFilePath: opts.CacheFilePath,
		AppVersion:    opts.AppVersion,
	})
	if err != nil {
		return Manifest{}, err
	}

	agg, report, err := eng.ProcessItems(ctx, items, analyst.ProcessChunk)
	if err != nil {
		return Manifest{}, err
	}
	manifest := Manifest{
		AppVersion: opts.AppVersion,
		Source:     opts.InputPath,
		Analysis:   StageResult{Summary: report.Summary, Payload: agg.Payload, Failed: report.Failed},
	}

	if opts.Plan && ctx.Err() == nil {
		planner := modernizer.NewAgent(model, opts.Logger)
		planItems := planner.BuildWorkItems(agg)
		if len(planItems) > 0 {
			planAgg, planReport, err := eng.ProcessItems(ctx, planItems, planner.PlanChunk)
			if err != nil {
				return Manifest{}, err
			}
			manifest.Plan = &StageResult{Summary: planReport.Summary, Payload: planAgg.Payload, Failed: planReport.Failed}
		} else {
			logger.Info("Nothing to plan, skipping plan stage")
		}
	}
	return manifest, ctx.Err()
}

// runWithTUI drives the pipeline under a Bubble Tea program. The pipeline
// runs in a goroutine and the program owns the terminal until the run
// completes or the user quits.
func runWithTUI(opts config.Options, run func(engine.Hooks) (Manifest, error)) (Manifest, error) {
	model := ui.NewModel(opts.AppVersion)
	program := tea.NewProgram(&model, tea.WithOutput(os.Stderr))

	type outcome struct {
		manifest Manifest
		err      error
	}
	done := make(chan outcome, 1)
	go func() {
		m, err := run(hooks.NewCLIHooks(slog.New(opts.Logger), true, false, program, nil))
		done <- outcome{m, err}
		program.Quit()
	}()

	if _, err := program.Run(); err != nil {
		return Manifest{}, fmt.Errorf("terminal ui failed: %w", err)
	}
	res := <-done
	return res.manifest, res.err
}

// stderrBar adapts *progressbar.ProgressBar to the hooks.ProgressBar
// interface (Describe has no error return upstream).
type stderrBar struct {
	bar *progressbar.ProgressBar
}

func (b *stderrBar) Add(num int) error { return b.bar.Add(num) }

func (b *stderrBar) Describe(description string) error {
	b.bar.Describe(description)
	return nil
}

func (b *stderrBar) Close() error { return b.bar.Close() }

func newProgressBar() hooks.ProgressBar {
	return &stderrBar{bar: progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("processing chunks"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionShowCount(),
		progressbar.OptionSetRenderBlankState(true),
	)}
}

func logSummary(logger *slog.Logger, m Manifest) {
	logger.Info("Analysis complete",
		slog.Int("files", m.Analysis.Summary.TotalItems),
		slog.Int("chunks", m.Analysis.Summary.TotalChunks),
		slog.Int("failedChunks", m.Analysis.Summary.FailedChunks),
		slog.Int("cachedChunks", m.Analysis.Summary.CachedChunks))
	if m.Plan != nil {
		logger.Info("Plan complete",
			slog.Int("planned", m.Plan.Summary.SuccessfulItems),
			slog.Int("failedChunks", m.Plan.Summary.FailedChunks))
	}
}
