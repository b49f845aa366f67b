// Package hooks bridges engine events to the CLI's UI layer (TUI, progress
// bar or plain logging).
package hooks

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/astrio-ai/legacy2modern/pkg/engine"
)

// ChunkQueuedMsg signals that the partitioner produced a chunk.
type ChunkQueuedMsg struct {
	ChunkID       string
	ItemCount     int
	EstimatedCost int
}

// ChunkStatusMsg signals a change in a chunk's processing status.
type ChunkStatusMsg struct {
	ChunkID string
	Status  engine.Status
	Message string
	Attempt int
}

// RunCompleteMsg signals the completion of an engine run.
type RunCompleteMsg struct{ Report engine.Report }

// TUIProgram is the subset of the Bubble Tea program the hooks need.
type TUIProgram interface {
	Send(msg tea.Msg)
}

// ProgressBar is the subset of the progress bar the hooks need.
type ProgressBar interface {
	Add(num int) error
	Describe(description string) error
	Close() error
}

// NoOpTUIProgram is a null TUIProgram.
type NoOpTUIProgram struct{}

// Send implements TUIProgram.
func (n *NoOpTUIProgram) Send(msg tea.Msg) {}

// NoOpProgressBar is a null ProgressBar.
type NoOpProgressBar struct{}

// Add implements ProgressBar.
func (n *NoOpProgressBar) Add(num int) error { return nil }

// Describe implements ProgressBar.
func (n *NoOpProgressBar) Describe(description string) error { return nil }

// Close implements ProgressBar.
func (n *NoOpProgressBar) Close() error { return nil }

// CLIHooks implements engine.Hooks for the command line. Depending on the
// mode it forwards events to the TUI, ticks a progress bar, or logs.
type CLIHooks struct {
	logger      *slog.Logger
	tuiEnabled  bool
	verbose     bool
	tuiProgram  TUIProgram
	progressBar ProgressBar
	mu          sync.Mutex
}

// NewCLIHooks creates hooks for the chosen output mode. Pass nil for
// tuiProgram or progressBar when not applicable.
func NewCLIHooks(logger *slog.Logger, tuiEnabled, verbose bool, tuiProgram TUIProgram, progressBar ProgressBar) engine.Hooks {
	if tuiProgram == nil {
		tuiProgram = &NoOpTUIProgram{}
	}
	if progressBar == nil {
		progressBar = &NoOpProgressBar{}
	}
	return &CLIHooks{
		logger:      logger,
		tuiEnabled:  tuiEnabled,
		verbose:     verbose,
		tuiProgram:  tuiProgram,
		progressBar: progressBar,
	}
}

// OnChunkQueued implements engine.Hooks.
func (h *CLIHooks) OnChunkQueued(chunkID string, itemCount, estimatedCost int) error {
	if h.tuiEnabled {
		h.tuiProgram.Send(ChunkQueuedMsg{ChunkID: chunkID, ItemCount: itemCount, EstimatedCost: estimatedCost})
	} else if h.verbose {
		h.logger.Debug("Chunk queued",
			slog.String("chunk", chunkID),
			slog.Int("items", itemCount),
			slog.Int("estimatedCost", estimatedCost))
	}
	return nil
}

// OnChunkStatusUpdate implements engine.Hooks. Called concurrently from
// chunk goroutines; progress bar access is serialized.
func (h *CLIHooks) OnChunkStatusUpdate(chunkID string, status engine.Status, message string, attempt int) error {
	if h.tuiEnabled {
		h.tuiProgram.Send(ChunkStatusMsg{ChunkID: chunkID, Status: status, Message: message, Attempt: attempt})
		return nil
	}

	if h.verbose {
		level := slog.LevelDebug
		msg := "Chunk status updated"
		attrs := []any{
			slog.String("chunk", chunkID),
			slog.String("status", string(status)),
			slog.Int("attempt", attempt),
		}
		if message != "" {
			key := "message"
			if status == engine.StatusFailed {
				key = "error"
			}
			attrs = append(attrs, slog.String(key, message))
		}
		switch status {
		case engine.StatusSuccess, engine.StatusCached:
			level = slog.LevelInfo
		case engine.StatusRetrying:
			level = slog.LevelWarn
			msg = "Chunk retrying"
		case engine.StatusFailed:
			level = slog.LevelError
			msg = "Chunk processing failed"
		}
		h.logger.Log(nil, level, msg, attrs...)
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	switch status {
	case engine.StatusSuccess, engine.StatusFailed, engine.StatusCached:
		_ = h.progressBar.Add(1)
	case engine.StatusRetrying:
		_ = h.progressBar.Describe(fmt.Sprintf("retrying %s", chunkID))
	}
	if status == engine.StatusFailed {
		h.logger.Error("Chunk processing failed", slog.String("chunk", chunkID), slog.String("error", message))
	}
	return nil
}

// OnRunComplete implements engine.Hooks. Finalizes the progress bar or sends
// the report to the TUI; textual summary output is handled by the caller.
func (h *CLIHooks) OnRunComplete(report engine.Report) error {
	if h.tuiEnabled {
		h.tuiProgram.Send(RunCompleteMsg{Report: report})
		return nil
	}
	h.mu.Lock()
	_ = h.progressBar.Close()
	h.mu.Unlock()
	if !h.verbose {
		// Keep the shell prompt off the finished bar's line.
		fmt.Fprintln(os.Stderr)
	}
	return nil
}
