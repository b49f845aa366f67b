package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/astrio-ai/legacy2modern/pkg/engine/rate"
)

// Scheduler executes a processing callback across chunks concurrently,
// bounding in-flight work with a counting semaphore and spacing dispatch
// starts with a global rate gate. Each chunk retries independently; one
// chunk exhausting its retries never aborts or blocks the others.
//
// All mutable scheduling state (semaphore counter, rate-gate timestamp) is
// owned by the Scheduler instance, so independent runs (e.g. one for
// parsing, one for plan generation) do not interfere.
type Scheduler struct {
	cfg    RunConfig
	logger *slog.Logger
	hooks  Hooks
	sem    *semaphore.Weighted
	gate   *rate.Gate
}

// NewScheduler creates a Scheduler. The configuration must already have
// passed RunConfig.Validate.
func NewScheduler(cfg RunConfig, loggerHandler slog.Handler, hooks Hooks) *Scheduler {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	if hooks == nil {
		hooks = &NoOpHooks{}
	}
	return &Scheduler{
		cfg:    cfg,
		logger: slog.New(loggerHandler).With(slog.String("component", "scheduler")),
		hooks:  hooks,
		sem:    semaphore.NewWeighted(int64(cfg.MaxConcurrentChunks)),
		gate:   rate.NewGate(cfg.MinDispatchInterval, nil),
	}
}

// Run processes all chunks and collects their results in submission order.
// It never returns an error: failures of individual chunks, including panics
// escaping the callback or the scheduling machinery itself, are downgraded
// to failed ChunkResults, so len(Successful)+len(Failed) == len(chunks)
// always holds. Within each slice, results keep submission order.
func (s *Scheduler) Run(ctx context.Context, chunks []Chunk, process ProcessFunc) RunOutcome {
	start := time.Now()
	s.logger.Info("Starting chunk run",
		slog.Int("chunks", len(chunks)),
		slog.Int("concurrency", s.cfg.MaxConcurrentChunks),
		slog.Duration("dispatchInterval", s.cfg.MinDispatchInterval))

	results := make([]ChunkResult, len(chunks))
	var wg sync.WaitGroup
	for i, c := range chunks {
		_ = s.hooks.OnChunkQueued(c.ID, len(c.Items), c.EstimatedCost)
		wg.Add(1)
		go func(i int, c Chunk) {
			defer wg.Done()
			defer func() {
				// A bug in the scheduling path must not take the run
				// down; record it against this chunk instead.
				if r := recover(); r != nil {
					s.logger.Error("Panic recovered in chunk task",
						slog.String("chunk", c.ID), slog.Any("panicValue", r))
					results[i] = ChunkResult{
						ChunkID:  c.ID,
						Success:  false,
						Error:    fmt.Sprintf("internal scheduling error: %v", r),
						Attempts: results[i].Attempts,
					}
				}
			}()
			results[i] = s.processWithRetry(ctx, c, process)
		}(i, c)
	}
	wg.Wait()

	outcome := RunOutcome{TotalChunks: len(chunks), Elapsed: time.Since(start)}
	for _, r := range results {
		if r.Success {
			outcome.Successful = append(outcome.Successful, r)
		} else {
			outcome.Failed = append(outcome.Failed, r)
			s.logger.Error("Chunk failed after retries",
				slog.String("chunk", r.ChunkID),
				slog.Int("attempts", r.Attempts),
				slog.String("error", r.Error))
		}
	}
	s.logger.Info("Chunk run finished",
		slog.Int("successful", len(outcome.Successful)),
		slog.Int("failed", len(outcome.Failed)),
		slog.Duration("elapsed", outcome.Elapsed))
	return outcome
}

// processWithRetry runs one chunk's independent retry loop. Attempts are
// strictly sequential; the semaphore permit is released during backoff so a
// backing-off chunk does not starve the pool.
func (s *Scheduler) processWithRetry(ctx context.Context, c Chunk, process ProcessFunc) ChunkResult {
	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= s.cfg.RetryAttempts; attempt++ {
		attempts = attempt
		payload, err := s.attempt(ctx, c, process, attempt)
		if err == nil {
			_ = s.hooks.OnChunkStatusUpdate(c.ID, StatusSuccess, "", attempt)
			s.logger.Debug("Chunk processed", slog.String("chunk", c.ID), slog.Int("attempt", attempt))
			return ChunkResult{ChunkID: c.ID, Success: true, Payload: payload, Attempts: attempt}
		}
		lastErr = err
		s.logger.Warn("Chunk attempt failed",
			slog.String("chunk", c.ID), slog.Int("attempt", attempt), slog.String("error", err.Error()))
		if attempt < s.cfg.RetryAttempts {
			_ = s.hooks.OnChunkStatusUpdate(c.ID, StatusRetrying, err.Error(), attempt)
			if serr := sleepCtx(ctx, s.cfg.RetryBackoffBase*time.Duration(attempt)); serr != nil {
				lastErr = fmt.Errorf("retry aborted: %w", serr)
				break
			}
		}
	}
	_ = s.hooks.OnChunkStatusUpdate(c.ID, StatusFailed, lastErr.Error(), attempts)
	return ChunkResult{ChunkID: c.ID, Success: false, Error: lastErr.Error(), Attempts: attempts}
}

// attempt performs a single dispatch: acquire a permit, pass the rate gate,
// then invoke the callback. A panic escaping the callback is converted to an
// error so the retry loop treats it like any other processing failure.
func (s *Scheduler) attempt(ctx context.Context, c Chunk, process ProcessFunc, attempt int) (payload Payload, err error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return Payload{}, err
	}
	defer s.sem.Release(1)
	if err := s.gate.Wait(ctx); err != nil {
		return Payload{}, err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("process callback panic: %v", r)
		}
	}()
	_ = s.hooks.OnChunkStatusUpdate(c.ID, StatusProcessing, "", attempt)
	return process(ctx, c)
}

// sleepCtx waits for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
