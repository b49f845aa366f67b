// Package engine implements the chunked parallel processing core: it splits
// a project's work items into cost-bounded chunks, schedules them against a
// rate-limited worker pool with per-chunk retry, and merges the partial
// results into one deterministic aggregate.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Engine wires the partitioner, scheduler and merger together and layers the
// chunk result cache on top. One Engine instance serves one configuration;
// ProcessItems may be called multiple times.
type Engine struct {
	cfg        RunConfig
	logger     *slog.Logger
	hooks      Hooks
	cache      CacheManager
	partition  *Partitioner
	schedule   *Scheduler
	merge      *Merger
	cacheOn    bool
	cachePath  string
	appVersion string
	configHash string
}

// New creates an Engine from a validated RunConfig and its collaborators.
// Options.Logger is required; everything else defaults to no-ops.
func New(cfg RunConfig, opts Options) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ErrConfigValidation)
	}
	hooks := opts.EventHooks
	if hooks == nil {
		hooks = &NoOpHooks{}
	}
	cache := opts.Cache
	if cache == nil || !opts.CacheEnabled {
		cache = &NoOpCacheManager{}
	}
	appVersion := opts.AppVersion
	if appVersion == "" {
		appVersion = "dev"
	}
	return &Engine{
		cfg:        cfg,
		logger:     slog.New(opts.Logger).With(slog.String("component", "engine")),
		hooks:      hooks,
		cache:      cache,
		partition:  NewPartitioner(cfg, opts.Logger),
		schedule:   NewScheduler(cfg, opts.Logger, hooks),
		merge:      NewMerger(opts.Logger),
		cacheOn:    opts.CacheEnabled && opts.Cache != nil,
		cachePath:  opts.CacheFilePath,
		appVersion: appVersion,
		configHash: configHash(cfg, appVersion),
	}, nil
}

// ProcessItems runs the full pipeline over items: partition, consult the
// cache, schedule the remaining chunks, merge, report. It returns an error
// only for setup problems (invalid items); individual chunk failures are
// reported through the Report, never as an error.
func (e *Engine) ProcessItems(ctx context.Context, items []WorkItem, process ProcessFunc) (AggregateResult, Report, error) {
	start := time.Now()
	runID := uuid.NewString()
	e.logger.Info("Run starting", slog.String("runId", runID), slog.Int("items", len(items)))

	chunks, err := e.partition.Partition(items)
	if err != nil {
		return AggregateResult{}, Report{}, err
	}

	if e.cacheOn {
		if err := e.cache.Load(e.cachePath); err != nil {
			e.logger.Warn("Cache load failed, continuing without cached results", slog.String("error", err.Error()))
		}
	}

	cached, pending, hashes := e.splitCached(chunks)
	outcome := e.schedule.Run(ctx, pending, process)
	e.storeResults(outcome.Successful, hashes)

	// Cached chunks join the successful set; re-sort by chunk index so the
	// result order matches the original submission order of all chunks.
	successful := append(cached, outcome.Successful...)
	sortByChunkID(successful)
	sortByChunkID(outcome.Failed)

	agg := e.merge.Merge(successful)
	agg.Elapsed = time.Since(start)
	agg.ChunkCount = len(chunks)

	if e.cacheOn {
		if err := e.cache.Persist(e.cachePath); err != nil {
			e.logger.Warn("Cache persist failed", slog.String("error", err.Error()))
		}
	}

	report := e.buildReport(runID, items, chunks, successful, outcome.Failed, agg, start)
	if err := e.hooks.OnRunComplete(report); err != nil {
		e.logger.Warn("OnRunComplete hook returned error", slog.String("error", err.Error()))
	}
	e.logger.Info("Run finished",
		slog.String("runId", runID),
		slog.Int("successfulChunks", len(successful)),
		slog.Int("failedChunks", len(outcome.Failed)),
		slog.Duration("elapsed", agg.Elapsed))
	return agg, report, nil
}

// splitCached partitions chunks into those answered by the cache and those
// still needing dispatch. Cache hits become synthetic successful results.
// The returned map carries the content hash of each pending chunk so fresh
// results can be written back without rehashing.
func (e *Engine) splitCached(chunks []Chunk) (cached []ChunkResult, pending []Chunk, hashes map[string]string) {
	if !e.cacheOn {
		return nil, chunks, nil
	}
	hashes = make(map[string]string, len(chunks))
	for _, c := range chunks {
		h := chunkHash(c)
		data, hit := e.cache.Check(h, e.configHash)
		if !hit {
			pending = append(pending, c)
			hashes[c.ID] = h
			continue
		}
		var p Payload
		if err := json.Unmarshal(data, &p); err != nil {
			e.logger.Warn("Discarding undecodable cache entry", slog.String("chunk", c.ID), slog.String("error", err.Error()))
			pending = append(pending, c)
			hashes[c.ID] = h
			continue
		}
		e.logger.Debug("Cache hit", slog.String("chunk", c.ID))
		_ = e.hooks.OnChunkStatusUpdate(c.ID, StatusCached, "", 0)
		cached = append(cached, ChunkResult{ChunkID: c.ID, Success: true, Payload: p, Cached: true})
	}
	return cached, pending, hashes
}

// storeResults writes freshly computed successful payloads back to the cache.
func (e *Engine) storeResults(successful []ChunkResult, hashes map[string]string) {
	if !e.cacheOn {
		return
	}
	for _, r := range successful {
		h, ok := hashes[r.ChunkID]
		if !ok {
			continue
		}
		data, err := json.Marshal(r.Payload)
		if err != nil {
			e.logger.Warn("Cannot encode payload for cache", slog.String("chunk", r.ChunkID), slog.String("error", err.Error()))
			continue
		}
		if err := e.cache.Update(h, e.configHash, data); err != nil {
			e.logger.Warn("Cache update failed", slog.String("chunk", r.ChunkID), slog.String("error", err.Error()))
		}
	}
}

func (e *Engine) buildReport(runID string, items []WorkItem, chunks []Chunk, successful, failed []ChunkResult, agg AggregateResult, start time.Time) Report {
	cachedChunks := 0
	for _, r := range successful {
		if r.Cached {
			cachedChunks++
		}
	}
	return Report{
		Summary: ReportSummary{
			RunID:            runID,
			TotalItems:       len(items),
			TotalChunks:      len(chunks),
			SuccessfulChunks: len(successful),
			FailedChunks:     len(failed),
			CachedChunks:     cachedChunks,
			SuccessfulItems:  agg.SuccessfulItems,
			FailedItems:      agg.FailedItems,
			DurationSeconds:  time.Since(start).Seconds(),
			Concurrency:      e.cfg.MaxConcurrentChunks,
			CacheEnabled:     e.cacheOn,
			AppVersion:       e.appVersion,
			Timestamp:        time.Now().UTC(),
			SchemaVersion:    ReportSchemaVersion,
		},
		Successful: successful,
		Failed:     failed,
	}
}

// chunkHash is a content hash over the chunk's items, stable across runs for
// identical inputs. It covers identifiers, kinds and payload bytes but not
// the chunk id, so renumbering between runs does not defeat the cache.
func chunkHash(c Chunk) string {
	h := sha256.New()
	for _, it := range c.Items {
		writeLenPrefixed(h, []byte(it.ID))
		writeLenPrefixed(h, []byte(it.Kind))
		writeLenPrefixed(h, it.Payload)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// configHash fingerprints the parts of the configuration that influence
// chunk payloads, so results computed under one configuration are not served
// under another.
func configHash(cfg RunConfig, appVersion string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%d|%s", cfg.MaxItemsPerChunk, cfg.MaxCostPerChunk, appVersion)
	return hex.EncodeToString(h.Sum(nil))
}

func writeLenPrefixed(h hash.Hash, b []byte) {
	fmt.Fprintf(h, "%d:", len(b))
	h.Write(b)
}

func sortByChunkID(results []ChunkResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return chunkIndex(results[i].ChunkID) < chunkIndex(results[j].ChunkID)
	})
}

// chunkIndex extracts the numeric suffix of a "chunk_N" identifier; ids that
// do not follow the scheme sort after all that do.
func chunkIndex(id string) int {
	var n int
	if _, err := fmt.Sscanf(id, "chunk_%d", &n); err != nil {
		return int(^uint(0) >> 1)
	}
	return n
}
