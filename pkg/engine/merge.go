package engine

import (
	"io"
	"log/slog"
)

// Merger combines the payloads of successful chunks into one aggregate.
// Merging is deterministic: results are consumed in the order given, file
// entries use last-write-wins, patterns are deduplicated keeping the first
// occurrence, and dependency lists are unioned.
type Merger struct {
	logger *slog.Logger
}

// NewMerger creates a Merger.
func NewMerger(loggerHandler slog.Handler) *Merger {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	return &Merger{
		logger: slog.New(loggerHandler).With(slog.String("component", "merger")),
	}
}

// Merge folds the successful chunk results into a single AggregateResult.
// Non-successful entries and results carrying an empty payload are skipped
// with a warning rather than aborting the merge; partial output from the
// chunks that did succeed is always preserved. Item counts are recomputed
// from the merged payload, not summed from per-chunk metadata.
func (m *Merger) Merge(successful []ChunkResult) AggregateResult {
	agg := AggregateResult{
		Payload: Payload{
			Files:        map[string]any{},
			Dependencies: map[string][]string{},
		},
		ChunkCount: len(successful),
	}
	seenPatterns := map[string]bool{}

	for _, r := range successful {
		if !r.Success {
			m.logger.Warn("Skipping non-successful result during merge", slog.String("chunk", r.ChunkID))
			continue
		}
		p := r.Payload
		if p.Files == nil && p.Patterns == nil && p.Dependencies == nil {
			m.logger.Warn("Skipping chunk with empty payload during merge", slog.String("chunk", r.ChunkID))
			continue
		}
		for id, analysis := range p.Files {
			if _, exists := agg.Payload.Files[id]; exists {
				m.logger.Debug("Overwriting duplicate file entry", slog.String("file", id), slog.String("chunk", r.ChunkID))
			}
			agg.Payload.Files[id] = analysis
		}
		for _, pat := range p.Patterns {
			key := pat.Name + ":" + pat.Type
			if seenPatterns[key] {
				continue
			}
			seenPatterns[key] = true
			agg.Payload.Patterns = append(agg.Payload.Patterns, pat)
		}
		for id, deps := range p.Dependencies {
			agg.Payload.Dependencies[id] = append(agg.Payload.Dependencies[id], deps...)
		}
	}

	agg.TotalItems = len(agg.Payload.Files)
	for _, analysis := range agg.Payload.Files {
		if fileSucceeded(analysis) {
			agg.SuccessfulItems++
		}
	}
	agg.FailedItems = agg.TotalItems - agg.SuccessfulItems

	m.logger.Info("Merged chunk results",
		slog.Int("chunks", agg.ChunkCount),
		slog.Int("files", agg.TotalItems),
		slog.Int("patterns", len(agg.Payload.Patterns)),
		slog.Int("failedFiles", agg.FailedItems))
	return agg
}

// fileSucceeded determines whether a per-file entry represents a successful
// analysis. Only an explicit success marker counts; entries of unknown shape
// or without a status are failed.
func fileSucceeded(analysis any) bool {
	if o, ok := analysis.(FileOutcome); ok {
		return o.Succeeded()
	}
	if m, ok := analysis.(map[string]any); ok {
		status, _ := m["status"].(string)
		return status == "success"
	}
	return false
}
