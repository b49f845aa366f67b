package engine

import (
	"context"
	"time"
)

// Status defines the possible processing states of a chunk during a run.
type Status string

// Constants representing the defined chunk processing statuses.
const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusRetrying   Status = "retrying"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusCached     Status = "cached"
)

// WorkItem is one unit of input work: a single legacy source file with its
// content and a kind tag (e.g. "html", "css", "javascript"). WorkItems are
// immutable once created; they are produced by a collaborator such as the
// workspace scanner and consumed exactly once by the Partitioner.
type WorkItem struct {
	// ID uniquely identifies the item within a run, conventionally the
	// file path relative to the project root. Must be non-empty.
	ID string `json:"id"`
	// Payload is the item content, opaque to the engine.
	Payload []byte `json:"-"`
	// Kind is a free-form type tag used only for priority classification.
	Kind string `json:"kind"`
	// SizeHint is the on-disk size in bytes, used for cost estimation when
	// the payload is not carried inline.
	SizeHint int `json:"sizeHint,omitempty"`
}

// Chunk is a bounded batch of WorkItems processed together in one external
// service call. Chunks are created by the Partitioner and never mutated; the
// Scheduler treats them as read-only inputs.
type Chunk struct {
	// ID is unique within a run ("chunk_0", "chunk_1", ...).
	ID string `json:"id"`
	// Items is the non-empty ordered member list.
	Items []WorkItem `json:"items"`
	// EstimatedCost is the sum of the members' estimated costs.
	EstimatedCost int `json:"estimatedCost"`
	// Priority is the floor-average of the members' priority scores.
	Priority int `json:"priority"`
}

// Pattern is one recurring structure reported by a processing callback
// (a shared navigation bar, a repeated card layout, ...). Patterns are
// deduplicated across chunks by the Name+Type composite key.
type Pattern struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Payload is the mergeable output of processing one chunk. The engine does
// not interpret the per-file values beyond the merge rules: Files merges
// last-write-wins by key, Patterns concatenates then deduplicates, and
// Dependencies union-concatenates per dependency kind.
type Payload struct {
	Files        map[string]any      `json:"files"`
	Patterns     []Pattern           `json:"patterns,omitempty"`
	Dependencies map[string][]string `json:"dependencies,omitempty"`
}

// FileOutcome is optionally implemented by per-file payload values to report
// whether the file's own analysis succeeded. Values that neither implement it
// nor carry a "status" of "success" in map form count as failed.
type FileOutcome interface {
	Succeeded() bool
}

// ChunkResult records the outcome of processing one chunk, including how many
// attempts were consumed. A failed result carries the last error text; it is
// a value, never a propagated exception.
type ChunkResult struct {
	ChunkID  string  `json:"chunkId"`
	Success  bool    `json:"success"`
	Payload  Payload `json:"payload,omitempty"`
	Error    string  `json:"error,omitempty"`
	Attempts int     `json:"attempts"`
	Cached   bool    `json:"cached,omitempty"`
}

// RunOutcome is the Scheduler's collected result for one run. Successful and
// Failed preserve submission order (the Partitioner's output order), not
// completion order, and always satisfy
// len(Successful)+len(Failed) == TotalChunks.
type RunOutcome struct {
	Successful  []ChunkResult `json:"successful"`
	Failed      []ChunkResult `json:"failed"`
	TotalChunks int           `json:"totalChunks"`
	Elapsed     time.Duration `json:"elapsed"`
}

// ProcessFunc is the opaque per-chunk processing callback supplied by the
// caller (e.g. the parser or modernizer workflow). The engine only observes
// its success/failure and the returned payload shape.
type ProcessFunc func(ctx context.Context, chunk Chunk) (Payload, error)
