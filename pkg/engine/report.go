package engine

import "time"

// AggregateResult is the Merger's combined output across all successful
// chunks of one run. Summary counts are recomputed from the merged payload
// rather than summed from per-chunk metadata, so a chunk that misreports its
// own item count cannot skew the totals.
type AggregateResult struct {
	Payload         Payload       `json:"payload"`
	TotalItems      int           `json:"totalItems"`
	SuccessfulItems int           `json:"successfulItems"`
	FailedItems     int           `json:"failedItems"`
	ChunkCount      int           `json:"chunkCount"`
	Elapsed         time.Duration `json:"elapsed"`
}

// Report summarizes the result of a single engine run. It reports facts
// only; whether N failed chunks out of M constitute overall failure is the
// caller's policy decision.
type Report struct {
	Summary    ReportSummary `json:"summary"`
	Successful []ChunkResult `json:"successful"`
	Failed     []ChunkResult `json:"failed"`
}

// ReportSummary contains aggregated statistics for one run.
type ReportSummary struct {
	RunID            string    `json:"runId"`
	TotalItems       int       `json:"totalItems"`
	TotalChunks      int       `json:"totalChunks"`
	SuccessfulChunks int       `json:"successfulChunks"`
	FailedChunks     int       `json:"failedChunks"`
	CachedChunks     int       `json:"cachedChunks"`
	SuccessfulItems  int       `json:"successfulItems"`
	FailedItems      int       `json:"failedItems"`
	DurationSeconds  float64   `json:"durationSeconds"`
	Concurrency      int       `json:"concurrency"`
	CacheEnabled     bool      `json:"cacheEnabled"`
	AppVersion       string    `json:"appVersion,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
	SchemaVersion    string    `json:"schemaVersion,omitempty"`
}
