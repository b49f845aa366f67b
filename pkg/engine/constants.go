package engine

import "time"

// ReportSchemaVersion identifies the structure of the Report JSON.
const ReportSchemaVersion = "1.0"

// Default RunConfig values, chosen to stay under typical LLM provider
// request and token limits.
const (
	DefaultMaxItemsPerChunk    = 5
	DefaultMaxCostPerChunk     = 50000
	DefaultMaxConcurrentChunks = 3
	DefaultMinDispatchInterval = 2 * time.Second
	DefaultRetryAttempts       = 3
	DefaultRetryBackoffBase    = 5 * time.Second
)

const (
	// bytesPerCostUnit converts payload bytes to estimated cost
	// (a proxy for LLM tokens, roughly 4 bytes per token).
	bytesPerCostUnit = 4
	// minItemCost is the floor estimate for items with no payload and no
	// size hint.
	minItemCost = 1000
)

// Priority tiers assigned by the partitioner's classification rule. Markup
// drives the content model the other kinds hang off, so it is processed
// first; failures there surface earliest in the logs.
const (
	priorityMarkup     = 100
	priorityStylesheet = 80
	priorityScript     = 60
	priorityImage      = 40
	priorityOther      = 20
)
