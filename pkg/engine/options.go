package engine

import (
	"fmt"
	"log/slog"
	"time"
)

// RunConfig holds the immutable knobs for one engine instance. A zero value
// is not usable; construct with DefaultRunConfig and override fields, or
// validate explicitly with Validate.
type RunConfig struct {
	// MaxItemsPerChunk bounds the number of items grouped into one chunk.
	MaxItemsPerChunk int `mapstructure:"maxItemsPerChunk"`
	// MaxCostPerChunk bounds the accumulated estimated cost of one chunk.
	// A single item whose own cost exceeds the bound still gets a
	// (singleton) chunk; no item is ever dropped.
	MaxCostPerChunk int `mapstructure:"maxCostPerChunk"`
	// MaxConcurrentChunks bounds how many chunks may be in flight at once.
	MaxConcurrentChunks int `mapstructure:"maxConcurrentChunks"`
	// MinDispatchInterval is the minimum spacing between successive chunk
	// dispatch starts, modelling the provider's requests-per-second cap.
	// Zero disables the rate gate.
	MinDispatchInterval time.Duration `mapstructure:"minDispatchInterval"`
	// RetryAttempts is the total number of attempts per chunk (first try
	// included). Must be at least 1.
	RetryAttempts int `mapstructure:"retryAttempts"`
	// RetryBackoffBase scales the backoff between attempts: the wait after
	// attempt N is RetryBackoffBase * N.
	RetryBackoffBase time.Duration `mapstructure:"retryBackoffBase"`
}

// DefaultRunConfig returns the stock configuration.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		MaxItemsPerChunk:    DefaultMaxItemsPerChunk,
		MaxCostPerChunk:     DefaultMaxCostPerChunk,
		MaxConcurrentChunks: DefaultMaxConcurrentChunks,
		MinDispatchInterval: DefaultMinDispatchInterval,
		RetryAttempts:       DefaultRetryAttempts,
		RetryBackoffBase:    DefaultRetryBackoffBase,
	}
}

// Validate checks the configuration for values the engine cannot run with.
func (c RunConfig) Validate() error {
	if c.MaxItemsPerChunk <= 0 {
		return fmt.Errorf("%w: maxItemsPerChunk must be positive, got %d", ErrConfigValidation, c.MaxItemsPerChunk)
	}
	if c.MaxCostPerChunk <= 0 {
		return fmt.Errorf("%w: maxCostPerChunk must be positive, got %d", ErrConfigValidation, c.MaxCostPerChunk)
	}
	if c.MaxConcurrentChunks <= 0 {
		return fmt.Errorf("%w: maxConcurrentChunks must be positive, got %d", ErrConfigValidation, c.MaxConcurrentChunks)
	}
	if c.MinDispatchInterval < 0 {
		return fmt.Errorf("%w: minDispatchInterval cannot be negative", ErrConfigValidation)
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("%w: retryAttempts must be at least 1, got %d", ErrConfigValidation, c.RetryAttempts)
	}
	if c.RetryBackoffBase < 0 {
		return fmt.Errorf("%w: retryBackoffBase cannot be negative", ErrConfigValidation)
	}
	return nil
}

// Hooks defines callbacks for status updates during a run.
// Implementations MUST be thread-safe as methods may be called concurrently
// from chunk tasks.
type Hooks interface {
	OnChunkQueued(chunkID string, itemCount, estimatedCost int) error
	OnChunkStatusUpdate(chunkID string, status Status, message string, attempt int) error
	OnRunComplete(report Report) error
}

// NoOpHooks provides a default, do-nothing implementation of the Hooks
// interface.
type NoOpHooks struct{}

// OnChunkQueued implements the Hooks interface. It performs no action.
func (h *NoOpHooks) OnChunkQueued(chunkID string, itemCount, estimatedCost int) error { return nil }

// OnChunkStatusUpdate implements the Hooks interface. It performs no action.
func (h *NoOpHooks) OnChunkStatusUpdate(chunkID string, status Status, message string, attempt int) error {
	return nil
}

// OnRunComplete implements the Hooks interface. It performs no action.
func (h *NoOpHooks) OnRunComplete(report Report) error { return nil }

// CacheManager defines methods for the chunk result cache. Keys are content
// hashes of a chunk's items; values are JSON-encoded payloads. Check and
// Update MUST be safe for concurrent use.
type CacheManager interface {
	Load(cachePath string) error
	Check(chunkHash, configHash string) (payload []byte, hit bool)
	Update(chunkHash, configHash string, payload []byte) error
	Persist(cachePath string) error
}

// NoOpCacheManager provides a default, do-nothing implementation of the
// CacheManager interface. Used when caching is disabled.
type NoOpCacheManager struct{}

// Load implements CacheManager, performs no action.
func (c *NoOpCacheManager) Load(cachePath string) error { return nil }

// Check implements CacheManager, always returns a miss.
func (c *NoOpCacheManager) Check(chunkHash, configHash string) ([]byte, bool) { return nil, false }

// Update implements CacheManager, performs no action.
func (c *NoOpCacheManager) Update(chunkHash, configHash string, payload []byte) error { return nil }

// Persist implements CacheManager, performs no action.
func (c *NoOpCacheManager) Persist(cachePath string) error { return nil }

// Options holds the injectable collaborators for an Engine. All fields are
// optional except Logger.
type Options struct {
	// Logger is the logging backend. Required.
	Logger slog.Handler
	// EventHooks receives status callbacks; NoOpHooks when nil.
	EventHooks Hooks
	// Cache is consulted per chunk before dispatch; NoOpCacheManager when
	// nil or CacheEnabled is false.
	Cache CacheManager
	// CacheEnabled turns cache reads and writes on.
	CacheEnabled bool
	// CacheFilePath is where the cache index is loaded from and persisted
	// to when caching is enabled.
	CacheFilePath string
	// AppVersion is recorded in reports and used by the cache for
	// compatibility checks ("dev" when empty).
	AppVersion string
}
