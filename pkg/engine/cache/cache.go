// Package cache implements the persistent chunk result cache used by the
// engine. The cache is a single JSON index file mapping chunk content hashes
// to encoded payloads, keyed additionally by a configuration hash so results
// computed under one configuration or application version are never served
// under another.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// CacheFileName is the default cache index file name, placed in the target
// output directory.
const CacheFileName = ".l2m.cache.json"

// CacheSchemaVersion identifies the on-disk index structure. An index with a
// different schema version is discarded wholesale on load.
const CacheSchemaVersion = "1"

// Exported sentinel errors for cache I/O failures. Both are non-fatal to a
// run; the engine logs them and proceeds as if the cache were empty.
var (
	ErrCacheLoad    = errors.New("cache load failed")
	ErrCachePersist = errors.New("cache persist failed")
)

type entry struct {
	ConfigHash string          `json:"configHash"`
	Payload    json.RawMessage `json:"payload"`
	StoredAt   time.Time       `json:"storedAt"`
}

type index struct {
	SchemaVersion string           `json:"schemaVersion"`
	AppVersion    string           `json:"appVersion"`
	Entries       map[string]entry `json:"entries"`
}

// FileCacheManager is a file-backed engine.CacheManager. All methods are safe
// for concurrent use; Load and Persist take the write lock, Check takes the
// read lock.
type FileCacheManager struct {
	mu         sync.RWMutex
	entries    map[string]entry
	appVersion string
	dirty      bool
	logger     *slog.Logger
}

// NewFileCacheManager creates an empty cache manager. appVersion taints the
// index: a version change invalidates all persisted entries on load.
func NewFileCacheManager(appVersion string, loggerHandler slog.Handler) *FileCacheManager {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	return &FileCacheManager{
		entries:    map[string]entry{},
		appVersion: appVersion,
		logger:     slog.New(loggerHandler).With(slog.String("component", "cache")),
	}
}

// Load reads the index file at cachePath. A missing file is not an error; a
// corrupt or incompatible file is discarded and reported as ErrCacheLoad so
// the caller can log it, but the manager stays usable (empty).
func (m *FileCacheManager) Load(cachePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(cachePath)
	if err != nil {
		if os.IsNotExist(err) {
			m.logger.Debug("No cache file found, starting fresh", slog.String("path", cachePath))
			return nil
		}
		return fmt.Errorf("%w: reading %s: %v", ErrCacheLoad, cachePath, err)
	}

	var idx index
	if err := json.Unmarshal(data, &idx); err != nil {
		m.entries = map[string]entry{}
		return fmt.Errorf("%w: corrupt index %s: %v", ErrCacheLoad, cachePath, err)
	}
	if idx.SchemaVersion != CacheSchemaVersion || idx.AppVersion != m.appVersion {
		m.logger.Info("Discarding incompatible cache index",
			slog.String("path", cachePath),
			slog.String("schemaVersion", idx.SchemaVersion),
			slog.String("appVersion", idx.AppVersion))
		m.entries = map[string]entry{}
		return nil
	}
	if idx.Entries == nil {
		idx.Entries = map[string]entry{}
	}
	m.entries = idx.Entries
	m.logger.Debug("Cache index loaded", slog.String("path", cachePath), slog.Int("entries", len(m.entries)))
	return nil
}

// Check looks up a chunk hash and returns its payload when the stored entry
// was produced under the same configuration hash.
func (m *FileCacheManager) Check(chunkHash, configHash string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[chunkHash]
	if !ok || e.ConfigHash != configHash {
		return nil, false
	}
	return e.Payload, true
}

// Update records a freshly computed payload for a chunk hash.
func (m *FileCacheManager) Update(chunkHash, configHash string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[chunkHash] = entry{
		ConfigHash: configHash,
		Payload:    json.RawMessage(payload),
		StoredAt:   time.Now().UTC(),
	}
	m.dirty = true
	return nil
}

// Persist writes the index atomically (temp file plus rename). It is a no-op
// when nothing changed since Load.
func (m *FileCacheManager) Persist(cachePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.dirty {
		return nil
	}

	idx := index{
		SchemaVersion: CacheSchemaVersion,
		AppVersion:    m.appVersion,
		Entries:       m.entries,
	}
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding index: %v", ErrCachePersist, err)
	}

	dir := filepath.Dir(cachePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: creating %s: %v", ErrCachePersist, dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(cachePath)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCachePersist, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: writing %s: %v", ErrCachePersist, tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: closing %s: %v", ErrCachePersist, tmpName, err)
	}
	if err := os.Rename(tmpName, cachePath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: renaming into place: %v", ErrCachePersist, err)
	}
	m.dirty = false
	m.logger.Debug("Cache index persisted", slog.String("path", cachePath), slog.Int("entries", len(m.entries)))
	return nil
}

// Clear removes the persisted index file and empties the in-memory state.
func (m *FileCacheManager) Clear(cachePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = map[string]entry{}
	m.dirty = false
	if err := os.Remove(cachePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: removing %s: %v", ErrCachePersist, cachePath, err)
	}
	return nil
}
