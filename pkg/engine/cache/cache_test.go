package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckMissOnEmptyCache(t *testing.T) {
	m := NewFileCacheManager("1.0.0", nil)
	_, hit := m.Check("deadbeef", "cfg")
	assert.False(t, hit)
}

func TestUpdateThenCheck(t *testing.T) {
	m := NewFileCacheManager("1.0.0", nil)
	require.NoError(t, m.Update("hash1", "cfgA", []byte(`{"files":{}}`)))

	payload, hit := m.Check("hash1", "cfgA")
	require.True(t, hit)
	assert.JSONEq(t, `{"files":{}}`, string(payload))

	_, hit = m.Check("hash1", "cfgB")
	assert.False(t, hit, "config hash mismatch must miss")
}

func TestPersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")

	m := NewFileCacheManager("1.0.0", nil)
	require.NoError(t, m.Update("hash1", "cfgA", []byte(`{"files":{"a.html":{"status":"success"}}}`)))
	require.NoError(t, m.Persist(path))

	reloaded := NewFileCacheManager("1.0.0", nil)
	require.NoError(t, reloaded.Load(path))
	payload, hit := reloaded.Check("hash1", "cfgA")
	require.True(t, hit)
	assert.Contains(t, string(payload), "a.html")
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	m := NewFileCacheManager("1.0.0", nil)
	require.NoError(t, m.Load(filepath.Join(t.TempDir(), "nope.json")))
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	m := NewFileCacheManager("1.0.0", nil)
	err := m.Load(path)
	require.ErrorIs(t, err, ErrCacheLoad)
	_, hit := m.Check("anything", "cfg")
	assert.False(t, hit, "manager stays usable and empty after corrupt load")
}

func TestLoadDiscardsOtherAppVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")

	old := NewFileCacheManager("1.0.0", nil)
	require.NoError(t, old.Update("hash1", "cfgA", []byte(`{}`)))
	require.NoError(t, old.Persist(path))

	upgraded := NewFileCacheManager("2.0.0", nil)
	require.NoError(t, upgraded.Load(path))
	_, hit := upgraded.Check("hash1", "cfgA")
	assert.False(t, hit)
}

func TestPersistNoopWhenClean(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	m := NewFileCacheManager("1.0.0", nil)
	require.NoError(t, m.Persist(path))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "nothing to persist, no file written")
}

func TestClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	m := NewFileCacheManager("1.0.0", nil)
	require.NoError(t, m.Update("hash1", "cfgA", []byte(`{}`)))
	require.NoError(t, m.Persist(path))

	require.NoError(t, m.Clear(path))
	_, hit := m.Check("hash1", "cfgA")
	assert.False(t, hit)
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, m.Clear(path), "clearing an absent file is fine")
}

func TestConcurrentAccess(t *testing.T) {
	m := NewFileCacheManager("1.0.0", nil)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			_ = m.Update("hash", "cfg", []byte(`{}`))
		}
	}()
	for i := 0; i < 200; i++ {
		m.Check("hash", "cfg")
	}
	<-done
}
