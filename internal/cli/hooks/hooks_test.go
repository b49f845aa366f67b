package hooks

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astrio-ai/legacy2modern/pkg/engine"
)

type recordingProgram struct {
	mu   sync.Mutex
	msgs []tea.Msg
}

func (p *recordingProgram) Send(msg tea.Msg) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
}

type countingBar struct {
	mu        sync.Mutex
	added     int
	describes int
	closed    bool
}

func (b *countingBar) Add(n int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.added += n
	return nil
}

func (b *countingBar) Describe(string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.describes++
	return nil
}

func (b *countingBar) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTUIModeForwardsMessages(t *testing.T) {
	program := &recordingProgram{}
	h := NewCLIHooks(discardLogger(), true, false, program, nil)

	require.NoError(t, h.OnChunkQueued("chunk_0", 5, 1000))
	require.NoError(t, h.OnChunkStatusUpdate("chunk_0", engine.StatusProcessing, "", 1))
	require.NoError(t, h.OnChunkStatusUpdate("chunk_0", engine.StatusSuccess, "", 1))
	require.NoError(t, h.OnRunComplete(engine.Report{}))

	program.mu.Lock()
	defer program.mu.Unlock()
	require.Len(t, program.msgs, 4)
	queued, ok := program.msgs[0].(ChunkQueuedMsg)
	require.True(t, ok)
	assert.Equal(t, "chunk_0", queued.ChunkID)
	assert.Equal(t, 5, queued.ItemCount)
	_, ok = program.msgs[3].(RunCompleteMsg)
	assert.True(t, ok)
}

func TestProgressBarTicksOnFinalStatesOnly(t *testing.T) {
	bar := &countingBar{}
	h := NewCLIHooks(discardLogger(), false, false, nil, bar)

	require.NoError(t, h.OnChunkStatusUpdate("chunk_0", engine.StatusProcessing, "", 1))
	require.NoError(t, h.OnChunkStatusUpdate("chunk_0", engine.StatusRetrying, "timeout", 1))
	require.NoError(t, h.OnChunkStatusUpdate("chunk_0", engine.StatusSuccess, "", 2))
	require.NoError(t, h.OnChunkStatusUpdate("chunk_1", engine.StatusCached, "", 0))
	require.NoError(t, h.OnChunkStatusUpdate("chunk_2", engine.StatusFailed, "boom", 3))

	bar.mu.Lock()
	defer bar.mu.Unlock()
	assert.Equal(t, 3, bar.added, "only final states advance the bar")
	assert.Equal(t, 1, bar.describes, "retry updates the description")
}

func TestRunCompleteClosesBar(t *testing.T) {
	bar := &countingBar{}
	h := NewCLIHooks(discardLogger(), false, false, nil, bar)
	require.NoError(t, h.OnRunComplete(engine.Report{}))
	bar.mu.Lock()
	defer bar.mu.Unlock()
	assert.True(t, bar.closed)
}

func TestVerboseModeSkipsBar(t *testing.T) {
	bar := &countingBar{}
	h := NewCLIHooks(discardLogger(), false, true, nil, bar)
	require.NoError(t, h.OnChunkStatusUpdate("chunk_0", engine.StatusSuccess, "", 1))
	bar.mu.Lock()
	defer bar.mu.Unlock()
	assert.Zero(t, bar.added)
}

func TestNilCollaboratorsDefaultToNoOps(t *testing.T) {
	h := NewCLIHooks(discardLogger(), true, false, nil, nil)
	assert.NoError(t, h.OnChunkQueued("chunk_0", 1, 1))
	assert.NoError(t, h.OnChunkStatusUpdate("chunk_0", engine.StatusSuccess, "", 1))
	assert.NoError(t, h.OnRunComplete(engine.Report{}))
}

func TestConcurrentStatusUpdates(t *testing.T) {
	bar := &countingBar{}
	h := NewCLIHooks(discardLogger(), false, false, nil, bar)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.OnChunkStatusUpdate("chunk_x", engine.StatusSuccess, "", 1)
		}()
	}
	wg.Wait()
	bar.mu.Lock()
	defer bar.mu.Unlock()
	assert.Equal(t, 20, bar.added)
}
