package engine

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() RunConfig {
	cfg := DefaultRunConfig()
	cfg.MinDispatchInterval = 0
	cfg.RetryBackoffBase = 0
	return cfg
}

func makeItem(id, kind string, size int) WorkItem {
	return WorkItem{ID: id, Kind: kind, Payload: []byte(strings.Repeat("a", size))}
}

func TestPartitionEmptyInput(t *testing.T) {
	p := NewPartitioner(testConfig(), nil)
	chunks, err := p.Partition(nil)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestPartitionRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.MaxItemsPerChunk = 0
	p := NewPartitioner(cfg, nil)
	_, err := p.Partition([]WorkItem{makeItem("a.html", "html", 10)})
	require.ErrorIs(t, err, ErrConfigValidation)
}

func TestPartitionRejectsMalformedItemAtomically(t *testing.T) {
	p := NewPartitioner(testConfig(), nil)
	items := []WorkItem{
		makeItem("a.html", "html", 10),
		{ID: "", Kind: "css"},
		makeItem("b.css", "css", 10),
	}
	chunks, err := p.Partition(items)
	require.ErrorIs(t, err, ErrInvalidWorkItem)
	assert.Nil(t, chunks)
}

func TestPartitionCompleteness(t *testing.T) {
	p := NewPartitioner(testConfig(), nil)
	var items []WorkItem
	for i := 0; i < 23; i++ {
		items = append(items, makeItem(fmt.Sprintf("f%02d.html", i), "html", 100+i))
	}
	chunks, err := p.Partition(items)
	require.NoError(t, err)

	seen := map[string]int{}
	for _, c := range chunks {
		for _, it := range c.Items {
			seen[it.ID]++
		}
	}
	require.Len(t, seen, len(items))
	for _, it := range items {
		assert.Equal(t, 1, seen[it.ID], "item %s must appear exactly once", it.ID)
	}
}

func TestPartitionRespectsItemCountBound(t *testing.T) {
	cfg := testConfig()
	cfg.MaxItemsPerChunk = 3
	p := NewPartitioner(cfg, nil)
	var items []WorkItem
	for i := 0; i < 10; i++ {
		items = append(items, makeItem(fmt.Sprintf("f%d.html", i), "html", 40))
	}
	chunks, err := p.Partition(items)
	require.NoError(t, err)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Items), 3)
	}
}

func TestPartitionRespectsCostBound(t *testing.T) {
	cfg := testConfig()
	cfg.MaxCostPerChunk = 100
	cfg.MaxItemsPerChunk = 50
	p := NewPartitioner(cfg, nil)
	var items []WorkItem
	for i := 0; i < 12; i++ {
		// 120 bytes, cost 30 each; three fit under 100, four do not.
		items = append(items, makeItem(fmt.Sprintf("f%d.css", i), "css", 120))
	}
	chunks, err := p.Partition(items)
	require.NoError(t, err)
	require.Len(t, chunks, 4)
	for _, c := range chunks {
		assert.LessOrEqual(t, c.EstimatedCost, 100)
	}
}

func TestPartitionOversizedItemGetsSingletonChunk(t *testing.T) {
	cfg := testConfig()
	cfg.MaxCostPerChunk = 100
	p := NewPartitioner(cfg, nil)
	items := []WorkItem{
		makeItem("small.html", "html", 40),
		makeItem("huge.html", "html", 4000), // cost 1000, over the bound alone
		makeItem("tiny.html", "html", 40),
	}
	chunks, err := p.Partition(items)
	require.NoError(t, err)

	var oversized *Chunk
	for i := range chunks {
		for _, it := range chunks[i].Items {
			if it.ID == "huge.html" {
				oversized = &chunks[i]
			}
		}
	}
	require.NotNil(t, oversized)
	assert.Len(t, oversized.Items, 1, "oversized item must sit alone")
}

func TestPartitionDefaultBudgetShape(t *testing.T) {
	// 7 items of 40000 bytes each: cost 10000 apiece, so 5 fit both bounds
	// exactly and the remaining 2 form the second chunk.
	p := NewPartitioner(testConfig(), nil)
	var items []WorkItem
	for i := 0; i < 7; i++ {
		items = append(items, makeItem(fmt.Sprintf("page%d.html", i), "html", 40000))
	}
	chunks, err := p.Partition(items)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0].Items, 5)
	assert.Len(t, chunks[1].Items, 2)
	assert.Equal(t, 50000, chunks[0].EstimatedCost)
}

func TestPartitionPriorityOrdering(t *testing.T) {
	p := NewPartitioner(testConfig(), nil)
	items := []WorkItem{
		makeItem("logo.png", "image", 40),
		makeItem("app.js", "javascript", 40),
		makeItem("index.html", "html", 40),
		makeItem("style.css", "css", 40),
		makeItem("notes.txt", "", 40),
	}
	chunks, err := p.Partition(items)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	// Markup sorts first within the highest-priority chunk.
	assert.Equal(t, "index.html", chunks[0].Items[0].ID)

	for i := 1; i < len(chunks); i++ {
		assert.GreaterOrEqual(t, chunks[i-1].Priority, chunks[i].Priority)
	}
}

func TestPartitionChunkIDsAreSequential(t *testing.T) {
	cfg := testConfig()
	cfg.MaxItemsPerChunk = 1
	p := NewPartitioner(cfg, nil)
	items := []WorkItem{
		makeItem("a.html", "html", 40),
		makeItem("b.html", "html", 40),
		makeItem("c.html", "html", 40),
	}
	chunks, err := p.Partition(items)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	ids := map[string]bool{}
	for _, c := range chunks {
		ids[c.ID] = true
	}
	assert.True(t, ids["chunk_0"] && ids["chunk_1"] && ids["chunk_2"])
}

func TestItemCost(t *testing.T) {
	assert.Equal(t, 100, ItemCost(makeItem("a.html", "html", 400)))
	assert.Equal(t, 1, ItemCost(makeItem("b.html", "html", 2)), "tiny payload floors at 1")
	assert.Equal(t, 50, ItemCost(WorkItem{ID: "c.png", SizeHint: 200}), "size hint used without payload")
	assert.Equal(t, minItemCost, ItemCost(WorkItem{ID: "d.png"}), "fixed floor with no payload and no hint")
}

func TestItemPriorityFallsBackToExtension(t *testing.T) {
	assert.Equal(t, priorityMarkup, itemPriority(WorkItem{ID: "pages/about.html"}))
	assert.Equal(t, priorityStylesheet, itemPriority(WorkItem{ID: "assets/site.CSS"}))
	assert.Equal(t, priorityScript, itemPriority(WorkItem{ID: "app.ts"}))
	assert.Equal(t, priorityImage, itemPriority(WorkItem{ID: "logo.svg"}))
	assert.Equal(t, priorityOther, itemPriority(WorkItem{ID: "README.md"}))
	assert.Equal(t, priorityMarkup, itemPriority(WorkItem{ID: "data.bin", Kind: "html"}), "kind tag wins over extension")
}

func TestChunkPriorityIsFloorAverage(t *testing.T) {
	items := []WorkItem{
		{ID: "a.html", Kind: "html"},    // 100
		{ID: "b.css", Kind: "css"},      // 80
		{ID: "c.txt", Kind: "whatever"}, // 20
	}
	assert.Equal(t, 66, chunkPriority(items))
}
