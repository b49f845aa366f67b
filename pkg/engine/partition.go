package engine

import (
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"
)

// Partitioner deterministically splits a flat list of WorkItems into bounded
// chunks ordered by a priority heuristic.
type Partitioner struct {
	cfg    RunConfig
	logger *slog.Logger
}

// NewPartitioner creates a Partitioner for the given configuration.
func NewPartitioner(cfg RunConfig, loggerHandler slog.Handler) *Partitioner {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	return &Partitioner{
		cfg:    cfg,
		logger: slog.New(loggerHandler).With(slog.String("component", "partitioner")),
	}
}

// Partition splits items into chunks respecting the per-chunk item-count and
// cost-budget limits. The returned chunks are ordered by descending chunk
// priority (stable), and the union of their items equals the input exactly.
// A malformed item fails the whole call; no partial chunk list is returned.
func (p *Partitioner) Partition(items []WorkItem) ([]Chunk, error) {
	if err := p.cfg.Validate(); err != nil {
		return nil, err
	}
	for _, it := range items {
		if it.ID == "" {
			return nil, fmt.Errorf("%w: missing identifier", ErrInvalidWorkItem)
		}
	}
	if len(items) == 0 {
		return nil, nil
	}

	// Stable sort preserves original relative order among equal priorities.
	sorted := make([]WorkItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return itemPriority(sorted[i]) > itemPriority(sorted[j])
	})

	var chunks []Chunk
	var current []WorkItem
	currentCost := 0

	closeCurrent := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, Chunk{
			ID:            fmt.Sprintf("chunk_%d", len(chunks)),
			Items:         current,
			EstimatedCost: currentCost,
			Priority:      chunkPriority(current),
		})
		current = nil
		currentCost = 0
	}

	for _, it := range sorted {
		cost := ItemCost(it)
		if len(current) >= p.cfg.MaxItemsPerChunk || currentCost+cost > p.cfg.MaxCostPerChunk {
			closeCurrent()
		}
		current = append(current, it)
		currentCost += cost
	}
	closeCurrent()

	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Priority > chunks[j].Priority
	})

	p.logger.Info("Split project into chunks", slog.Int("items", len(items)), slog.Int("chunks", len(chunks)))
	for _, c := range chunks {
		p.logger.Debug("Chunk composed",
			slog.String("id", c.ID),
			slog.Int("items", len(c.Items)),
			slog.Int("estimatedCost", c.EstimatedCost),
			slog.Int("priority", c.Priority))
	}
	return chunks, nil
}

// ItemCost estimates the processing cost of one item: payload bytes divided
// by the bytes-per-cost-unit factor, with the size hint standing in when the
// payload is not carried inline, and a fixed floor for empty items.
func ItemCost(it WorkItem) int {
	switch {
	case len(it.Payload) > 0:
		cost := len(it.Payload) / bytesPerCostUnit
		if cost < 1 {
			cost = 1
		}
		return cost
	case it.SizeHint > 0:
		cost := it.SizeHint / bytesPerCostUnit
		if cost < 1 {
			cost = 1
		}
		return cost
	default:
		return minItemCost
	}
}

// itemPriority classifies an item into a processing-order tier from its kind
// tag, falling back to the identifier's extension.
func itemPriority(it WorkItem) int {
	kind := strings.ToLower(it.Kind)
	if kind == "" {
		kind = strings.TrimPrefix(strings.ToLower(path.Ext(it.ID)), ".")
	}
	switch kind {
	case "html", "htm", "xhtml", "markup":
		return priorityMarkup
	case "css", "scss", "sass", "less", "stylesheet":
		return priorityStylesheet
	case "js", "jsx", "ts", "tsx", "javascript", "typescript", "script":
		return priorityScript
	case "png", "jpg", "jpeg", "gif", "svg", "webp", "ico", "image":
		return priorityImage
	default:
		return priorityOther
	}
}

// chunkPriority is the floor-average of the member items' scores.
func chunkPriority(items []WorkItem) int {
	if len(items) == 0 {
		return 0
	}
	total := 0
	for _, it := range items {
		total += itemPriority(it)
	}
	return total / len(items)
}
