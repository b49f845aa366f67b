// Package modernizer implements the plan stage: it turns the merged analysis
// of a legacy site into a React migration plan, one planned component per
// analyzed source file. The stage reuses the engine end to end; the analysis
// entries become a second round of work items with their own chunking,
// scheduling and merge.
package modernizer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/astrio-ai/legacy2modern/internal/agents/parser"
	"github.com/astrio-ai/legacy2modern/internal/llm"
	"github.com/astrio-ai/legacy2modern/pkg/engine"
)

// ComponentPlan is the per-file result of the plan stage.
type ComponentPlan struct {
	Status     string   `json:"status"`
	SourceFile string   `json:"sourceFile"`
	Component  string   `json:"component,omitempty"`
	Route      string   `json:"route,omitempty"`
	Notes      string   `json:"notes,omitempty"`
	Hooks      []string `json:"hooks,omitempty"`
}

// Succeeded reports whether planning for this file succeeded.
func (p ComponentPlan) Succeeded() bool { return p.Status == "success" }

// Agent produces migration plans. A nil model client yields rule-based plans
// derived from the analysis alone.
type Agent struct {
	model  llm.Client
	logger *slog.Logger
}

// NewAgent creates an Agent. model may be nil for offline planning.
func NewAgent(model llm.Client, loggerHandler slog.Handler) *Agent {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	return &Agent{
		model:  model,
		logger: slog.New(loggerHandler).With(slog.String("component", "modernizer")),
	}
}

// BuildWorkItems converts the analysis stage's merged output into work items
// for the plan stage. Each item's payload carries the file's analysis as
// JSON, so chunk cost tracks analysis richness rather than raw source size.
// Only successfully analyzed markup and script files are planned; there is
// nothing to plan for assets. Items are emitted in sorted path order for
// deterministic chunking.
func (a *Agent) BuildWorkItems(agg engine.AggregateResult) []engine.WorkItem {
	paths := make([]string, 0, len(agg.Payload.Files))
	for p := range agg.Payload.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var items []engine.WorkItem
	for _, p := range paths {
		fa, ok := fileAnalysisOf(agg.Payload.Files[p])
		if !ok || !fa.Succeeded() {
			continue
		}
		if fa.Kind != "html" && fa.Kind != "javascript" {
			continue
		}
		payload, err := json.Marshal(fa)
		if err != nil {
			a.logger.Warn("Cannot encode analysis for planning", slog.String("file", p), slog.String("error", err.Error()))
			continue
		}
		items = append(items, engine.WorkItem{ID: p, Payload: payload, Kind: fa.Kind})
	}
	a.logger.Debug("Plan stage work items built", slog.Int("items", len(items)))
	return items
}

// fileAnalysisOf recovers a FileAnalysis from a merged payload value, which
// is either the struct itself (same-process run) or a decoded JSON map
// (cached run).
func fileAnalysisOf(v any) (parser.FileAnalysis, bool) {
	switch t := v.(type) {
	case parser.FileAnalysis:
		return t, true
	case map[string]any:
		data, err := json.Marshal(t)
		if err != nil {
			return parser.FileAnalysis{}, false
		}
		var fa parser.FileAnalysis
		if err := json.Unmarshal(data, &fa); err != nil {
			return parser.FileAnalysis{}, false
		}
		return fa, true
	default:
		return parser.FileAnalysis{}, false
	}
}

// PlanChunk is the engine.ProcessFunc for the plan stage. The model path
// asks for per-file notes; any failure there degrades to the rule-based plan
// rather than failing the chunk, since a usable plan can always be derived
// from the analysis.
func (a *Agent) PlanChunk(ctx context.Context, chunk engine.Chunk) (engine.Payload, error) {
	plans := a.rulePlans(chunk)

	if a.model != nil {
		notes, err := a.requestNotes(ctx, chunk)
		if err != nil {
			if ctx.Err() != nil {
				return engine.Payload{}, ctx.Err()
			}
			a.logger.Warn("Plan notes unavailable, keeping rule-based plan",
				slog.String("chunk", chunk.ID),
				slog.String("error", err.Error()))
		} else {
			for path, note := range notes {
				if p, ok := plans[path]; ok {
					p.Notes = note
					plans[path] = p
				}
			}
		}
	}

	files := make(map[string]any, len(plans))
	for path, p := range plans {
		files[path] = p
	}
	return engine.Payload{Files: files}, nil
}

// rulePlans derives a deterministic plan per chunk member.
func (a *Agent) rulePlans(chunk engine.Chunk) map[string]ComponentPlan {
	plans := make(map[string]ComponentPlan, len(chunk.Items))
	for _, it := range chunk.Items {
		var fa parser.FileAnalysis
		if err := json.Unmarshal(it.Payload, &fa); err != nil {
			plans[it.ID] = ComponentPlan{Status: "failed", SourceFile: it.ID, Notes: "undecodable analysis"}
			continue
		}
		plan := ComponentPlan{Status: "success", SourceFile: it.ID}
		if len(fa.Components) > 0 {
			plan.Component = fa.Components[0]
		}
		if fa.Kind == "html" {
			plan.Route = routeFromPath(it.ID)
		}
		if fa.Kind == "javascript" {
			plan.Hooks = []string{"useEffect"}
		}
		plans[it.ID] = plan
	}
	return plans
}

func (a *Agent) requestNotes(ctx context.Context, chunk engine.Chunk) (map[string]string, error) {
	var sb strings.Builder
	sb.WriteString("For each analyzed file below, give one sentence of React migration advice.\n")
	sb.WriteString("Reply with a JSON object mapping file path to the sentence.\n")
	for _, it := range chunk.Items {
		fmt.Fprintf(&sb, "\n--- %s ---\n%s\n", it.ID, it.Payload)
	}
	raw, err := a.model.Complete(ctx, llm.Request{
		System: "You are a senior React engineer planning a legacy site migration.",
		Prompt: sb.String(),
	})
	if err != nil {
		return nil, err
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("no JSON object in reply")
	}
	var notes map[string]string
	if err := json.Unmarshal([]byte(raw[start:end+1]), &notes); err != nil {
		return nil, err
	}
	return notes, nil
}

// routeFromPath maps an HTML file path to a React Router route
// ("pages/about.html" becomes "/pages/about", index files map to their
// directory).
func routeFromPath(p string) string {
	route := strings.TrimSuffix(p, ".html")
	route = strings.TrimSuffix(route, ".htm")
	route = strings.TrimSuffix(route, "/index")
	if route == "index" || route == "" {
		return "/"
	}
	return "/" + route
}
