// Package parser implements the analysis agent: the per-chunk processing
// callback that asks the model to analyze a batch of legacy source files and
// turns the reply into a mergeable payload. When no model client is
// configured (offline mode) or a reply cannot be used, a heuristic analysis
// of the raw content stands in, so a run always yields per-file results.
package parser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/astrio-ai/legacy2modern/internal/llm"
	"github.com/astrio-ai/legacy2modern/pkg/engine"
)

// maxInlineContentBytes bounds how much of each file is quoted in the
// prompt. Larger files are truncated with a marker; the model still sees the
// structure that matters for analysis.
const maxInlineContentBytes = 24000

// ErrUnusableReply marks a model reply that failed JSON extraction or schema
// validation. It is not returned from ProcessChunk (the heuristic fallback
// absorbs it) but is logged with this identity.
var ErrUnusableReply = errors.New("parser: unusable model reply")

// replySchema validates the decoded model reply before it is trusted.
const replySchema = `{
  "type": "object",
  "required": ["files"],
  "properties": {
    "files": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["status"],
        "properties": {
          "status": {"type": "string", "enum": ["success", "failed"]},
          "kind": {"type": "string"},
          "summary": {"type": "string"},
          "components": {"type": "array", "items": {"type": "string"}}
        }
      }
    },
    "patterns": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "type"],
        "properties": {
          "name": {"type": "string"},
          "type": {"type": "string"},
          "description": {"type": "string"}
        }
      }
    },
    "dependencies": {
      "type": "object",
      "additionalProperties": {"type": "array", "items": {"type": "string"}}
    }
  }
}`

// FileAnalysis is the per-file result recorded in the merged payload.
type FileAnalysis struct {
	Status     string   `json:"status"`
	Kind       string   `json:"kind,omitempty"`
	Summary    string   `json:"summary,omitempty"`
	Components []string `json:"components,omitempty"`
	Heuristic  bool     `json:"heuristic,omitempty"`
}

// Succeeded reports whether this file's analysis succeeded.
func (a FileAnalysis) Succeeded() bool { return a.Status == "success" }

type reply struct {
	Files        map[string]FileAnalysis `json:"files"`
	Patterns     []engine.Pattern        `json:"patterns"`
	Dependencies map[string][]string     `json:"dependencies"`
}

// Agent analyzes chunks of legacy files. A nil model client puts the agent
// in offline mode; every chunk is then analyzed heuristically.
type Agent struct {
	model  llm.Client
	schema *gojsonschema.Schema
	logger *slog.Logger
}

// NewAgent creates an Agent. model may be nil for offline analysis.
func NewAgent(model llm.Client, loggerHandler slog.Handler) (*Agent, error) {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(replySchema))
	if err != nil {
		return nil, fmt.Errorf("parser: compiling reply schema: %w", err)
	}
	return &Agent{
		model:  model,
		schema: schema,
		logger: slog.New(loggerHandler).With(slog.String("component", "parser")),
	}, nil
}

// ProcessChunk is the engine.ProcessFunc for the analysis stage. Transport
// failures (rate limits, server errors, cancellation) are returned so the
// scheduler retries the chunk; an unusable model reply instead degrades to
// the heuristic analysis, which cannot fail.
func (a *Agent) ProcessChunk(ctx context.Context, chunk engine.Chunk) (engine.Payload, error) {
	if a.model == nil {
		return a.analyzeHeuristically(chunk), nil
	}

	raw, err := a.model.Complete(ctx, llm.Request{
		System: systemPrompt,
		Prompt: buildPrompt(chunk),
	})
	if err != nil {
		return engine.Payload{}, fmt.Errorf("analyzing %s: %w", chunk.ID, err)
	}

	payload, err := a.decodeReply(chunk, raw)
	if err != nil {
		a.logger.Warn("Falling back to heuristic analysis",
			slog.String("chunk", chunk.ID),
			slog.String("error", err.Error()))
		return a.analyzeHeuristically(chunk), nil
	}
	return payload, nil
}

const systemPrompt = `You are a senior frontend engineer analyzing a legacy website for migration to React.
For each file you are given, report its role, a short summary, and candidate React component names.
Identify recurring structures (navigation bars, cards, footers) as patterns, and external dependencies (scripts, stylesheets, fonts) per category.
Reply with a single JSON object and nothing else, using this shape:
{"files": {"<path>": {"status": "success", "kind": "...", "summary": "...", "components": ["..."]}}, "patterns": [{"name": "...", "type": "...", "description": "..."}], "dependencies": {"<category>": ["..."]}}
Mark a file "failed" only if its content is truncated or unreadable.`

func buildPrompt(chunk engine.Chunk) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Analyze the following %d files.\n", len(chunk.Items))
	for _, it := range chunk.Items {
		content := it.Payload
		truncated := false
		if len(content) > maxInlineContentBytes {
			content = content[:maxInlineContentBytes]
			truncated = true
		}
		fmt.Fprintf(&sb, "\n--- FILE: %s (kind: %s) ---\n", it.ID, it.Kind)
		sb.Write(content)
		if truncated {
			sb.WriteString("\n[content truncated]")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// decodeReply extracts, validates and converts the model's JSON reply.
func (a *Agent) decodeReply(chunk engine.Chunk, raw string) (engine.Payload, error) {
	jsonText, ok := extractJSON(raw)
	if !ok {
		return engine.Payload{}, fmt.Errorf("%w: no JSON object found", ErrUnusableReply)
	}
	res, err := a.schema.Validate(gojsonschema.NewStringLoader(jsonText))
	if err != nil {
		return engine.Payload{}, fmt.Errorf("%w: %v", ErrUnusableReply, err)
	}
	if !res.Valid() {
		return engine.Payload{}, fmt.Errorf("%w: %s", ErrUnusableReply, firstValidationError(res))
	}

	var r reply
	if err := json.Unmarshal([]byte(jsonText), &r); err != nil {
		return engine.Payload{}, fmt.Errorf("%w: %v", ErrUnusableReply, err)
	}

	// Keep only entries for files actually in the chunk, and make sure every
	// chunk member has one; the model occasionally drops or invents paths.
	files := make(map[string]any, len(chunk.Items))
	for _, it := range chunk.Items {
		if fa, ok := r.Files[it.ID]; ok {
			files[it.ID] = fa
		} else {
			files[it.ID] = heuristicAnalysis(it)
		}
	}
	return engine.Payload{
		Files:        files,
		Patterns:     r.Patterns,
		Dependencies: r.Dependencies,
	}, nil
}

// jsonFence matches a markdown code fence around the reply body.
var jsonFence = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// extractJSON pulls the JSON object out of a reply that may wrap it in prose
// or markdown fences.
func extractJSON(raw string) (string, bool) {
	if m := jsonFence.FindStringSubmatch(raw); m != nil {
		raw = m[1]
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end <= start {
		return "", false
	}
	return raw[start : end+1], true
}

func firstValidationError(res *gojsonschema.Result) string {
	for _, e := range res.Errors() {
		return e.String()
	}
	return "invalid"
}

// analyzeHeuristically produces a payload for the whole chunk from content
// inspection alone.
func (a *Agent) analyzeHeuristically(chunk engine.Chunk) engine.Payload {
	files := make(map[string]any, len(chunk.Items))
	deps := map[string][]string{}
	for _, it := range chunk.Items {
		files[it.ID] = heuristicAnalysis(it)
		for category, refs := range extractReferences(it) {
			deps[category] = append(deps[category], refs...)
		}
	}
	p := engine.Payload{Files: files}
	if len(deps) > 0 {
		p.Dependencies = deps
	}
	return p
}

// heuristicAnalysis classifies one file without model help.
func heuristicAnalysis(it engine.WorkItem) FileAnalysis {
	name := componentNameFromPath(it.ID)
	summary := fmt.Sprintf("%s file, %d bytes", it.Kind, len(it.Payload))
	fa := FileAnalysis{
		Status:    "success",
		Kind:      it.Kind,
		Summary:   summary,
		Heuristic: true,
	}
	if it.Kind == "html" || it.Kind == "javascript" {
		fa.Components = []string{name}
	}
	return fa
}

var (
	scriptSrcRe = regexp.MustCompile(`(?i)<script[^>]+src=["']([^"']+)["']`)
	linkHrefRe  = regexp.MustCompile(`(?i)<link[^>]+href=["']([^"']+)["']`)
	cssImportRe = regexp.MustCompile(`(?i)@import\s+(?:url\()?["']([^"']+)["']`)
)

// extractReferences scans content for external script and stylesheet
// references, grouped by category for the dependency union.
func extractReferences(it engine.WorkItem) map[string][]string {
	deps := map[string][]string{}
	content := string(it.Payload)
	switch it.Kind {
	case "html":
		for _, m := range scriptSrcRe.FindAllStringSubmatch(content, -1) {
			deps["scripts"] = append(deps["scripts"], m[1])
		}
		for _, m := range linkHrefRe.FindAllStringSubmatch(content, -1) {
			deps["stylesheets"] = append(deps["stylesheets"], m[1])
		}
	case "css":
		for _, m := range cssImportRe.FindAllStringSubmatch(content, -1) {
			deps["stylesheets"] = append(deps["stylesheets"], m[1])
		}
	}
	if len(deps) == 0 {
		return nil
	}
	return deps
}

// componentNameFromPath derives a PascalCase React component name from a
// file path ("pages/about-us.html" becomes "AboutUs").
func componentNameFromPath(p string) string {
	base := p
	if i := strings.LastIndex(base, "/"); i != -1 {
		base = base[i+1:]
	}
	if i := strings.LastIndex(base, "."); i != -1 {
		base = base[:i]
	}
	if base == "" || base == "index" {
		base = "home"
	}
	parts := strings.FieldsFunc(base, func(r rune) bool {
		return r == '-' || r == '_' || r == ' ' || r == '.'
	})
	var sb strings.Builder
	for _, part := range parts {
		sb.WriteString(strings.ToUpper(part[:1]))
		sb.WriteString(part[1:])
	}
	if sb.Len() == 0 {
		return "Component"
	}
	return sb.String()
}
