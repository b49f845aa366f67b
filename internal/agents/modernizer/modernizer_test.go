package modernizer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/astrio-ai/legacy2modern/internal/agents/parser"
	"github.com/astrio-ai/legacy2modern/internal/testutil"
	"github.com/astrio-ai/legacy2modern/pkg/engine"
)

func sampleAggregate() engine.AggregateResult {
	return engine.AggregateResult{
		Payload: engine.Payload{
			Files: map[string]any{
				"index.html":  parser.FileAnalysis{Status: "success", Kind: "html", Components: []string{"Home"}},
				"app.js":      parser.FileAnalysis{Status: "success", Kind: "javascript", Components: []string{"App"}},
				"style.css":   parser.FileAnalysis{Status: "success", Kind: "css"},
				"broken.html": parser.FileAnalysis{Status: "failed", Kind: "html"},
			},
		},
	}
}

func TestBuildWorkItemsFiltersAndSorts(t *testing.T) {
	a := NewAgent(nil, nil)
	items := a.BuildWorkItems(sampleAggregate())

	require.Len(t, items, 2, "only successful html/js files are planned")
	assert.Equal(t, "app.js", items[0].ID)
	assert.Equal(t, "index.html", items[1].ID)
	for _, it := range items {
		assert.NotEmpty(t, it.Payload)
	}
}

func TestBuildWorkItemsAcceptsDecodedMaps(t *testing.T) {
	// Cached payloads come back as generic maps, not structs.
	a := NewAgent(nil, nil)
	agg := engine.AggregateResult{
		Payload: engine.Payload{
			Files: map[string]any{
				"index.html": map[string]any{"status": "success", "kind": "html", "components": []any{"Home"}},
			},
		},
	}
	items := a.BuildWorkItems(agg)
	require.Len(t, items, 1)
	assert.Equal(t, "index.html", items[0].ID)
}

func planChunkFor(t *testing.T, a *Agent, agg engine.AggregateResult) engine.Payload {
	t.Helper()
	items := a.BuildWorkItems(agg)
	require.NotEmpty(t, items)
	payload, err := a.PlanChunk(context.Background(), engine.Chunk{ID: "chunk_0", Items: items})
	require.NoError(t, err)
	return payload
}

func TestPlanChunkRuleBased(t *testing.T) {
	a := NewAgent(nil, nil)
	payload := planChunkFor(t, a, sampleAggregate())

	htmlPlan, ok := payload.Files["index.html"].(ComponentPlan)
	require.True(t, ok)
	assert.True(t, htmlPlan.Succeeded())
	assert.Equal(t, "Home", htmlPlan.Component)
	assert.Equal(t, "/", htmlPlan.Route)

	jsPlan := payload.Files["app.js"].(ComponentPlan)
	assert.Empty(t, jsPlan.Route)
	assert.Contains(t, jsPlan.Hooks, "useEffect")
}

func TestPlanChunkWithModelNotes(t *testing.T) {
	model := &testutil.MockLLMClient{}
	model.On("Complete", mock.Anything, mock.Anything).
		Return(`{"index.html": "Use React Router for navigation."}`, nil)
	a := NewAgent(model, nil)

	payload := planChunkFor(t, a, sampleAggregate())
	plan := payload.Files["index.html"].(ComponentPlan)
	assert.Equal(t, "Use React Router for navigation.", plan.Notes)
}

func TestPlanChunkModelFailureKeepsRulePlan(t *testing.T) {
	model := &testutil.MockLLMClient{}
	model.On("Complete", mock.Anything, mock.Anything).Return("", errors.New("model unavailable"))
	a := NewAgent(model, nil)

	payload := planChunkFor(t, a, sampleAggregate())
	plan := payload.Files["index.html"].(ComponentPlan)
	assert.True(t, plan.Succeeded(), "rule-based plan survives model failure")
	assert.Empty(t, plan.Notes)
}

func TestPlanChunkUndecodablePayload(t *testing.T) {
	a := NewAgent(nil, nil)
	payload, err := a.PlanChunk(context.Background(), engine.Chunk{
		ID:    "chunk_0",
		Items: []engine.WorkItem{{ID: "weird.html", Kind: "html", Payload: []byte("not json")}},
	})
	require.NoError(t, err)
	plan := payload.Files["weird.html"].(ComponentPlan)
	assert.False(t, plan.Succeeded())
}

func TestRouteFromPath(t *testing.T) {
	assert.Equal(t, "/", routeFromPath("index.html"))
	assert.Equal(t, "/pages/about", routeFromPath("pages/about.html"))
	assert.Equal(t, "/docs", routeFromPath("docs/index.html"))
}

func TestPlanPayloadSurvivesJSONRoundTrip(t *testing.T) {
	a := NewAgent(nil, nil)
	payload := planChunkFor(t, a, sampleAggregate())

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	var decoded engine.Payload
	require.NoError(t, json.Unmarshal(data, &decoded))
	entry, ok := decoded.Files["index.html"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "success", entry["status"])
}
