package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/slotflow/artifact"
	"github.com/hupe1980/slotflow/compute"
	"github.com/hupe1980/slotflow/core"
	"github.com/hupe1980/slotflow/dataset"
	"github.com/hupe1980/slotflow/internal/testutil"
	"github.com/hupe1980/slotflow/slot"
	"github.com/hupe1980/slotflow/workflow"
)

func newWorkflowFixture(t *testing.T) (*workflow.Orchestrator, *core.RunContext) {
	t.Helper()
	registry, err := workflow.NewRegistry(testutil.MalariaDefinition())
	require.NoError(t, err)

	// A nil-oracle resolver still handles exact choice matches.
	orch := workflow.NewOrchestrator(
		registry,
		slot.NewResolver(nil),
		slot.NewIntentClassifier(nil),
		dataset.NewInMemoryStore(),
		testutil.StaticEngine(),
	)

	sess := core.NewSession("s1")
	rc := core.NewRunContext(context.Background(), sess, nil, nil, nil)
	return orch, rc
}

func TestContinueWorkflowTool(t *testing.T) {
	orch, rc := newWorkflowFixture(t)
	def, _ := orch.Registry().Get("incidence_rate")
	_, err := orch.Start(rc, def)
	require.NoError(t, err)

	tl := NewContinueWorkflowTool(orch)
	assert.True(t, tl.SideEffect())

	tc := core.NewToolContext(rc, "fc-1")
	result, err := tl.Call(tc, map[string]any{"answer": "primary"})
	require.NoError(t, err)

	out := result.(map[string]any)
	assert.Equal(t, true, out["active"])
	assert.Equal(t, "age_group", out["stage"])
	assert.Contains(t, out["message"], "Which age group")

	v, ok := rc.Session.WorkflowState().Selected("facility_level")
	require.True(t, ok)
	assert.Equal(t, "primary", v)
}

func TestContinueWorkflowToolInactive(t *testing.T) {
	orch, rc := newWorkflowFixture(t)
	tl := NewContinueWorkflowTool(orch)

	result, err := tl.Call(core.NewToolContext(rc, "fc-1"), map[string]any{"answer": "primary"})
	require.NoError(t, err)
	out := result.(map[string]any)
	assert.Equal(t, false, out["active"])
}

func TestDescribeDatasetTool(t *testing.T) {
	store := dataset.NewInMemoryStore()
	store.Put("s1", testutil.SingleRegionSchema())
	tl := NewDescribeDatasetTool(store)

	rc := core.NewRunContext(context.Background(), core.NewSession("s1"), nil, nil, nil)
	result, err := tl.Call(core.NewToolContext(rc, "fc-1"), map[string]any{})
	require.NoError(t, err)

	schema := result.(*dataset.Schema)
	assert.Equal(t, "facilities.csv", schema.Handle)
	assert.Equal(t, 1280, schema.RowCount)
}

func TestDescribeDatasetToolNoDataset(t *testing.T) {
	tl := NewDescribeDatasetTool(dataset.NewInMemoryStore())
	rc := core.NewRunContext(context.Background(), core.NewSession("s1"), nil, nil, nil)

	_, err := tl.Call(core.NewToolContext(rc, "fc-1"), map[string]any{})
	require.Error(t, err)
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "EXECUTION_ERROR", toolErr.Code)
}

func TestRunComputationTool(t *testing.T) {
	tl := NewRunComputationTool(testutil.StaticEngine("viz-9"))
	rc := core.NewRunContext(context.Background(), core.NewSession("s1"), nil, nil, nil)

	result, err := tl.Call(core.NewToolContext(rc, "fc-1"), map[string]any{
		"workflow_id": "incidence_rate",
		"selections":  map[string]any{"facility_level": "primary"},
	})
	require.NoError(t, err)

	out := result.(*compute.Result)
	assert.Contains(t, out.Summary, "facility_level=primary")
	assert.Equal(t, []string{"viz-9"}, rc.Visualizations())
}

func TestRenderVisualizationTool(t *testing.T) {
	artifacts := artifact.NewInMemoryStore()
	tl := NewRenderVisualizationTool(nil)

	rc := core.NewRunContext(context.Background(), core.NewSession("s1"), nil, artifacts, nil)
	result, err := tl.Call(core.NewToolContext(rc, "fc-1"), map[string]any{
		"kind":   "histogram",
		"column": "cases",
	})
	require.NoError(t, err)

	ref := result.(map[string]any)["ref"].(string)
	require.NotEmpty(t, ref)

	payload, err := artifacts.Get("s1", ref)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"histogram"`)
	assert.Equal(t, []string{ref}, rc.Visualizations())
}
