package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hupe1980/slotflow/compute"
	"github.com/hupe1980/slotflow/core"
	"github.com/hupe1980/slotflow/dataset"
	"github.com/hupe1980/slotflow/workflow"
)

// NewContinueWorkflowTool exposes workflow stepping as an ordinary tool so
// the reasoning loop owns every decision path; there is no parallel
// special-cased stepping logic racing with it.
func NewContinueWorkflowTool(orch *workflow.Orchestrator) *FunctionTool {
	return NewFunctionTool(
		"continue_workflow",
		"Apply the user's reply to the active data-collection workflow: resolve it against the current stage's options and advance. Use this when a workflow is active and the user is answering the current question.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"answer": map[string]any{
					"type":        "string",
					"description": "The user's reply to apply to the current workflow stage",
				},
			},
			"required": []string{"answer"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			answer, _ := args["answer"].(string)
			ws := tc.WorkflowState()
			if !ws.Active() {
				return map[string]any{"active": false, "message": "no workflow in progress"}, nil
			}
			resp, err := orch.Step(tc.RunContext(), answer)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"active":  tc.WorkflowState().Active(),
				"stage":   tc.WorkflowState().CurrentStage,
				"message": resp.Text,
				"status":  string(resp.Status),
			}, nil
		},
		func(o *FunctionToolOptions) { o.SideEffect = true },
	)
}

// NewDescribeDatasetTool lets the loop answer questions about the uploaded
// dataset's shape without guessing.
func NewDescribeDatasetTool(store dataset.Store) *FunctionTool {
	return NewFunctionTool(
		"describe_dataset",
		"Describe the session's uploaded dataset: columns, types, distinct values and row count.",
		map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			schema, err := store.Load(tc.Context(), tc.SessionID())
			if err != nil {
				return nil, fmt.Errorf("load dataset: %w", err)
			}
			return schema, nil
		},
	)
}

// NewRunComputationTool exposes the downstream statistics engine directly,
// for ad hoc computations requested outside the guided workflow.
func NewRunComputationTool(engine compute.Engine) *FunctionTool {
	return NewFunctionTool(
		"run_computation",
		"Run a statistic computation for a workflow with an explicit selections map (stage name to value). Use only when the user asks for a computation outside the guided workflow.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"workflow_id": map[string]any{
					"type":        "string",
					"description": "Identifier of the computation to run",
				},
				"selections": map[string]any{
					"type":        "object",
					"description": "Stage name to chosen value",
				},
			},
			"required": []string{"workflow_id", "selections"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			workflowID, _ := args["workflow_id"].(string)
			rawSelections, _ := args["selections"].(map[string]any)
			selections := make(map[string]string, len(rawSelections))
			for k, v := range rawSelections {
				selections[k] = fmt.Sprintf("%v", v)
			}

			result, err := engine.Compute(tc.Context(), workflowID, selections)
			if err != nil {
				return nil, err
			}
			for _, ref := range result.VisualizationRefs {
				tc.AddVisualization(ref)
			}
			return result, nil
		},
	)
}

// RenderFunc produces a rendered visualization payload. Rendering itself
// lives outside the engine; the default used in tests and demos emits the
// requested VisualizationSpec as JSON.
type RenderFunc func(ctx context.Context, spec VisualizationSpec) ([]byte, error)

// VisualizationSpec describes a requested visualization.
type VisualizationSpec struct {
	Kind   string `json:"kind" description:"Visualization kind: map, histogram, bar, line"`
	Column string `json:"column" description:"Dataset column to visualize"`
}

// NewRenderVisualizationTool parks the rendered payload in the artifact store
// and returns an opaque reference the presentation layer resolves.
func NewRenderVisualizationTool(render RenderFunc) *FunctionTool {
	if render == nil {
		render = func(_ context.Context, spec VisualizationSpec) ([]byte, error) {
			return json.Marshal(spec)
		}
	}
	return NewFunctionToolFromStruct(
		"render_visualization",
		"Render a visualization (map, histogram, bar or line chart) of a dataset column and return a reference to it.",
		VisualizationSpec{},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			spec := VisualizationSpec{}
			spec.Kind, _ = args["kind"].(string)
			spec.Column, _ = args["column"].(string)

			payload, err := render(tc.Context(), spec)
			if err != nil {
				return nil, fmt.Errorf("render %s of %s: %w", spec.Kind, spec.Column, err)
			}
			ref := "viz-" + core.NewID()
			if err := tc.SaveArtifact(ref, payload); err != nil {
				return nil, err
			}
			return map[string]any{"ref": ref}, nil
		},
	)
}
