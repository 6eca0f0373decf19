package core

import (
	"context"

	"github.com/hupe1980/slotflow/logging"
)

// ToolContext provides a constrained, auditable surface for tool
// implementations invoked during an act step. It exposes read access to the
// session and workflow state plus artifact/visualization helpers, without
// handing tools the full run machinery.
type ToolContext struct {
	runCtx         *RunContext
	functionCallID string

	*loggerAdapter
}

// NewToolContext constructs a tool context bound to a parent RunContext and
// unique functionCallID.
func NewToolContext(runCtx *RunContext, functionCallID string) *ToolContext {
	return &ToolContext{
		runCtx:         runCtx,
		functionCallID: functionCallID,
		loggerAdapter:  newLoggerAdapter(runCtx.Logger()),
	}
}

// Context returns the context associated with the tool invocation. It carries
// the per-tool deadline set by the executor.
func (tc *ToolContext) Context() context.Context { return tc.runCtx.Context }

// SessionID returns the session ID associated with the tool invocation.
func (tc *ToolContext) SessionID() string { return tc.runCtx.SessionID }

// RunID returns the run ID associated with the tool invocation.
func (tc *ToolContext) RunID() string { return tc.runCtx.RunID }

// FunctionCallID returns the function call ID associated with the tool invocation.
func (tc *ToolContext) FunctionCallID() string { return tc.functionCallID }

// Logger returns the logger associated with the tool invocation.
func (tc *ToolContext) Logger() logging.Logger { return tc.loggerAdapter.Logger() }

// RunContext returns the parent run context. Tools that step the workflow
// (continue_workflow) need it to reach the orchestrator surface.
func (tc *ToolContext) RunContext() *RunContext { return tc.runCtx }

// Session returns the working session snapshot.
func (tc *ToolContext) Session() *Session { return tc.runCtx.Session }

// WorkflowState returns the session's durable workflow state.
func (tc *ToolContext) WorkflowState() *WorkflowState { return tc.runCtx.Session.WorkflowState() }

// AddVisualization records a visualization reference for the final response.
func (tc *ToolContext) AddVisualization(ref string) { tc.runCtx.AddVisualization(ref) }

// SaveArtifact stores bytes in the artifact store scoped to this session and
// records the id as a visualization reference.
func (tc *ToolContext) SaveArtifact(id string, data []byte) error {
	return tc.runCtx.SaveArtifact(id, data)
}
