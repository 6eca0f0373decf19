// Package deviate answers side questions raised mid-workflow without losing
// the workflow's place. A deviation is handled by the shared reasoning loop
// with the live workflow context injected, and every reply ends with a
// reminder steering the user back to the pending stage.
package deviate

import (
	"fmt"
	"strings"

	"github.com/hupe1980/slotflow/core"
	"github.com/hupe1980/slotflow/logging"
	"github.com/hupe1980/slotflow/reason"
	"github.com/hupe1980/slotflow/workflow"
)

// HandlerOptions configures a Handler.
type HandlerOptions struct {
	Logger logging.Logger
}

// Handler routes deviations into a reasoning loop. It implements
// workflow.DeviationHandler.
type Handler struct {
	loop   *reason.Loop
	logger logging.Logger
}

var _ workflow.DeviationHandler = (*Handler)(nil)

// NewHandler creates a deviation handler backed by the given loop.
func NewHandler(loop *reason.Loop, optFns ...func(o *HandlerOptions)) *Handler {
	opts := HandlerOptions{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Handler{
		loop:   loop,
		logger: opts.Logger,
	}
}

// Handle answers the deviation and appends the resumption reminder. The
// workflow state is left untouched; only the loop's own tools may change it,
// and the caller re-prompts from durable state afterwards.
func (h *Handler) Handle(rc *core.RunContext, utterance string, dctx workflow.DeviationContext) (*core.Response, error) {
	h.logger.Debug("deviate.handle",
		"workflow_id", dctx.WorkflowID,
		"stage", dctx.CurrentStage,
	)

	resp, err := h.loop.Run(rc, deviationInstructions(dctx))
	if err != nil {
		return nil, fmt.Errorf("deviation loop: %w", err)
	}

	if dctx.Reminder != "" {
		if resp.Text != "" {
			resp.Text = resp.Text + "\n\n" + dctx.Reminder
		} else {
			resp.Text = dctx.Reminder
		}
	}
	resp.Status = core.StatusAwaitingInput
	return resp, nil
}

// deviationInstructions frames the loop call with the paused workflow's
// position so answers stay grounded in what the user is mid-way through.
func deviationInstructions(dctx workflow.DeviationContext) string {
	var b strings.Builder
	b.WriteString("The user asked a side question while a guided workflow is paused. Answer the question directly; do not restart or abandon the workflow.\n")
	fmt.Fprintf(&b, "Paused workflow: %s, waiting on stage %q.\n", dctx.WorkflowID, dctx.CurrentStage)
	if len(dctx.Selections) > 0 {
		b.WriteString("Selections made so far:\n")
		for _, sel := range dctx.Selections {
			fmt.Fprintf(&b, "  - %s: %s\n", sel.Stage, sel.Value)
		}
	}
	if dctx.SchemaSummary != "" {
		b.WriteString("Dataset summary: ")
		b.WriteString(dctx.SchemaSummary)
		b.WriteString("\n")
	}
	return b.String()
}
