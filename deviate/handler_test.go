package deviate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/slotflow/core"
	"github.com/hupe1980/slotflow/oracle"
	"github.com/hupe1980/slotflow/reason"
	"github.com/hupe1980/slotflow/tool"
	"github.com/hupe1980/slotflow/workflow"
)

func newRunContext() *core.RunContext {
	sess := core.NewSession("s1")
	sess.AppendTurn(core.NewUserTurn("what does incidence mean?"))
	return core.NewRunContext(context.Background(), sess, nil, nil, nil)
}

func deviationContext() workflow.DeviationContext {
	return workflow.DeviationContext{
		WorkflowID:    "incidence_rate",
		CurrentStage:  "age_group",
		Selections:    []core.Selection{{Stage: "facility_level", Value: "primary"}},
		SchemaSummary: "facilities.csv: 1280 rows",
		Reminder:      "We were in the middle of picking age group. When you're ready, choose one of: under 5, all ages.",
	}
}

func TestHandleAppendsReminder(t *testing.T) {
	orc := oracle.NewMockOracle()
	orc.Enqueue(oracle.Response{Text: "Incidence is new cases per 1,000 population."})
	h := NewHandler(reason.NewLoop(orc, tool.NewRegistry()))

	resp, err := h.Handle(newRunContext(), "what does incidence mean?", deviationContext())
	require.NoError(t, err)

	assert.Contains(t, resp.Text, "Incidence is new cases per 1,000 population.")
	assert.Contains(t, resp.Text, "We were in the middle of picking age group.")
	// The reminder keeps the turn waiting on the paused stage.
	assert.Equal(t, core.StatusAwaitingInput, resp.Status)
}

func TestHandleEmptyReminder(t *testing.T) {
	orc := oracle.NewMockOracle()
	orc.Enqueue(oracle.Response{Text: "answer"})
	h := NewHandler(reason.NewLoop(orc, tool.NewRegistry()))

	dctx := deviationContext()
	dctx.Reminder = ""
	resp, err := h.Handle(newRunContext(), "question", dctx)
	require.NoError(t, err)
	assert.Equal(t, "answer", resp.Text)
}

func TestHandleCarriesWorkflowContext(t *testing.T) {
	var captured oracle.Request
	orc := &requestCapturingOracle{reply: oracle.Response{Text: "ok"}, captured: &captured}
	h := NewHandler(reason.NewLoop(orc, tool.NewRegistry()))

	_, err := h.Handle(newRunContext(), "question", deviationContext())
	require.NoError(t, err)

	assert.Contains(t, captured.Instructions, "incidence_rate")
	assert.Contains(t, captured.Instructions, "age_group")
	assert.Contains(t, captured.Instructions, "facility_level: primary")
	assert.Contains(t, captured.Instructions, "facilities.csv: 1280 rows")
}

func TestHandlePropagatesLoopFailure(t *testing.T) {
	orc := oracle.NewMockOracle()
	orc.FailWith(errors.New("api down"))
	h := NewHandler(reason.NewLoop(orc, tool.NewRegistry()))

	_, err := h.Handle(newRunContext(), "question", deviationContext())
	assert.Error(t, err)
}

type requestCapturingOracle struct {
	reply    oracle.Response
	captured *oracle.Request
}

func (o *requestCapturingOracle) Complete(_ context.Context, req oracle.Request) (*oracle.Response, error) {
	*o.captured = req
	return &o.reply, nil
}

func (o *requestCapturingOracle) Info() oracle.Info {
	return oracle.Info{Name: "capture", Provider: "mock"}
}
