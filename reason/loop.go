package reason

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hupe1980/slotflow/core"
	"github.com/hupe1980/slotflow/logging"
	"github.com/hupe1980/slotflow/oracle"
	"github.com/hupe1980/slotflow/tool"
)

// DefaultInstructions frames the assistant when no caller-specific framing is
// supplied.
const DefaultInstructions = `You are a data analysis assistant. Answer the user's question about their uploaded dataset. Use the provided tools when they help; otherwise answer directly. Be concise and concrete. If a guided workflow is active, prefer the continue_workflow tool for replies that answer the current workflow question.`

// Options configures a Loop.
type Options struct {
	// IterationCap bounds how many reason steps a single request may take.
	IterationCap int

	// HistoryWindow is the number of recent turns sent to the oracle.
	HistoryWindow int

	// ToolTimeout bounds a single read-only tool execution. Tools that
	// report side effects run to completion regardless.
	ToolTimeout time.Duration

	// OracleTimeout bounds a single oracle call.
	OracleTimeout time.Duration

	// Instructions replaces DefaultInstructions when set.
	Instructions string

	// Logger for loop events.
	Logger logging.Logger
}

// Loop alternates reason steps (oracle calls) with act steps (tool
// executions) until the oracle produces a plain text answer or the iteration
// cap is reached. Iteration exhaustion is a degraded answer, never an error.
type Loop struct {
	oracle oracle.Oracle
	tools  tool.Registry
	opts   Options
	logger logging.Logger
}

// NewLoop creates a reasoning loop over the given oracle and tool registry.
func NewLoop(o oracle.Oracle, tools tool.Registry, optFns ...func(o *Options)) *Loop {
	opts := Options{
		IterationCap:  5,
		HistoryWindow: 10,
		ToolTimeout:   15 * time.Second,
		OracleTimeout: 10 * time.Second,
		Instructions:  DefaultInstructions,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.IterationCap < 1 {
		opts.IterationCap = 1
	}
	return &Loop{
		oracle: o,
		tools:  tools,
		opts:   opts,
		logger: opts.Logger,
	}
}

// Run drives the loop for one user request. The triggering user turn must
// already be in the session history. extraInstructions, when non-empty, is
// appended to the base instructions (the deviation handler uses this to carry
// workflow context).
func (l *Loop) Run(rc *core.RunContext, extraInstructions string) (*core.Response, error) {
	instructions := l.opts.Instructions
	if extraInstructions != "" {
		instructions = instructions + "\n\n" + extraInstructions
	}
	toolDefs := l.toolDefinitions()

	var lastText string
	for i := 0; i < l.opts.IterationCap; i++ {
		if err := rc.Err(); err != nil {
			return nil, err
		}

		req := oracle.Request{
			Instructions: instructions,
			Turns:        l.buildTurns(rc),
			Tools:        toolDefs,
		}

		octx, cancel := context.WithTimeout(rc.Context, l.opts.OracleTimeout)
		resp, err := l.oracle.Complete(octx, req)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("oracle complete: %w", err)
		}

		if resp.Text != "" {
			lastText = resp.Text
		}
		if len(resp.ToolCalls) == 0 {
			if resp.Text == "" {
				// Some providers occasionally return an empty completion.
				l.logger.Warn("reason.loop.empty_reply", "iterations", i+1)
				return core.OK(emptyReplyText(lastText)), nil
			}
			l.logger.Debug("reason.loop.done", "iterations", i+1)
			return core.OK(resp.Text), nil
		}

		rc.Session.AppendTurn(core.NewFunctionCallTurn(resp.ToolCalls))
		results := l.act(rc, resp.ToolCalls)
		rc.Session.AppendTurn(core.NewFunctionResponseTurn(results))
	}

	l.logger.Warn("reason.loop.cap_exhausted", "iteration_cap", l.opts.IterationCap)
	return core.OK(capExhaustedText(lastText)), nil
}

// buildTurns assembles the oracle-visible conversation: a freshly rendered
// workflow-state block followed by the truncated recent history. The block is
// never stored in the session, so it can never go stale.
func (l *Loop) buildTurns(rc *core.RunContext) []core.Turn {
	recent := rc.Session.RecentTurns(l.opts.HistoryWindow)
	turns := make([]core.Turn, 0, len(recent)+1)
	turns = append(turns, core.NewPinnedSystemTurn(StateBlock(rc.Session.WorkflowState())))
	turns = append(turns, recent...)
	return turns
}

// act executes every requested tool call in order, converting failures into
// structured error payloads the oracle can reason about on the next step.
func (l *Loop) act(rc *core.RunContext, calls []core.FunctionCall) []core.FunctionResponse {
	results := make([]core.FunctionResponse, 0, len(calls))
	for _, call := range calls {
		results = append(results, l.invoke(rc, call))
	}
	return results
}

func (l *Loop) invoke(rc *core.RunContext, call core.FunctionCall) core.FunctionResponse {
	fr := core.FunctionResponse{ID: call.ID, Name: call.Name}

	t, ok := l.tools.Get(call.Name)
	if !ok {
		fr.Error = fmt.Sprintf("unknown tool %q", call.Name)
		return fr
	}

	args := map[string]any{}
	if strings.TrimSpace(call.Arguments) != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			fr.Error = fmt.Sprintf("invalid tool arguments: %v", err)
			return fr
		}
	}

	tc := core.NewToolContext(rc, call.ID)

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := t.Call(tc, args)
		done <- outcome{result: res, err: err}
	}()

	// Once a side-effecting tool has started it must run to completion;
	// abandoning it mid-flight could leave durable state half written.
	if t.SideEffect() {
		out := <-done
		return l.finish(fr, out.result, out.err)
	}

	timer := time.NewTimer(l.opts.ToolTimeout)
	defer timer.Stop()
	select {
	case out := <-done:
		return l.finish(fr, out.result, out.err)
	case <-timer.C:
		l.logger.Warn("reason.tool.timeout", "tool", call.Name, "timeout", l.opts.ToolTimeout.String())
		fr.Error = fmt.Sprintf("tool %s timed out after %s", call.Name, l.opts.ToolTimeout)
		return fr
	}
}

func (l *Loop) finish(fr core.FunctionResponse, result any, err error) core.FunctionResponse {
	if err != nil {
		fr.Error = err.Error()
		return fr
	}
	fr.Response = result
	return fr
}

// toolDefinitions renders the registry in stable name order.
func (l *Loop) toolDefinitions() []oracle.ToolDefinition {
	names := make([]string, 0, len(l.tools))
	for name := range l.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]oracle.ToolDefinition, 0, len(names))
	for _, name := range names {
		t := l.tools[name]
		defs = append(defs, oracle.ToolDefinition{
			Type: "function",
			Function: oracle.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}

// StateBlock renders the current workflow state as a system context block.
// It is rebuilt from WorkflowState before every reason step so the oracle
// never sees a stale snapshot.
func StateBlock(ws *core.WorkflowState) string {
	if ws == nil || !ws.Active() {
		return "No guided workflow is currently active."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Active workflow: %s\n", ws.WorkflowID)
	fmt.Fprintf(&b, "Current stage: %s\n", ws.CurrentStage)
	if len(ws.Selections) == 0 {
		b.WriteString("Selections so far: none\n")
	} else {
		b.WriteString("Selections so far:\n")
		for _, sel := range ws.Selections {
			fmt.Fprintf(&b, "  - %s: %s\n", sel.Stage, sel.Value)
		}
	}
	if ws.AwaitingConfirmation {
		b.WriteString("The user has been asked to confirm before proceeding.\n")
	}
	b.WriteString("When the user's reply answers the current workflow question, call continue_workflow with it.")
	return b.String()
}

func emptyReplyText(lastText string) string {
	if lastText != "" {
		return lastText
	}
	return "I couldn't come up with an answer to that. Could you rephrase the question?"
}

func capExhaustedText(lastText string) string {
	if lastText != "" {
		return lastText + "\n\nI couldn't finish working through this in one go. Could you narrow the question down so I can give you a complete answer?"
	}
	return "I couldn't finish working through this in one go. Could you narrow the question down, or rephrase it, so I can give you a complete answer?"
}
