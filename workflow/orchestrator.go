package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/slotflow/compute"
	"github.com/hupe1980/slotflow/core"
	"github.com/hupe1980/slotflow/dataset"
	"github.com/hupe1980/slotflow/internal/util"
	"github.com/hupe1980/slotflow/logging"
)

// ResolveContext carries workflow context into slot resolution so the oracle
// fallback can disambiguate against prior selections.
type ResolveContext struct {
	WorkflowID string
	StageName  string
	Selections map[string]string
}

// SlotResolver resolves free text into one canonical choice for a stage.
// Implementations must degrade (low confidence) rather than fail the turn on
// oracle trouble; a returned error means infrastructure breakage.
type SlotResolver interface {
	Resolve(ctx context.Context, utterance string, stage Stage, rctx ResolveContext) (*core.SlotResolution, error)
}

// Classifier judges whether an utterance that failed slot resolution is a
// deviation (question, visualization request, navigation command) rather
// than a poorly phrased selection attempt.
type Classifier interface {
	Classify(ctx context.Context, utterance string, stage Stage) (*core.Classification, error)
}

// DeviationContext packages the workflow situation handed to the deviation
// handler together with the rendered resumption reminder.
type DeviationContext struct {
	WorkflowID    string
	CurrentStage  string
	Selections    []core.Selection
	SchemaSummary string
	Reminder      string
}

// DeviationHandler routes a deviation to the reasoning loop and appends the
// resumption reminder to its output.
type DeviationHandler interface {
	Handle(rc *core.RunContext, utterance string, dctx DeviationContext) (*core.Response, error)
}

// Options tune the orchestrator's decision policy. All values come from the
// configuration surface; none are hardcoded.
type Options struct {
	// ConfidenceThreshold is the minimum resolution confidence accepted.
	ConfidenceThreshold float64
	// EchoBackMargin widens the accept band in which accepted values are
	// echoed back so the user can correct a borderline interpretation.
	EchoBackMargin float64
	// DeviationThreshold is the minimum classifier confidence required to
	// escalate to the deviation handler instead of clarifying.
	DeviationThreshold float64
	Logger             logging.Logger
}

// Orchestrator is the workflow state machine. It combines the session's
// durable WorkflowState, the static definitions and the slot resolver to
// decide the next stage or to escalate a deviation. It holds no per-session
// state of its own; everything durable lives in the session store.
type Orchestrator struct {
	registry   *Registry
	resolver   SlotResolver
	classifier Classifier
	datasets   dataset.Store
	engine     compute.Engine
	deviations DeviationHandler
	opts       Options
	logger     logging.Logger
}

// NewOrchestrator wires the state machine. The deviation handler is attached
// separately (SetDeviationHandler) because it depends on the reasoning loop,
// which in turn exposes workflow stepping as a tool.
func NewOrchestrator(
	registry *Registry,
	resolver SlotResolver,
	classifier Classifier,
	datasets dataset.Store,
	engine compute.Engine,
	optFns ...func(o *Options),
) *Orchestrator {
	opts := Options{
		ConfidenceThreshold: 0.6,
		EchoBackMargin:      0.15,
		DeviationThreshold:  0.5,
		Logger:              logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Orchestrator{
		registry:   registry,
		resolver:   resolver,
		classifier: classifier,
		datasets:   datasets,
		engine:     engine,
		opts:       opts,
		logger:     opts.Logger,
	}
}

// SetDeviationHandler attaches the deviation handler after construction.
func (o *Orchestrator) SetDeviationHandler(h DeviationHandler) { o.deviations = h }

// Registry returns the workflow definitions the orchestrator runs.
func (o *Orchestrator) Registry() *Registry { return o.registry }

// HandleMessage is the orchestrator's entry point for one user message.
// handled=false means the orchestrator has nothing to say (no active
// workflow, no start trigger) and the caller should route the message to the
// reasoning loop.
func (o *Orchestrator) HandleMessage(rc *core.RunContext, text string) (resp *core.Response, handled bool, err error) {
	ws := rc.Session.WorkflowState()

	if ws.Active() {
		def, ok := o.registry.Get(ws.WorkflowID)
		if !ok {
			// Definition disappeared across a deploy; degrade to inactive.
			o.logger.Warn("orchestrator.definition.missing", "workflow_id", ws.WorkflowID)
			rc.Session.SetWorkflowState(core.NewWorkflowState())
			return nil, false, nil
		}
		if o.registry.IsExit(text, def) {
			rc.Session.SetWorkflowState(core.NewWorkflowState())
			o.logger.Info("orchestrator.workflow.exit", "workflow_id", def.ID)
			return core.OK("Okay, I've stopped the workflow. Ask me anything, or start again when you're ready."), true, nil
		}
		resp, err := o.Step(rc, text)
		return resp, true, err
	}

	if def, ok := o.registry.MatchTrigger(text); ok {
		resp, err := o.Start(rc, def)
		return resp, true, err
	}
	return nil, false, nil
}

// Start begins (or restarts) a workflow, replacing any previous state, and
// auto-advances through stages whose skip conditions hold.
func (o *Orchestrator) Start(rc *core.RunContext, def *Definition) (*core.Response, error) {
	ws := core.NewWorkflowState()
	ws.WorkflowID = def.ID
	ws.CurrentStage = def.FirstStage().Name
	rc.Session.SetWorkflowState(ws)
	o.logger.Info("orchestrator.workflow.start", "workflow_id", def.ID, "first_stage", ws.CurrentStage)

	prefix := o.autoAdvance(rc, ws, def)
	if ws.Complete() {
		return o.complete(rc, ws, def, prefix)
	}
	return o.promptStage(ws, def, prefix)
}

// Step applies one utterance to the active workflow: confident resolution
// advances, low confidence clarifies, and classified deviations escalate to
// the deviation handler. Also the implementation behind the continue_workflow
// tool.
func (o *Orchestrator) Step(rc *core.RunContext, text string) (*core.Response, error) {
	ws := rc.Session.WorkflowState()
	def, ok := o.registry.Get(ws.WorkflowID)
	if !ok || !ws.Active() {
		return core.OK("There's no workflow in progress right now."), nil
	}
	stage, _, ok := def.Stage(ws.CurrentStage)
	if !ok {
		// Invariant violation; reset rather than crash.
		o.logger.Error("orchestrator.stage.invalid", "workflow_id", ws.WorkflowID, "stage", ws.CurrentStage)
		rc.Session.SetWorkflowState(core.NewWorkflowState())
		return core.Error("The workflow state was invalid and has been reset. Please start again."), nil
	}

	// Any new utterance supersedes a pending echo-back confirmation.
	ws.AwaitingConfirmation = false

	res, err := o.resolver.Resolve(rc.Context, text, stage, ResolveContext{
		WorkflowID: ws.WorkflowID,
		StageName:  stage.Name,
		Selections: ws.SelectionMap(),
	})
	if err != nil {
		o.logger.Error("orchestrator.resolve.failed", "stage", stage.Name, "error", err.Error())
		return o.clarify(stage, ""), nil
	}

	if res.Resolved() && res.Confidence >= o.opts.ConfidenceThreshold {
		prefix := ""
		if res.Confidence < o.opts.ConfidenceThreshold+o.opts.EchoBackMargin {
			// Borderline confidence: accept, but echo the interpretation so
			// the user can correct it next turn.
			prefix = fmt.Sprintf("Using %s: %s.\n", strings.ReplaceAll(stage.Name, "_", " "), res.Value)
			ws.AwaitingConfirmation = true
		}
		return o.advance(rc, ws, def, stage, res.Value, prefix)
	}

	return o.escalateOrClarify(rc, ws, def, stage, text, res)
}

// advance records the selection, moves the stage pointer and auto-advances
// through skippable stages, completing the workflow when the last stage is
// resolved.
func (o *Orchestrator) advance(rc *core.RunContext, ws *core.WorkflowState, def *Definition, stage Stage, value, prefix string) (*core.Response, error) {
	ws.Select(stage.Name, value)
	next, ok := def.NextStage(stage.Name)
	if !ok {
		ws.CurrentStage = core.StageComplete
		o.logger.Info("orchestrator.workflow.resolved", "workflow_id", def.ID, "last_stage", stage.Name)
		return o.complete(rc, ws, def, prefix)
	}
	ws.CurrentStage = next.Name
	o.logger.Info("orchestrator.stage.advance", "workflow_id", def.ID, "from", stage.Name, "to", next.Name, "value", value)

	prefix += o.autoAdvance(rc, ws, def)
	if ws.Complete() {
		return o.complete(rc, ws, def, prefix)
	}
	return o.promptStage(ws, def, prefix)
}

// autoAdvance evaluates skip conditions against the dataset and selects
// stages that require no user input, repeating until input is genuinely
// required or the workflow completes. Returns prose describing auto-selected
// values for the next prompt.
func (o *Orchestrator) autoAdvance(rc *core.RunContext, ws *core.WorkflowState, def *Definition) string {
	var notes strings.Builder
	for ws.Active() {
		stage, _, ok := def.Stage(ws.CurrentStage)
		if !ok || stage.Skip == nil {
			return notes.String()
		}
		value, ok := o.evalSkip(rc, stage)
		if !ok {
			return notes.String()
		}
		ws.Select(stage.Name, value)
		o.logger.Info("orchestrator.stage.autoselect", "workflow_id", def.ID, "stage", stage.Name, "value", value)
		notes.WriteString(fmt.Sprintf("%s was selected automatically (only %s is present in your dataset).\n", strings.ReplaceAll(stage.Name, "_", " "), value))

		next, hasNext := def.NextStage(stage.Name)
		if !hasNext {
			ws.CurrentStage = core.StageComplete
			return notes.String()
		}
		ws.CurrentStage = next.Name
	}
	return notes.String()
}

// evalSkip returns the auto-selected canonical value when the stage's skip
// condition holds. Dataset trouble disables skipping rather than failing.
func (o *Orchestrator) evalSkip(rc *core.RunContext, stage Stage) (string, bool) {
	if o.datasets == nil || stage.Skip == nil || !stage.Skip.WhenSingleValue {
		return "", false
	}
	schema, err := o.datasets.Load(rc.Context, rc.SessionID)
	if err != nil {
		if !errors.Is(err, dataset.ErrNoDataset) {
			o.logger.Warn("orchestrator.dataset.unavailable", "error", err.Error())
		}
		return "", false
	}
	values := schema.DistinctValues(stage.Skip.Column)
	if len(values) != 1 {
		return "", false
	}
	// Map the dataset value onto a canonical choice when one matches.
	for _, c := range stage.Choices {
		if strings.EqualFold(c.Value, values[0]) {
			return c.Value, true
		}
		for _, alias := range c.Aliases {
			if strings.EqualFold(alias, values[0]) {
				return c.Value, true
			}
		}
	}
	return values[0], true
}

// complete hands the full selections map to the downstream computation. A
// precondition failure rolls the machine back one stage instead of finishing.
func (o *Orchestrator) complete(rc *core.RunContext, ws *core.WorkflowState, def *Definition, prefix string) (*core.Response, error) {
	ws.AwaitingConfirmation = false
	if o.engine == nil {
		return core.Error("No computation engine is configured."), nil
	}
	result, err := o.engine.Compute(rc.Context, def.ID, ws.SelectionMap())
	if err != nil {
		var pre *compute.PreconditionError
		if errors.As(err, &pre) {
			return o.rollback(rc, ws, def, pre)
		}
		o.logger.Error("orchestrator.compute.failed", "workflow_id", def.ID, "error", err.Error())
		return core.Error(fmt.Sprintf("The computation failed: %v. You can adjust your selections and try again.", err)), nil
	}

	for _, ref := range result.VisualizationRefs {
		rc.AddVisualization(ref)
	}
	o.logger.Info("orchestrator.workflow.complete", "workflow_id", def.ID, "selections", len(ws.Selections))

	text := prefix + result.Summary + "\n\nWould you like to run this again with different choices? Just say so."
	return core.OK(text), nil
}

// rollback reports the unmet precondition and re-prompts the previous stage.
func (o *Orchestrator) rollback(rc *core.RunContext, ws *core.WorkflowState, def *Definition, pre *compute.PreconditionError) (*core.Response, error) {
	last, ok := ws.RollbackLast()
	if !ok {
		rc.Session.SetWorkflowState(core.NewWorkflowState())
		return core.Error(fmt.Sprintf("The computation can't run: %v.", pre)), nil
	}
	ws.CurrentStage = last.Stage
	stage, _, _ := def.Stage(last.Stage)
	o.logger.Warn("orchestrator.workflow.rollback", "workflow_id", def.ID, "stage", last.Stage, "kind", pre.Kind)

	detail := pre.Detail
	if detail == "" {
		detail = pre.Kind
	}
	text := fmt.Sprintf("That combination can't be computed: %s (your choice of %s = %s). Please pick a different value.\n%s",
		detail, strings.ReplaceAll(last.Stage, "_", " "), last.Value, o.renderPrompt(stage, ws))
	return core.AwaitingInput(text), nil
}

// escalateOrClarify runs the secondary classification on a failed resolution
// and either hands off to the deviation handler or asks for clarification.
func (o *Orchestrator) escalateOrClarify(rc *core.RunContext, ws *core.WorkflowState, def *Definition, stage Stage, text string, res *core.SlotResolution) (*core.Response, error) {
	if o.classifier != nil && o.deviations != nil {
		cls, err := o.classifier.Classify(rc.Context, text, stage)
		if err == nil && cls.Deviation && cls.Confidence >= o.opts.DeviationThreshold {
			o.logger.Info("orchestrator.deviation", "workflow_id", def.ID, "stage", stage.Name, "category", cls.Category)
			return o.deviations.Handle(rc, text, DeviationContext{
				WorkflowID:    def.ID,
				CurrentStage:  stage.Name,
				Selections:    ws.Clone().Selections,
				SchemaSummary: o.schemaSummary(rc),
				Reminder:      o.renderReminder(def, stage),
			})
		}
		if err != nil {
			o.logger.Warn("orchestrator.classify.failed", "error", err.Error())
		}
	}
	return o.clarify(stage, res.Rationale), nil
}

// clarify re-lists the legal choices, surfacing the resolver's rationale when
// present. State is unchanged.
func (o *Orchestrator) clarify(stage Stage, rationale string) *core.Response {
	var b strings.Builder
	if rationale != "" {
		b.WriteString(rationale)
		b.WriteString("\n")
	}
	b.WriteString(fmt.Sprintf("Please choose one of: %s.", stage.ChoiceList()))
	return core.AwaitingInput(b.String())
}

// promptStage renders the current stage's prompt plus its choices.
func (o *Orchestrator) promptStage(ws *core.WorkflowState, def *Definition, prefix string) (*core.Response, error) {
	stage, _, ok := def.Stage(ws.CurrentStage)
	if !ok {
		return core.Error("The workflow state was invalid. Please start again."), nil
	}
	return core.AwaitingInput(prefix + o.renderPrompt(stage, ws)), nil
}

// renderPrompt applies prompt templating against prior selections.
func (o *Orchestrator) renderPrompt(stage Stage, ws *core.WorkflowState) string {
	data := make(map[string]any, len(ws.Selections))
	for _, s := range ws.Selections {
		data[s.Stage] = s.Value
	}
	prompt, err := util.RenderTemplate(stage.Prompt, data)
	if err != nil {
		o.logger.Warn("orchestrator.prompt.template_failed", "stage", stage.Name, "error", err.Error())
		prompt = stage.Prompt
	}
	return fmt.Sprintf("%s (%s)", prompt, stage.ChoiceList())
}

// renderReminder renders the definition's reminder template (or a default)
// for appending after a deviation response.
func (o *Orchestrator) renderReminder(def *Definition, stage Stage) string {
	tmpl := def.Reminder
	if tmpl == "" {
		tmpl = "We were in the middle of picking {{.stage}}. When you're ready, choose one of: {{.choices}}."
	}
	reminder, err := util.RenderTemplate(tmpl, map[string]any{
		"stage":   strings.ReplaceAll(stage.Name, "_", " "),
		"choices": stage.ChoiceList(),
	})
	if err != nil {
		return fmt.Sprintf("We were in the middle of picking %s. When you're ready, choose one of: %s.", strings.ReplaceAll(stage.Name, "_", " "), stage.ChoiceList())
	}
	return reminder
}

// schemaSummary describes the loaded dataset for deviation context.
func (o *Orchestrator) schemaSummary(rc *core.RunContext) string {
	if o.datasets == nil {
		return "no dataset loaded"
	}
	schema, err := o.datasets.Load(rc.Context, rc.SessionID)
	if err != nil {
		return "no dataset loaded"
	}
	return schema.Summary()
}
