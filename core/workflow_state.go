package core

// Sentinel stage names. Any other CurrentStage value must name a stage of the
// active workflow definition.
const (
	// StageInactive means no workflow is in progress.
	StageInactive = "inactive"
	// StageComplete marks a finished workflow kept around so a follow-on
	// transition can be offered before the state is replaced.
	StageComplete = "complete"
)

// Selection is one resolved stage choice. Selections are ordered: they are
// exactly the prefix of stages actually completed (auto-skipped stages
// included).
type Selection struct {
	Stage string `json:"stage"`
	Value string `json:"value"`
}

// WorkflowState is the per-session durable workflow record. It is mutated
// only by the orchestrator and replaced wholesale on restart or completion.
//
// Invariant: CurrentStage is always a valid stage name of the workflow named
// by WorkflowID, or one of the sentinel values above.
type WorkflowState struct {
	WorkflowID           string      `json:"workflow_id,omitempty"`
	CurrentStage         string      `json:"current_stage"`
	Selections           []Selection `json:"selections,omitempty"`
	AwaitingConfirmation bool        `json:"awaiting_confirmation,omitempty"`
}

// NewWorkflowState returns an inactive workflow state.
func NewWorkflowState() *WorkflowState {
	return &WorkflowState{CurrentStage: StageInactive}
}

// Active reports whether a workflow is currently in progress (neither
// inactive nor complete).
func (w *WorkflowState) Active() bool {
	return w.CurrentStage != StageInactive && w.CurrentStage != StageComplete
}

// Complete reports whether the workflow finished its last stage.
func (w *WorkflowState) Complete() bool { return w.CurrentStage == StageComplete }

// Select appends a resolved canonical value for a stage.
func (w *WorkflowState) Select(stage, value string) {
	w.Selections = append(w.Selections, Selection{Stage: stage, Value: value})
}

// Selected returns the resolved value for a stage, if any.
func (w *WorkflowState) Selected(stage string) (string, bool) {
	for _, s := range w.Selections {
		if s.Stage == stage {
			return s.Value, true
		}
	}
	return "", false
}

// RollbackLast removes and returns the most recent selection. Used when the
// downstream computation rejects the completed selections.
func (w *WorkflowState) RollbackLast() (Selection, bool) {
	if len(w.Selections) == 0 {
		return Selection{}, false
	}
	last := w.Selections[len(w.Selections)-1]
	w.Selections = w.Selections[:len(w.Selections)-1]
	return last, true
}

// SelectionMap returns the selections as a stage -> value map for handing to
// the downstream computation. Order is preserved by the Selections slice.
func (w *WorkflowState) SelectionMap() map[string]string {
	m := make(map[string]string, len(w.Selections))
	for _, s := range w.Selections {
		m[s.Stage] = s.Value
	}
	return m
}

// Clone returns a deep copy of the workflow state.
func (w *WorkflowState) Clone() *WorkflowState {
	clone := &WorkflowState{WorkflowID: w.WorkflowID, CurrentStage: w.CurrentStage, AwaitingConfirmation: w.AwaitingConfirmation}
	if len(w.Selections) > 0 {
		clone.Selections = make([]Selection, len(w.Selections))
		copy(clone.Selections, w.Selections)
	}
	return clone
}
