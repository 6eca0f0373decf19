package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowStateLifecycle(t *testing.T) {
	ws := NewWorkflowState()
	assert.False(t, ws.Active())
	assert.False(t, ws.Complete())

	ws.WorkflowID = "incidence_rate"
	ws.CurrentStage = "facility_level"
	assert.True(t, ws.Active())

	ws.CurrentStage = StageComplete
	assert.False(t, ws.Active())
	assert.True(t, ws.Complete())
}

func TestWorkflowStateSelections(t *testing.T) {
	ws := NewWorkflowState()
	ws.Select("facility_level", "primary")
	ws.Select("age_group", "under 5")

	v, ok := ws.Selected("facility_level")
	require.True(t, ok)
	assert.Equal(t, "primary", v)

	_, ok = ws.Selected("region")
	assert.False(t, ok)

	assert.Equal(t, map[string]string{
		"facility_level": "primary",
		"age_group":      "under 5",
	}, ws.SelectionMap())
}

func TestWorkflowStateRollbackLast(t *testing.T) {
	ws := NewWorkflowState()
	ws.Select("facility_level", "primary")
	ws.Select("age_group", "under 5")

	last, ok := ws.RollbackLast()
	require.True(t, ok)
	assert.Equal(t, Selection{Stage: "age_group", Value: "under 5"}, last)
	assert.Len(t, ws.Selections, 1)

	ws.RollbackLast()
	_, ok = ws.RollbackLast()
	assert.False(t, ok)
}

func TestWorkflowStateClone(t *testing.T) {
	ws := NewWorkflowState()
	ws.WorkflowID = "incidence_rate"
	ws.CurrentStage = "age_group"
	ws.Select("facility_level", "primary")

	clone := ws.Clone()
	clone.Select("age_group", "under 5")
	clone.CurrentStage = StageComplete

	assert.Len(t, ws.Selections, 1)
	assert.Equal(t, "age_group", ws.CurrentStage)
}
