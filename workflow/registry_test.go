package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDefinition() *Definition {
	return &Definition{
		ID:       "incidence_rate",
		Triggers: []string{"calculate the incidence rate"},
		Keyword:  "incidence",
		Stages: []Stage{
			{
				Name:   "facility_level",
				Prompt: "Which facility level?",
				Choices: []Choice{
					{Value: "primary"},
					{Value: "all"},
				},
			},
		},
	}
}

func TestMatchTrigger(t *testing.T) {
	registry, err := NewRegistry(testDefinition())
	require.NoError(t, err)

	tests := []struct {
		name  string
		text  string
		match bool
	}{
		{"exact trigger", "calculate the incidence rate", true},
		{"trigger with casing and punctuation", "Calculate the incidence rate!", true},
		{"verb qualified keyword", "please compute the incidence for me", true},
		{"start verb before keyword", "run incidence", true},
		{"bare keyword", "incidence", false},
		{"keyword without start verb", "the incidence looks high", false},
		{"keyword only as substring", "map the rate distribution", false},
		{"unrelated", "what columns do I have?", false},
		{"empty", "   ", false},
		{"verb after keyword", "incidence rate please calculate", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, ok := registry.MatchTrigger(tt.text)
			assert.Equal(t, tt.match, ok)
			if tt.match {
				assert.Equal(t, "incidence_rate", def.ID)
			}
		})
	}
}

func TestIsExit(t *testing.T) {
	def := testDefinition()
	def.ExitPhrases = []string{"forget the incidence rate"}
	registry, err := NewRegistry(def)
	require.NoError(t, err)

	assert.True(t, registry.IsExit("exit", def))
	assert.True(t, registry.IsExit("Exit.", def))
	assert.True(t, registry.IsExit("  never mind  ", def))
	assert.True(t, registry.IsExit("forget the incidence rate", def))
	assert.False(t, registry.IsExit("exit strategy", def))
	assert.False(t, registry.IsExit("primary", def))
}

func TestRegistryRejectsDuplicateIDs(t *testing.T) {
	_, err := NewRegistry(testDefinition(), testDefinition())
	assert.Error(t, err)
}

func TestRegistryIDsKeepOrder(t *testing.T) {
	a := testDefinition()
	b := testDefinition()
	b.ID = "prevalence"
	b.Keyword = "prevalence"
	registry, err := NewRegistry(a, b)
	require.NoError(t, err)
	assert.Equal(t, []string{"incidence_rate", "prevalence"}, registry.IDs())
}
