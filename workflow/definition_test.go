package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefinitionValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(d *Definition)
		wantErr string
	}{
		{"valid", func(d *Definition) {}, ""},
		{"missing id", func(d *Definition) { d.ID = "" }, "missing id"},
		{"no stages", func(d *Definition) { d.Stages = nil }, "no stages"},
		{"no triggers or keyword", func(d *Definition) { d.Triggers = nil; d.Keyword = "" }, "no triggers"},
		{"reserved stage name", func(d *Definition) { d.Stages[0].Name = "inactive" }, "reserved"},
		{"empty choice set", func(d *Definition) { d.Stages[0].Choices = nil }, "no choices"},
		{
			"alias collision across choices",
			func(d *Definition) {
				d.Stages[0].Choices = []Choice{
					{Value: "primary", Aliases: []string{"level 1"}},
					{Value: "secondary", Aliases: []string{"Level 1"}},
				}
			},
			"collides",
		},
		{
			"skip rule without column",
			func(d *Definition) { d.Stages[0].Skip = &SkipRule{WhenSingleValue: true} },
			"missing column",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := testDefinition()
			tt.mutate(def)
			err := def.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDefinitionStageNavigation(t *testing.T) {
	def := &Definition{
		ID:       "w",
		Triggers: []string{"start w"},
		Stages: []Stage{
			{Name: "a", Choices: []Choice{{Value: "x"}}},
			{Name: "b", Choices: []Choice{{Value: "y"}}},
		},
	}

	assert.Equal(t, "a", def.FirstStage().Name)

	next, ok := def.NextStage("a")
	require.True(t, ok)
	assert.Equal(t, "b", next.Name)

	_, ok = def.NextStage("b")
	assert.False(t, ok)

	_, _, ok = def.Stage("missing")
	assert.False(t, ok)
}

func TestParseDefinitionYAML(t *testing.T) {
	data := []byte(`
id: incidence_rate
title: Malaria incidence rate
triggers:
  - calculate the incidence rate
keyword: incidence
stages:
  - name: facility_level
    prompt: Which facility level?
    choices:
      - value: primary
        aliases: [health post, level 1]
      - value: all
  - name: region
    prompt: Which region?
    skip:
      column: region
      when_single_value: true
    choices:
      - value: north
`)
	def, err := ParseDefinition(data)
	require.NoError(t, err)
	assert.Equal(t, "incidence_rate", def.ID)
	require.Len(t, def.Stages, 2)
	assert.Equal(t, []string{"health post", "level 1"}, def.Stages[0].Choices[0].Aliases)
	require.NotNil(t, def.Stages[1].Skip)
	assert.True(t, def.Stages[1].Skip.WhenSingleValue)
	assert.Equal(t, "region", def.Stages[1].Skip.Column)
}

func TestParseDefinitionRejectsInvalid(t *testing.T) {
	_, err := ParseDefinition([]byte("id: broken\nstages: []\n"))
	assert.Error(t, err)

	_, err = ParseDefinition([]byte("not: [valid"))
	assert.Error(t, err)
}
