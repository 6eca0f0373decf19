// Package testutil provides shared fixtures for package tests: a small
// health-facility workflow definition, a matching dataset schema and a
// canned computation engine.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hupe1980/slotflow/compute"
	"github.com/hupe1980/slotflow/dataset"
	"github.com/hupe1980/slotflow/workflow"
)

// MalariaDefinition returns a three-stage workflow for computing malaria
// incidence rates. The region stage carries a skip rule that auto-selects
// when the dataset holds a single region.
func MalariaDefinition() *workflow.Definition {
	return &workflow.Definition{
		ID:       "incidence_rate",
		Title:    "Malaria incidence rate",
		Triggers: []string{"calculate the incidence rate", "incidence rate"},
		Keyword:  "incidence",
		Reminder: "We were on {{.stage}} for the incidence rate calculation. Pick one of: {{.choices}}.",
		Stages: []workflow.Stage{
			{
				Name:   "facility_level",
				Prompt: "Which facility level should the calculation cover?",
				Choices: []workflow.Choice{
					{Value: "primary", Aliases: []string{"health post", "level 1"}},
					{Value: "secondary", Aliases: []string{"health center", "level 2"}},
					{Value: "tertiary", Aliases: []string{"hospital", "level 3"}},
					{Value: "all", Aliases: []string{"every level", "everything"}},
				},
			},
			{
				Name:   "age_group",
				Prompt: "Which age group?",
				Choices: []workflow.Choice{
					{Value: "under 5", Aliases: []string{"u5", "under five", "children under 5"}},
					{Value: "5 to 14", Aliases: []string{"school age"}},
					{Value: "15 and over", Aliases: []string{"adults", "over 15"}},
					{Value: "all ages", Aliases: []string{"everyone"}},
				},
			},
			{
				Name:   "region",
				Prompt: "Which region?",
				Skip:   &workflow.SkipRule{Column: "region", WhenSingleValue: true},
				Choices: []workflow.Choice{
					{Value: "north", Aliases: []string{"northern"}},
					{Value: "south", Aliases: []string{"southern"}},
					{Value: "national", Aliases: []string{"whole country", "countrywide"}},
				},
			},
		},
	}
}

// SingleRegionSchema returns a dataset schema whose region column holds one
// distinct value, so the region stage's skip rule fires.
func SingleRegionSchema() *dataset.Schema {
	return &dataset.Schema{
		Handle:   "facilities.csv",
		RowCount: 1280,
		Columns: []dataset.Column{
			{Name: "facility", Type: "string"},
			{Name: "facility_level", Type: "string", DistinctValues: []string{"primary", "secondary", "tertiary"}},
			{Name: "region", Type: "string", DistinctValues: []string{"north"}},
			{Name: "cases", Type: "int"},
			{Name: "population", Type: "int"},
		},
	}
}

// MultiRegionSchema returns a schema where region has several values, so no
// stage is skipped.
func MultiRegionSchema() *dataset.Schema {
	s := SingleRegionSchema()
	for i := range s.Columns {
		if s.Columns[i].Name == "region" {
			s.Columns[i].DistinctValues = []string{"north", "south"}
		}
	}
	return s
}

// StaticEngine returns a compute engine producing a deterministic summary of
// its inputs plus the given visualization refs.
func StaticEngine(refs ...string) compute.Engine {
	return compute.EngineFunc(func(_ context.Context, workflowID string, selections map[string]string) (*compute.Result, error) {
		keys := make([]string, 0, len(selections))
		for k := range selections {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", k, selections[k]))
		}
		return &compute.Result{
			Summary:           fmt.Sprintf("%s computed for %s", workflowID, strings.Join(parts, ", ")),
			VisualizationRefs: refs,
		}, nil
	})
}

// FailingEngine returns a compute engine that always reports the given
// precondition failure.
func FailingEngine(pre *compute.PreconditionError) compute.Engine {
	return compute.EngineFunc(func(context.Context, string, map[string]string) (*compute.Result, error) {
		return nil, pre
	})
}
