// Package workflow contains the declarative stage-graph definitions, their
// YAML loader and registry, and the orchestrator state machine that walks a
// session through the stages.
package workflow

import (
	"fmt"
	"strings"
)

// Choice is one canonical legal value for a stage plus the synonym aliases
// that normalize to it ("under 5", "u5", "under5").
type Choice struct {
	Value   string   `yaml:"value"`
	Aliases []string `yaml:"aliases,omitempty"`
}

// SkipRule makes a stage auto-select without prompting. WhenSingleValue
// selects the only distinct value the dataset holds for Column; a stage with
// a matching rule never reaches the user.
type SkipRule struct {
	Column          string `yaml:"column"`
	WhenSingleValue bool   `yaml:"when_single_value"`
}

// Stage is one decision point requiring a choice from a fixed set.
type Stage struct {
	Name    string    `yaml:"name"`
	Prompt  string    `yaml:"prompt"`
	Choices []Choice  `yaml:"choices"`
	Skip    *SkipRule `yaml:"skip,omitempty"`
}

// ChoiceValues returns the canonical values in declaration order.
func (s Stage) ChoiceValues() []string {
	values := make([]string, len(s.Choices))
	for i, c := range s.Choices {
		values[i] = c.Value
	}
	return values
}

// ChoiceList renders the legal choices for clarification prompts.
func (s Stage) ChoiceList() string {
	return strings.Join(s.ChoiceValues(), ", ")
}

// Definition is an immutable, declarative stage graph for one workflow type.
// Loaded once at startup; safe for unlimited concurrent readers.
type Definition struct {
	ID    string `yaml:"id"`
	Title string `yaml:"title,omitempty"`
	// Triggers are exact start phrases ("analyze the data").
	Triggers []string `yaml:"triggers"`
	// Keyword is the workflow's own word; it starts the workflow only when
	// verb-qualified, never via bare substring containment.
	Keyword string `yaml:"keyword,omitempty"`
	// ExitPhrases end the workflow explicitly, in addition to the global set.
	ExitPhrases []string `yaml:"exit_phrases,omitempty"`
	// Reminder is the resumption reminder template appended after deviations.
	Reminder string  `yaml:"reminder,omitempty"`
	Stages   []Stage `yaml:"stages"`
}

// Stage returns the named stage and its index, or ok=false.
func (d *Definition) Stage(name string) (Stage, int, bool) {
	for i, s := range d.Stages {
		if s.Name == name {
			return s, i, true
		}
	}
	return Stage{}, 0, false
}

// NextStage returns the stage after the named one, or ok=false when name is
// the last stage.
func (d *Definition) NextStage(name string) (Stage, bool) {
	_, i, ok := d.Stage(name)
	if !ok || i+1 >= len(d.Stages) {
		return Stage{}, false
	}
	return d.Stages[i+1], true
}

// FirstStage returns the initial stage.
func (d *Definition) FirstStage() Stage { return d.Stages[0] }

// Validate checks structural invariants: at least one stage, unique stage
// names, non-empty choice sets with case-insensitive uniqueness across
// values and aliases.
func (d *Definition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("workflow definition missing id")
	}
	if len(d.Stages) == 0 {
		return fmt.Errorf("workflow %s: no stages", d.ID)
	}
	if len(d.Triggers) == 0 && d.Keyword == "" {
		return fmt.Errorf("workflow %s: no triggers or keyword", d.ID)
	}

	stageNames := make(map[string]bool, len(d.Stages))
	for _, s := range d.Stages {
		if s.Name == "" {
			return fmt.Errorf("workflow %s: stage with empty name", d.ID)
		}
		if s.Name == "inactive" || s.Name == "complete" {
			return fmt.Errorf("workflow %s: stage name %q is reserved", d.ID, s.Name)
		}
		if stageNames[s.Name] {
			return fmt.Errorf("workflow %s: duplicate stage %q", d.ID, s.Name)
		}
		stageNames[s.Name] = true

		if len(s.Choices) == 0 {
			return fmt.Errorf("workflow %s: stage %q has no choices", d.ID, s.Name)
		}
		seen := make(map[string]string, len(s.Choices))
		for _, c := range s.Choices {
			if c.Value == "" {
				return fmt.Errorf("workflow %s: stage %q has empty choice value", d.ID, s.Name)
			}
			for _, token := range append([]string{c.Value}, c.Aliases...) {
				key := strings.ToLower(strings.TrimSpace(token))
				if prev, dup := seen[key]; dup && prev != c.Value {
					return fmt.Errorf("workflow %s: stage %q: %q collides across choices %q and %q", d.ID, s.Name, token, prev, c.Value)
				}
				seen[key] = c.Value
			}
		}
		if s.Skip != nil && s.Skip.Column == "" {
			return fmt.Errorf("workflow %s: stage %q skip rule missing column", d.ID, s.Name)
		}
	}
	return nil
}
