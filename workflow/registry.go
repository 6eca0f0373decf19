package workflow

import (
	"fmt"
	"strings"
)

// startVerbs qualify a workflow keyword as a genuine start request. A bare
// keyword also appearing in unrelated requests ("map the rate distribution")
// never starts a workflow on its own.
var startVerbs = map[string]bool{
	"start": true, "begin": true, "run": true, "launch": true,
	"compute": true, "calculate": true, "analyze": true, "analyse": true,
	"do": true, "perform": true,
}

// globalExitPhrases end any active workflow regardless of definition.
var globalExitPhrases = []string{
	"exit", "quit", "cancel", "stop", "go back", "never mind", "nevermind",
	"exit workflow", "cancel workflow", "stop the workflow",
}

// Registry holds the loaded workflow definitions. It is populated once at
// startup and read-only afterwards, safe for unlimited concurrent readers.
type Registry struct {
	defs  map[string]*Definition
	order []string
}

// NewRegistry builds a registry from validated definitions.
func NewRegistry(defs ...*Definition) (*Registry, error) {
	r := &Registry{defs: make(map[string]*Definition, len(defs))}
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.defs[def.ID]; dup {
			return nil, fmt.Errorf("duplicate workflow id %q", def.ID)
		}
		r.defs[def.ID] = def
		r.order = append(r.order, def.ID)
	}
	return r, nil
}

// Get returns the definition for a workflow id.
func (r *Registry) Get(id string) (*Definition, bool) {
	def, ok := r.defs[id]
	return def, ok
}

// IDs returns the registered workflow ids in registration order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids
}

// MatchTrigger reports whether text is an explicit start request for some
// workflow. A match requires either an exact trigger phrase or the workflow
// keyword qualified by a start verb; substring containment alone never
// matches.
func (r *Registry) MatchTrigger(text string) (*Definition, bool) {
	norm := normalizePhrase(text)
	if norm == "" {
		return nil, false
	}
	tokens := strings.Fields(norm)

	for _, id := range r.order {
		def := r.defs[id]
		for _, trigger := range def.Triggers {
			if norm == normalizePhrase(trigger) {
				return def, true
			}
		}
		if def.Keyword == "" {
			continue
		}
		keyword := strings.ToLower(def.Keyword)
		keywordAt := -1
		for i, tok := range tokens {
			if tok == keyword {
				keywordAt = i
				break
			}
		}
		if keywordAt < 0 {
			continue
		}
		for i := 0; i < keywordAt; i++ {
			if startVerbs[tokens[i]] {
				return def, true
			}
		}
	}
	return nil, false
}

// IsExit reports whether text is an explicit exit/navigation-back command for
// the given definition (or any workflow when def is nil).
func (r *Registry) IsExit(text string, def *Definition) bool {
	norm := normalizePhrase(text)
	for _, phrase := range globalExitPhrases {
		if norm == phrase {
			return true
		}
	}
	if def != nil {
		for _, phrase := range def.ExitPhrases {
			if norm == normalizePhrase(phrase) {
				return true
			}
		}
	}
	return false
}

// normalizePhrase lowercases, trims and collapses inner whitespace, dropping
// trailing punctuation so "Exit." matches "exit".
func normalizePhrase(text string) string {
	norm := strings.ToLower(strings.TrimSpace(text))
	norm = strings.TrimRight(norm, ".!?")
	return strings.Join(strings.Fields(norm), " ")
}
