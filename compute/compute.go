// Package compute declares the consumed statistics/computation engine
// interface. The engine hands over the completed selections map and receives
// either a result with visualization references or a structured precondition
// failure that rolls the workflow back one stage.
package compute

import (
	"context"
	"fmt"
	"strings"
)

// Result is a successful downstream computation.
type Result struct {
	Summary           string   `json:"summary"`
	VisualizationRefs []string `json:"visualization_refs,omitempty"`
}

// PreconditionError reports that the completed selections cannot be computed
// (e.g., empty result set for that combination). Kind names the unmet
// precondition; MissingFields lists the selections to revisit.
type PreconditionError struct {
	Kind          string   `json:"kind"`
	MissingFields []string `json:"missing_fields,omitempty"`
	Detail        string   `json:"detail,omitempty"`
}

// Error implements the error interface.
func (e *PreconditionError) Error() string {
	if len(e.MissingFields) > 0 {
		return fmt.Sprintf("precondition failed (%s): check %s", e.Kind, strings.Join(e.MissingFields, ", "))
	}
	return fmt.Sprintf("precondition failed (%s): %s", e.Kind, e.Detail)
}

// Engine is the consumed computation contract.
type Engine interface {
	Compute(ctx context.Context, workflowID string, selections map[string]string) (*Result, error)
}

// EngineFunc adapts a plain function to the Engine interface.
type EngineFunc func(ctx context.Context, workflowID string, selections map[string]string) (*Result, error)

// Compute implements Engine.
func (f EngineFunc) Compute(ctx context.Context, workflowID string, selections map[string]string) (*Result, error) {
	return f(ctx, workflowID, selections)
}
