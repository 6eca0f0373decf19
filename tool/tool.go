// Package tool implements the function calling subsystem that lets the
// reasoning loop invoke structured capabilities (workflow stepping, dataset
// inspection, computations, visualizations) with schema validated arguments
// and consistent error handling.
package tool

import (
	"fmt"

	"github.com/hupe1980/slotflow/core"
	"github.com/hupe1980/slotflow/internal/util"
)

// Tool defines one typed, invocable capability exposed to the reasoning loop.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions (snake_case names)
//   - Define proper JSON schema for parameters
//   - Handle errors gracefully (return *ToolError, never panic)
//   - Be thread-safe if used concurrently
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description of what this tool
	// does, provided to the oracle to guide tool selection.
	Description() string

	// Parameters returns a JSON schema describing the expected arguments.
	Parameters() map[string]interface{}

	// SideEffect reports whether the tool mutates durable state. The act
	// executor lets side-effecting calls finish and commit before any
	// deadline-driven preemption.
	SideEffect() bool

	// Call executes the tool with schema-validated arguments.
	Call(toolCtx *core.ToolContext, args map[string]interface{}) (interface{}, error)
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// ToolError represents errors that occur during tool execution. It is
// structured data fed back to the reasoning loop, never a crash.
type ToolError struct {
	Tool    string      `json:"tool"`              // Name of the tool that failed
	Message string      `json:"message"`           // Error message
	Code    string      `json:"code"`              // Error code for categorization
	Details interface{} `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// Registry is a name-indexed tool lookup table. It is populated at engine
// construction and read-only afterwards.
type Registry map[string]Tool

// NewRegistry builds a registry from tools, last registration wins on
// duplicate names.
func NewRegistry(tools ...Tool) Registry {
	r := make(Registry, len(tools))
	for _, t := range tools {
		r[t.Name()] = t
	}
	return r
}

// Get returns the named tool.
func (r Registry) Get(name string) (Tool, bool) {
	t, ok := r[name]
	return t, ok
}
