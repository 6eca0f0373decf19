package core

import (
	"time"

	"github.com/google/uuid"
)

// Conversation roles used in Turn.Role.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// FunctionCall describes a tool invocation request surfaced by the oracle.
type FunctionCall struct {
	ID        string `json:"id,omitempty"`        // Stable id correlating call and response
	Name      string `json:"name"`                // Tool name
	Arguments string `json:"arguments,omitempty"` // Serialized JSON argument payload
}

// FunctionResponse describes the outcome of a function call. Error is
// populated on failure; Response may be any JSON-serializable shape.
type FunctionResponse struct {
	ID       string      `json:"id,omitempty"`
	Name     string      `json:"name"`
	Response interface{} `json:"response,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// Turn is one entry of the conversation history: a user or assistant message,
// a system context block, or a batch of tool results. After emission it
// should be treated as immutable.
//
// Pinned marks turns that must survive history truncation (the injected
// workflow-state block). Durable workflow facts live in WorkflowState, so
// truncating unpinned turns never affects workflow correctness.
type Turn struct {
	ID            string             `json:"id"`
	Role          string             `json:"role"`
	Content       string             `json:"content,omitempty"`
	FunctionCalls []FunctionCall     `json:"function_calls,omitempty"`
	FunctionResps []FunctionResponse `json:"function_responses,omitempty"`
	Pinned        bool               `json:"pinned,omitempty"`
	Timestamp     time.Time          `json:"timestamp"`
}

// NewID generates a new unique identifier for turns and responses.
func NewID() string { return uuid.NewString() }

// NewTurn creates a bare turn with the given role.
func NewTurn(role string) Turn {
	return Turn{ID: NewID(), Role: role, Timestamp: time.Now().UTC()}
}

// NewUserTurn creates a user-authored text turn.
func NewUserTurn(text string) Turn {
	t := NewTurn(RoleUser)
	t.Content = text
	return t
}

// NewAssistantTurn creates an assistant text turn.
func NewAssistantTurn(text string) Turn {
	t := NewTurn(RoleAssistant)
	t.Content = text
	return t
}

// NewFunctionCallTurn records the oracle requesting execution of one or more tools.
func NewFunctionCallTurn(calls []FunctionCall) Turn {
	t := NewTurn(RoleAssistant)
	t.FunctionCalls = calls
	return t
}

// NewFunctionResponseTurn records the combined results of an act step.
func NewFunctionResponseTurn(resps []FunctionResponse) Turn {
	t := NewTurn(RoleTool)
	t.FunctionResps = resps
	return t
}

// NewPinnedSystemTurn creates a system turn that survives history truncation.
func NewPinnedSystemTurn(text string) Turn {
	t := NewTurn(RoleSystem)
	t.Content = text
	t.Pinned = true
	return t
}

// HasFunctionCalls reports whether the turn requests tool execution.
func (t Turn) HasFunctionCalls() bool { return len(t.FunctionCalls) > 0 }
