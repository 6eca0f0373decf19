// Package oracle abstracts the external reasoning oracle (a language model
// service) behind a minimal synchronous interface. Both the slot resolver's
// fallback tier and the reasoning loop drive generation through it; provider
// adapters live in subpackages (anthropic, openai).
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hupe1980/slotflow/core"
)

// FunctionDefinition describes an individual tool exposed to the oracle.
// Parameters is a JSON Schema object (minimal subset expected).
type FunctionDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// ToolDefinition declaratively exposes a callable tool to the oracle.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// Request captures the normalized oracle input: a system instruction block,
// the (already truncated) conversation turns and the available tools.
type Request struct {
	Instructions string           `json:"instructions"`
	Turns        []core.Turn      `json:"turns"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is one complete oracle reply: free text, tool invocation requests,
// or both.
type Response struct {
	ID           string              `json:"id"`
	Text         string              `json:"text,omitempty"`
	ToolCalls    []core.FunctionCall `json:"tool_calls,omitempty"`
	FinishReason string              `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage         `json:"usage,omitempty"`
}

// Info contains metadata about an oracle implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Oracle is the minimal interface required to drive generation. Complete is a
// blocking call; callers bound it with a per-call context deadline and treat
// timeout as a degraded result, never a crash.
type Oracle interface {
	Complete(ctx context.Context, req Request) (*Response, error)

	// Info returns information about the oracle implementation.
	Info() Info
}

// MarshalResult renders a tool result as the string payload providers expect
// in tool-response messages.
func MarshalResult(resp core.FunctionResponse) string {
	if resp.Error != "" {
		return fmt.Sprintf(`{"error":%q}`, resp.Error)
	}
	if s, ok := resp.Response.(string); ok {
		return s
	}
	b, err := json.Marshal(resp.Response)
	if err != nil {
		return fmt.Sprintf("%v", resp.Response)
	}
	return string(b)
}

var _ Oracle = (*MockOracle)(nil)

// MockOracle is a lightweight in-memory Oracle for tests and examples. It
// serves scripted responses in FIFO order first, then keyed canned responses
// matched against the latest user turn, then a deterministic echo.
type MockOracle struct {
	mu        sync.Mutex
	info      Info
	script    []Response
	responses map[string]Response
	failWith  error
	calls     int
}

// NewMockOracle constructs a MockOracle with tool support enabled.
func NewMockOracle() *MockOracle {
	return &MockOracle{
		info:      Info{Name: "mock", Provider: "mock", SupportsTools: true},
		responses: make(map[string]Response),
	}
}

// Enqueue appends scripted responses served in order before any keyed lookup.
func (m *MockOracle) Enqueue(resps ...Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, resps...)
}

// AddResponse registers a canned reply for an exact user input.
func (m *MockOracle) AddResponse(input string, resp Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[input] = resp
}

// FailWith makes every subsequent Complete call fail with err (nil resets).
func (m *MockOracle) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// Calls returns how many Complete invocations were made.
func (m *MockOracle) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Complete implements Oracle.
func (m *MockOracle) Complete(ctx context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if m.failWith != nil {
		return nil, m.failWith
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(m.script) > 0 {
		resp := m.script[0]
		m.script = m.script[1:]
		if resp.ID == "" {
			resp.ID = core.NewID()
		}
		return &resp, nil
	}

	var lastUser string
	for i := len(req.Turns) - 1; i >= 0; i-- {
		if req.Turns[i].Role == core.RoleUser {
			lastUser = req.Turns[i].Content
			break
		}
	}
	if resp, ok := m.responses[lastUser]; ok {
		if resp.ID == "" {
			resp.ID = core.NewID()
		}
		return &resp, nil
	}

	return &Response{
		ID:           core.NewID(),
		Text:         fmt.Sprintf("Mock response to: %s", lastUser),
		FinishReason: "stop",
	}, nil
}

// Info implements Oracle.
func (m *MockOracle) Info() Info { return m.info }
