package provider

import (
	"encoding/json"

	"github.com/rhuss/codechat/pkg/api"
)

// Message roles understood by every adapter.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ProviderRequest is the backend-facing request. It contains only the
// information the provider needs, stripped of transport concerns.
type ProviderRequest struct {
	Model       string            `json:"model"`
	Messages    []ProviderMessage `json:"messages"`
	Tools       []ProviderTool    `json:"tools,omitempty"`
	Temperature *float64          `json:"temperature,omitempty"`
	MaxTokens   *int              `json:"max_tokens,omitempty"`
	Stream      bool              `json:"stream,omitempty"`
}

// ProviderMessage represents a message in the provider's conversation format.
// Content is plain text; tool results travel as Content of a tool message.
type ProviderMessage struct {
	Role       string             `json:"role"`
	Content    string             `json:"content"`
	ToolCalls  []ProviderToolCall `json:"tool_calls,omitempty"`
	ToolCallID string             `json:"tool_call_id,omitempty"`
	Name       string             `json:"name,omitempty"`
}

// ProviderToolCall represents a tool call entry in an assistant message.
type ProviderToolCall struct {
	ID       string               `json:"id"`
	Type     string               `json:"type"`
	Function ProviderFunctionCall `json:"function"`
}

// ProviderFunctionCall holds the function name and arguments for a tool call.
type ProviderFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ProviderTool represents a tool definition in provider format.
type ProviderTool struct {
	Type     string              `json:"type"`
	Function ProviderFunctionDef `json:"function"`
}

// ProviderFunctionDef holds a function definition for tool use.
type ProviderFunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ProviderEventType classifies a streaming event from the backend.
type ProviderEventType int

const (
	ProviderEventTextDelta     ProviderEventType = iota // Incremental text content
	ProviderEventToolCallDelta                          // Incremental tool call arguments
	ProviderEventToolCallDone                           // Tool call complete
	ProviderEventDone                                   // Stream finished
	ProviderEventError                                  // Stream error
)

// String returns a short name for logs.
func (t ProviderEventType) String() string {
	switch t {
	case ProviderEventTextDelta:
		return "text_delta"
	case ProviderEventToolCallDelta:
		return "tool_call_delta"
	case ProviderEventToolCallDone:
		return "tool_call_done"
	case ProviderEventDone:
		return "done"
	case ProviderEventError:
		return "error"
	}
	return "unknown"
}

// ProviderEvent is a single streaming event from the backend.
type ProviderEvent struct {
	// Type indicates what kind of event this is.
	Type ProviderEventType

	// Delta contains incremental text or argument data. On a
	// ToolCallDone event it carries the complete argument JSON.
	Delta string

	// ToolCallIndex identifies which tool call this event relates to.
	ToolCallIndex int

	// ToolCallID is the identifier for the tool call.
	ToolCallID string

	// FunctionName is the function name (populated on first tool call event).
	FunctionName string

	// FinishReason is populated on the Done event ("stop", "tool_calls", ...).
	FinishReason string

	// Usage is populated on the final event when the backend reports it.
	Usage *api.Usage

	// Err is populated if the stream encountered an error.
	Err error
}
