package api

// StreamEventType identifies the type of a streaming event.
type StreamEventType string

const (
	EventTextDelta  StreamEventType = "text.delta"
	EventToolCall   StreamEventType = "tool_call"
	EventToolResult StreamEventType = "tool_result"
	EventDone       StreamEventType = "done"
	EventError      StreamEventType = "error"
)

// IsTerminal reports whether no further events follow an event of type t.
func (t StreamEventType) IsTerminal() bool {
	return t == EventDone || t == EventError
}

// StreamEvent is a single server-sent event of a chat turn.
//
// Which fields are populated depends on Type:
//   - text.delta: Delta
//   - tool_call: Invocation in the pending state
//   - tool_result: Invocation in the completed state, with Result
//   - done: FinishReason, Steps, Usage
//   - error: Error
type StreamEvent struct {
	Type           StreamEventType `json:"type"`
	SequenceNumber int             `json:"sequenceNumber"`
	Delta          string          `json:"delta,omitempty"`
	Invocation     *ToolInvocation `json:"invocation,omitempty"`
	FinishReason   string          `json:"finishReason,omitempty"`
	Steps          int             `json:"steps,omitempty"`
	Usage          *Usage          `json:"usage,omitempty"`
	Error          *APIError       `json:"error,omitempty"`
}
