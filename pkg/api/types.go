package api

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Conversation
// ---------------------------------------------------------------------------

// Role identifies the author of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolNameExecutePython is the only tool the model is offered.
const ToolNameExecutePython = "execute_python"

// Message is one entry of the conversation history.
type Message struct {
	Role            Role             `json:"role"`
	Content         string           `json:"content"`
	ToolInvocations []ToolInvocation `json:"toolInvocations,omitempty"`

	// ToolCallID links a tool message to the invocation it answers.
	ToolCallID string `json:"toolCallId,omitempty"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Messages []Message `json:"messages"`
}

// InvocationState tracks whether a tool invocation has produced its result.
type InvocationState string

const (
	InvocationPending   InvocationState = "pending"
	InvocationCompleted InvocationState = "completed"
)

// ToolArguments are the decoded arguments of an execute_python call.
type ToolArguments struct {
	Code string `json:"code"`
}

// ToolInvocation is a structured request from the model to run code, together
// with its result once the executor has returned.
type ToolInvocation struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Arguments ToolArguments    `json:"arguments"`
	State     InvocationState  `json:"state"`
	Result    *ExecutionResult `json:"result,omitempty"`
}

// ErrInvocationCompleted is returned when a result is attached twice.
var ErrInvocationCompleted = errors.New("tool invocation already completed")

// NewToolInvocation returns a pending invocation of name with the given code.
func NewToolInvocation(id, name, code string) ToolInvocation {
	return ToolInvocation{
		ID:        id,
		Name:      name,
		Arguments: ToolArguments{Code: code},
		State:     InvocationPending,
	}
}

// Complete attaches the result and moves the invocation to completed. An
// invocation can only be completed once.
func (inv *ToolInvocation) Complete(result ExecutionResult) error {
	if err := ValidateInvocationTransition(inv.State, InvocationCompleted); err != nil {
		return ErrInvocationCompleted
	}
	if err := result.Validate(); err != nil {
		return err
	}
	inv.Result = &result
	inv.State = InvocationCompleted
	return nil
}

// Usage reports token consumption accumulated over a chat turn.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
	TotalTokens  int `json:"totalTokens"`
}

// Add accumulates other into u.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}

// ---------------------------------------------------------------------------
// Execution results
// ---------------------------------------------------------------------------

// ArtifactKind tags the payload of an Artifact.
type ArtifactKind string

const (
	ArtifactImage ArtifactKind = "image"
	ArtifactText  ArtifactKind = "text"
	ArtifactRaw   ArtifactKind = "raw"
)

// Artifact is one unit of output produced by executed code. Exactly one of
// Data (image, base64), Text or Raw is meaningful, selected by Kind.
type Artifact struct {
	Kind     ArtifactKind `json:"type"`
	MIMEType string       `json:"mimeType,omitempty"`
	Data     string       `json:"data,omitempty"`
	Text     string       `json:"text,omitempty"`
	Raw      string       `json:"raw,omitempty"`
}

// ImageArtifact returns an image artifact holding a base64 payload.
func ImageArtifact(mimeType, base64Data string) Artifact {
	return Artifact{Kind: ArtifactImage, MIMEType: mimeType, Data: base64Data}
}

// TextArtifact returns a plain text artifact.
func TextArtifact(text string) Artifact {
	return Artifact{Kind: ArtifactText, Text: text}
}

// RawArtifact returns an artifact carrying an opaque serialized item.
func RawArtifact(raw string) Artifact {
	return Artifact{Kind: ArtifactRaw, Raw: raw}
}

// ExecutionSuccess is the outcome of code that ran to completion.
type ExecutionSuccess struct {
	Stdout    string     `json:"stdout"`
	Stderr    string     `json:"stderr"`
	Artifacts []Artifact `json:"artifacts"`
}

// ExecutionFailure is the outcome of code that raised, or of a sandbox that
// could not run it.
type ExecutionFailure struct {
	ErrorKind string `json:"name"`
	Message   string `json:"message"`
	Traceback string `json:"traceback,omitempty"`
}

// ExecutionResult is a tagged union: exactly one of Success or Failure is set.
type ExecutionResult struct {
	Success *ExecutionSuccess
	Failure *ExecutionFailure
}

// NewSuccess builds a Success result. A nil artifact slice is normalized to
// an empty one.
func NewSuccess(stdout, stderr string, artifacts []Artifact) ExecutionResult {
	if artifacts == nil {
		artifacts = []Artifact{}
	}
	return ExecutionResult{Success: &ExecutionSuccess{
		Stdout:    stdout,
		Stderr:    stderr,
		Artifacts: artifacts,
	}}
}

// NewFailure builds a Failure result.
func NewFailure(kind, message, traceback string) ExecutionResult {
	return ExecutionResult{Failure: &ExecutionFailure{
		ErrorKind: kind,
		Message:   message,
		Traceback: traceback,
	}}
}

// OK reports whether the result is a Success.
func (r ExecutionResult) OK() bool {
	return r.Success != nil
}

// Validate checks that exactly one variant is set.
func (r ExecutionResult) Validate() error {
	switch {
	case r.Success != nil && r.Failure != nil:
		return errors.New("execution result has both success and failure set")
	case r.Success == nil && r.Failure == nil:
		return errors.New("execution result has neither success nor failure set")
	}
	return nil
}

type executionResultWire struct {
	Success   bool              `json:"success"`
	Stdout    *string           `json:"stdout,omitempty"`
	Stderr    *string           `json:"stderr,omitempty"`
	Artifacts []Artifact        `json:"artifacts,omitempty"`
	Error     *ExecutionFailure `json:"error,omitempty"`
}

// MarshalJSON writes {"success":true,"stdout",...} for a Success and
// {"success":false,"error":{...}} for a Failure.
func (r ExecutionResult) MarshalJSON() ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if r.Failure != nil {
		return json.Marshal(executionResultWire{Success: false, Error: r.Failure})
	}
	artifacts := r.Success.Artifacts
	if artifacts == nil {
		artifacts = []Artifact{}
	}
	// artifacts is always present on success, so bypass omitempty.
	type successWire struct {
		Success   bool       `json:"success"`
		Stdout    string     `json:"stdout"`
		Stderr    string     `json:"stderr"`
		Artifacts []Artifact `json:"artifacts"`
	}
	return json.Marshal(successWire{
		Success:   true,
		Stdout:    r.Success.Stdout,
		Stderr:    r.Success.Stderr,
		Artifacts: artifacts,
	})
}

// UnmarshalJSON decodes either wire variant.
func (r *ExecutionResult) UnmarshalJSON(data []byte) error {
	var w executionResultWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if !w.Success {
		if w.Error == nil {
			return fmt.Errorf("execution result: failure without error object")
		}
		*r = ExecutionResult{Failure: w.Error}
		return nil
	}
	var stdout, stderr string
	if w.Stdout != nil {
		stdout = *w.Stdout
	}
	if w.Stderr != nil {
		stderr = *w.Stderr
	}
	*r = NewSuccess(stdout, stderr, w.Artifacts)
	return nil
}
