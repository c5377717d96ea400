package tools

import (
	"context"

	"github.com/rhuss/codechat/pkg/api"
	"github.com/rhuss/codechat/pkg/provider"
)

// Failure kinds produced by the dispatcher rather than by executed code.
const (
	ErrorKindToolNotFound     = "ToolNotFound"
	ErrorKindInvalidArguments = "InvalidArguments"
	ErrorKindInternal         = "InternalError"
)

// ToolExecutor executes one named tool.
type ToolExecutor interface {
	// Definition returns the declaration sent to the model.
	Definition() provider.ProviderTool

	// CanExecute checks if this executor handles the given tool name.
	CanExecute(toolName string) bool

	// Execute runs the tool. It never fails: every outcome, including bad
	// arguments, is expressed as an ExecutionResult.
	Execute(ctx context.Context, call ToolCall) ToolResult
}

// ToolCall represents a model's request to invoke a tool.
type ToolCall struct {
	// ID is the unique call identifier (from the model, e.g., "call_abc123").
	ID string

	// Name is the tool function name.
	Name string

	// Arguments is the JSON-encoded arguments string.
	Arguments string
}

// ToolResult represents the output of a tool execution.
type ToolResult struct {
	// CallID matches the originating ToolCall.ID.
	CallID string

	// Code is the decoded source, empty when the arguments were malformed.
	Code string

	// Result is the normalized outcome.
	Result api.ExecutionResult
}

// IsError reports whether the result is a Failure.
func (r ToolResult) IsError() bool {
	return !r.Result.OK()
}
