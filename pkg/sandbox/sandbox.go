// Package sandbox defines the capability interface for isolated Python
// execution environments and the wire types shared by the sandbox server and
// its clients.
//
// A CodeSandbox hands out single-use Environments. Callers run code in an
// Environment and must Destroy it exactly once when done. Backends live in
// the remote, docker and kubernetes subpackages.
package sandbox

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrAtCapacity is returned when the sandbox service refuses new work.
var ErrAtCapacity = errors.New("sandbox at capacity")

// CodeSandbox provisions fresh execution environments.
type CodeSandbox interface {
	Create(ctx context.Context) (Environment, error)
}

// Environment is one isolated, single-use execution context.
type Environment interface {
	// ID identifies the environment in logs.
	ID() string

	// Run executes code and reports its output. A Python exception is not
	// an error here; it is reported through Execution.Error. A non-nil error
	// means the environment could not run the code at all.
	Run(ctx context.Context, code string) (*Execution, error)

	// Destroy releases the environment.
	Destroy(ctx context.Context) error
}

// Logs holds the captured output streams, split into lines.
type Logs struct {
	Stdout []string `json:"stdout"`
	Stderr []string `json:"stderr"`
}

// ExecutionError is the exception raised by executed code.
type ExecutionError struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	Traceback string `json:"traceback,omitempty"`
}

// Execution is the raw outcome of one Run. Results are opaque items in the
// order the sandbox reported them; each carries at most one of png, jpeg,
// text or other fields.
type Execution struct {
	Logs    Logs              `json:"logs"`
	Results []json.RawMessage `json:"results"`
	Error   *ExecutionError   `json:"error,omitempty"`
}

// ExecuteRequest is the body of an execute call on the sandbox server.
type ExecuteRequest struct {
	Code           string `json:"code"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// SessionResponse is returned by the sandbox server when a session is created.
type SessionResponse struct {
	ID string `json:"id"`
}

// ErrorResponse is the JSON error body returned by the sandbox server.
type ErrorResponse struct {
	Error string `json:"error"`
}
