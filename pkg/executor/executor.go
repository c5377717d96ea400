// Package executor runs one code string in a fresh sandbox environment and
// normalizes the outcome into an api.ExecutionResult.
package executor

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rhuss/codechat/pkg/api"
	"github.com/rhuss/codechat/pkg/debug"
	"github.com/rhuss/codechat/pkg/observability"
	"github.com/rhuss/codechat/pkg/sandbox"
)

// ErrorKindSandbox tags failures of the sandbox itself, as opposed to
// exceptions raised by the executed code.
const ErrorKindSandbox = "SandboxError"

// State is a step of the per-invocation lifecycle.
type State string

const (
	StateCreated      State = "created"
	StateProvisioning State = "provisioning"
	StateExecuting    State = "executing"
	StateSucceeded    State = "succeeded"
	StateFailed       State = "failed"
	StateTornDown     State = "torn_down"
)

// Executor runs code against a CodeSandbox. Every call gets its own
// environment; nothing is pooled or reused.
type Executor struct {
	sandbox         sandbox.CodeSandbox
	teardownTimeout time.Duration

	// observe is called on every state change. Tests use it to check the
	// lifecycle.
	observe func(State)
}

// Option configures an Executor.
type Option func(*Executor)

// WithTeardownTimeout bounds how long Destroy may take.
func WithTeardownTimeout(d time.Duration) Option {
	return func(e *Executor) { e.teardownTimeout = d }
}

// New creates an Executor backed by sb.
func New(sb sandbox.CodeSandbox, opts ...Option) *Executor {
	e := &Executor{
		sandbox:         sb,
		teardownTimeout: 30 * time.Second,
		observe:         func(State) {},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs code and returns exactly one Success or Failure. It never
// returns an error: sandbox problems become Failure{ErrorKind: SandboxError}.
// When an environment was created it is destroyed exactly once, on a
// context detached from ctx, and teardown errors are only logged.
func (e *Executor) Execute(ctx context.Context, code string) (result api.ExecutionResult) {
	ctx, span := observability.Tracer().Start(ctx, "sandbox.execute",
		trace.WithAttributes(attribute.Int("code.length", len(code))))
	defer func() {
		span.SetAttributes(attribute.Bool("execution.success", result.OK()))
		observability.EndSpan(span, nil)
	}()

	e.observe(StateCreated)
	e.observe(StateProvisioning)

	start := time.Now()
	env, err := e.sandbox.Create(ctx)
	recordOp("create", start, err)
	if err != nil {
		slog.Warn("sandbox creation failed", "error", err.Error())
		span.RecordError(err)
		e.observe(StateFailed)
		return api.NewFailure(ErrorKindSandbox, err.Error(), "")
	}
	debug.Log("executor", "sandbox created", "sandbox", env.ID())

	defer e.teardown(ctx, env)

	e.observe(StateExecuting)
	start = time.Now()
	exec, err := env.Run(ctx, code)
	recordOp("run", start, err)
	if err != nil {
		slog.Warn("sandbox execution failed", "sandbox", env.ID(), "error", err.Error())
		span.RecordError(err)
		e.observe(StateFailed)
		return api.NewFailure(ErrorKindSandbox, err.Error(), "")
	}

	result = toResult(exec)
	if result.OK() {
		e.observe(StateSucceeded)
	} else {
		e.observe(StateFailed)
	}
	debug.Log("executor", "execution finished", "sandbox", env.ID(), "success", result.OK())
	return result
}

func (e *Executor) teardown(ctx context.Context, env sandbox.Environment) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.teardownTimeout)
	defer cancel()

	start := time.Now()
	err := env.Destroy(ctx)
	recordOp("destroy", start, err)
	if err != nil {
		slog.Warn("sandbox teardown failed", "sandbox", env.ID(), "error", err.Error())
	}
	e.observe(StateTornDown)
}

// toResult maps a raw Execution into the tagged result. Log lines keep their
// own terminators, so they are concatenated as is.
func toResult(exec *sandbox.Execution) api.ExecutionResult {
	if exec.Error != nil {
		return api.NewFailure(exec.Error.Name, exec.Error.Value, exec.Error.Traceback)
	}
	return api.NewSuccess(
		strings.Join(exec.Logs.Stdout, ""),
		strings.Join(exec.Logs.Stderr, ""),
		ClassifyAll(exec.Results),
	)
}

func recordOp(op string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	observability.SandboxOperationsTotal.WithLabelValues(op, status).Inc()
	observability.SandboxDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
