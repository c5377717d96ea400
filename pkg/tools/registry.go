package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rhuss/codechat/pkg/api"
	"github.com/rhuss/codechat/pkg/observability"
	"github.com/rhuss/codechat/pkg/provider"
)

// Registry aggregates ToolExecutors and routes tool calls to them by name.
type Registry struct {
	mu        sync.RWMutex
	executors []ToolExecutor
	byName    map[string]ToolExecutor
}

// NewRegistry creates a Registry holding the given executors.
func NewRegistry(executors ...ToolExecutor) *Registry {
	r := &Registry{byName: make(map[string]ToolExecutor)}
	for _, e := range executors {
		r.Register(e)
	}
	return r
}

// Register adds an executor. If two executors declare the same tool name,
// the first registered one wins and a warning is logged.
func (r *Registry) Register(e ToolExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := e.Definition().Function.Name
	if _, ok := r.byName[name]; ok {
		slog.Warn("tool name conflict, keeping first executor", "tool", name)
		return
	}
	r.executors = append(r.executors, e)
	r.byName[name] = e
}

// Definitions returns the declarations of all registered tools in
// registration order.
func (r *Registry) Definitions() []provider.ProviderTool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]provider.ProviderTool, 0, len(r.executors))
	for _, e := range r.executors {
		defs = append(defs, e.Definition())
	}
	return defs
}

// Execute routes the call to its executor, records metrics, and recovers
// from panics. An unknown name yields a ToolNotFound failure.
func (r *Registry) Execute(ctx context.Context, call ToolCall) (result ToolResult) {
	r.mu.RLock()
	e, ok := r.byName[call.Name]
	r.mu.RUnlock()

	if !ok {
		observability.ToolExecutionsTotal.WithLabelValues(call.Name, "not_found").Inc()
		return ToolResult{
			CallID: call.ID,
			Result: api.NewFailure(ErrorKindToolNotFound, fmt.Sprintf("unknown tool %q", call.Name), ""),
		}
	}

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("tool executor panicked", "tool", call.Name, "panic", rec)
			observability.ToolExecutionsTotal.WithLabelValues(call.Name, "panic").Inc()
			result = ToolResult{
				CallID: call.ID,
				Result: api.NewFailure(ErrorKindInternal, fmt.Sprintf("tool %q panicked", call.Name), ""),
			}
		}
	}()

	result = e.Execute(ctx, call)
	result.CallID = call.ID

	status := "success"
	if result.IsError() {
		status = "failure"
	}
	observability.ToolExecutionsTotal.WithLabelValues(call.Name, status).Inc()
	return result
}
