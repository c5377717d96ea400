package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rhuss/codechat/pkg/api"
	"github.com/rhuss/codechat/pkg/audit"
	"github.com/rhuss/codechat/pkg/audit/memory"
	"github.com/rhuss/codechat/pkg/provider"
	"github.com/rhuss/codechat/pkg/tools"
	"github.com/rhuss/codechat/pkg/transport"
)

// fakeProvider replays one scripted event list per Stream call.
type fakeProvider struct {
	mu        sync.Mutex
	turns     [][]provider.ProviderEvent
	streamErr error
	requests  [][]provider.ProviderMessage
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Stream(_ context.Context, req *provider.ProviderRequest) (<-chan provider.ProviderEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	msgs := make([]provider.ProviderMessage, len(req.Messages))
	copy(msgs, req.Messages)
	p.requests = append(p.requests, msgs)

	if p.streamErr != nil {
		return nil, p.streamErr
	}

	idx := len(p.requests) - 1
	if idx >= len(p.turns) {
		idx = len(p.turns) - 1
	}
	events := p.turns[idx]

	ch := make(chan provider.ProviderEvent, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (p *fakeProvider) Close() error { return nil }

func (p *fakeProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

type runnerFunc func(ctx context.Context, code string) api.ExecutionResult

func (f runnerFunc) Execute(ctx context.Context, code string) api.ExecutionResult {
	return f(ctx, code)
}

// recordingWriter captures events in write order.
type recordingWriter struct {
	events   []api.StreamEvent
	writeErr error
}

func (w *recordingWriter) WriteEvent(_ context.Context, ev api.StreamEvent) error {
	if w.writeErr != nil {
		return w.writeErr
	}
	w.events = append(w.events, ev)
	return nil
}

func (w *recordingWriter) Flush() error  { return nil }
func (w *recordingWriter) Started() bool { return len(w.events) > 0 }

func (w *recordingWriter) types() []api.StreamEventType {
	out := make([]api.StreamEventType, len(w.events))
	for i, ev := range w.events {
		out[i] = ev.Type
	}
	return out
}

func toolCallTurn(id, args string) []provider.ProviderEvent {
	return []provider.ProviderEvent{
		{Type: provider.ProviderEventToolCallDone, ToolCallID: id, FunctionName: api.ToolNameExecutePython, Delta: args},
		{Type: provider.ProviderEventDone, FinishReason: "tool_calls", Usage: &api.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}},
	}
}

func textTurn(text string) []provider.ProviderEvent {
	return []provider.ProviderEvent{
		{Type: provider.ProviderEventTextDelta, Delta: text},
		{Type: provider.ProviderEventDone, FinishReason: "stop", Usage: &api.Usage{InputTokens: 20, OutputTokens: 7, TotalTokens: 27}},
	}
}

func newTestEngine(t *testing.T, p provider.Provider, runner tools.CodeRunner, rec audit.Recorder) *Engine {
	t.Helper()
	e, err := New(p, tools.NewRegistry(tools.NewPythonTool(runner)), rec, Config{Model: "test-model"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func userRequest(content string) *api.ChatRequest {
	return &api.ChatRequest{Messages: []api.Message{{Role: api.RoleUser, Content: content}}}
}

func equalTypes(got, want []api.StreamEventType) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestNew_RequiresProviderAndRegistry(t *testing.T) {
	if _, err := New(nil, tools.NewRegistry(), nil, Config{}); err == nil {
		t.Error("expected error for nil provider")
	}
	if _, err := New(&fakeProvider{}, nil, nil, Config{}); err == nil {
		t.Error("expected error for nil registry")
	}
}

func TestChat_ToolRoundTrip(t *testing.T) {
	p := &fakeProvider{turns: [][]provider.ProviderEvent{
		toolCallTurn("call_1", `{"code":"print(17*23)"}`),
		textTurn("17 * 23 = 391"),
	}}
	var gotCode string
	runner := runnerFunc(func(_ context.Context, code string) api.ExecutionResult {
		gotCode = code
		return api.NewSuccess("391\n", "", nil)
	})
	e := newTestEngine(t, p, runner, nil)
	w := &recordingWriter{}

	if err := e.Chat(context.Background(), userRequest("What is 17 * 23?"), w); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	want := []api.StreamEventType{api.EventToolCall, api.EventToolResult, api.EventTextDelta, api.EventDone}
	if got := w.types(); !equalTypes(got, want) {
		t.Fatalf("event types = %v, want %v", got, want)
	}
	for i, ev := range w.events {
		if ev.SequenceNumber != i {
			t.Errorf("event %d sequence = %d, want %d", i, ev.SequenceNumber, i)
		}
	}
	if gotCode != "print(17*23)" {
		t.Errorf("runner code = %q, want %q", gotCode, "print(17*23)")
	}
	if p.calls() != 2 {
		t.Errorf("provider calls = %d, want 2", p.calls())
	}

	call := w.events[0].Invocation
	if call.ID != "call_1" || call.State != api.InvocationPending || call.Result != nil {
		t.Errorf("tool_call invocation = %+v, want pending call_1 without result", call)
	}
	res := w.events[1].Invocation
	if res.ID != "call_1" || res.State != api.InvocationCompleted {
		t.Errorf("tool_result invocation = %+v, want completed call_1", res)
	}
	if res.Result == nil || res.Result.Success == nil || res.Result.Success.Stdout != "391\n" {
		t.Errorf("tool_result result = %+v, want stdout 391", res.Result)
	}

	done := w.events[3]
	if done.FinishReason != "stop" || done.Steps != 2 {
		t.Errorf("done = reason %q steps %d, want stop 2", done.FinishReason, done.Steps)
	}
	if done.Usage == nil || done.Usage.InputTokens != 30 || done.Usage.OutputTokens != 12 || done.Usage.TotalTokens != 42 {
		t.Errorf("done usage = %+v, want summed 30/12/42", done.Usage)
	}

	second := p.requests[1]
	if len(second) != 4 {
		t.Fatalf("second request messages = %d, want 4", len(second))
	}
	if second[0].Role != provider.RoleSystem || second[0].Content != DefaultSystemPrompt {
		t.Errorf("first message = %+v, want system prompt", second[0])
	}
	if second[2].Role != provider.RoleAssistant || len(second[2].ToolCalls) != 1 || second[2].ToolCalls[0].ID != "call_1" {
		t.Errorf("assistant message = %+v, want one call_1 tool call", second[2])
	}
	if second[3].Role != provider.RoleTool || second[3].ToolCallID != "call_1" || !strings.Contains(second[3].Content, "391") {
		t.Errorf("tool message = %+v, want result for call_1", second[3])
	}
}

func TestChat_FailuresContinueTheLoop(t *testing.T) {
	tests := []struct {
		name     string
		result   api.ExecutionResult
		wantKind string
	}{
		{
			name:     "python exception",
			result:   api.NewFailure("ZeroDivisionError", "division by zero", "Traceback (most recent call last):"),
			wantKind: "ZeroDivisionError",
		},
		{
			name:     "sandbox unavailable",
			result:   api.NewFailure("SandboxError", "sandbox at capacity", ""),
			wantKind: "SandboxError",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProvider{turns: [][]provider.ProviderEvent{
				toolCallTurn("call_1", `{"code":"1/0"}`),
				textTurn("That raised an error."),
			}}
			e := newTestEngine(t, p, runnerFunc(func(context.Context, string) api.ExecutionResult { return tt.result }), nil)
			w := &recordingWriter{}

			if err := e.Chat(context.Background(), userRequest("divide"), w); err != nil {
				t.Fatalf("Chat: %v", err)
			}
			if p.calls() != 2 {
				t.Errorf("provider calls = %d, want 2", p.calls())
			}
			res := w.events[1].Invocation.Result
			if res == nil || res.Failure == nil || res.Failure.ErrorKind != tt.wantKind {
				t.Errorf("tool_result = %+v, want failure %s", res, tt.wantKind)
			}
			last := w.events[len(w.events)-1]
			if last.Type != api.EventDone {
				t.Errorf("last event = %s, want done", last.Type)
			}
			toolMsg := p.requests[1][len(p.requests[1])-1]
			if !strings.Contains(toolMsg.Content, tt.wantKind) {
				t.Errorf("tool message %q does not mention %s", toolMsg.Content, tt.wantKind)
			}
		})
	}
}

func TestChat_StepLimit(t *testing.T) {
	p := &fakeProvider{turns: [][]provider.ProviderEvent{
		toolCallTurn("", `{"code":"print(1)"}`),
	}}
	runs := 0
	runner := runnerFunc(func(context.Context, string) api.ExecutionResult {
		runs++
		return api.NewSuccess("1\n", "", nil)
	})
	e := newTestEngine(t, p, runner, nil)
	w := &recordingWriter{}

	if err := e.Chat(context.Background(), userRequest("loop forever"), w); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if p.calls() != DefaultMaxSteps {
		t.Errorf("provider calls = %d, want %d", p.calls(), DefaultMaxSteps)
	}
	if runs != DefaultMaxSteps {
		t.Errorf("tool runs = %d, want %d", runs, DefaultMaxSteps)
	}
	if len(w.events) != 2*DefaultMaxSteps+1 {
		t.Fatalf("events = %d, want %d", len(w.events), 2*DefaultMaxSteps+1)
	}

	ids := map[string]bool{}
	for i := 0; i < DefaultMaxSteps; i++ {
		call, res := w.events[2*i], w.events[2*i+1]
		if call.Type != api.EventToolCall || res.Type != api.EventToolResult {
			t.Errorf("pair %d = %s/%s, want tool_call/tool_result", i, call.Type, res.Type)
		}
		if call.Invocation.ID == "" {
			t.Errorf("pair %d has no call ID", i)
		}
		ids[call.Invocation.ID] = true
	}
	if len(ids) != DefaultMaxSteps {
		t.Errorf("distinct generated call IDs = %d, want %d", len(ids), DefaultMaxSteps)
	}

	done := w.events[len(w.events)-1]
	if done.Type != api.EventDone || done.Steps != DefaultMaxSteps || done.FinishReason != "tool_calls" {
		t.Errorf("final event = %+v, want done after %d steps", done, DefaultMaxSteps)
	}
}

func TestChat_CustomMaxSteps(t *testing.T) {
	p := &fakeProvider{turns: [][]provider.ProviderEvent{toolCallTurn("c", `{"code":"x"}`)}}
	registry := tools.NewRegistry(tools.NewPythonTool(runnerFunc(func(context.Context, string) api.ExecutionResult {
		return api.NewSuccess("", "", nil)
	})))
	e, err := New(p, registry, nil, Config{MaxSteps: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := e.Chat(context.Background(), userRequest("hi"), &recordingWriter{}); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if p.calls() != 2 {
		t.Errorf("provider calls = %d, want 2", p.calls())
	}
}

func TestChat_UnknownTool(t *testing.T) {
	p := &fakeProvider{turns: [][]provider.ProviderEvent{
		{
			{Type: provider.ProviderEventToolCallDone, ToolCallID: "call_x", FunctionName: "run_shell", Delta: `{"cmd":"ls"}`},
			{Type: provider.ProviderEventDone, FinishReason: "tool_calls"},
		},
		textTurn("I cannot do that."),
	}}
	e := newTestEngine(t, p, runnerFunc(func(context.Context, string) api.ExecutionResult {
		t.Error("runner must not be called for an unknown tool")
		return api.NewSuccess("", "", nil)
	}), nil)
	w := &recordingWriter{}

	if err := e.Chat(context.Background(), userRequest("ls"), w); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	res := w.events[1].Invocation.Result
	if res == nil || res.Failure == nil || res.Failure.ErrorKind != tools.ErrorKindToolNotFound {
		t.Errorf("tool_result = %+v, want %s", res, tools.ErrorKindToolNotFound)
	}
}

func TestChat_InvalidArguments(t *testing.T) {
	p := &fakeProvider{turns: [][]provider.ProviderEvent{
		toolCallTurn("call_1", `not json`),
		textTurn("Sorry."),
	}}
	e := newTestEngine(t, p, runnerFunc(func(context.Context, string) api.ExecutionResult {
		t.Error("runner must not be called with invalid arguments")
		return api.NewSuccess("", "", nil)
	}), nil)
	w := &recordingWriter{}

	if err := e.Chat(context.Background(), userRequest("go"), w); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	inv := w.events[0].Invocation
	if inv.Arguments.Code != "not json" {
		t.Errorf("displayed code = %q, want raw arguments", inv.Arguments.Code)
	}
	res := w.events[1].Invocation.Result
	if res == nil || res.Failure == nil || res.Failure.ErrorKind != tools.ErrorKindInvalidArguments {
		t.Errorf("tool_result = %+v, want %s", res, tools.ErrorKindInvalidArguments)
	}
	echoed := p.requests[1][2].ToolCalls[0].Function.Arguments
	if echoed != "{}" {
		t.Errorf("echoed arguments = %q, want {}", echoed)
	}
}

func TestChat_PreStreamError(t *testing.T) {
	p := &fakeProvider{streamErr: api.NewModelError("backend unavailable")}
	e := newTestEngine(t, p, runnerFunc(func(context.Context, string) api.ExecutionResult { return api.NewSuccess("", "", nil) }), nil)
	w := &recordingWriter{}

	err := e.Chat(context.Background(), userRequest("hi"), w)
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.Type != api.ErrorTypeModelError {
		t.Errorf("error = %v, want model error", err)
	}
	if w.Started() {
		t.Errorf("events written = %d, want none", len(w.events))
	}
}

func TestChat_MidStreamError(t *testing.T) {
	p := &fakeProvider{turns: [][]provider.ProviderEvent{
		{
			{Type: provider.ProviderEventTextDelta, Delta: "Let me "},
			{Type: provider.ProviderEventError, Err: api.NewModelError("connection reset")},
		},
	}}
	e := newTestEngine(t, p, runnerFunc(func(context.Context, string) api.ExecutionResult { return api.NewSuccess("", "", nil) }), nil)
	w := &recordingWriter{}

	err := e.Chat(context.Background(), userRequest("hi"), w)
	if err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Fatalf("error = %v, want connection reset", err)
	}
	if len(w.events) != 1 || w.events[0].Type != api.EventTextDelta {
		t.Errorf("events = %v, want one text.delta", w.types())
	}
}

func TestChat_StreamWithoutFinish(t *testing.T) {
	p := &fakeProvider{turns: [][]provider.ProviderEvent{
		{{Type: provider.ProviderEventTextDelta, Delta: "partial"}},
	}}
	e := newTestEngine(t, p, runnerFunc(func(context.Context, string) api.ExecutionResult { return api.NewSuccess("", "", nil) }), nil)

	err := e.Chat(context.Background(), userRequest("hi"), &recordingWriter{})
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.Type != api.ErrorTypeModelError {
		t.Errorf("error = %v, want model error", err)
	}
}

func TestChat_WriteFailureStops(t *testing.T) {
	p := &fakeProvider{turns: [][]provider.ProviderEvent{textTurn("hello")}}
	e := newTestEngine(t, p, runnerFunc(func(context.Context, string) api.ExecutionResult { return api.NewSuccess("", "", nil) }), nil)
	writeErr := errors.New("client gone")

	err := e.Chat(context.Background(), userRequest("hi"), &recordingWriter{writeErr: writeErr})
	if !errors.Is(err, writeErr) {
		t.Errorf("error = %v, want %v", err, writeErr)
	}
}

func TestChat_RecordsExecutions(t *testing.T) {
	p := &fakeProvider{turns: [][]provider.ProviderEvent{
		toolCallTurn("call_1", `{"code":"print(17*23)"}`),
		textTurn("391"),
	}}
	rec := memory.New(10)
	e := newTestEngine(t, p, runnerFunc(func(context.Context, string) api.ExecutionResult {
		return api.NewSuccess("391\n", "", nil)
	}), rec)

	ctx := transport.ContextWithRequestID(context.Background(), "req-42")
	ctx = audit.SetTenant(ctx, "team-a")
	if err := e.Chat(ctx, userRequest("multiply"), &recordingWriter{}); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	records, err := rec.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	r := records[0]
	if r.RequestID != "req-42" || r.CallID != "call_1" || r.Tenant != "team-a" {
		t.Errorf("record = %+v, want req-42/call_1/team-a", r)
	}
	if r.Code != "print(17*23)" || r.Outcome != audit.OutcomeSuccess {
		t.Errorf("record code/outcome = %q/%s", r.Code, r.Outcome)
	}
}

func TestChat_TextOnly(t *testing.T) {
	p := &fakeProvider{turns: [][]provider.ProviderEvent{
		{
			{Type: provider.ProviderEventTextDelta, Delta: "Hello"},
			{Type: provider.ProviderEventTextDelta, Delta: ""},
			{Type: provider.ProviderEventTextDelta, Delta: ", world"},
			{Type: provider.ProviderEventDone, FinishReason: "stop"},
		},
	}}
	e := newTestEngine(t, p, runnerFunc(func(context.Context, string) api.ExecutionResult { return api.NewSuccess("", "", nil) }), nil)
	w := &recordingWriter{}

	if err := e.Chat(context.Background(), userRequest("hi"), w); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	want := []api.StreamEventType{api.EventTextDelta, api.EventTextDelta, api.EventDone}
	if got := w.types(); !equalTypes(got, want) {
		t.Fatalf("event types = %v, want %v", got, want)
	}
	if w.events[2].Steps != 1 || w.events[2].Usage == nil {
		t.Errorf("done = %+v, want steps 1 with usage", w.events[2])
	}
}
