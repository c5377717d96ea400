package chatview

import (
	"errors"
	"fmt"
	"testing"

	"github.com/rhuss/codechat/pkg/api"
)

func pending(id, code string) *api.ToolInvocation {
	inv := api.NewToolInvocation(id, api.ToolNameExecutePython, code)
	return &inv
}

func completed(id, code string, result api.ExecutionResult) *api.ToolInvocation {
	inv := pending(id, code)
	if err := inv.Complete(result); err != nil {
		panic(err)
	}
	return inv
}

func TestConversation_ToolTurn(t *testing.T) {
	var c Conversation
	if err := c.Submit("What is 17*23?"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !c.InFlight {
		t.Fatal("InFlight = false after Submit")
	}

	events := []api.StreamEvent{
		{Type: api.EventTextDelta, Delta: "Let me "},
		{Type: api.EventTextDelta, Delta: "compute."},
		{Type: api.EventToolCall, Invocation: pending("call_1", "print(17*23)")},
		{Type: api.EventToolResult, Invocation: completed("call_1", "print(17*23)", api.NewSuccess("391\n", "", nil))},
		{Type: api.EventTextDelta, Delta: "It is 391."},
		{Type: api.EventDone, FinishReason: "stop", Steps: 2, Usage: &api.Usage{TotalTokens: 42}},
	}
	for _, ev := range events {
		c.Apply(ev)
	}

	if c.InFlight {
		t.Error("InFlight = true after done")
	}
	if c.Usage == nil || c.Usage.TotalTokens != 42 {
		t.Errorf("Usage = %+v, want total 42", c.Usage)
	}
	if len(c.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(c.Messages))
	}

	parts := c.Messages[1].Parts
	if len(parts) != 3 {
		t.Fatalf("got %d assistant parts, want 3", len(parts))
	}
	if parts[0].Text != "Let me compute." {
		t.Errorf("parts[0].Text = %q, want %q", parts[0].Text, "Let me compute.")
	}
	if inv := parts[1].Invocation; inv == nil || inv.State != api.InvocationCompleted || inv.Result.Success.Stdout != "391\n" {
		t.Errorf("parts[1].Invocation = %+v, want completed with stdout 391", inv)
	}
	if parts[2].Text != "It is 391." {
		t.Errorf("parts[2].Text = %q, want %q", parts[2].Text, "It is 391.")
	}
}

func TestConversation_SubmitWhileInFlight(t *testing.T) {
	var c Conversation
	if err := c.Submit("first"); err != nil {
		t.Fatal(err)
	}
	if err := c.Submit("second"); !errors.Is(err, ErrTurnInFlight) {
		t.Errorf("Submit during turn = %v, want ErrTurnInFlight", err)
	}

	c.Apply(api.StreamEvent{Type: api.EventDone})
	if err := c.Submit("second"); err != nil {
		t.Errorf("Submit after done: %v", err)
	}
}

func TestConversation_SubmitEmpty(t *testing.T) {
	var c Conversation
	if err := c.Submit("   "); err == nil {
		t.Error("Submit of blank text should fail")
	}
	if c.InFlight || len(c.Messages) != 0 {
		t.Error("blank Submit changed the conversation")
	}
}

func TestConversation_ErrorEvent(t *testing.T) {
	var c Conversation
	_ = c.Submit("hi")
	c.Apply(api.StreamEvent{Type: api.EventError, Error: api.NewModelError("upstream failed")})

	if c.InFlight {
		t.Error("InFlight = true after error")
	}
	var apiErr *api.APIError
	if !errors.As(c.Err, &apiErr) || apiErr.Message != "upstream failed" {
		t.Errorf("Err = %v, want model error", c.Err)
	}

	if err := c.Submit("again"); err != nil {
		t.Fatal(err)
	}
	if c.Err != nil {
		t.Errorf("Err = %v after new Submit, want nil", c.Err)
	}
}

func TestConversation_Fail(t *testing.T) {
	var c Conversation
	c.Fail(errors.New("ignored"))
	if c.Err != nil {
		t.Error("Fail outside a turn should be ignored")
	}

	_ = c.Submit("hi")
	c.Fail(ErrIncompleteStream)
	if c.InFlight || !errors.Is(c.Err, ErrIncompleteStream) {
		t.Errorf("InFlight = %v, Err = %v", c.InFlight, c.Err)
	}
}

func TestConversation_ResultWithoutCall(t *testing.T) {
	var c Conversation
	_ = c.Submit("hi")
	c.Apply(api.StreamEvent{Type: api.EventToolResult, Invocation: completed("call_9", "x", api.NewFailure("NameError", "name 'x' is not defined", ""))})

	parts := c.Messages[1].Parts
	if len(parts) != 1 || parts[0].Invocation == nil || parts[0].Invocation.ID != "call_9" {
		t.Errorf("parts = %+v, want the orphan result appended", parts)
	}
}

func TestConversation_History(t *testing.T) {
	var c Conversation
	_ = c.Submit("plot it")
	c.Apply(api.StreamEvent{Type: api.EventTextDelta, Delta: "Sure. "})
	c.Apply(api.StreamEvent{Type: api.EventToolCall, Invocation: pending("call_1", "plot()")})
	c.Apply(api.StreamEvent{Type: api.EventToolResult, Invocation: completed("call_1", "plot()", api.NewSuccess("", "", nil))})
	c.Apply(api.StreamEvent{Type: api.EventTextDelta, Delta: "Done."})
	c.Apply(api.StreamEvent{Type: api.EventDone})

	history := c.History()
	if len(history) != 3 {
		t.Fatalf("got %d history messages, want 3: %+v", len(history), history)
	}
	if history[0].Role != api.RoleUser || history[0].Content != "plot it" {
		t.Errorf("history[0] = %+v", history[0])
	}
	step := history[1]
	if step.Role != api.RoleAssistant || step.Content != "Sure. " {
		t.Errorf("history[1] role/content = %s/%q", step.Role, step.Content)
	}
	if len(step.ToolInvocations) != 1 || step.ToolInvocations[0].State != api.InvocationCompleted {
		t.Errorf("history[1].ToolInvocations = %+v", step.ToolInvocations)
	}
	if final := history[2]; final.Role != api.RoleAssistant || final.Content != "Done." || len(final.ToolInvocations) != 0 {
		t.Errorf("history[2] = %+v, want the prose that followed the result", final)
	}
}

func TestConversation_HistorySteps(t *testing.T) {
	tests := []struct {
		name  string
		parts []Part
		want  []string // content of each step, with "+N" for N invocations
	}{
		{"text only", []Part{{Text: "hello"}}, []string{"hello+0"}},
		{"call then answer", []Part{{Text: "Let me compute"}, {Invocation: pending("call_1", "x")}, {Text: "17 × 23 = 391."}},
			[]string{"Let me compute+1", "17 × 23 = 391.+0"}},
		{"two calls one step", []Part{{Invocation: pending("call_1", "a")}, {Invocation: pending("call_2", "b")}},
			[]string{"+2"}},
		{"adjacent text parts", []Part{{Text: "one"}, {Text: "two"}}, []string{"one\ntwo+0"}},
		{"empty", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			steps := assistantSteps(tt.parts)
			var got []string
			for _, s := range steps {
				got = append(got, fmt.Sprintf("%s+%d", s.Content, len(s.ToolInvocations)))
			}
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("steps = %q, want %q", got, tt.want)
			}
		})
	}
}
