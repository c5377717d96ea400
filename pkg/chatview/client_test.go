package chatview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rhuss/codechat/pkg/api"
)

func sseFrame(t *testing.T, ev api.StreamEvent) string {
	t.Helper()
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	return fmt.Sprintf("event: %s\ndata: %s\n\n", ev.Type, data)
}

func TestClientStream(t *testing.T) {
	var got api.ChatRequest
	var auth string
	frames := []api.StreamEvent{
		{Type: api.EventTextDelta, SequenceNumber: 0, Delta: "Hi"},
		{Type: api.EventToolCall, SequenceNumber: 1, Invocation: pending("call_1", "print(1)")},
		{Type: api.EventToolResult, SequenceNumber: 2, Invocation: completed("call_1", "print(1)", api.NewSuccess("1\n", "", nil))},
		{Type: api.EventDone, SequenceNumber: 3, FinishReason: "stop", Steps: 2},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, ev := range frames {
			fmt.Fprint(w, sseFrame(t, ev))
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", WithAPIKey("key-1"))
	var c Conversation
	_ = c.Submit("hello")

	err := client.Stream(context.Background(), c.History(), func(ev api.StreamEvent) error {
		c.Apply(ev)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	if auth != "Bearer key-1" {
		t.Errorf("Authorization = %q, want Bearer key-1", auth)
	}
	if len(got.Messages) != 1 || got.Messages[0].Content != "hello" {
		t.Errorf("request messages = %+v", got.Messages)
	}
	if c.InFlight {
		t.Error("conversation still in flight after done")
	}
	parts := c.Messages[1].Parts
	if len(parts) != 2 || parts[1].Invocation.State != api.InvocationCompleted {
		t.Errorf("assistant parts = %+v", parts)
	}
}

func TestClientStream_HTTPError(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"flat", `{"error":"Failed to process request"}`, "Failed to process request"},
		{"structured", `{"error":{"type":"too_many_requests","message":"rate limit exceeded"}}`, "rate limit exceeded"},
		{"plain", "bad gateway", "bad gateway"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			err := NewClient(srv.URL).Stream(context.Background(), nil, func(api.StreamEvent) error { return nil })
			if err == nil || !strings.Contains(err.Error(), tt.want) || !strings.Contains(err.Error(), "500") {
				t.Errorf("err = %v, want HTTP 500 with %q", err, tt.want)
			}
		})
	}
}

func TestDecodeStream(t *testing.T) {
	t.Run("skips malformed frames", func(t *testing.T) {
		stream := "data: {not json}\n\n" + sseFrame(t, api.StreamEvent{Type: api.EventDone}) + "data: [DONE]\n\n"
		var n int
		err := decodeStream(strings.NewReader(stream), func(api.StreamEvent) error { n++; return nil })
		if err != nil || n != 1 {
			t.Errorf("err = %v, events = %d; want nil, 1", err, n)
		}
	})

	t.Run("incomplete", func(t *testing.T) {
		stream := sseFrame(t, api.StreamEvent{Type: api.EventTextDelta, Delta: "partial"})
		err := decodeStream(strings.NewReader(stream), func(api.StreamEvent) error { return nil })
		if !errors.Is(err, ErrIncompleteStream) {
			t.Errorf("err = %v, want ErrIncompleteStream", err)
		}
	})

	t.Run("callback error stops", func(t *testing.T) {
		stop := errors.New("stop")
		stream := sseFrame(t, api.StreamEvent{Type: api.EventTextDelta, Delta: "a"}) +
			sseFrame(t, api.StreamEvent{Type: api.EventTextDelta, Delta: "b"})
		var n int
		err := decodeStream(strings.NewReader(stream), func(api.StreamEvent) error { n++; return stop })
		if !errors.Is(err, stop) || n != 1 {
			t.Errorf("err = %v, events = %d; want stop after 1", err, n)
		}
	})

	t.Run("error event is terminal", func(t *testing.T) {
		stream := sseFrame(t, api.StreamEvent{Type: api.EventError, Error: api.NewModelError("boom")})
		if err := decodeStream(strings.NewReader(stream), func(api.StreamEvent) error { return nil }); err != nil {
			t.Errorf("err = %v, want nil", err)
		}
	})
}
