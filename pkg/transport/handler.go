package transport

import (
	"context"

	"github.com/rhuss/codechat/pkg/api"
)

// ChatHandler runs one chat turn. It writes events to w as they are produced.
// An error returned before any event was written is reported to the client as
// a plain HTTP error; once streaming has started the handler reports failures
// as an error event instead.
type ChatHandler interface {
	Chat(ctx context.Context, req *api.ChatRequest, w EventWriter) error
}

// ChatHandlerFunc is an adapter that allows using an ordinary function as a
// ChatHandler.
type ChatHandlerFunc func(ctx context.Context, req *api.ChatRequest, w EventWriter) error

// Chat calls f(ctx, req, w).
func (f ChatHandlerFunc) Chat(ctx context.Context, req *api.ChatRequest, w EventWriter) error {
	return f(ctx, req, w)
}

// EventWriter delivers stream events to the client.
//
// WriteEvent after a terminal event (done or error) returns an error.
type EventWriter interface {
	WriteEvent(ctx context.Context, event api.StreamEvent) error

	// Flush pushes buffered data to the client. Returns an error if the
	// client has disconnected.
	Flush() error

	// Started reports whether any event has been written.
	Started() bool
}
