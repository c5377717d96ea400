// Package transport defines the chat handler contract and the middleware
// chain that sits between the HTTP adapter and the engine.
//
// A ChatHandler receives a validated ChatRequest and writes StreamEvents to an
// EventWriter. The HTTP adapter in pkg/transport/http owns the EventWriter and
// turns events into server-sent-event frames.
//
// Built-in middleware covers panic recovery, request ID assignment
// (X-Request-ID), structured logging via log/slog and the per-request
// wall-clock budget.
package transport
