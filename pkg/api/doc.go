// Package api defines the wire types shared by the codechat server and its clients.
//
// The package has no external dependencies and performs no I/O. It covers the
// conversation model, the tagged execution results produced by the sandbox
// executor, the streamed chat events, and the structured error type used across
// the server.
//
// Core types:
//   - [Message]: one entry of the conversation history (user, assistant, tool)
//   - [ToolInvocation]: a model request to run execute_python, plus its result
//   - [ExecutionResult]: tagged Success or Failure outcome of one invocation
//   - [Artifact]: tagged image, text or raw output unit
//   - [StreamEvent]: one server-sent event of a chat turn
//   - [APIError]: structured error with type, code, param, and message
package api
