// Package tools defines the tool executor contract used by the chat loop
// and provides execute_python, the one tool the model is offered.
//
// A Registry dispatches model tool calls by name. Unknown tools and
// malformed arguments produce Failure results instead of errors so the
// model can see and correct them.
package tools
