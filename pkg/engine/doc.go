// Package engine runs a chat turn: it streams the model's reply, executes the
// tool calls the model makes, feeds their results back and repeats until the
// model stops asking for tools or the step budget is used up.
//
// The Engine implements transport.ChatHandler. Every chat request carries its
// full history; nothing is kept between requests apart from the execution
// audit trail.
package engine
