// Package chatview is the client side of a chat: it streams turns from the
// server, folds the events into a conversation and renders it for a
// terminal.
//
// Conversation is a pure reducer over api.StreamEvent values and holds no
// terminal state. Renderer turns a Conversation into styled text. Client
// posts the message history to /api/chat and decodes the event stream.
package chatview
