// Package openaicompat provides shared streaming code for any OpenAI-compatible
// Chat Completions backend. It handles request serialization, SSE chunk
// parsing, tool call argument buffering, and error mapping.
//
// Provider adapters (mistral, the generic openai-compat provider) embed the
// Client from this package and delegate their Stream calls to it.
package openaicompat
