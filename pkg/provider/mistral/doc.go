// Package mistral implements the provider.Provider interface for Mistral's
// Codestral endpoint, which speaks the OpenAI Chat Completions protocol.
package mistral
