// Package provider defines the protocol-agnostic interface for streaming
// language model backends. Each adapter (openaicompat, mistral, anthropic)
// handles its own backend protocol translation internally. The interface
// operates on codechat's own types (ProviderRequest, ProviderEvent), keeping
// wire details invisible to the engine.
package provider
