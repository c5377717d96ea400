package provider

import "context"

// Provider abstracts a streaming chat model. Each adapter handles its own
// wire protocol (Chat Completions, Anthropic Messages) internally and emits
// backend-neutral ProviderEvent values.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Provider interface {
	// Name returns the provider identifier (e.g., "mistral", "anthropic").
	Name() string

	// Stream performs streaming inference. The returned channel receives
	// ProviderEvent values and is closed by the provider when the stream
	// completes or errors. An error return means nothing was streamed.
	Stream(ctx context.Context, req *ProviderRequest) (<-chan ProviderEvent, error)

	// Close releases provider resources (HTTP clients, connections).
	Close() error
}
