package openaicompat

import (
	"context"
	"fmt"
	"time"

	"github.com/rhuss/codechat/pkg/provider"
)

// Config holds configuration for a generic Chat Completions server.
type Config struct {
	// BaseURL is the server URL without the /v1 suffix (e.g., "http://localhost:8000").
	BaseURL string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Timeout bounds the wait for response headers. Defaults to 120s.
	Timeout time.Duration
}

// Provider implements provider.Provider for any OpenAI-compatible server.
type Provider struct {
	client *Client
}

var _ provider.Provider = (*Provider)(nil)

// New creates a Provider. Returns an error if BaseURL is missing.
func New(cfg Config) (*Provider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("openai-compat: BaseURL is required")
	}
	return &Provider{client: NewClient(ClientConfig{
		BaseURL:       cfg.BaseURL,
		APIKey:        cfg.APIKey,
		HeaderTimeout: cfg.Timeout,
	})}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "openai-compat"
}

// Stream delegates to the shared Client.
func (p *Provider) Stream(ctx context.Context, req *provider.ProviderRequest) (<-chan provider.ProviderEvent, error) {
	return p.client.Stream(ctx, req)
}

// Close releases provider resources.
func (p *Provider) Close() error {
	return p.client.Close()
}
