package mistral

import (
	"context"
	"fmt"
	"time"

	"github.com/rhuss/codechat/pkg/provider"
	"github.com/rhuss/codechat/pkg/provider/openaicompat"
)

const (
	// DefaultBaseURL is the Codestral API host.
	DefaultBaseURL = "https://codestral.mistral.ai"

	// DefaultModel is used when the request does not name a model.
	DefaultModel = "codestral-latest"
)

// Config holds configuration for the Mistral provider adapter.
type Config struct {
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string

	// APIKey is required; it is normally read from MISTRAL_API_KEY.
	APIKey string

	// Model replaces an empty request model. Defaults to DefaultModel.
	Model string

	// Timeout bounds the wait for response headers. Defaults to 120s.
	Timeout time.Duration
}

// MistralProvider implements provider.Provider on top of the shared
// openaicompat.Client.
type MistralProvider struct {
	cfg    Config
	client *openaicompat.Client
}

var _ provider.Provider = (*MistralProvider)(nil)

// New creates a new MistralProvider with the given configuration.
// Returns an error if the API key is missing.
func New(cfg Config) (*MistralProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("mistral: APIKey is required (set MISTRAL_API_KEY)")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	client := openaicompat.NewClient(openaicompat.ClientConfig{
		BaseURL:       cfg.BaseURL,
		APIKey:        cfg.APIKey,
		DefaultModel:  cfg.Model,
		HeaderTimeout: cfg.Timeout,
	})

	return &MistralProvider{cfg: cfg, client: client}, nil
}

// Name returns the provider identifier.
func (p *MistralProvider) Name() string {
	return "mistral"
}

// Stream performs streaming inference against the Codestral endpoint.
func (p *MistralProvider) Stream(ctx context.Context, req *provider.ProviderRequest) (<-chan provider.ProviderEvent, error) {
	return p.client.Stream(ctx, req)
}

// Close releases provider resources.
func (p *MistralProvider) Close() error {
	return p.client.Close()
}
