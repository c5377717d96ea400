package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rhuss/codechat/pkg/api"
	"github.com/rhuss/codechat/pkg/debug"
	"github.com/rhuss/codechat/pkg/provider"
)

// ChatCompletionsPath is appended to the base URL for every request.
const ChatCompletionsPath = "/v1/chat/completions"

// DefaultHeaderTimeout bounds the wait for the backend's response headers.
const DefaultHeaderTimeout = 120 * time.Second

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL string // without the /v1 suffix
	APIKey  string // sent as a bearer token when set

	// DefaultModel replaces an empty request model.
	DefaultModel string

	// HeaderTimeout limits how long the backend may take to start answering.
	// The stream body itself is bounded only by the request context, since a
	// multi-step answer can outlive any fixed deadline.
	HeaderTimeout time.Duration
}

// Client streams Chat Completions from an OpenAI-compatible backend.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
}

// NewClient creates a Client.
func NewClient(cfg ClientConfig) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.HeaderTimeout <= 0 {
		cfg.HeaderTimeout = DefaultHeaderTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.HeaderTimeout

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Transport: transport},
	}
}

// Stream posts req with stream=true and returns the decoded events. Errors
// before the first byte of the body are returned directly as *api.APIError
// (see MapHTTPError); later failures arrive as a ProviderEventError. The
// channel is closed when the stream ends or ctx is cancelled.
func (c *Client) Stream(ctx context.Context, req *provider.ProviderRequest) (<-chan provider.ProviderEvent, error) {
	chatReq := TranslateToChat(req)
	if chatReq.Model == "" {
		chatReq.Model = c.cfg.DefaultModel
	}

	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, api.NewServerError("encoding chat completions request: " + err.Error())
	}

	url := c.cfg.BaseURL + ChatCompletionsPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, api.NewServerError("building chat completions request: " + err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	debug.Log("providers", "chat completions request",
		"url", url, "model", chatReq.Model, "messages", len(chatReq.Messages), "tools", len(chatReq.Tools))
	debug.Trace("providers", "chat completions body", "body", debug.Truncate(string(body), 2000))

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, MapNetworkError(err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		defer httpResp.Body.Close()
		apiErr := MapHTTPError(httpResp)
		debug.Log("providers", "chat completions rejected", "status", httpResp.StatusCode, "error", apiErr.Message)
		return nil, apiErr
	}

	ch := make(chan provider.ProviderEvent, 16)
	go func() {
		defer close(ch)
		defer httpResp.Body.Close()
		ParseSSEStream(ctx, httpResp.Body, ch)
	}()
	return ch, nil
}

// Close drops idle backend connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
