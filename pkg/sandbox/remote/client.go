// Package remote talks to a codechat sandbox server over HTTP.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rhuss/codechat/pkg/sandbox"
)

var _ sandbox.CodeSandbox = (*Client)(nil)

// Client calls the sandbox server's REST API. As a CodeSandbox it creates a
// server-side session per environment.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	execTimeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sets the key sent in the X-API-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithExecTimeout sets the per-run timeout enforced by the sandbox server.
func WithExecTimeout(d time.Duration) Option {
	return func(c *Client) { c.execTimeout = d }
}

// NewClient creates a client for the sandbox server at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: 120 * time.Second, // Overall HTTP timeout (execution timeout is enforced by the sandbox).
		},
		baseURL:     strings.TrimRight(baseURL, "/"),
		execTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the server address the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Create opens a session on the sandbox server.
func (c *Client) Create(ctx context.Context) (sandbox.Environment, error) {
	var resp sandbox.SessionResponse
	if err := c.do(ctx, http.MethodPost, "/sandboxes", struct{}{}, &resp); err != nil {
		return nil, fmt.Errorf("create sandbox session: %w", err)
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("create sandbox session: server returned empty id")
	}
	return &session{client: c, id: resp.ID}, nil
}

// Execute runs code statelessly via POST /execute.
func (c *Client) Execute(ctx context.Context, code string) (*sandbox.Execution, error) {
	return c.execute(ctx, "/execute", code)
}

// Health reports whether the server answers GET /health with 200.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sandbox health returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) execute(ctx context.Context, path, code string) (*sandbox.Execution, error) {
	req := sandbox.ExecuteRequest{
		Code:           code,
		TimeoutSeconds: int(c.execTimeout / time.Second),
	}
	var exec sandbox.Execution
	if err := c.do(ctx, http.MethodPost, path, req, &exec); err != nil {
		return nil, err
	}
	return &exec, nil
}

func (c *Client) deleteSession(ctx context.Context, id string) error {
	err := c.do(ctx, http.MethodDelete, "/sandboxes/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return fmt.Errorf("delete sandbox session %s: %w", id, err)
	}
	return nil
}

// do sends a JSON request and decodes a JSON response into out when out is
// non-nil.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		httpReq.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("sandbox request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w (HTTP 429)", sandbox.ErrAtCapacity)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sandbox returned HTTP %d: %s", resp.StatusCode, errorMessage(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorMessage extracts the "error" field of a sandbox error body, falling
// back to the raw body.
func errorMessage(body []byte) string {
	var e sandbox.ErrorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return e.Error
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512] + "..."
	}
	return msg
}
