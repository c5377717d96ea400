package chatview

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rhuss/codechat/pkg/api"
	"github.com/rhuss/codechat/pkg/debug"
)

// ErrIncompleteStream is returned when the stream closes before a done or
// error event.
var ErrIncompleteStream = errors.New("stream ended before the turn completed")

// Client posts chat turns to a codechat server.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sends key as a bearer token.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stream sends messages and calls fn for every event of the turn, in order.
// It returns when the server ends the stream, fn fails, or ctx is done.
func (c *Client) Stream(ctx context.Context, messages []api.Message, fn func(api.StreamEvent) error) error {
	body, err := json.Marshal(api.ChatRequest{Messages: messages})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return fmt.Errorf("server returned HTTP %d: %s", resp.StatusCode, errorMessage(data))
	}

	return decodeStream(resp.Body, fn)
}

// decodeStream reads "event:"/"data:" frames until [DONE] or EOF.
func decodeStream(r io.Reader, fn func(api.StreamEvent) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	terminal := false
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			break
		}

		var ev api.StreamEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			slog.Warn("skipping malformed event", "error", err, "data", debug.Truncate(payload, 200))
			continue
		}
		if err := fn(ev); err != nil {
			return err
		}
		if ev.Type.IsTerminal() {
			terminal = true
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading stream: %w", err)
	}
	if !terminal {
		return ErrIncompleteStream
	}
	return nil
}

// errorMessage reads either a flat {"error": "..."} body or a structured
// {"error": {"message": "..."}} body.
func errorMessage(data []byte) string {
	var flat api.ErrorBody
	if err := json.Unmarshal(data, &flat); err == nil && flat.Error != "" {
		return flat.Error
	}
	var structured api.ErrorResponse
	if err := json.Unmarshal(data, &structured); err == nil && structured.Error != nil {
		return structured.Error.Message
	}
	return strings.TrimSpace(string(data))
}
