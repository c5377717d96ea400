// Package anthropic implements provider.Provider on the Anthropic Messages
// API using the official SDK's streaming client.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/rhuss/codechat/pkg/api"
	"github.com/rhuss/codechat/pkg/debug"
	"github.com/rhuss/codechat/pkg/provider"
)

// DefaultMaxTokens is sent when the request does not set MaxTokens; the
// Messages API requires one.
const DefaultMaxTokens = 4096

// Config holds configuration for the Anthropic provider.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Provider streams completions from the Anthropic Messages API.
type Provider struct {
	client sdk.Client
	model  string
}

var _ provider.Provider = (*Provider)(nil)

// New creates a Provider. The SDK's automatic retries are disabled.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: APIKey is required (set ANTHROPIC_API_KEY)")
	}
	if cfg.Model == "" {
		cfg.Model = string(sdk.ModelClaude4Sonnet20250514)
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &Provider{client: sdk.NewClient(opts...), model: cfg.Model}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "anthropic"
}

// Close is a no-op; the SDK client holds no resources of its own.
func (p *Provider) Close() error {
	return nil
}

// Stream starts a streaming Messages request. The first SDK event is read
// before returning so that authentication and validation failures surface
// as an error return rather than a stream event.
func (p *Provider) Stream(ctx context.Context, req *provider.ProviderRequest) (<-chan provider.ProviderEvent, error) {
	params, err := p.translate(req)
	if err != nil {
		return nil, api.NewServerError(err.Error())
	}

	debug.Log("providers", "anthropic request", "model", params.Model, "messages", len(params.Messages))

	stream := p.client.Messages.NewStreaming(ctx, params)
	if !stream.Next() {
		err := stream.Err()
		stream.Close()
		if err == nil {
			err = fmt.Errorf("empty stream")
		}
		return nil, api.NewModelError(fmt.Sprintf("anthropic: %s", err.Error()))
	}

	ch := make(chan provider.ProviderEvent, 16)
	go func() {
		defer close(ch)
		defer stream.Close()

		st := newStreamState()
		for {
			for _, ev := range st.handle(stream.Current()) {
				select {
				case ch <- ev:
				case <-ctx.Done():
					return
				}
			}
			if st.finished || !stream.Next() {
				break
			}
		}

		var final provider.ProviderEvent
		switch {
		case stream.Err() != nil:
			if ctx.Err() != nil {
				return
			}
			final = provider.ProviderEvent{
				Type: provider.ProviderEventError,
				Err:  api.NewModelError("anthropic stream: " + stream.Err().Error()),
			}
		case !st.finished:
			final = provider.ProviderEvent{
				Type: provider.ProviderEventError,
				Err:  api.NewServerError("anthropic stream ended before message_stop"),
			}
		default:
			final = provider.ProviderEvent{
				Type:         provider.ProviderEventDone,
				FinishReason: st.finishReason,
				Usage:        &st.usage,
			}
		}
		select {
		case ch <- final:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}

type toolUse struct {
	id   string
	name string
	args strings.Builder
}

type streamState struct {
	tools        map[int64]*toolUse
	order        []int64
	finishReason string
	usage        api.Usage
	finished     bool
}

func newStreamState() *streamState {
	return &streamState{tools: make(map[int64]*toolUse), finishReason: "stop"}
}

// handle converts one SDK event into zero or more provider events.
func (s *streamState) handle(event sdk.MessageStreamEventUnion) []provider.ProviderEvent {
	switch ev := event.AsAny().(type) {
	case sdk.MessageStartEvent:
		s.usage.InputTokens = int(ev.Message.Usage.InputTokens)
		s.usage.OutputTokens = int(ev.Message.Usage.OutputTokens)

	case sdk.ContentBlockStartEvent:
		if ev.ContentBlock.Type == "tool_use" {
			s.tools[ev.Index] = &toolUse{id: ev.ContentBlock.ID, name: ev.ContentBlock.Name}
			s.order = append(s.order, ev.Index)
			return []provider.ProviderEvent{{
				Type:          provider.ProviderEventToolCallDelta,
				ToolCallIndex: int(ev.Index),
				ToolCallID:    ev.ContentBlock.ID,
				FunctionName:  ev.ContentBlock.Name,
			}}
		}

	case sdk.ContentBlockDeltaEvent:
		switch ev.Delta.Type {
		case "text_delta":
			if ev.Delta.Text != "" {
				return []provider.ProviderEvent{{Type: provider.ProviderEventTextDelta, Delta: ev.Delta.Text}}
			}
		case "input_json_delta":
			if tu, ok := s.tools[ev.Index]; ok {
				tu.args.WriteString(ev.Delta.PartialJSON)
				return []provider.ProviderEvent{{
					Type:          provider.ProviderEventToolCallDelta,
					ToolCallIndex: int(ev.Index),
					ToolCallID:    tu.id,
					Delta:         ev.Delta.PartialJSON,
				}}
			}
		}

	case sdk.MessageDeltaEvent:
		s.finishReason = mapStopReason(string(ev.Delta.StopReason))
		s.usage.OutputTokens = int(ev.Usage.OutputTokens)

	case sdk.MessageStopEvent:
		s.finished = true
		s.usage.TotalTokens = s.usage.InputTokens + s.usage.OutputTokens
		var out []provider.ProviderEvent
		for _, idx := range s.order {
			tu := s.tools[idx]
			args := tu.args.String()
			if args == "" {
				args = "{}"
			}
			out = append(out, provider.ProviderEvent{
				Type:          provider.ProviderEventToolCallDone,
				ToolCallIndex: int(idx),
				ToolCallID:    tu.id,
				FunctionName:  tu.name,
				Delta:         args,
			})
		}
		return out
	}
	return nil
}

func mapStopReason(reason string) string {
	switch reason {
	case "tool_use":
		return "tool_calls"
	case "max_tokens":
		return "length"
	case "end_turn", "stop_sequence", "":
		return "stop"
	}
	return reason
}

// translate builds Messages API params. System messages become the system
// prompt, and consecutive tool messages are merged into one user turn of
// tool_result blocks.
func (p *Provider) translate(req *provider.ProviderRequest) (sdk.MessageNewParams, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := int64(DefaultMaxTokens)
	if req.MaxTokens != nil {
		maxTokens = int64(*req.MaxTokens)
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: maxTokens,
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}

	var pendingResults []sdk.ContentBlockParamUnion
	flushResults := func() {
		if len(pendingResults) > 0 {
			params.Messages = append(params.Messages, sdk.NewUserMessage(pendingResults...))
			pendingResults = nil
		}
	}

	for _, m := range req.Messages {
		if m.Role != provider.RoleTool {
			flushResults()
		}
		switch m.Role {
		case provider.RoleSystem:
			params.System = append(params.System, sdk.TextBlockParam{Text: m.Content})
		case provider.RoleUser:
			params.Messages = append(params.Messages, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case provider.RoleAssistant:
			var blocks []sdk.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, sdk.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input any = map[string]any{}
				if tc.Function.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
						return params, fmt.Errorf("tool call %s arguments: %w", tc.ID, err)
					}
				}
				blocks = append(blocks, sdk.ContentBlockParamUnion{
					OfToolUse: &sdk.ToolUseBlockParam{ID: tc.ID, Name: tc.Function.Name, Input: input},
				})
			}
			if len(blocks) > 0 {
				params.Messages = append(params.Messages, sdk.NewAssistantMessage(blocks...))
			}
		case provider.RoleTool:
			pendingResults = append(pendingResults, sdk.ContentBlockParamUnion{
				OfToolResult: &sdk.ToolResultBlockParam{
					ToolUseID: m.ToolCallID,
					Content: []sdk.ToolResultBlockParamContentUnion{
						{OfText: &sdk.TextBlockParam{Text: m.Content}},
					},
				},
			})
		default:
			return params, fmt.Errorf("unsupported role %q", m.Role)
		}
	}
	flushResults()

	for _, t := range req.Tools {
		var schema struct {
			Properties map[string]any `json:"properties"`
			Required   []string       `json:"required"`
		}
		if len(t.Function.Parameters) > 0 {
			if err := json.Unmarshal(t.Function.Parameters, &schema); err != nil {
				return params, fmt.Errorf("tool %s schema: %w", t.Function.Name, err)
			}
		}
		params.Tools = append(params.Tools, sdk.ToolUnionParam{
			OfTool: &sdk.ToolParam{
				Name:        t.Function.Name,
				Description: sdk.String(t.Function.Description),
				InputSchema: sdk.ToolInputSchemaParam{
					Properties: schema.Properties,
					Required:   schema.Required,
				},
			},
		})
	}

	return params, nil
}
