package engine

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rhuss/codechat/pkg/api"
	"github.com/rhuss/codechat/pkg/audit"
	"github.com/rhuss/codechat/pkg/observability"
	"github.com/rhuss/codechat/pkg/provider"
	"github.com/rhuss/codechat/pkg/tools"
	"github.com/rhuss/codechat/pkg/transport"
)

// Engine bridges chat requests to a provider and executes tool calls. It
// implements transport.ChatHandler.
type Engine struct {
	provider provider.Provider
	tools    *tools.Registry
	recorder audit.Recorder
	cfg      Config
}

var _ transport.ChatHandler = (*Engine)(nil)

// New creates an Engine. The provider and registry must not be nil. The
// recorder can be nil to disable the execution audit trail.
func New(p provider.Provider, registry *tools.Registry, recorder audit.Recorder, cfg Config) (*Engine, error) {
	if p == nil {
		return nil, fmt.Errorf("engine: provider must not be nil")
	}
	if registry == nil {
		return nil, fmt.Errorf("engine: tool registry must not be nil")
	}
	return &Engine{
		provider: p,
		tools:    registry,
		recorder: recorder,
		cfg:      cfg,
	}, nil
}

// Chat streams one chat turn to w. Errors returned before anything was written
// become a plain HTTP error at the transport; later errors end the stream
// with an error event.
func (e *Engine) Chat(ctx context.Context, req *api.ChatRequest, w transport.EventWriter) (err error) {
	ctx, span := observability.Tracer().Start(ctx, "chat",
		trace.WithAttributes(
			attribute.String("provider", e.provider.Name()),
			attribute.Int("history.messages", len(req.Messages)),
		))
	defer func() { observability.EndSpan(span, err) }()

	provReq := &provider.ProviderRequest{
		Model:       e.cfg.Model,
		Messages:    translateHistory(e.cfg.systemPrompt(), req.Messages),
		Tools:       e.tools.Definitions(),
		Temperature: e.cfg.Temperature,
		MaxTokens:   e.cfg.MaxTokens,
		Stream:      true,
	}

	return e.runLoop(ctx, provReq, w)
}
