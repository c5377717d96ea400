package engine

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rhuss/codechat/pkg/api"
	"github.com/rhuss/codechat/pkg/audit"
	"github.com/rhuss/codechat/pkg/debug"
	"github.com/rhuss/codechat/pkg/observability"
	"github.com/rhuss/codechat/pkg/provider"
	"github.com/rhuss/codechat/pkg/tools"
	"github.com/rhuss/codechat/pkg/transport"
)

// turnResult is what one model turn produced.
type turnResult struct {
	text         string
	toolCalls    []tools.ToolCall
	finishReason string
	usage        api.Usage
}

// runLoop calls the model up to maxSteps times. A turn without tool calls
// ends the loop; otherwise every call is executed in order and the results
// are appended to the conversation for the next turn. When the last allowed
// turn still requests tools, those tools run and the stream ends without a
// further model call.
func (e *Engine) runLoop(ctx context.Context, provReq *provider.ProviderRequest, w transport.EventWriter) error {
	maxSteps := e.cfg.maxSteps()
	state := &streamState{}

	var usage api.Usage
	var finishReason string
	steps := 0

	for steps < maxSteps {
		steps++
		debug.Log("engine", "turn start", "step", steps, "messages", len(provReq.Messages))

		turn, err := e.streamTurn(ctx, provReq, steps, state, w)
		if err != nil {
			observability.ChatSteps.Observe(float64(steps))
			slog.Error("model turn failed",
				"request_id", transport.RequestIDFromContext(ctx),
				"provider", e.provider.Name(),
				"step", steps,
				"error", err,
			)
			return err
		}

		usage.Add(turn.usage)
		finishReason = turn.finishReason

		if len(turn.toolCalls) == 0 {
			break
		}

		provReq.Messages = append(provReq.Messages, buildAssistantToolCallMessage(turn.text, turn.toolCalls))
		for _, call := range turn.toolCalls {
			result, err := e.executeTool(ctx, call, state, w)
			if err != nil {
				return err
			}
			provReq.Messages = append(provReq.Messages, buildToolResultMessage(call, result))
		}
	}

	observability.ChatSteps.Observe(float64(steps))
	debug.Log("engine", "chat done", "steps", steps, "finish_reason", finishReason,
		"input_tokens", usage.InputTokens, "output_tokens", usage.OutputTokens)

	return w.WriteEvent(ctx, state.done(finishReason, steps, usage))
}

// streamTurn runs one provider stream and records provider metrics.
func (e *Engine) streamTurn(ctx context.Context, provReq *provider.ProviderRequest, step int, state *streamState, w transport.EventWriter) (result *turnResult, err error) {
	provName := e.provider.Name()
	model := e.cfg.modelLabel()

	ctx, span := observability.Tracer().Start(ctx, "provider.stream",
		trace.WithAttributes(
			attribute.String("provider", provName),
			attribute.String("model", model),
			attribute.Int("step", step),
		))
	defer func() { observability.EndSpan(span, err) }()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		observability.ProviderRequestsTotal.WithLabelValues(provName, model, status).Inc()
		observability.ProviderLatency.WithLabelValues(provName, model).Observe(time.Since(start).Seconds())
		if result != nil {
			observability.ProviderTokensTotal.WithLabelValues(provName, model, "input").Add(float64(result.usage.InputTokens))
			observability.ProviderTokensTotal.WithLabelValues(provName, model, "output").Add(float64(result.usage.OutputTokens))
		}
	}()

	eventCh, err := e.provider.Stream(ctx, provReq)
	if err != nil {
		return nil, err
	}
	return e.consumeStreamTurn(ctx, eventCh, state, w)
}

// consumeStreamTurn forwards text deltas as they arrive and buffers tool
// calls until the provider reports the end of the turn.
func (e *Engine) consumeStreamTurn(ctx context.Context, eventCh <-chan provider.ProviderEvent, state *streamState, w transport.EventWriter) (*turnResult, error) {
	res := &turnResult{}

	for ev := range eventCh {
		switch ev.Type {
		case provider.ProviderEventTextDelta:
			if ev.Delta == "" {
				continue
			}
			res.text += ev.Delta
			if err := w.WriteEvent(ctx, state.textDelta(ev.Delta)); err != nil {
				return nil, err
			}

		case provider.ProviderEventToolCallDelta:
			// Arguments arrive complete with ToolCallDone.

		case provider.ProviderEventToolCallDone:
			id := ev.ToolCallID
			if id == "" {
				id = api.NewToolCallID()
			}
			res.toolCalls = append(res.toolCalls, tools.ToolCall{
				ID:        id,
				Name:      ev.FunctionName,
				Arguments: ev.Delta,
			})
			debug.Log("engine", "tool call buffered", "call_id", id, "tool", ev.FunctionName)

		case provider.ProviderEventDone:
			res.finishReason = ev.FinishReason
			if ev.Usage != nil {
				res.usage = *ev.Usage
			}
			return res, nil

		case provider.ProviderEventError:
			if ev.Err != nil {
				return nil, ev.Err
			}
			return nil, api.NewModelError("provider reported an error")
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, api.NewModelError("provider stream ended without a finish event")
}

// executeTool emits tool_call, runs the call, records it and emits
// tool_result. Only a failed write to the client is returned as an error.
func (e *Engine) executeTool(ctx context.Context, call tools.ToolCall, state *streamState, w transport.EventWriter) (api.ExecutionResult, error) {
	code := displayCode(call)
	inv := api.NewToolInvocation(call.ID, call.Name, code)

	if err := w.WriteEvent(ctx, state.toolCall(inv)); err != nil {
		return api.ExecutionResult{}, err
	}

	start := time.Now()
	res := e.tools.Execute(ctx, call)
	duration := time.Since(start)

	if err := inv.Complete(res.Result); err != nil {
		slog.Error("tool returned an invalid result", "tool", call.Name, "call_id", call.ID, "error", err)
		res.Result = api.NewFailure(tools.ErrorKindInternal, err.Error(), "")
		_ = inv.Complete(res.Result)
	}

	debug.Log("engine", "tool finished",
		"call_id", call.ID,
		"tool", call.Name,
		"success", res.Result.OK(),
		"duration", duration,
	)

	e.record(ctx, call, code, res.Result, duration)

	if err := w.WriteEvent(ctx, state.toolResult(inv)); err != nil {
		return res.Result, err
	}
	return res.Result, nil
}

// record adds the invocation to the audit trail. Failures are logged and
// otherwise ignored.
func (e *Engine) record(ctx context.Context, call tools.ToolCall, code string, result api.ExecutionResult, duration time.Duration) {
	if e.recorder == nil {
		return
	}
	rec := audit.NewRecord(ctx, transport.RequestIDFromContext(ctx), call.ID, code, result, duration)
	if err := e.recorder.Record(context.WithoutCancel(ctx), rec); err != nil {
		slog.Warn("recording execution failed", "call_id", call.ID, "error", err)
	}
}

// displayCode is the code shown for a call: the decoded argument, or the raw
// argument string when it cannot be decoded.
func displayCode(call tools.ToolCall) string {
	if code, err := tools.ParsePythonArgs(call.Arguments); err == nil {
		return code
	}
	return call.Arguments
}
