package openaicompat

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/rhuss/codechat/pkg/api"
	"github.com/rhuss/codechat/pkg/debug"
	"github.com/rhuss/codechat/pkg/provider"
)

// ToolCallBuffer tracks incremental tool call argument assembly across
// multiple SSE chunks for a single tool call index.
type ToolCallBuffer struct {
	ID   string
	Name string
	Args strings.Builder
}

// StreamState carries what a stream has accumulated across chunks.
type StreamState struct {
	ToolCalls    map[int]*ToolCallBuffer
	FinishReason string
	Usage        *api.Usage
}

// NewStreamState returns an empty StreamState.
func NewStreamState() *StreamState {
	return &StreamState{ToolCalls: make(map[int]*ToolCallBuffer)}
}

// ParseSSEStream reads Chat Completions SSE chunks from the given reader,
// translates each chunk to ProviderEvent values, and sends them on ch.
// The channel is NOT closed by this function; the caller is responsible
// for closing it.
//
// SSE format expected:
//
//	data: {"id":"...","choices":[...]}\n
//	\n
//	data: [DONE]\n
//	\n
//
// Exactly one terminal event (Done or Error) is sent unless ctx is
// cancelled first. Malformed chunks are logged and skipped.
func ParseSSEStream(ctx context.Context, body io.Reader, ch chan<- provider.ProviderEvent) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	st := NewStreamState()
	sawDone := false

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

		if payload == "[DONE]" {
			sawDone = true
			break
		}

		var chunk ChatCompletionChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			slog.Warn("skipping malformed SSE chunk",
				"error", err.Error(),
				"data", debug.Truncate(payload, 200),
			)
			continue
		}

		if !TranslateChunk(ctx, &chunk, st, ch) {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return
		}
		send(ctx, ch, provider.ProviderEvent{
			Type: provider.ProviderEventError,
			Err:  api.NewServerError("SSE stream read error: " + err.Error()),
		})
		return
	}

	if !sawDone && st.FinishReason == "" {
		send(ctx, ch, provider.ProviderEvent{
			Type: provider.ProviderEventError,
			Err:  api.NewServerError("SSE stream ended before completion"),
		})
		return
	}

	if !FlushToolCalls(ctx, st, ch) {
		return
	}
	reason := st.FinishReason
	if reason == "" {
		reason = "stop"
	}
	send(ctx, ch, provider.ProviderEvent{
		Type:         provider.ProviderEventDone,
		FinishReason: reason,
		Usage:        st.Usage,
	})
}

// TranslateChunk converts a single ChatCompletionChunk into zero or more
// ProviderEvent values sent on the channel. Buffered tool calls and the
// finish reason are recorded in st. It returns false when ctx was cancelled
// while sending.
func TranslateChunk(ctx context.Context, chunk *ChatCompletionChunk, st *StreamState, ch chan<- provider.ProviderEvent) bool {
	if chunk.Usage != nil {
		st.Usage = &api.Usage{
			InputTokens:  chunk.Usage.PromptTokens,
			OutputTokens: chunk.Usage.CompletionTokens,
			TotalTokens:  chunk.Usage.TotalTokens,
		}
	}

	if len(chunk.Choices) == 0 {
		return true
	}

	choice := chunk.Choices[0]
	delta := choice.Delta

	if delta.Content != nil && *delta.Content != "" {
		if !send(ctx, ch, provider.ProviderEvent{
			Type:  provider.ProviderEventTextDelta,
			Delta: *delta.Content,
		}) {
			return false
		}
	}

	for _, tc := range delta.ToolCalls {
		buf, exists := st.ToolCalls[tc.Index]
		ev := provider.ProviderEvent{
			Type:          provider.ProviderEventToolCallDelta,
			ToolCallIndex: tc.Index,
			Delta:         tc.Function.Arguments,
		}
		if !exists {
			// First chunk for this index carries the id and function name.
			buf = &ToolCallBuffer{ID: tc.ID, Name: tc.Function.Name}
			st.ToolCalls[tc.Index] = buf
			ev.FunctionName = tc.Function.Name
		} else {
			if buf.ID == "" {
				buf.ID = tc.ID
			}
			if buf.Name == "" {
				buf.Name = tc.Function.Name
			}
		}
		ev.ToolCallID = buf.ID
		buf.Args.WriteString(tc.Function.Arguments)
		if !send(ctx, ch, ev) {
			return false
		}
	}

	if choice.FinishReason != nil && *choice.FinishReason != "" {
		st.FinishReason = *choice.FinishReason
		debug.Log("providers", "stream finished", "finish_reason", st.FinishReason, "tool_calls", len(st.ToolCalls))
	}
	return true
}

// FlushToolCalls emits ProviderEventToolCallDone for each buffered tool call
// in index order and clears the buffer.
func FlushToolCalls(ctx context.Context, st *StreamState, ch chan<- provider.ProviderEvent) bool {
	indices := lo.Keys(st.ToolCalls)
	slices.Sort(indices)
	for _, idx := range indices {
		buf := st.ToolCalls[idx]
		if !send(ctx, ch, provider.ProviderEvent{
			Type:          provider.ProviderEventToolCallDone,
			ToolCallIndex: idx,
			ToolCallID:    buf.ID,
			FunctionName:  buf.Name,
			Delta:         buf.Args.String(),
		}) {
			return false
		}
	}
	clear(st.ToolCalls)
	return true
}

func send(ctx context.Context, ch chan<- provider.ProviderEvent, ev provider.ProviderEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
