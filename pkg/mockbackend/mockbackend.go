// Package mockbackend is a deterministic Chat Completions server used for
// local development and end-to-end tests.
//
// Every answer is streamed. The reply depends only on the last message:
//   - a tool message is answered with "The result is: " and the tool output;
//   - a user message starting with "run:" asks for the rest to be executed;
//   - a user message containing an integer expression such as "17*23" asks
//     for print(17*23) to be executed;
//   - anything else is echoed back.
package mockbackend

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/rhuss/codechat/pkg/api"
	"github.com/rhuss/codechat/pkg/provider/openaicompat"
)

// Model is the model name reported in every chunk.
const Model = "mock-model"

var expression = regexp.MustCompile(`(\d+)\s*([-+*/])\s*(\d+)`)

// Handler returns the backend's routes.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+openaicompat.ChatCompletionsPath, handleChatCompletions)
	mux.HandleFunc("GET /v1/models", handleModels)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

func handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req openaicompat.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if !req.Stream {
		writeError(w, http.StatusBadRequest, "only streaming requests are supported")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages must not be empty")
		return
	}

	last := req.Messages[len(req.Messages)-1]
	slog.Debug("mock completion", "role", last.Role, "messages", len(req.Messages), "tools", len(req.Tools))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	if last.Role == "tool" {
		streamText(w, "The result is: "+last.Content)
		return
	}
	if code, ok := codeFor(last.Content); ok && len(req.Tools) > 0 {
		streamToolCall(w, req.Tools[0].Function.Name, code)
		return
	}
	streamText(w, "You said: "+last.Content)
}

// codeFor returns the code a user message asks to run.
func codeFor(content string) (string, bool) {
	if rest, ok := strings.CutPrefix(strings.TrimSpace(content), "run:"); ok {
		return strings.TrimSpace(rest), true
	}
	if m := expression.FindStringSubmatch(content); m != nil {
		return fmt.Sprintf("print(%s %s %s)", m[1], m[2], m[3]), true
	}
	return "", false
}

func streamText(w http.ResponseWriter, text string) {
	words := strings.SplitAfter(text, " ")
	for i, word := range words {
		delta := openaicompat.ChatChunkDelta{Content: &word}
		if i == 0 {
			delta.Role = "assistant"
		}
		writeChunk(w, openaicompat.ChatChunkChoice{Delta: delta}, nil)
	}
	finish(w, "stop", len(words))
}

func streamToolCall(w http.ResponseWriter, name, code string) {
	args, _ := json.Marshal(api.ToolArguments{Code: code})
	writeChunk(w, openaicompat.ChatChunkChoice{Delta: openaicompat.ChatChunkDelta{
		Role: "assistant",
		ToolCalls: []openaicompat.ChatChunkToolCall{{
			ID:       api.NewToolCallID(),
			Type:     "function",
			Function: openaicompat.ChatChunkFunctionCall{Name: name},
		}},
	}}, nil)

	// Arguments arrive in two fragments, as real backends split them.
	half := len(args) / 2
	for _, fragment := range []string{string(args[:half]), string(args[half:])} {
		writeChunk(w, openaicompat.ChatChunkChoice{Delta: openaicompat.ChatChunkDelta{
			ToolCalls: []openaicompat.ChatChunkToolCall{{
				Function: openaicompat.ChatChunkFunctionCall{Arguments: fragment},
			}},
		}}, nil)
	}
	finish(w, "tool_calls", 8)
}

func finish(w http.ResponseWriter, reason string, outputTokens int) {
	writeChunk(w, openaicompat.ChatChunkChoice{FinishReason: &reason}, &openaicompat.ChatUsage{
		PromptTokens:     10,
		CompletionTokens: outputTokens,
		TotalTokens:      10 + outputTokens,
	})
	_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	flush(w)
}

func writeChunk(w http.ResponseWriter, choice openaicompat.ChatChunkChoice, usage *openaicompat.ChatUsage) {
	data, _ := json.Marshal(openaicompat.ChatCompletionChunk{
		ID:      "chatcmpl-mock",
		Object:  "chat.completion.chunk",
		Model:   Model,
		Choices: []openaicompat.ChatChunkChoice{choice},
		Usage:   usage,
	})
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
	flush(w)
}

func flush(w http.ResponseWriter) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func handleModels(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"data":   []map[string]string{{"id": Model, "object": "model", "owned_by": "codechat"}},
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"message": message, "type": "invalid_request_error"},
	})
}
