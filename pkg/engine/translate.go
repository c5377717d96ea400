package engine

import (
	"encoding/json"

	"github.com/samber/lo"

	"github.com/rhuss/codechat/pkg/api"
	"github.com/rhuss/codechat/pkg/provider"
	"github.com/rhuss/codechat/pkg/tools"
)

// translateHistory converts the client's history into provider messages,
// prefixed by the system prompt.
//
// Completed invocations on assistant messages become an assistant message
// with tool_calls followed by one tool message per result. Pending
// invocations never got a result and are dropped.
func translateHistory(systemPrompt string, history []api.Message) []provider.ProviderMessage {
	msgs := make([]provider.ProviderMessage, 0, len(history)+1)
	if systemPrompt != "" {
		msgs = append(msgs, provider.ProviderMessage{Role: provider.RoleSystem, Content: systemPrompt})
	}

	for _, m := range history {
		switch m.Role {
		case api.RoleUser:
			msgs = append(msgs, provider.ProviderMessage{Role: provider.RoleUser, Content: m.Content})

		case api.RoleAssistant:
			completed := lo.Filter(m.ToolInvocations, func(inv api.ToolInvocation, _ int) bool {
				return inv.State == api.InvocationCompleted && inv.Result != nil
			})
			if len(completed) == 0 {
				if m.Content != "" {
					msgs = append(msgs, provider.ProviderMessage{Role: provider.RoleAssistant, Content: m.Content})
				}
				continue
			}
			msgs = append(msgs, provider.ProviderMessage{
				Role:      provider.RoleAssistant,
				Content:   m.Content,
				ToolCalls: lo.Map(completed, func(inv api.ToolInvocation, _ int) provider.ProviderToolCall { return invocationToCall(inv) }),
			})
			for _, inv := range completed {
				msgs = append(msgs, provider.ProviderMessage{
					Role:       provider.RoleTool,
					Content:    tools.ModelContent(*inv.Result),
					ToolCallID: inv.ID,
					Name:       inv.Name,
				})
			}

		case api.RoleTool:
			msgs = append(msgs, provider.ProviderMessage{
				Role:       provider.RoleTool,
				Content:    m.Content,
				ToolCallID: m.ToolCallID,
			})
		}
	}
	return msgs
}

func invocationToCall(inv api.ToolInvocation) provider.ProviderToolCall {
	args, _ := json.Marshal(inv.Arguments)
	return provider.ProviderToolCall{
		ID:   inv.ID,
		Type: "function",
		Function: provider.ProviderFunctionCall{
			Name:      inv.Name,
			Arguments: string(args),
		},
	}
}

// buildAssistantToolCallMessage creates the assistant message that precedes
// the tool results of a turn. Chat Completions requires this ordering.
func buildAssistantToolCallMessage(text string, calls []tools.ToolCall) provider.ProviderMessage {
	toolCalls := make([]provider.ProviderToolCall, 0, len(calls))
	for _, tc := range calls {
		toolCalls = append(toolCalls, provider.ProviderToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: provider.ProviderFunctionCall{
				Name:      tc.Name,
				Arguments: sanitizeArguments(tc.Arguments),
			},
		})
	}
	return provider.ProviderMessage{
		Role:      provider.RoleAssistant,
		Content:   text,
		ToolCalls: toolCalls,
	}
}

// sanitizeArguments replaces malformed argument JSON with an empty object so
// the echoed call does not make the provider reject the next turn. The
// InvalidArguments result that follows tells the model what went wrong.
func sanitizeArguments(args string) string {
	if json.Valid([]byte(args)) {
		return args
	}
	return "{}"
}

// buildToolResultMessage carries a result back to the model, with image
// payloads elided.
func buildToolResultMessage(call tools.ToolCall, result api.ExecutionResult) provider.ProviderMessage {
	return provider.ProviderMessage{
		Role:       provider.RoleTool,
		Content:    tools.ModelContent(result),
		ToolCallID: call.ID,
		Name:       call.Name,
	}
}
