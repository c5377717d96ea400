package api

import (
	"fmt"
)

// ValidationConfig holds configurable limits for chat request validation.
type ValidationConfig struct {
	MaxMessages    int
	MaxContentSize int
}

// DefaultValidationConfig returns a ValidationConfig with sensible defaults.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MaxMessages:    500,
		MaxContentSize: 1024 * 1024, // 1MB per message
	}
}

// ValidateChatRequest checks a ChatRequest. It returns an *APIError describing
// the first problem found, or nil.
func ValidateChatRequest(req *ChatRequest, cfg ValidationConfig) *APIError {
	if len(req.Messages) == 0 {
		return NewInvalidRequestError("messages", "messages must contain at least one message")
	}

	if cfg.MaxMessages > 0 && len(req.Messages) > cfg.MaxMessages {
		return NewInvalidRequestError("messages",
			fmt.Sprintf("messages exceeds maximum of %d", cfg.MaxMessages))
	}

	for i, msg := range req.Messages {
		param := fmt.Sprintf("messages[%d]", i)
		switch msg.Role {
		case RoleUser, RoleAssistant, RoleTool:
		default:
			return NewInvalidRequestError(param+".role",
				fmt.Sprintf("unsupported role %q", msg.Role))
		}

		if cfg.MaxContentSize > 0 && len(msg.Content) > cfg.MaxContentSize {
			return NewInvalidRequestError(param+".content",
				fmt.Sprintf("content exceeds maximum size of %d bytes", cfg.MaxContentSize))
		}

		if msg.Role == RoleTool && msg.ToolCallID == "" {
			return NewInvalidRequestError(param+".toolCallId", "tool messages require toolCallId")
		}

		for j, inv := range msg.ToolInvocations {
			if msg.Role != RoleAssistant {
				return NewInvalidRequestError(param+".toolInvocations",
					"only assistant messages carry tool invocations")
			}
			if inv.ID == "" {
				return NewInvalidRequestError(fmt.Sprintf("%s.toolInvocations[%d].id", param, j), "id is required")
			}
			if inv.State == InvocationCompleted && inv.Result == nil {
				return NewInvalidRequestError(fmt.Sprintf("%s.toolInvocations[%d].result", param, j),
					"completed invocations require a result")
			}
		}
	}

	return nil
}
