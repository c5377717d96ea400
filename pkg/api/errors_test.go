package api

import (
	"encoding/json"
	"testing"
)

func TestAPIErrorString(t *testing.T) {
	tests := []struct {
		name string
		err  *APIError
		want string
	}{
		{
			"with param",
			&APIError{Type: ErrorTypeInvalidRequest, Param: "messages", Message: "is required"},
			"invalid_request: is required (param: messages)",
		},
		{
			"without param",
			&APIError{Type: ErrorTypeServerError, Message: "internal failure"},
			"server_error: internal failure",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("APIError.Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *APIError
		wantType ErrorType
	}{
		{"invalid request", NewInvalidRequestError("messages", "is required"), ErrorTypeInvalidRequest},
		{"not found", NewNotFoundError("no such execution"), ErrorTypeNotFound},
		{"server error", NewServerError("internal failure"), ErrorTypeServerError},
		{"model error", NewModelError("model overloaded"), ErrorTypeModelError},
		{"too many requests", NewTooManyRequestsError("rate limit exceeded"), ErrorTypeTooManyRequests},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", tt.err.Type, tt.wantType)
			}
		})
	}
}

func TestErrorBodyJSON(t *testing.T) {
	data, err := json.Marshal(ErrorBody{Error: "Failed to process request"})
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	if string(data) != `{"error":"Failed to process request"}` {
		t.Errorf("got %s", data)
	}
}
