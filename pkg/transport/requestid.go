package transport

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/rhuss/codechat/pkg/api"
)

// RequestID assigns a request ID unless the HTTP adapter already put one
// (from X-Request-ID) into the context.
func RequestID() Middleware {
	return func(next ChatHandler) ChatHandler {
		return ChatHandlerFunc(func(ctx context.Context, req *api.ChatRequest, w EventWriter) error {
			if RequestIDFromContext(ctx) == "" {
				ctx = ContextWithRequestID(ctx, GenerateRequestID())
			}
			return next.Chat(ctx, req, w)
		})
	}
}

// GenerateRequestID returns 16 random bytes as hex.
func GenerateRequestID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
