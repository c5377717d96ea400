package transport

import (
	"context"
	"time"

	"github.com/rhuss/codechat/pkg/api"
)

// DefaultRequestTimeout is the wall-clock budget of one chat request.
const DefaultRequestTimeout = 60 * time.Second

// Timeout bounds the handler with a deadline. Expiry cancels the provider
// stream and any sandbox call in flight. A non-positive d disables it.
func Timeout(d time.Duration) Middleware {
	return func(next ChatHandler) ChatHandler {
		if d <= 0 {
			return next
		}
		return ChatHandlerFunc(func(ctx context.Context, req *api.ChatRequest, w EventWriter) error {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next.Chat(ctx, req, w)
		})
	}
}
