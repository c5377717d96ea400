package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/rhuss/codechat/pkg/api"
)

// Logging emits one structured entry per chat turn. Status codes are logged
// by the HTTP adapter, which sees them.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next ChatHandler) ChatHandler {
		return ChatHandlerFunc(func(ctx context.Context, req *api.ChatRequest, w EventWriter) error {
			start := time.Now()

			err := next.Chat(ctx, req, w)

			attrs := []slog.Attr{
				slog.String("request_id", RequestIDFromContext(ctx)),
				slog.Int("messages", len(req.Messages)),
				slog.Bool("streamed", w.Started()),
				slog.Duration("duration", time.Since(start)),
			}
			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.LogAttrs(ctx, slog.LevelError, "chat failed", attrs...)
			} else {
				logger.LogAttrs(ctx, slog.LevelInfo, "chat completed", attrs...)
			}
			return err
		})
	}
}
