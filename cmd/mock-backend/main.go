// Command mock-backend runs a deterministic Chat Completions server so the
// codechat server can be exercised without a real model. Point the
// openai-compat provider at it:
//
//	CODECHAT_PROVIDER=openai-compat CODECHAT_BASE_URL=http://localhost:9090
//
// Configuration:
//
//	MOCK_PORT - Listen port (default: 9090)
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rhuss/codechat/pkg/debug"
	"github.com/rhuss/codechat/pkg/mockbackend"
)

func main() {
	debug.Init(debug.Options{Level: "info", Format: "text"})

	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9090"
	}

	srv := &http.Server{Addr: ":" + port, Handler: mockbackend.Handler()}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock backend starting", "port", port, "model", mockbackend.Model)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mock backend failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock backend shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
