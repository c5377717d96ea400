// Command sandbox-server executes Python for codechat. It serves a stateless
// execute endpoint and session endpoints whose working directory survives
// between runs of the same session.
//
// Configuration:
//
//	SANDBOX_PORT            - Listen port (default: 8080)
//	SANDBOX_MAX_CONCURRENT  - Max concurrent executions (default: 3)
//	SANDBOX_MAX_SESSIONS    - Max open sessions (default: 32)
//	SANDBOX_API_KEY         - Required X-API-Key value (default: none)
//	SANDBOX_PYTHON          - Python interpreter (default: python3)
//	SANDBOX_LOG_FORMAT      - text or json (default: text)
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rhuss/codechat/pkg/debug"
)

func main() {
	debug.Init(debug.Options{Level: "info", Format: envOr("SANDBOX_LOG_FORMAT", "text")})

	port := envOr("SANDBOX_PORT", "8080")
	python := envOr("SANDBOX_PYTHON", "python3")

	if _, err := exec.LookPath(python); err != nil {
		slog.Error("python interpreter not found", "python", python, "error", err)
		os.Exit(1)
	}

	runner, err := newPythonRunner(python)
	if err != nil {
		slog.Error("preparing python runtime", "error", err)
		os.Exit(1)
	}
	defer runner.Close()

	srv := newServer(runner, serverConfig{
		APIKey:         os.Getenv("SANDBOX_API_KEY"),
		MaxConcurrent:  envOrInt("SANDBOX_MAX_CONCURRENT", 3),
		MaxSessions:    envOrInt("SANDBOX_MAX_SESSIONS", 32),
		DefaultTimeout: 30 * time.Second,
	})
	defer srv.closeSessions()

	httpSrv := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("sandbox server starting", "port", port, "python", python, "max_concurrent", srv.cfg.MaxConcurrent)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrInt(key string, defaultVal int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return n
}
