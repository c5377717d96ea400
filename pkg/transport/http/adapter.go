package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhuss/codechat/pkg/api"
	"github.com/rhuss/codechat/pkg/audit"
	"github.com/rhuss/codechat/pkg/debug"
	"github.com/rhuss/codechat/pkg/observability"
	"github.com/rhuss/codechat/pkg/transport"
)

// Adapter serves the chat API over HTTP.
type Adapter struct {
	handler  transport.ChatHandler
	inflight *transport.InFlightRegistry
	mux      *http.ServeMux
	config   Config
}

// Config holds the adapter's limits and optional components.
type Config struct {
	MaxBodySize int64
	Validation  api.ValidationConfig

	// Recorder enables GET /api/executions and is health-checked by /healthz.
	Recorder audit.Recorder

	// MCPHandler is mounted at /mcp when set.
	MCPHandler http.Handler

	// Metrics enables GET /metrics and request metrics.
	Metrics bool

	// HTTPMiddleware wraps every route, outermost first. Authentication
	// and rate limiting are installed here.
	HTTPMiddleware []func(http.Handler) http.Handler

	Logger *slog.Logger
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		MaxBodySize: 10 << 20, // 10 MB
		Validation:  api.DefaultValidationConfig(),
		Metrics:     true,
	}
}

// ExecutionList is the body of GET /api/executions.
type ExecutionList struct {
	Object string         `json:"object"`
	Data   []audit.Record `json:"data"`
}

// NewAdapter creates an HTTP adapter. Middleware is applied to handler in
// the given order.
func NewAdapter(handler transport.ChatHandler, cfg Config, middlewares ...transport.Middleware) *Adapter {
	if len(middlewares) > 0 {
		handler = transport.Chain(middlewares...)(handler)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	a := &Adapter{
		handler:  handler,
		inflight: transport.NewInFlightRegistry(),
		mux:      http.NewServeMux(),
		config:   cfg,
	}

	a.mux.HandleFunc("POST /api/chat", a.handleChat)
	a.mux.HandleFunc("GET /healthz", a.handleHealth)
	if cfg.Recorder != nil {
		a.mux.HandleFunc("GET /api/executions", a.handleListExecutions)
	}
	if cfg.Metrics {
		a.mux.Handle("GET /metrics", promhttp.Handler())
	}
	if cfg.MCPHandler != nil {
		a.mux.Handle("/mcp", cfg.MCPHandler)
	}

	return a
}

// Handler returns the http.Handler for this adapter, wrapped in request ID
// propagation, access logging, the configured HTTP middleware and, when
// enabled, request metrics.
func (a *Adapter) Handler() http.Handler {
	var h http.Handler = a.mux
	for i := len(a.config.HTTPMiddleware) - 1; i >= 0; i-- {
		h = a.config.HTTPMiddleware[i](h)
	}
	h = accessLog(a.config.Logger, h)
	h = httpRequestIDMiddleware(h)
	if a.config.Metrics {
		h = observability.MetricsMiddleware(h)
	}
	return h
}

// InFlight returns the registry of running chat streams.
func (a *Adapter) InFlight() *transport.InFlightRegistry {
	return a.inflight
}

// httpRequestIDMiddleware takes X-Request-ID from the request or generates
// one, stores it in the context and echoes it in the response.
func httpRequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = transport.GenerateRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(transport.ContextWithRequestID(r.Context(), id)))
	})
}

// accessLog logs method, path, status, duration and request ID.
func accessLog(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sr, r)

		level := slog.LevelInfo
		if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
			level = slog.LevelDebug
		}
		logger.LogAttrs(r.Context(), level, "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", sr.status),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", transport.RequestIDFromContext(r.Context())),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusRecorder) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

func (w *statusRecorder) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap returns the underlying ResponseWriter for http.NewResponseController.
func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// handleChat handles POST /api/chat.
func (a *Adapter) handleChat(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != "application/json" {
			transport.WriteErrorBody(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)

	var req api.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorBody(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize))
			return
		}
		transport.WriteErrorBody(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	if apiErr := api.ValidateChatRequest(&req, a.config.Validation); apiErr != nil {
		transport.WriteErrorBody(w, http.StatusBadRequest, apiErr.Message)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	id := transport.RequestIDFromContext(ctx)
	a.inflight.Register(id, cancel)
	defer a.inflight.Remove(id)

	debug.Log("http", "chat request", "request_id", id, "messages", len(req.Messages))

	rw := newSSEWriter(w)
	if err := a.handler.Chat(ctx, &req, rw); err != nil {
		a.writeHandlerError(ctx, w, rw, err)
	}
}

// writeHandlerError reports a handler failure. Before any event was written
// the client gets 500 with the generic chat failure body; afterwards an
// error event ends the stream. Either way the provider's own message stays
// in the server log.
func (a *Adapter) writeHandlerError(ctx context.Context, w http.ResponseWriter, rw *sseWriter, err error) {
	apiErr := transport.AsAPIError(err)
	a.config.Logger.Error("chat request failed",
		"request_id", transport.RequestIDFromContext(ctx),
		"tenant", audit.GetTenant(ctx),
		"streaming", rw.Started(),
		"type", apiErr.Type,
		"error", apiErr.Message,
	)

	if rw.Started() {
		if rw.completed() {
			return
		}
		event := api.StreamEvent{
			Type:           api.EventError,
			SequenceNumber: rw.nextSequence(),
			Error:          &api.APIError{Type: apiErr.Type, Message: transport.ChatFailureMessage},
		}
		// ctx may already be cancelled; the write itself does not block on it.
		if werr := rw.WriteEvent(context.WithoutCancel(ctx), event); werr != nil {
			debug.Log("http", "error event not delivered", "error", werr)
		}
		return
	}

	transport.WriteErrorBody(w, http.StatusInternalServerError, transport.ChatFailureMessage)
}

// handleListExecutions handles GET /api/executions?limit=N.
func (a *Adapter) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("limit", "limit must be a positive integer"),
				http.StatusBadRequest,
			)
			return
		}
		limit = n
	}

	records, err := a.config.Recorder.List(r.Context(), limit)
	if err != nil {
		transport.WriteAPIError(w, transport.AsAPIError(err))
		return
	}
	if records == nil {
		records = []audit.Record{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(ExecutionList{Object: "list", Data: records})
}

// handleHealth handles GET /healthz.
func (a *Adapter) handleHealth(w http.ResponseWriter, r *http.Request) {
	if a.config.Recorder != nil {
		if err := a.config.Recorder.HealthCheck(r.Context()); err != nil {
			http.Error(w, "unhealthy: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}
