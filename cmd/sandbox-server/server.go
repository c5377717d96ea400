package main

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rhuss/codechat/pkg/debug"
	"github.com/rhuss/codechat/pkg/sandbox"
)

type serverConfig struct {
	APIKey         string
	MaxConcurrent  int
	MaxSessions    int
	DefaultTimeout time.Duration
}

type server struct {
	runner    runner
	cfg       serverConfig
	load      atomic.Int32
	startTime time.Time

	mu       sync.Mutex
	sessions map[string]string // id -> working directory
}

func newServer(r runner, cfg serverConfig) *server {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	return &server{
		runner:    r,
		cfg:       cfg,
		startTime: time.Now(),
		sessions:  make(map[string]string),
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("POST /execute", s.requireKey(s.handleExecute))
	mux.Handle("POST /sandboxes", s.requireKey(s.handleCreateSession))
	mux.Handle("POST /sandboxes/{id}/execute", s.requireKey(s.handleSessionExecute))
	mux.Handle("DELETE /sandboxes/{id}", s.requireKey(s.handleDeleteSession))
	return mux
}

func (s *server) requireKey(next http.HandlerFunc) http.Handler {
	if s.cfg.APIKey == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.APIKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}
		next(w, r)
	})
}

func (s *server) handleExecute(w http.ResponseWriter, r *http.Request) {
	dir, err := os.MkdirTemp("", "sandbox-exec-*")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create temp dir: "+err.Error())
		return
	}
	defer os.RemoveAll(dir)

	s.execute(w, r, dir)
}

func (s *server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.MaxSessions > 0 && len(s.sessions) >= s.cfg.MaxSessions {
		writeError(w, http.StatusTooManyRequests, fmt.Sprintf("at capacity (%d open sessions)", len(s.sessions)))
		return
	}

	dir, err := os.MkdirTemp("", "sandbox-session-*")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create session dir: "+err.Error())
		return
	}
	id := uuid.NewString()
	s.sessions[id] = dir

	slog.Info("session created", "session", id)
	writeJSON(w, http.StatusCreated, sandbox.SessionResponse{ID: id})
}

func (s *server) handleSessionExecute(w http.ResponseWriter, r *http.Request) {
	dir, ok := s.session(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	s.execute(w, r, dir)
}

func (s *server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s.mu.Lock()
	dir, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		slog.Warn("removing session dir", "session", id, "error", err)
	}
	slog.Info("session deleted", "session", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) session(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dir, ok := s.sessions[id]
	return dir, ok
}

// closeSessions removes every remaining session directory.
func (s *server) closeSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, dir := range s.sessions {
		_ = os.RemoveAll(dir)
		delete(s.sessions, id)
	}
}

func (s *server) execute(w http.ResponseWriter, r *http.Request, dir string) {
	current := s.load.Add(1)
	defer s.load.Add(-1)

	if int(current) > s.cfg.MaxConcurrent {
		writeError(w, http.StatusTooManyRequests,
			fmt.Sprintf("at capacity (%d/%d concurrent executions)", current, s.cfg.MaxConcurrent))
		return
	}

	var req sandbox.ExecuteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 10<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	timeout := s.cfg.DefaultTimeout
	if req.TimeoutSeconds > 0 {
		timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}

	debug.Log("sandbox", "execute request", "code", debug.Truncate(req.Code, 120), "timeout", timeout)

	start := time.Now()
	result, err := s.runner.Run(r.Context(), dir, req.Code, timeout)
	if err != nil {
		slog.Error("execution failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	outcome := "success"
	if result.Error != nil {
		outcome = result.Error.Name
	}
	slog.Info("execute complete",
		"outcome", outcome,
		"duration_ms", time.Since(start).Milliseconds(),
		"stdout_lines", len(result.Logs.Stdout),
		"results", len(result.Results),
	)

	writeJSON(w, http.StatusOK, result)
}

type healthResponse struct {
	Status        string `json:"status"`
	Capacity      int    `json:"capacity"`
	CurrentLoad   int    `json:"current_load"`
	Sessions      int    `json:"sessions"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	sessions := len(s.sessions)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "healthy",
		Capacity:      s.cfg.MaxConcurrent,
		CurrentLoad:   int(s.load.Load()),
		Sessions:      sessions,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, sandbox.ErrorResponse{Error: message})
}
