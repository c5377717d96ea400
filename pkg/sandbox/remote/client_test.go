package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rhuss/codechat/pkg/sandbox"
)

func TestClient_Execute(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantErr    bool
		wantStdout []string
		wantError  string
	}{
		{
			name: "successful execution",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(sandbox.Execution{
					Logs: sandbox.Logs{Stdout: []string{"391"}},
				})
			},
			wantStdout: []string{"391"},
		},
		{
			name: "python exception",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(sandbox.Execution{
					Error: &sandbox.ExecutionError{Name: "ZeroDivisionError", Value: "division by zero"},
				})
			},
			wantError: "ZeroDivisionError",
		},
		{
			name: "sandbox at capacity (429)",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"at capacity"}`))
			},
			wantErr: true,
		},
		{
			name: "sandbox server error (500)",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`{"error":"internal error"}`))
			},
			wantErr: true,
		},
		{
			name: "invalid JSON response",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(`{invalid json`))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			client := NewClient(srv.URL)
			exec, err := client.Execute(context.Background(), "print(17*23)")

			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if tt.wantError != "" {
				if exec.Error == nil || exec.Error.Name != tt.wantError {
					t.Errorf("error = %+v, want %s", exec.Error, tt.wantError)
				}
				return
			}
			if len(exec.Logs.Stdout) != len(tt.wantStdout) || exec.Logs.Stdout[0] != tt.wantStdout[0] {
				t.Errorf("stdout = %q, want %q", exec.Logs.Stdout, tt.wantStdout)
			}
		})
	}
}

func TestClient_CapacityIsSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Create(context.Background())
	if !errors.Is(err, sandbox.ErrAtCapacity) {
		t.Errorf("err = %v, want ErrAtCapacity", err)
	}
}

func TestClient_SessionLifecycle(t *testing.T) {
	var (
		gotKey     string
		gotTimeout int
		deleted    string
	)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sandboxes", func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		json.NewEncoder(w).Encode(sandbox.SessionResponse{ID: "sess-1"})
	})
	mux.HandleFunc("POST /sandboxes/{id}/execute", func(w http.ResponseWriter, r *http.Request) {
		var req sandbox.ExecuteRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotTimeout = req.TimeoutSeconds
		json.NewEncoder(w).Encode(sandbox.Execution{
			Logs:    sandbox.Logs{Stdout: []string{r.PathValue("id")}},
			Results: []json.RawMessage{json.RawMessage(`{"text":"42"}`)},
		})
	})
	mux.HandleFunc("DELETE /sandboxes/{id}", func(w http.ResponseWriter, r *http.Request) {
		deleted = r.PathValue("id")
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(srv.URL+"/", WithAPIKey("secret"), WithExecTimeout(10*time.Second))
	env, err := client.Create(context.Background())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if env.ID() != "sess-1" {
		t.Errorf("ID = %q, want sess-1", env.ID())
	}
	if gotKey != "secret" {
		t.Errorf("X-API-Key = %q, want secret", gotKey)
	}

	exec, err := env.Run(context.Background(), "print(42)")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if exec.Logs.Stdout[0] != "sess-1" {
		t.Errorf("run went to session %q, want sess-1", exec.Logs.Stdout[0])
	}
	if len(exec.Results) != 1 {
		t.Errorf("results = %d, want 1", len(exec.Results))
	}
	if gotTimeout != 10 {
		t.Errorf("timeout_seconds = %d, want 10", gotTimeout)
	}

	if err := env.Destroy(context.Background()); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if deleted != "sess-1" {
		t.Errorf("deleted = %q, want sess-1", deleted)
	}
}

func TestClient_DestroyReportsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			json.NewEncoder(w).Encode(sandbox.SessionResponse{ID: "sess-2"})
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	env, err := NewClient(srv.URL).Create(context.Background())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := env.Destroy(context.Background()); err == nil {
		t.Error("expected Destroy error, got nil")
	}
}

func TestClient_Dedicated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/execute" {
			t.Errorf("path = %s, want /execute", r.URL.Path)
		}
		json.NewEncoder(w).Encode(sandbox.Execution{Logs: sandbox.Logs{Stdout: []string{"ok"}}})
	}))
	defer srv.Close()

	released := 0
	env := NewClient(srv.URL).Dedicated("container-1", func(context.Context) error {
		released++
		return nil
	})

	if _, err := env.Run(context.Background(), "print('ok')"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := env.Destroy(context.Background()); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if released != 1 {
		t.Errorf("released = %d, want 1", released)
	}
}

func TestClient_Health(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if err := NewClient(srv.URL).Health(context.Background()); err != nil {
		t.Errorf("Health: %v", err)
	}
	if err := NewClient("http://localhost:1").Health(context.Background()); err == nil {
		t.Error("expected error for unreachable server, got nil")
	}
}

func TestClient_Unreachable(t *testing.T) {
	_, err := NewClient("http://localhost:1").Execute(context.Background(), "print(1)")
	if err == nil {
		t.Error("expected error for unreachable server, got nil")
	}
}
