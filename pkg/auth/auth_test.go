package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rhuss/codechat/pkg/api"
	"github.com/rhuss/codechat/pkg/audit"
	"github.com/rhuss/codechat/pkg/audit/memory"
	"github.com/rhuss/codechat/pkg/auth"
	"github.com/rhuss/codechat/pkg/auth/apikey"
	"github.com/rhuss/codechat/pkg/auth/noop"
	"github.com/rhuss/codechat/pkg/transport"
	transporthttp "github.com/rhuss/codechat/pkg/transport/http"
)

const (
	aliceKey = "sk-alice"
	bobKey   = "sk-bob"
)

// keyChain admits alice (tenant org-a) and bob (no tenant) by API key.
func keyChain() *auth.AuthChain {
	return &auth.AuthChain{Authenticators: []auth.Authenticator{
		apikey.New([]apikey.RawKeyEntry{
			{Key: aliceKey, Identity: auth.Identity{Subject: "alice", Tenant: "org-a"}},
			{Key: bobKey, Identity: auth.Identity{Subject: "bob"}},
		}),
	}}
}

func newServer(t *testing.T, chain *auth.AuthChain, recorder audit.Recorder, h transport.ChatHandler) *httptest.Server {
	t.Helper()
	if h == nil {
		h = transport.ChatHandlerFunc(func(ctx context.Context, req *api.ChatRequest, w transport.EventWriter) error {
			return w.WriteEvent(ctx, api.StreamEvent{Type: api.EventDone, FinishReason: "stop"})
		})
	}
	cfg := transporthttp.DefaultConfig()
	cfg.Recorder = recorder
	cfg.HTTPMiddleware = []func(http.Handler) http.Handler{
		auth.Middleware(chain, nil, auth.DefaultBypassEndpoints),
	}
	srv := httptest.NewServer(transporthttp.NewAdapter(h, cfg).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, key, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set(apikey.HeaderName, key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func seed(t *testing.T, recorder *memory.Recorder, tenant, callID string) {
	t.Helper()
	ctx := context.Background()
	if tenant != "" {
		ctx = audit.SetTenant(ctx, tenant)
	}
	rec := audit.NewRecord(ctx, "req-"+callID, callID, "print(1)", api.NewSuccess("1\n", "", nil), time.Millisecond)
	if err := recorder.Record(ctx, rec); err != nil {
		t.Fatal(err)
	}
}

func TestAnonymousCaller(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/api/chat", nil)

	tests := []struct {
		name        string
		chain       *auth.AuthChain
		wantAdmit   bool
		wantSubject string
	}{
		{"auth type none", &auth.AuthChain{Authenticators: []auth.Authenticator{&noop.Authenticator{}}}, true, auth.AnonymousSubject},
		{"open chain without credentials", &auth.AuthChain{AllowAnonymous: true}, true, auth.AnonymousSubject},
		{"key chain without credentials", keyChain(), false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.chain.Authenticate(context.Background(), r)
			if !tt.wantAdmit {
				if result.Decision != auth.No || result.Err != auth.ErrUnauthenticated {
					t.Fatalf("result = %+v, want No with ErrUnauthenticated", result)
				}
				return
			}
			if result.Decision != auth.Yes {
				t.Fatalf("Decision = %d, want Yes", result.Decision)
			}
			if result.Identity.Subject != tt.wantSubject || !result.Identity.IsAnonymous() {
				t.Errorf("identity = %+v, want anonymous", result.Identity)
			}
			if result.Identity.TenantID() != "" {
				t.Errorf("anonymous caller has tenant %q", result.Identity.TenantID())
			}
		})
	}
}

func TestWrongKeyIsNotAnonymous(t *testing.T) {
	chain := keyChain()
	chain.AllowAnonymous = true

	r := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	r.Header.Set(apikey.HeaderName, "sk-wrong")

	if result := chain.Authenticate(context.Background(), r); result.Decision != auth.No {
		t.Errorf("Decision = %d, want No for an unknown key", result.Decision)
	}
}

func TestIdentityAccessorsNilSafe(t *testing.T) {
	var id *auth.Identity
	if id.TenantID() != "" {
		t.Error("nil identity has a tenant")
	}
	if !id.IsAnonymous() {
		t.Error("nil identity is not anonymous")
	}
	if auth.IdentityFromContext(context.Background()) != nil {
		t.Error("IdentityFromContext on a bare context is not nil")
	}
	if (&auth.Identity{Subject: "alice", Tenant: "org-a"}).IsAnonymous() {
		t.Error("alice is anonymous")
	}
}

func TestExecutionsScopedToTenant(t *testing.T) {
	recorder := memory.New(10)
	seed(t, recorder, "org-a", "call_a1")
	seed(t, recorder, "org-b", "call_b1")
	seed(t, recorder, "org-a", "call_a2")
	seed(t, recorder, "", "call_none")

	srv := newServer(t, keyChain(), recorder, nil)

	tests := []struct {
		name       string
		key        string
		wantStatus int
		wantCalls  []string
	}{
		{"tenant caller sees own tenant", aliceKey, http.StatusOK, []string{"call_a2", "call_a1"}},
		{"caller without tenant sees all", bobKey, http.StatusOK, []string{"call_none", "call_a2", "call_b1", "call_a1"}},
		{"missing key", "", http.StatusUnauthorized, nil},
		{"unknown key", "sk-wrong", http.StatusUnauthorized, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, http.MethodGet, srv.URL+"/api/executions", tt.key, "")
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			var list transporthttp.ExecutionList
			if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
				t.Fatalf("decoding list: %v", err)
			}
			got := make([]string, 0, len(list.Data))
			for _, rec := range list.Data {
				got = append(got, rec.CallID)
			}
			if strings.Join(got, ",") != strings.Join(tt.wantCalls, ",") {
				t.Errorf("calls = %v, want %v", got, tt.wantCalls)
			}
		})
	}
}

func TestChatRunsUnderCallerTenant(t *testing.T) {
	recorder := memory.New(10)
	var gotSubject string
	h := transport.ChatHandlerFunc(func(ctx context.Context, req *api.ChatRequest, w transport.EventWriter) error {
		gotSubject = auth.IdentityFromContext(ctx).Subject
		rec := audit.NewRecord(ctx, "req-1", "call_1", "print(17*23)", api.NewSuccess("391\n", "", nil), time.Millisecond)
		if err := recorder.Record(ctx, rec); err != nil {
			return err
		}
		return w.WriteEvent(ctx, api.StreamEvent{Type: api.EventDone, FinishReason: "stop"})
	})
	srv := newServer(t, keyChain(), recorder, h)

	resp := do(t, http.MethodPost, srv.URL+"/api/chat", aliceKey, `{"messages":[{"role":"user","content":"What is 17*23?"}]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if gotSubject != "alice" {
		t.Errorf("handler saw subject %q, want alice", gotSubject)
	}
	recs, err := recorder.List(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Tenant != "org-a" {
		t.Errorf("records = %+v, want one under org-a", recs)
	}
}

func TestBypassEndpointsNeedNoKey(t *testing.T) {
	srv := newServer(t, keyChain(), memory.New(10), nil)

	for _, path := range auth.DefaultBypassEndpoints {
		t.Run(path, func(t *testing.T) {
			if resp := do(t, http.MethodGet, srv.URL+path, "", ""); resp.StatusCode != http.StatusOK {
				t.Errorf("GET %s without key: status = %d, want 200", path, resp.StatusCode)
			}
		})
	}

	resp := do(t, http.MethodPost, srv.URL+"/api/chat", "", `{"messages":[{"role":"user","content":"hi"}]}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("POST /api/chat without key: status = %d, want 401", resp.StatusCode)
	}
}
