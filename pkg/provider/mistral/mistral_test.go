package mistral

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rhuss/codechat/pkg/provider"
	"github.com/rhuss/codechat/pkg/provider/openaicompat"
)

func TestNew_MissingAPIKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New(Config{APIKey: "k"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	if p.Name() != "mistral" {
		t.Errorf("Name = %q, want mistral", p.Name())
	}
	if p.cfg.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", p.cfg.BaseURL, DefaultBaseURL)
	}
	if p.cfg.Model != DefaultModel {
		t.Errorf("Model = %q, want %q", p.cfg.Model, DefaultModel)
	}
}

func TestStream_FillsDefaultModel(t *testing.T) {
	tests := []struct {
		name      string
		reqModel  string
		wantModel string
	}{
		{"empty uses default", "", DefaultModel},
		{"explicit kept", "mistral-large-latest", "mistral-large-latest"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got openaicompat.ChatCompletionRequest
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("Authorization") != "Bearer test-key" {
					t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
				}
				json.NewDecoder(r.Body).Decode(&got)
				fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"391\"},\"finish_reason\":\"stop\"}]}\n\ndata: [DONE]\n\n")
			}))
			defer srv.Close()

			p, err := New(Config{BaseURL: srv.URL, APIKey: "test-key"})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			ch, err := p.Stream(context.Background(), &provider.ProviderRequest{Model: tt.reqModel})
			if err != nil {
				t.Fatalf("Stream: %v", err)
			}
			var text string
			for ev := range ch {
				if ev.Type == provider.ProviderEventTextDelta {
					text += ev.Delta
				}
			}

			if got.Model != tt.wantModel {
				t.Errorf("model = %q, want %q", got.Model, tt.wantModel)
			}
			if text != "391" {
				t.Errorf("text = %q, want 391", text)
			}
		})
	}
}
