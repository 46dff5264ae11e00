package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/agentkernel/gateway/internal/admin"
	"github.com/agentkernel/gateway/internal/gateway"
	"github.com/agentkernel/gateway/internal/identity"
	"github.com/agentkernel/gateway/internal/provider"
	"github.com/agentkernel/gateway/internal/quota"
	"github.com/agentkernel/gateway/internal/sentiment"
)

type stubAdapter struct{ content string }

func (s stubAdapter) Call(context.Context, provider.Name, string, []provider.Message, string) (provider.NormalizedReply, error) {
	var r provider.NormalizedReply
	r.Choices = make([]struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	}, 1)
	r.Choices[0].Message.Content = s.content
	return r, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := identity.NewStore(filepath.Join(t.TempDir(), "identities.json"), zerolog.Nop())
	gw := gateway.New(store, quota.New(), sentiment.New(), stubAdapter{content: "hello back"}, zerolog.Nop())
	adminSurface := admin.New(store, zerolog.Nop())
	return New(gw, adminSurface, zerolog.Nop())
}

func TestHandleChatSuccess(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(map[string]string{"message": "hi there"})
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(body))
	req.Header.Set("X-Upstream-Api-Key", "sk-test")
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body=%s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["ok"] != true || resp["response"] != "hello back" {
		t.Fatalf("response = %+v", resp)
	}
}

func TestHandleChatMissingAPIKey(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(map[string]string{"message": "hi"})
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["error"] == "" {
		t.Fatalf("expected an error message")
	}
}

func TestHandleTierUpdateAndStats(t *testing.T) {
	s := newTestServer(t)

	chatBody, _ := json.Marshal(map[string]string{"message": "hi"})
	chatReq := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(chatBody))
	chatReq.Header.Set("X-Upstream-Api-Key", "sk-admin-test")
	chatRec := httptest.NewRecorder()
	s.ServeHTTP(chatRec, chatReq)
	if chatRec.Code != http.StatusOK {
		t.Fatalf("priming chat call failed: status=%d body=%s", chatRec.Code, chatRec.Body.String())
	}

	fp := identity.Fingerprint("sk-admin-test")
	tierBody, _ := json.Marshal(map[string]string{"fingerprint": fp, "tier": "pro"})
	tierReq := httptest.NewRequest(http.MethodPost, "/admin/identity/tier", bytes.NewReader(tierBody))
	tierRec := httptest.NewRecorder()
	s.ServeHTTP(tierRec, tierReq)
	if tierRec.Code != http.StatusOK {
		t.Fatalf("tier update status = %d, body=%s", tierRec.Code, tierRec.Body.String())
	}

	statsReq := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	statsRec := httptest.NewRecorder()
	s.ServeHTTP(statsRec, statsReq)
	if statsRec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", statsRec.Code)
	}
	var stats map[string]any
	if err := json.Unmarshal(statsRec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats["totalIdentities"].(float64) != 1 {
		t.Fatalf("totalIdentities = %v, want 1", stats["totalIdentities"])
	}
	breakdown, ok := stats["tierBreakdown"].(map[string]any)
	if !ok {
		t.Fatalf("tierBreakdown missing or wrong shape: %+v", stats)
	}
	if breakdown["pro"].(float64) != 1 {
		t.Fatalf("tierBreakdown.pro = %v, want 1", breakdown["pro"])
	}
}
