package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.mau.fi/util/exhttp"

	"github.com/agentkernel/gateway/internal/admin"
	"github.com/agentkernel/gateway/internal/gateway"
	"github.com/agentkernel/gateway/internal/identity"
	"github.com/agentkernel/gateway/internal/provider"
	"github.com/agentkernel/gateway/internal/quota"
	"github.com/agentkernel/gateway/internal/tier"
)

// upgradeURL is surfaced in a rate-limited chat reply so clients know
// where to take a tier-upgrade action (spec.md §6).
const upgradeURL = "https://agentkernel.example/upgrade"

type chatRequestBody struct {
	Message string `json:"message"`
	Model   string `json:"model"`
}

type identityPayload struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Tier       tier.Tier `json:"tier"`
	CallsToday int       `json:"callsToday"`
	CallsTotal int       `json:"callsTotal"`
	MemorySize int       `json:"memorySize"`
	Sentiment  float64   `json:"sentiment"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var body chatRequestBody
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	key := r.Header.Get("X-Upstream-Api-Key")
	providerName := provider.Name(r.Header.Get("X-Provider"))
	if providerName == "" {
		providerName = provider.OpenAI
	}

	resp, err := s.gw.Chat(r.Context(), gateway.ChatRequest{
		Provider: providerName,
		APIKey:   key,
		Message:  body.Message,
		Model:    body.Model,
	})
	if err != nil {
		writeChatError(w, err)
		return
	}

	exhttp.WriteJSONResponse(w, http.StatusOK, map[string]any{
		"ok":       true,
		"response": resp.Reply,
		"identity": identityPayload{
			ID:         resp.Identity.ID,
			Name:       resp.Identity.DisplayName,
			Tier:       resp.Identity.Tier,
			CallsToday: resp.Identity.CallsToday,
			CallsTotal: resp.Identity.CallsTotal,
			MemorySize: resp.Identity.MemorySize,
			Sentiment:  resp.Identity.Sentiment,
		},
	})
}

func writeChatError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, gateway.ErrMissingAPIKey):
		writeError(w, http.StatusUnauthorized, "Missing API key")
	case errors.Is(err, gateway.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "Missing message")
	default:
		var rle *gateway.RateLimitError
		if errors.As(err, &rle) {
			exhttp.WriteJSONResponse(w, http.StatusTooManyRequests, map[string]any{
				"error":   rateLimitMessage(rle.Decision.Reason),
				"resetIn": rle.Decision.ResetHint,
				"tier":    rle.Decision.Tier,
				"upgrade": upgradeURL,
			})
			return
		}
		var upErr *provider.UpstreamError
		if errors.As(err, &upErr) {
			writeError(w, http.StatusBadGateway, upErr.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func rateLimitMessage(reason quota.RejectReason) string {
	if reason == quota.ReasonDailyExhausted {
		return "Daily limit reached"
	}
	return "Rate limit reached"
}

func (s *Server) handleIdentityLookup(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("X-Upstream-Api-Key")
	if key == "" {
		writeError(w, http.StatusUnauthorized, "Missing API key")
		return
	}
	fp := identity.Fingerprint(key)
	view, err := s.admin.Lookup(fp)
	if err != nil {
		if errors.Is(err, admin.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Identity not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	exhttp.WriteJSONResponse(w, http.StatusOK, map[string]any{
		"id":         view.ID,
		"name":       view.DisplayName,
		"tier":       view.Tier,
		"createdAt":  view.CreatedAt,
		"callsToday": view.CallsToday,
		"callsTotal": view.CallsTotal,
		"memorySize": view.MemorySize,
		"traits":     view.Traits,
	})
}

type tierUpdateBody struct {
	Fingerprint       string  `json:"fingerprint"`
	Tier              string  `json:"tier"`
	BillingCustomerID *string `json:"billing_customer_id"`
}

func (s *Server) handleTierUpdate(w http.ResponseWriter, r *http.Request) {
	var body tierUpdateBody
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	if body.Fingerprint == "" {
		writeError(w, http.StatusBadRequest, "Missing fingerprint")
		return
	}

	view, err := s.admin.UpdateTier(body.Fingerprint, tier.Tier(body.Tier), body.BillingCustomerID)
	if err != nil {
		if errors.Is(err, admin.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Identity not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	exhttp.WriteJSONResponse(w, http.StatusOK, map[string]any{"ok": true, "tier": view.Tier})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	agg := s.admin.Aggregate()
	exhttp.WriteJSONResponse(w, http.StatusOK, map[string]any{
		"totalIdentities": agg.TotalIdentities,
		"totalCalls":      agg.CallsTotal,
		"tierBreakdown": map[string]int{
			"free":       agg.ByTier[tier.Free],
			"pro":        agg.ByTier[tier.Pro],
			"team":       agg.ByTier[tier.Team],
			"enterprise": agg.ByTier[tier.Enterprise],
		},
		"callsTodayTotal": agg.CallsToday,
		"callsTodayByTier": map[string]int{
			"free":       agg.CallsTodayByTier[tier.Free],
			"pro":        agg.CallsTodayByTier[tier.Pro],
			"team":       agg.CallsTodayByTier[tier.Team],
			"enterprise": agg.CallsTodayByTier[tier.Enterprise],
		},
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	exhttp.WriteJSONResponse(w, status, map[string]any{"error": message})
}
