// Package gateway implements the Gateway Orchestrator (spec.md C6): the
// single pipeline that ties identity resolution, admission, sentiment
// scoring, prompt composition, the upstream call, and recording together
// (spec.md §4.6).
package gateway

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentkernel/gateway/internal/identity"
	"github.com/agentkernel/gateway/internal/memory"
	"github.com/agentkernel/gateway/internal/provider"
	"github.com/agentkernel/gateway/internal/quota"
	"github.com/agentkernel/gateway/internal/sentiment"
	"github.com/agentkernel/gateway/internal/tier"
)

// sentimentWeight is the EWMA mixing weight applied to the new score
// against the identity's running sentiment (spec.md §4.6 step 3:
// new = 0.9*old + 0.1*score).
const sentimentWeight = 0.1

var (
	// ErrMissingAPIKey is returned before any state is touched (spec.md
	// §4.6 step 1, §7).
	ErrMissingAPIKey = errors.New("gateway: missing api key")
	// ErrEmptyMessage is returned before any state is touched (spec.md
	// §4.6 step 1, §7).
	ErrEmptyMessage = errors.New("gateway: missing message")
)

// RateLimitError carries the structured rejection from C4 (spec.md §4.4,
// §7). No state was mutated when this is returned.
type RateLimitError struct {
	Decision quota.Decision
}

func (e *RateLimitError) Error() string {
	return "gateway: rate limited: " + string(e.Decision.Reason)
}

// ChatRequest is one inbound chat call (spec.md §6 "POST /chat").
type ChatRequest struct {
	Provider provider.Name
	APIKey   string
	Message  string
	Model    string
}

// IdentityView is the subset of an Identity surfaced in a chat response
// (spec.md §6).
type IdentityView struct {
	ID          string
	DisplayName string
	Tier        tier.Tier
	CallsToday  int
	CallsTotal  int
	MemorySize  int
	Sentiment   float64
	TrustScore  float64
}

// ChatResponse is the orchestrator's result for a successful call.
type ChatResponse struct {
	Reply    string
	Identity IdentityView
}

// Gateway is the C6 orchestrator. It holds no per-request state; every
// field is a shared collaborator wired once at startup.
type Gateway struct {
	store   *identity.Store
	limiter *quota.Limiter
	scorer  *sentiment.Scorer
	adapter provider.Adapter
	log     zerolog.Logger
}

// New returns a ready Gateway.
func New(store *identity.Store, limiter *quota.Limiter, scorer *sentiment.Scorer, adapter provider.Adapter, log zerolog.Logger) *Gateway {
	return &Gateway{
		store:   store,
		limiter: limiter,
		scorer:  scorer,
		adapter: adapter,
		log:     log.With().Str("component", "gateway.Gateway").Logger(),
	}
}

// Chat runs the nine-step pipeline from spec.md §4.6:
//  1. validate (auth/empty-message errors, no side effects)
//  2. resolve (fingerprint + resolve_or_create)
//  3. admit (C4; reject without mutation)
//  4. score (pure; update is computed but deferred, not yet persisted)
//  5. compose (system prompt from the pre-call identity + the deferred score)
//  6. assemble (system + last six memory entries + user)
//  7. call upstream (C5)
//  8. extract reply (NormalizedReply.Content's own fallback applies)
//  9. record + persist, only ever reached on a successful upstream call
//
// A failure at any step before 7 returns cleanly with the identity
// untouched. A failure at step 7 (UpstreamError) also leaves calls_today,
// calls_total, memory, and traits.sentiment exactly as they were before
// the call: the per-minute window slot consumed at step 3 is the only
// observable side effect of a failed call, because admission and the
// rate-window bookkeeping are inseparable by definition (spec.md §4.4).
func (g *Gateway) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if req.APIKey == "" {
		return ChatResponse{}, ErrMissingAPIKey
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return ChatResponse{}, ErrEmptyMessage
	}

	fp := identity.Fingerprint(req.APIKey)
	id, _, err := g.store.ResolveOrCreate(fp)
	if err != nil {
		return ChatResponse{}, err
	}

	decision, _ := g.limiter.Admit(id)
	if !decision.Admitted {
		g.log.Info().Str("fingerprint", fp).Str("reason", string(decision.Reason)).Msg("chat rejected by rate limiter")
		return ChatResponse{}, &RateLimitError{Decision: decision}
	}

	score := g.scorer.Score(message)
	newSentiment := ewma(id.Traits.Sentiment, score)

	systemPrompt := buildSystemPrompt(id, newSentiment)
	messages := assembleMessages(systemPrompt, id, message)

	reply, err := g.adapter.Call(ctx, req.Provider, req.APIKey, messages, req.Model)
	if err != nil {
		g.log.Error().Err(err).Str("fingerprint", fp).Msg("chat upstream call failed")
		return ChatResponse{}, err
	}
	replyText := reply.Content()

	recorded, err := g.store.Record(fp, func(current *identity.Identity) {
		applyRecord(current, message, replyText, newSentiment)
	})
	if err != nil {
		return ChatResponse{}, err
	}

	return ChatResponse{Reply: replyText, Identity: viewOf(recorded)}, nil
}

// applyRecord performs spec.md §4.6 step 8 against the authoritative,
// currently-stored identity (not the pre-upstream-call snapshot): it
// re-derives the day rollover against today's date rather than trusting
// the rollover flag computed before the (possibly slow) upstream call,
// since another request for the same fingerprint may have rolled the
// day over in the meantime.
func applyRecord(id *identity.Identity, message, replyText string, newSentiment float64) {
	now := time.Now()
	today := now.Format("2006-01-02")
	rollover := id.LastCallDate != today

	memory.Append(id, identity.RoleUser, message)
	memory.Append(id, identity.RoleAssistant, replyText)

	id.CallsTotal++
	if rollover {
		id.CallsToday = 0
	}
	id.CallsToday++

	nowMs := now.UnixMilli()
	id.LastCallAt = &nowMs
	id.LastCallDate = today
	id.Traits.Sentiment = newSentiment
}

// ewma applies the spec.md §4.2/§4.6 blend: new = (1-weight)*old + weight*score.
func ewma(old, score float64) float64 {
	return (1-sentimentWeight)*old + sentimentWeight*score
}

// assembleMessages builds [system, ...last six memory entries, user]
// (spec.md §4.6 step 6).
func assembleMessages(systemPrompt string, id *identity.Identity, userMessage string) []provider.Message {
	spliced := memory.SpliceEntries(id)
	out := make([]provider.Message, 0, len(spliced)+2)
	out = append(out, provider.Message{Role: provider.RoleSystem, Content: systemPrompt})
	for _, e := range spliced {
		out = append(out, provider.Message{Role: e.Role, Content: e.Content})
	}
	out = append(out, provider.Message{Role: provider.RoleUser, Content: userMessage})
	return out
}

func viewOf(id *identity.Identity) IdentityView {
	return IdentityView{
		ID:          id.ID,
		DisplayName: id.DisplayName,
		Tier:        id.Tier,
		CallsToday:  id.CallsToday,
		CallsTotal:  id.CallsTotal,
		MemorySize:  len(id.Memory),
		Sentiment:   id.Traits.Sentiment,
		TrustScore:  id.Traits.TrustScore,
	}
}
