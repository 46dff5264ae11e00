package gateway

import (
	"fmt"
	"strings"

	"github.com/agentkernel/gateway/internal/identity"
	"github.com/agentkernel/gateway/internal/memory"
)

// toneLabel derives the categorical tone from the sentiment thresholds in
// spec.md §4.6 step 4.
func toneLabel(sentiment float64) string {
	switch {
	case sentiment > 0.3:
		return "positive"
	case sentiment < -0.3:
		return "concerned"
	default:
		return "neutral"
	}
}

// continuityInstruction is the stable closing sentence that claims
// continuity with past interactions (spec.md §4.6 step 4).
const continuityInstruction = "Continue this conversation as the same agent who has spoken with this user before; treat the context above as your own memory of past interactions."

// buildSystemPrompt composes the system prompt from the fixed template:
// display name, trust score (2 decimals), tone label, total interaction
// count, and the character-capped context window (spec.md §4.6 step 4).
func buildSystemPrompt(id *identity.Identity, sentiment float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a persistent AI agent.\n", id.DisplayName)
	fmt.Fprintf(&b, "Trust score: %.2f. Current tone: %s.\n", id.Traits.TrustScore, toneLabel(sentiment))
	fmt.Fprintf(&b, "You have exchanged %d messages with this user so far.\n", id.CallsTotal)

	window := memory.ContextWindow(id, memory.DefaultMaxChars)
	if window != "" {
		b.WriteString("Recent conversation history:\n")
		b.WriteString(window)
		if !strings.HasSuffix(window, "\n") {
			b.WriteByte('\n')
		}
	}

	b.WriteString(continuityInstruction)
	return b.String()
}
