// Package identity implements the Identity Store (spec.md C1): the
// persistent mapping from an upstream API key's fingerprint to its
// Identity record, plus the record types memory and quota build on.
package identity

import (
	"fmt"

	"github.com/agentkernel/gateway/internal/tier"
)

// MemoryEntry is one retained conversational turn (spec.md §3).
type MemoryEntry struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"` // ms since epoch
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MaxEntryChars is the per-entry truncation applied on insertion (spec.md §3, §4.3).
const MaxEntryChars = 500

// Traits are the identity's soft behavioral signals (spec.md §3).
type Traits struct {
	Sentiment      float64 `json:"sentiment"`
	TrustScore     float64 `json:"trust_score"`
	Contradictions int     `json:"contradictions"`
}

// DefaultTraits returns the initialization values specified in §4.1.
func DefaultTraits() Traits {
	return Traits{Sentiment: 0, TrustScore: 0.5, Contradictions: 0}
}

// Identity is the gateway's persistent record for one upstream-key holder
// (spec.md §3).
type Identity struct {
	ID          string    `json:"id"`
	Fingerprint string    `json:"fingerprint"`
	DisplayName string    `json:"display_name"`
	Tier        tier.Tier `json:"tier"`

	CreatedAt  int64 `json:"created_at"` // ms since epoch
	CallsToday int   `json:"calls_today"`
	CallsTotal int   `json:"calls_total"`

	LastCallAt   *int64 `json:"last_call_at,omitempty"` // ms since epoch
	LastCallDate string `json:"last_call_date,omitempty"` // YYYY-MM-DD, server-local

	Memory []MemoryEntry `json:"memory"`
	Traits Traits        `json:"traits"`

	BillingCustomerID *string `json:"billing_customer_id,omitempty"`
}

// displayName derives the public display name from the generated id, per
// §3 ("display_name: derived from id").
func displayName(id string) string {
	return fmt.Sprintf("agent-%s", id)
}
