// Package quota implements the Quota & Rate Limiter (spec.md C4): two
// independent admission axes checked and updated together — a per-day
// calendar quota persisted on the Identity, and a process-local
// per-minute sliding window keyed by fingerprint.
package quota

import (
	"sync"
	"time"

	"github.com/agentkernel/gateway/internal/identity"
	"github.com/agentkernel/gateway/internal/tier"
)

// RejectReason is the structured rejection cause (spec.md §4.4, §7).
type RejectReason string

const (
	ReasonDailyExhausted RejectReason = "daily_exhausted"
	ReasonRateExceeded   RejectReason = "rate_exceeded"
)

// Decision is the outcome of an admission check.
type Decision struct {
	Admitted  bool
	Reason    RejectReason
	ResetHint string // "tomorrow" or "1 minute"
	Tier      tier.Tier
}

const windowDuration = 60 * time.Second

// Limiter is the C4 two-axis admission gate. The per-minute window table
// is process-local and non-durable by design (spec.md §4.4, §9): it
// resets on restart, and that is intentional.
type Limiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time // keyed by fingerprint

	now func() time.Time // overridable for tests
}

// New returns a ready Limiter.
func New() *Limiter {
	return &Limiter{windows: make(map[string][]time.Time), now: time.Now}
}

// Admit evaluates both axes for id and, if admitted, records the call:
// it prunes and appends to the per-minute window and, via the returned
// rollover flag, tells the caller whether calls_today must be zeroed
// before incrementing (spec.md §4.4 Axis A/B). Admit does not mutate id;
// callers apply the returned decision and rollover to the identity and
// persist it (spec.md §4.6 step 8).
func (l *Limiter) Admit(id *identity.Identity) (Decision, bool) {
	now := l.now()
	today := now.Format("2006-01-02")
	rollover := id.LastCallDate != today
	callsToday := id.CallsToday
	if rollover {
		callsToday = 0
	}

	dailyLimit := tier.PerDayLimit(id.Tier)
	if dailyLimit != tier.Unbounded && callsToday >= dailyLimit {
		return Decision{Admitted: false, Reason: ReasonDailyExhausted, ResetHint: "tomorrow", Tier: id.Tier}, rollover
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-windowDuration)
	window := pruneLocked(l.windows[id.Fingerprint], cutoff)

	perMinuteLimit := tier.PerMinuteLimit(id.Tier)
	if perMinuteLimit != tier.Unbounded && len(window) >= perMinuteLimit {
		l.windows[id.Fingerprint] = window
		return Decision{Admitted: false, Reason: ReasonRateExceeded, ResetHint: "1 minute", Tier: id.Tier}, rollover
	}

	l.windows[id.Fingerprint] = append(window, now)
	return Decision{Admitted: true, Tier: id.Tier}, rollover
}

func pruneLocked(window []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(window) && !window[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return window
	}
	return append([]time.Time(nil), window[i:]...)
}
