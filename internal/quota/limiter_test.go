package quota

import (
	"testing"
	"time"

	"github.com/agentkernel/gateway/internal/identity"
	"github.com/agentkernel/gateway/internal/tier"
)

func newFreeIdentity(fp string) *identity.Identity {
	return &identity.Identity{Fingerprint: fp, Tier: tier.Free}
}

func TestAdmitFreeTierDailyBoundary(t *testing.T) {
	l := New()
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	id := newFreeIdentity("fp-daily")

	for i := 0; i < 100; i++ {
		// Space calls 7s apart so the per-minute window (10) never fills
		// and only the daily axis is exercised; all 100 land on one day.
		l.now = func() time.Time { return base.Add(time.Duration(i) * 7 * time.Second) }
		d, rollover := l.Admit(id)
		if !d.Admitted {
			t.Fatalf("call %d should admit, got reason %q", i+1, d.Reason)
		}
		applyAdmission(id, d, rollover, l.now())
	}

	d, _ := l.Admit(id)
	if d.Admitted {
		t.Fatalf("101st call should be rejected")
	}
	if d.Reason != ReasonDailyExhausted || d.ResetHint != "tomorrow" {
		t.Fatalf("unexpected rejection: %+v", d)
	}
	if id.CallsToday != 100 {
		t.Fatalf("calls_today = %d, want 100 (rejection must not consume quota)", id.CallsToday)
	}
}

func TestAdmitFreeTierPerMinuteBoundary(t *testing.T) {
	l := New()
	id := newFreeIdentity("fp-perminute")

	for i := 0; i < 10; i++ {
		d, rollover := l.Admit(id)
		if !d.Admitted {
			t.Fatalf("call %d within the per-minute budget should admit", i+1)
		}
		applyAdmission(id, d, rollover, l.now())
	}

	d, _ := l.Admit(id)
	if d.Admitted {
		t.Fatalf("11th call within the same minute should be rejected")
	}
	if d.Reason != ReasonRateExceeded || d.ResetHint != "1 minute" {
		t.Fatalf("unexpected rejection: %+v", d)
	}
}

func TestSlidingWindowEvictsOldTimestamps(t *testing.T) {
	l := New()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }

	id := newFreeIdentity("fp-window")
	for i := 0; i < 10; i++ {
		d, rollover := l.Admit(id)
		if !d.Admitted {
			t.Fatalf("setup call %d should admit", i+1)
		}
		applyAdmission(id, d, rollover, l.now())
	}
	if d, _ := l.Admit(id); d.Admitted {
		t.Fatalf("window should be full before the clock advances")
	}

	l.now = func() time.Time { return base.Add(61 * time.Second) }
	d, rollover := l.Admit(id)
	if !d.Admitted {
		t.Fatalf("after 61s the window should have drained")
	}
	applyAdmission(id, d, rollover, l.now())
}

func TestDayRolloverResetsCallsToday(t *testing.T) {
	l := New()
	day1 := time.Date(2026, 1, 1, 23, 59, 0, 0, time.UTC)
	l.now = func() time.Time { return day1 }

	id := newFreeIdentity("fp-rollover")
	d, rollover := l.Admit(id)
	applyAdmission(id, d, rollover, l.now())
	id.CallsToday = 100 // simulate a fully exhausted day

	day2 := time.Date(2026, 1, 2, 0, 0, 1, 0, time.UTC)
	l.now = func() time.Time { return day2 }

	d2, rollover2 := l.Admit(id)
	if !d2.Admitted {
		t.Fatalf("first call of a new calendar day should admit even if calls_today was saturated")
	}
	if !rollover2 {
		t.Fatalf("expected rollover flag across the calendar boundary")
	}
	applyAdmission(id, d2, rollover2, l.now())
	if id.CallsToday != 1 {
		t.Fatalf("calls_today after rollover+admit = %d, want 1", id.CallsToday)
	}
}

func TestRolloverDecisionIdempotentWithoutInterveningCalls(t *testing.T) {
	l := New()
	base := time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }

	id := newFreeIdentity("fp-idempotent")
	id.LastCallDate = "2026-01-01"
	id.CallsToday = 100

	d1, r1 := l.Admit(id)
	d2, r2 := l.Admit(id)
	if d1.Admitted != d2.Admitted || r1 != r2 {
		t.Fatalf("evaluating admission twice without an intervening call diverged: (%v,%v) vs (%v,%v)", d1.Admitted, r1, d2.Admitted, r2)
	}
}

func TestEnterpriseIsUnbounded(t *testing.T) {
	l := New()
	id := &identity.Identity{Fingerprint: "fp-ent", Tier: tier.Enterprise}
	for i := 0; i < 500; i++ {
		d, rollover := l.Admit(id)
		if !d.Admitted {
			t.Fatalf("enterprise call %d rejected unexpectedly: %+v", i+1, d)
		}
		applyAdmission(id, d, rollover, l.now())
	}
}

// applyAdmission mirrors the orchestrator's C4-driven identity update
// (spec.md §4.6 step 8) for tests exercising Limiter in isolation.
func applyAdmission(id *identity.Identity, d Decision, rollover bool, now time.Time) {
	if !d.Admitted {
		return
	}
	if rollover {
		id.CallsToday = 0
	}
	id.CallsToday++
	id.CallsTotal++
	ms := now.UnixMilli()
	id.LastCallAt = &ms
	id.LastCallDate = now.Format("2006-01-02")
}
