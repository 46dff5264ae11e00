package identity

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/agentkernel/gateway/internal/tier"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "identities.json")
	return NewStore(path, zerolog.Nop()), path
}

func TestFingerprintDeterministicAndOpaque(t *testing.T) {
	key := "sk-AAAA-super-secret"
	fp1 := Fingerprint(key)
	fp2 := Fingerprint(key)
	if fp1 != fp2 {
		t.Fatalf("fingerprint not deterministic: %q vs %q", fp1, fp2)
	}
	if len(fp1) != FingerprintLen {
		t.Fatalf("fingerprint length = %d, want %d", len(fp1), FingerprintLen)
	}
	if strContains(fp1, key) || strContains(key, fp1) {
		t.Fatalf("fingerprint must not relate to the raw key as a substring")
	}
}

func strContains(haystack, needle string) bool {
	return len(needle) > 0 && len(haystack) >= len(needle) &&
		func() bool {
			for i := 0; i+len(needle) <= len(haystack); i++ {
				if haystack[i:i+len(needle)] == needle {
					return true
				}
			}
			return false
		}()
}

func TestResolveOrCreateCreatesOnce(t *testing.T) {
	s, _ := newTestStore(t)
	fp := Fingerprint("sk-first")

	id1, created1, err := s.ResolveOrCreate(fp)
	if err != nil {
		t.Fatalf("ResolveOrCreate: %v", err)
	}
	if !created1 {
		t.Fatalf("expected first resolve to create")
	}
	if id1.Tier != tier.Free || id1.Traits.TrustScore != 0.5 {
		t.Fatalf("unexpected defaults: %+v", id1)
	}

	id2, created2, err := s.ResolveOrCreate(fp)
	if err != nil {
		t.Fatalf("ResolveOrCreate: %v", err)
	}
	if created2 {
		t.Fatalf("expected second resolve to find existing record")
	}
	if id2.ID != id1.ID {
		t.Fatalf("resolve returned a different identity for the same fingerprint")
	}
}

func TestResolveOrCreateConcurrentSameFingerprintYieldsOneIdentity(t *testing.T) {
	s, _ := newTestStore(t)
	fp := Fingerprint("sk-concurrent")

	const n = 50
	ids := make([]string, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			id, _, err := s.ResolveOrCreate(fp)
			if err != nil {
				t.Errorf("ResolveOrCreate: %v", err)
				return
			}
			ids[i] = id.ID
		}()
	}
	wg.Wait()

	want := ids[0]
	for _, got := range ids {
		if got != want {
			t.Fatalf("concurrent resolve_or_create produced divergent identities: %q vs %q", got, want)
		}
	}
}

func TestSaveIsDurableAcrossReload(t *testing.T) {
	s, path := newTestStore(t)
	fp := Fingerprint("sk-durable")

	id, _, err := s.ResolveOrCreate(fp)
	if err != nil {
		t.Fatalf("ResolveOrCreate: %v", err)
	}
	id.CallsTotal = 7
	id.Tier = tier.Pro
	if err := s.Save(id); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected document file at %s: %v", path, err)
	}

	reloaded := NewStore(path, zerolog.Nop())
	got, err := reloaded.Load(fp)
	if err != nil {
		t.Fatalf("Load after reload: %v", err)
	}
	if got.CallsTotal != 7 || got.Tier != tier.Pro {
		t.Fatalf("reload did not round-trip: %+v", got)
	}
}

func TestLoadUnknownFingerprintReturnsNotFound(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Load(Fingerprint("sk-never-seen"))
	if err != ErrNotFound {
		t.Fatalf("Load unknown fp err = %v, want ErrNotFound", err)
	}
}

func TestIterSnapshotIsIndependentOfStore(t *testing.T) {
	s, _ := newTestStore(t)
	fp := Fingerprint("sk-snapshot")
	id, _, _ := s.ResolveOrCreate(fp)
	id.CallsTotal = 3
	_ = s.Save(id)

	snap := s.Iter()
	if len(snap) != 1 {
		t.Fatalf("Iter len = %d, want 1", len(snap))
	}
	snap[0].CallsTotal = 999

	reloaded, err := s.Load(fp)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reloaded.CallsTotal != 3 {
		t.Fatalf("mutating an Iter snapshot leaked into the store: %+v", reloaded)
	}
}

func TestRecordDoesNotLoseConcurrentIncrements(t *testing.T) {
	s, _ := newTestStore(t)
	fp := Fingerprint("sk-record-race")
	if _, _, err := s.ResolveOrCreate(fp); err != nil {
		t.Fatalf("ResolveOrCreate: %v", err)
	}

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if _, err := s.Record(fp, func(id *Identity) {
				id.CallsTotal++
			}); err != nil {
				t.Errorf("Record: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := s.Load(fp)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.CallsTotal != n {
		t.Fatalf("CallsTotal = %d, want %d (a concurrent Record lost an increment)", got.CallsTotal, n)
	}
}

func TestCorruptDocumentStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "identities.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	s := NewStore(path, zerolog.Nop())
	if len(s.Iter()) != 0 {
		t.Fatalf("expected empty store after corrupt document")
	}
}
