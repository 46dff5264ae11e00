package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/agentkernel/gateway/internal/tier"
)

// FingerprintLen is the fixed hex-prefix length a key digest is truncated
// to (spec.md §4.1).
const FingerprintLen = 32

// StorageError wraps a failed persistence operation (spec.md §7).
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return "storage: " + e.Op + ": " + e.Err.Error() }
func (e *StorageError) Unwrap() error { return e.Err }

// ErrNotFound is returned by Load when the fingerprint has no record.
var ErrNotFound = errors.New("identity: not found")

const schemaVersion = 1

type document struct {
	SchemaVersion int                  `json:"schema_version"`
	Identities    map[string]*Identity `json:"identities"`
}

// Store is the C1 Identity Store: an in-memory map backed by a single
// JSON document, replaced atomically on every save (spec.md §4.1).
type Store struct {
	path string
	log  zerolog.Logger

	mu   sync.RWMutex // guards identities
	data map[string]*Identity

	writeMu sync.Mutex // single in-flight serializer for persistence (§4.1, §5)
}

// NewStore loads the document at path (or starts empty if absent or
// corrupt, per the §4.1 failure semantics) and returns a ready Store.
func NewStore(path string, log zerolog.Logger) *Store {
	s := &Store{
		path: path,
		log:  log.With().Str("component", "identity.Store").Logger(),
		data: make(map[string]*Identity),
	}
	s.loadFromDisk()
	return s
}

func (s *Store) loadFromDisk() {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Error().Err(err).Str("path", s.path).Msg("failed to read identity store, starting empty")
		}
		return
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		s.log.Error().Err(err).Msg("failed to parse identity store, starting empty")
		return
	}
	if doc.Identities != nil {
		s.data = doc.Identities
	}
}

// Fingerprint is a deterministic, one-way, truncated digest of an upstream
// API key. It never contains key as a substring and has a fixed length
// (spec.md §4.1, testable property 3).
func Fingerprint(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:FingerprintLen]
}

// ResolveOrCreate returns the existing record for fp, or creates and
// persists a freshly initialized one with tier-free defaults (spec.md
// §4.1). Safe under concurrent callers for the same fp.
func (s *Store) ResolveOrCreate(fp string) (*Identity, bool, error) {
	s.mu.Lock()
	if id, ok := s.data[fp]; ok {
		cp := clone(id)
		s.mu.Unlock()
		return cp, false, nil
	}

	genID := xid.New().String()
	fresh := &Identity{
		ID:          genID,
		Fingerprint: fp,
		DisplayName: displayName(genID),
		Tier:        tier.Free,
		CreatedAt:   time.Now().UnixMilli(),
		Memory:      []MemoryEntry{},
		Traits:      DefaultTraits(),
	}
	s.data[fp] = fresh
	cp := clone(fresh)
	s.mu.Unlock()

	if err := s.persist(); err != nil {
		return cp, true, &StorageError{Op: "resolve_or_create", Err: err}
	}
	return cp, true, nil
}

// Load returns the record for fp, or ErrNotFound.
func (s *Store) Load(fp string) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.data[fp]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(id), nil
}

// Save atomically replaces the record for identity.Fingerprint and
// persists the whole document. Readers never observe a torn record
// (spec.md §4.1, §5).
func (s *Store) Save(id *Identity) error {
	s.mu.Lock()
	s.data[id.Fingerprint] = clone(id)
	s.mu.Unlock()

	if err := s.persist(); err != nil {
		s.log.Error().Err(err).Str("fingerprint", id.Fingerprint).Msg("failed to persist identity store")
		return &StorageError{Op: "save", Err: err}
	}
	return nil
}

// Record applies fn to the authoritative, currently-stored identity for
// fp under the write lock, then persists the result (spec.md §5:
// "counters must use read-modify-write under the write lock so that
// increments are not lost"). Unlike Save, which replaces the record with
// a caller-supplied snapshot, Record re-reads the live map entry first,
// so two concurrent callers for the same fingerprint each see the
// other's prior increment rather than clobbering it. fn must not block.
func (s *Store) Record(fp string, fn func(id *Identity)) (*Identity, error) {
	s.mu.Lock()
	id, ok := s.data[fp]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	fn(id)
	cp := clone(id)
	s.mu.Unlock()

	if err := s.persist(); err != nil {
		s.log.Error().Err(err).Str("fingerprint", fp).Msg("failed to persist identity store")
		return cp, &StorageError{Op: "record", Err: err}
	}
	return cp, nil
}

// Iter returns a point-in-time snapshot of every identity, for admin
// aggregates (spec.md §4.7). Mutating the returned slice has no effect
// on the store.
func (s *Store) Iter() []*Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Identity, 0, len(s.data))
	for _, id := range s.data {
		out = append(out, clone(id))
	}
	return out
}

// persist serializes the whole document and replaces the file via a
// temp-file-then-rename, so a crash mid-write leaves the prior document
// fully intact (spec.md §4.1, §9). Writes are serialized through writeMu
// so "whichever commits last wins" (§5) has a well-defined last writer.
func (s *Store) persist() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	doc := document{SchemaVersion: schemaVersion, Identities: s.data}
	payload, err := json.MarshalIndent(doc, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func clone(id *Identity) *Identity {
	cp := *id
	cp.Memory = append([]MemoryEntry(nil), id.Memory...)
	if id.LastCallAt != nil {
		v := *id.LastCallAt
		cp.LastCallAt = &v
	}
	if id.BillingCustomerID != nil {
		v := *id.BillingCustomerID
		cp.BillingCustomerID = &v
	}
	return &cp
}
