package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"

	"github.com/tapfederation/tap/tapid"
)

// Outcome is what a previously-applied command produced: the event(s) it
// emitted (one per resource for multi-resource commands) so a replay can
// return exactly what the first application returned.
type Outcome struct {
	Events []Event
}

// IdempotencyStore maps an IdempotencyKey to the outcome of its first
// application. Typically colocated with the Event Log (spec.md §4.3);
// entries never expire within this interface — retention is an integrator
// decision.
type IdempotencyStore interface {
	// Lookup returns the stored outcome for key and its recorded command
	// hash, or ok=false if key has never been used.
	Lookup(ctx context.Context, key tapid.IdempotencyKey) (hash string, outcome Outcome, ok bool)

	// Record stores the first outcome for key. Callers must only call this
	// once Lookup has confirmed the key is unused; behavior for a
	// concurrent double-record of the same key is to keep whichever
	// registered first (first write wins).
	Record(ctx context.Context, key tapid.IdempotencyKey, hash string, outcome Outcome) (recorded bool)
}

// HashCommand canonicalizes cmd via JSON and returns its sha256 hex digest,
// used to detect a client reusing an idempotency key for a different
// command (spec.md §4.3, §7).
func HashCommand(cmd any) (string, error) {
	b, err := json.Marshal(cmd)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// MemoryIdempotencyStore is an in-memory IdempotencyStore, safe for
// concurrent use, sharing the Event Log's lifetime.
type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	byKey   map[tapid.IdempotencyKey]entry
}

type entry struct {
	hash    string
	outcome Outcome
}

// NewMemoryIdempotencyStore constructs an empty store.
func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{byKey: make(map[tapid.IdempotencyKey]entry)}
}

func (s *MemoryIdempotencyStore) Lookup(_ context.Context, key tapid.IdempotencyKey) (string, Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byKey[key]
	if !ok {
		return "", Outcome{}, false
	}
	return e.hash, e.outcome, true
}

func (s *MemoryIdempotencyStore) Record(_ context.Context, key tapid.IdempotencyKey, hash string, outcome Outcome) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byKey[key]; exists {
		return false
	}
	s.byKey[key] = entry{hash: hash, outcome: outcome}
	return true
}
