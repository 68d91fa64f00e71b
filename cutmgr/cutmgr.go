// Package cutmgr implements the Cut Manager: minting a cross-resource
// watermark that pins a consistent point-in-time view of multiple
// resources' event logs for the Snapshot Projector to read against
// (spec.md §4.6).
package cutmgr

import (
	"context"
	"sync"
	"time"

	"github.com/tapfederation/tap/ledger"
	"github.com/tapfederation/tap/tapclock"
	"github.com/tapfederation/tap/tapid"
	"github.com/tapfederation/tap/taperrors"
	"github.com/tapfederation/tap/timeline"
)

// Cut is a cross-resource watermark: the highest committed seq observed per
// resource at IssuedAt. A resource absent from SeqHi had no events at cut
// time.
type Cut struct {
	Id       tapid.CutId
	SeqHi    map[tapid.ResourceId]uint64
	IssuedAt timeline.Instant
}

// Manager mints and retains Cuts, evicting any older than retention on a
// lazy sweep run at the start of each Create call (mirrors the Hold
// Table's lazy-TTL-sweep idiom in holds.go). retention <= 0 disables
// eviction, keeping every minted Cut forever.
type Manager struct {
	log       ledger.Log
	clock     tapclock.Clock
	retention time.Duration

	mu   sync.RWMutex
	byID map[tapid.CutId]Cut
}

// New constructs a Manager reading watermarks from log. retention bounds
// how long a minted Cut stays retrievable (spec.md §4.6's "recommended
// minimum 5x heartbeat interval"); see tapconfig.Config.CutRetention for
// the reference default.
func New(log ledger.Log, clock tapclock.Clock, retention time.Duration) *Manager {
	return &Manager{log: log, clock: clock, retention: retention, byID: make(map[tapid.CutId]Cut)}
}

// evictExpired drops every retained Cut issued before the retention
// window. Caller must hold m.mu for writing.
func (m *Manager) evictExpired(now time.Time) {
	if m.retention <= 0 {
		return
	}
	cutoff := now.Add(-m.retention)
	for id, c := range m.byID {
		if c.IssuedAt.Time().Before(cutoff) {
			delete(m.byID, id)
		}
	}
}

// Create mints a new Cut over resources, snapshotting each one's current
// SeqHi. Resources are read independently and not under any engine lock:
// the cut is a point-in-time view assembled from already-committed data,
// not a transactional barrier across the Allocation Engine.
func (m *Manager) Create(ctx context.Context, resources []tapid.ResourceId) (Cut, error) {
	if len(resources) == 0 {
		return Cut{}, taperrors.New(taperrors.BadRequest, "at least one resource is required")
	}

	seqHi := make(map[tapid.ResourceId]uint64, len(resources))
	for _, r := range resources {
		if hi, ok := m.log.SeqHi(ctx, r); ok {
			seqHi[r] = hi
		}
	}

	now := m.clock.Now()
	cut := Cut{
		Id:       tapid.NewCutId(),
		SeqHi:    seqHi,
		IssuedAt: timeline.NewInstant(now),
	}

	m.mu.Lock()
	m.evictExpired(now)
	m.byID[cut.Id] = cut
	m.mu.Unlock()

	return cut, nil
}

// Get returns a previously minted Cut by id. A Cut evicted by retention
// policy is indistinguishable from one that never existed.
func (m *Manager) Get(id tapid.CutId) (Cut, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.byID[id]
	return c, ok
}
