// Package holds implements the Hold Table: an in-memory index of active
// holds, reconstructable by replaying the Event Log, with TTL-based lazy
// expiration (spec.md §4.4).
package holds

import (
	"errors"
	"sync"

	"github.com/tapfederation/tap/tapclock"
	"github.com/tapfederation/tap/tapid"
	"github.com/tapfederation/tap/timeline"
)

// State is a Hold's lifecycle stage.
type State string

const (
	Active    State = "active"
	Confirmed State = "confirmed"
	Released  State = "released"
	Expired   State = "expired"
)

// ErrNotFound is returned when a holdId has no entry in the table.
var ErrNotFound = errors.New("holds: hold not found")

// ErrTerminal is returned when a transition is attempted on a Hold that has
// already left the Active state (terminal immutability).
var ErrTerminal = errors.New("holds: hold is already terminal")

// Hold is a short-lived reservation across one or more resources. It
// becomes an Allocation on confirm, or is Released/Expired without ever
// confirming.
type Hold struct {
	Id        tapid.HoldId
	Resources []tapid.ResourceId
	Interval  timeline.Interval
	// Demand is keyed by resource since |demands| == |resources| per command.
	Demand    map[tapid.ResourceId]int64
	ExpiresAt timeline.Instant
	State     State
}

// clone returns a copy safe to hand to callers without exposing internal
// mutable state.
func (h *Hold) clone() *Hold {
	cp := *h
	cp.Resources = append([]tapid.ResourceId(nil), h.Resources...)
	cp.Demand = make(map[tapid.ResourceId]int64, len(h.Demand))
	for k, v := range h.Demand {
		cp.Demand[k] = v
	}
	return &cp
}

// Table is the Hold Table: {holdId -> Hold} plus a {resource -> set<holdId>}
// secondary index for availability queries.
type Table struct {
	mu         sync.RWMutex
	byID       map[tapid.HoldId]*Hold
	byResource map[tapid.ResourceId]map[tapid.HoldId]struct{}
	clock      tapclock.Clock
}

// New constructs an empty Hold Table using clock for TTL evaluation.
func New(clock tapclock.Clock) *Table {
	return &Table{
		byID:       make(map[tapid.HoldId]*Hold),
		byResource: make(map[tapid.ResourceId]map[tapid.HoldId]struct{}),
		clock:      clock,
	}
}

// Put inserts a newly placed Active hold.
func (t *Table) Put(h *Hold) {
	t.mu.Lock()
	defer t.mu.Unlock()
	stored := h.clone()
	t.byID[h.Id] = stored
	for _, r := range stored.Resources {
		set, ok := t.byResource[r]
		if !ok {
			set = make(map[tapid.HoldId]struct{})
			t.byResource[r] = set
		}
		set[h.Id] = struct{}{}
	}
}

// Get returns a copy of the hold, applying lazy expiration: an Active hold
// whose ExpiresAt is no longer in the future is reported as Expired even
// before the engine has emitted the corresponding hold.released event.
func (t *Table) Get(id tapid.HoldId) (*Hold, bool) {
	t.mu.RLock()
	h, ok := t.byID[id]
	t.mu.RUnlock()
	if !ok {
		return nil, false
	}
	cp := h.clone()
	t.applyLazyExpiry(cp)
	return cp, true
}

func (t *Table) applyLazyExpiry(h *Hold) {
	if h.State == Active && !h.ExpiresAt.After(timeline.NewInstant(t.clock.Now())) {
		h.State = Expired
	}
}

// Transition moves a hold to a new terminal state (Confirmed, Released, or
// Expired). It fails with ErrTerminal if the hold has already left Active
// (including holds the table considers lazily expired).
func (t *Table) Transition(id tapid.HoldId, to State) (*Hold, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	t.applyLazyExpiry(h)
	if h.State != Active {
		return nil, ErrTerminal
	}
	h.State = to
	return h.clone(), nil
}

// SetState forcibly sets a hold's state, bypassing the terminal-state
// guard Transition enforces. It exists solely to undo a Transition whose
// corresponding event append subsequently failed, so the Hold Table never
// diverges from what the Event Log actually committed (spec.md §7's "no
// partial state change is visible" on an internal fault).
func (t *Table) SetState(id tapid.HoldId, state State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if h, ok := t.byID[id]; ok {
		h.State = state
	}
}

// Remove deletes a hold from the table entirely, undoing a Put whose
// corresponding hold.placed append subsequently failed on one of its
// resources.
func (t *Table) Remove(id tapid.HoldId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.byID[id]
	if !ok {
		return
	}
	delete(t.byID, id)
	for _, r := range h.Resources {
		if set, ok := t.byResource[r]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(t.byResource, r)
			}
		}
	}
}

// ActiveHolds returns the live Hold copies referencing resource, excluding
// any whose TTL has lapsed (expiresAt <= now) or whose state has already
// left Active. This is the TTL filter the engine must reapply on every
// admission check per the hold table's lazy-expiration design.
func (t *Table) ActiveHolds(resource tapid.ResourceId) []*Hold {
	t.mu.RLock()
	defer t.mu.RUnlock()

	set := t.byResource[resource]
	out := make([]*Hold, 0, len(set))
	now := timeline.NewInstant(t.clock.Now())
	for id := range set {
		h := t.byID[id]
		if h.State != Active {
			continue
		}
		if !h.ExpiresAt.After(now) {
			continue
		}
		out = append(out, h.clone())
	}
	return out
}

// ActiveHoldTimeline builds the demand timeline contributed by every
// effectively-active hold on resource, for use in availability
// computations (Supply - (Allocation + ActiveHolds)).
func (t *Table) ActiveHoldTimeline(resource tapid.ResourceId) *timeline.Timeline {
	tl := timeline.New(0)
	for _, h := range t.ActiveHolds(resource) {
		tl.AddIntervalDelta(h.Interval, h.Demand[resource])
	}
	return tl
}

// ExpireLapsed scans every Active hold referencing resource and
// transitions any whose TTL has lapsed to Expired, returning the holds
// that were just transitioned so the caller can emit hold.released events
// for them. This is the optional background-sweep path; correctness never
// depends on it running, only on ActiveHolds/ActiveHoldTimeline reapplying
// the TTL filter on every read.
func (t *Table) ExpireLapsed(resource tapid.ResourceId) []*Hold {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := timeline.NewInstant(t.clock.Now())
	var justExpired []*Hold
	for id := range t.byResource[resource] {
		h := t.byID[id]
		if h.State == Active && !h.ExpiresAt.After(now) {
			h.State = Expired
			justExpired = append(justExpired, h.clone())
		}
	}
	return justExpired
}

// Resources returns every resource currently indexed (used by the sweeper
// to iterate without a separate resource registry).
func (t *Table) Resources() []tapid.ResourceId {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]tapid.ResourceId, 0, len(t.byResource))
	for r := range t.byResource {
		out = append(out, r)
	}
	return out
}
