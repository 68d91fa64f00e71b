package engine

import (
	"sync"

	"github.com/tapfederation/tap/tapid"
	"github.com/tapfederation/tap/timeline"
)

// AllocState is an Allocation's lifecycle stage.
type AllocState string

const (
	Committed AllocState = "committed"
	Canceled  AllocState = "canceled"
)

// Allocation is a committed reservation, created by hold.confirm and
// terminal once Canceled (spec.md §3).
type Allocation struct {
	Id        tapid.AllocationId
	HoldId    tapid.HoldId
	Resources []tapid.ResourceId
	Interval  timeline.Interval
	Demand    map[tapid.ResourceId]int64
	State     AllocState
}

func (a *Allocation) clone() *Allocation {
	cp := *a
	cp.Resources = append([]tapid.ResourceId(nil), a.Resources...)
	cp.Demand = make(map[tapid.ResourceId]int64, len(a.Demand))
	for k, v := range a.Demand {
		cp.Demand[k] = v
	}
	return &cp
}

// allocationIndex is the Allocation Index the Allocation Engine owns,
// reconstructable by replaying alloc.committed/alloc.canceled events.
type allocationIndex struct {
	mu   sync.RWMutex
	byID map[tapid.AllocationId]*Allocation
}

func newAllocationIndex() *allocationIndex {
	return &allocationIndex{byID: make(map[tapid.AllocationId]*Allocation)}
}

func (idx *allocationIndex) put(a *Allocation) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.byID[a.Id] = a.clone()
}

func (idx *allocationIndex) get(id tapid.AllocationId) (*Allocation, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	a, ok := idx.byID[id]
	if !ok {
		return nil, false
	}
	return a.clone(), true
}

func (idx *allocationIndex) cancel(id tapid.AllocationId) (*Allocation, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	a, ok := idx.byID[id]
	if !ok || a.State != Committed {
		return nil, false
	}
	a.State = Canceled
	return a.clone(), true
}

// setState forcibly sets an allocation's state, bypassing the Committed
// guard cancel enforces. It exists solely to undo a cancel whose
// corresponding alloc.canceled append subsequently failed, so the
// Allocation Index never diverges from what the Event Log actually
// committed.
func (idx *allocationIndex) setState(id tapid.AllocationId, state AllocState) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if a, ok := idx.byID[id]; ok {
		a.State = state
	}
}
