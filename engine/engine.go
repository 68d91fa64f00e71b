// Package engine implements the Allocation Engine: the command processor
// that validates mutation commands against the zero-sum availability
// invariant, emits authoritative events, and maintains the projected
// Supply/Allocation timelines (spec.md §4.5).
package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tapfederation/tap/holds"
	"github.com/tapfederation/tap/ledger"
	"github.com/tapfederation/tap/taperrors"
	"github.com/tapfederation/tap/tapclock"
	"github.com/tapfederation/tap/tapid"
	"github.com/tapfederation/tap/timeline"

	tap "github.com/tapfederation/tap"
)

// durationFromSeconds converts a whole-second TTL from the wire protocol
// into a time.Duration.
func durationFromSeconds(sec int64) time.Duration {
	return time.Duration(sec) * time.Second
}

// Publisher is notified of every event the engine commits, so the Stream
// Multiplexer can fan it out to subscribers without the engine knowing
// anything about subscriptions. Adapted from the teacher's EventEmitter
// interface (modules/scheduler), narrowed to the engine's single concern.
type Publisher interface {
	Publish(ctx context.Context, event ledger.Event)
}

// NopPublisher discards every event. Useful when running the engine
// without a live Stream Multiplexer (e.g. in unit tests).
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ledger.Event) {}

type resourceState struct {
	mu     sync.Mutex
	supply *timeline.Timeline
	alloc  *timeline.Timeline
}

// Engine is the Allocation Engine. It owns per-resource projected
// timelines and delegates the Event Log, Idempotency Store, and Hold Table
// to the components spec.md §4 describes.
type Engine struct {
	log    ledger.Log
	idem   ledger.IdempotencyStore
	holds  *holds.Table
	clock  tapclock.Clock
	logger tap.Logger
	pub    Publisher

	metaMu    sync.Mutex
	resources map[tapid.ResourceId]*resourceState

	allocs *allocationIndex
}

// New constructs an Engine over store, using clock for all wall-clock reads
// and pub to fan out committed events. logger may be nil (NopLogger is
// used); pub may be nil (NopPublisher is used).
func New(store *ledger.Store, clock tapclock.Clock, logger tap.Logger, pub Publisher) *Engine {
	if logger == nil {
		logger = tap.NopLogger{}
	}
	if pub == nil {
		pub = NopPublisher{}
	}
	return &Engine{
		log:       store.Log,
		idem:      store.Idempotency,
		holds:     holds.New(clock),
		clock:     clock,
		logger:    logger,
		pub:       pub,
		resources: make(map[tapid.ResourceId]*resourceState),
		allocs:    newAllocationIndex(),
	}
}

func (e *Engine) state(resource tapid.ResourceId) *resourceState {
	e.metaMu.Lock()
	defer e.metaMu.Unlock()
	rs, ok := e.resources[resource]
	if !ok {
		rs = &resourceState{supply: timeline.New(0), alloc: timeline.New(0)}
		e.resources[resource] = rs
	}
	return rs
}

// lockSet acquires every resource's write lock in global urn-lexicographic
// order (spec.md §5) to prevent deadlock across concurrent multi-resource
// commands, and returns an unlock function. Locks are released unordered.
func (e *Engine) lockSet(resources []tapid.ResourceId) (states map[tapid.ResourceId]*resourceState, unlock func()) {
	ordered := append([]tapid.ResourceId(nil), resources...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

	states = make(map[tapid.ResourceId]*resourceState, len(ordered))
	locked := make([]*resourceState, 0, len(ordered))
	for _, r := range ordered {
		if _, seen := states[r]; seen {
			continue // duplicate resource in the same command
		}
		rs := e.state(r)
		rs.mu.Lock()
		states[r] = rs
		locked = append(locked, rs)
	}
	return states, func() {
		for _, rs := range locked {
			rs.mu.Unlock()
		}
	}
}

// availability returns the Supply - (Allocation + ActiveHolds) timeline for
// resource, per the Availability definition in the glossary.
func (e *Engine) availability(rs *resourceState, resource tapid.ResourceId) *timeline.Timeline {
	activeHolds := e.holds.ActiveHoldTimeline(resource)
	return rs.supply.Merge(rs.alloc.Scale(-1)).Merge(activeHolds.Scale(-1))
}

// checkIdempotency looks up key (if non-empty) and returns (outcome, true,
// nil) on a verified replay, (nil, false, nil) when key is unused, or a
// conflict error when the replayed command's hash differs from the one on
// record.
func (e *Engine) checkIdempotency(ctx context.Context, key tapid.IdempotencyKey, cmd any) (*ledger.Outcome, bool, error) {
	if key == "" {
		return nil, false, nil
	}
	hash, err := ledger.HashCommand(cmd)
	if err != nil {
		return nil, false, taperrors.New(taperrors.Internal, "hash command: %v", err)
	}
	storedHash, outcome, ok := e.idem.Lookup(ctx, key)
	if !ok {
		return nil, false, nil
	}
	if storedHash != hash {
		return nil, false, taperrors.New(taperrors.Conflict, "idempotency key %q reused with a different command", key)
	}
	return &outcome, true, nil
}

func (e *Engine) recordIdempotency(ctx context.Context, key tapid.IdempotencyKey, cmd any, events []ledger.Event) {
	if key == "" {
		return
	}
	hash, err := ledger.HashCommand(cmd)
	if err != nil {
		return
	}
	e.idem.Record(ctx, key, hash, ledger.Outcome{Events: events})
}

func (e *Engine) publishAll(ctx context.Context, events []ledger.Event) {
	for _, evt := range events {
		e.pub.Publish(ctx, evt)
	}
}
