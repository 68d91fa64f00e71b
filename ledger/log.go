// Package ledger implements the append-only, per-resource Event Log and its
// colocated Idempotency Store (spec.md §4.2-§4.3). It is the sole owner of
// Events; Holds and Allocations are state the Allocation Engine projects
// from replaying them.
//
// The in-memory implementation is grounded on the example pack's
// mutex-plus-slice append-only ledger idiom (index map keyed by id,
// deterministic ordering, deep-copy on read) generalized to per-resource
// partitions with strictly monotone sequence numbers.
package ledger

import (
	"context"
	"errors"
	"sync"

	"github.com/tapfederation/tap/tapid"
)

// ErrAppendFailed is a retryable fault: append did not happen and no state
// changed. Real backing stores return this (wrapped) on durability
// failures; the in-memory Log never returns it on its own.
var ErrAppendFailed = errors.New("ledger: append failed")

// Log is the append-only per-resource Event Log contract. Implementations
// must guarantee: strict per-resource seq monotonicity with no gaps,
// atomicity of a single Append with respect to concurrent Appends on the
// same resource, and that Append only returns once the record is durable.
type Log interface {
	// Append assigns the next seq for resource, builds the event via
	// build(seq), stores it, and returns the stored event. build must be
	// side-effect-free beyond constructing the Event, since seq assignment
	// and storage happen atomically with respect to other Appends on the
	// same resource.
	Append(ctx context.Context, resource tapid.ResourceId, build func(seq uint64) Event) (Event, error)

	// Read returns, in order, events for resource with Seq > afterSeq, up
	// to limit entries (limit <= 0 means no limit). afterSeq 0 reads from
	// the start of the log, seq 0 included.
	Read(ctx context.Context, resource tapid.ResourceId, afterSeq uint64, limit int) ([]Event, error)

	// SeqHi returns the latest committed seq for resource and whether any
	// event has ever been appended (false if the resource has no events).
	SeqHi(ctx context.Context, resource tapid.ResourceId) (seq uint64, ok bool)
}

type resourcePartition struct {
	mu     sync.RWMutex
	events []Event
}

// MemoryLog is an in-memory Log, partitioned per resource, safe for
// concurrent use. It is the reference backing store the core ships with;
// persistence backends beyond this abstract interface are an integrator
// concern (spec.md §1).
type MemoryLog struct {
	mu         sync.Mutex
	partitions map[tapid.ResourceId]*resourcePartition
}

// NewMemoryLog constructs an empty MemoryLog.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{partitions: make(map[tapid.ResourceId]*resourcePartition)}
}

func (l *MemoryLog) partition(resource tapid.ResourceId) *resourcePartition {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.partitions[resource]
	if !ok {
		p = &resourcePartition{}
		l.partitions[resource] = p
	}
	return p
}

func (l *MemoryLog) Append(_ context.Context, resource tapid.ResourceId, build func(seq uint64) Event) (Event, error) {
	p := l.partition(resource)
	p.mu.Lock()
	defer p.mu.Unlock()

	var seq uint64
	if n := len(p.events); n > 0 {
		seq = p.events[n-1].Seq + 1
	}
	evt := build(seq)
	evt.Resource = resource
	evt.Seq = seq
	p.events = append(p.events, evt)
	return evt, nil
}

func (l *MemoryLog) Read(_ context.Context, resource tapid.ResourceId, afterSeq uint64, limit int) ([]Event, error) {
	p := l.partition(resource)
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Event, 0, 8)
	for _, e := range p.events {
		if afterSeq > 0 && e.Seq <= afterSeq {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (l *MemoryLog) SeqHi(_ context.Context, resource tapid.ResourceId) (uint64, bool) {
	p := l.partition(resource)
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.events) == 0 {
		return 0, false
	}
	return p.events[len(p.events)-1].Seq, true
}
