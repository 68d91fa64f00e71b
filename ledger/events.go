package ledger

import (
	"time"

	"github.com/tapfederation/tap/tapid"
	"github.com/tapfederation/tap/timeline"
)

// EventType is a forever-verb discriminant for an emitted event. Per the
// wire protocol's evolution rules, these are append-only: a type is never
// renamed or reused once shipped.
type EventType string

const (
	EventSupplyDeltaApplied EventType = "supply.delta.applied"
	EventHoldPlaced         EventType = "hold.placed"
	EventHoldReleased       EventType = "hold.released"
	EventAllocCommitted     EventType = "alloc.committed"
	EventAllocCanceled      EventType = "alloc.canceled"
)

// SupplyDeltaAppliedPayload is the payload of an EventSupplyDeltaApplied event.
type SupplyDeltaAppliedPayload struct {
	Interval timeline.Interval `json:"interval"`
	Delta    int64             `json:"delta"`
}

// HoldPlacedPayload is the payload of an EventHoldPlaced event, echoed once
// per resource in the hold.
type HoldPlacedPayload struct {
	HoldId    tapid.HoldId    `json:"holdId"`
	Resources []tapid.ResourceId `json:"resources"`
	Interval  timeline.Interval  `json:"interval"`
	Demand    int64              `json:"demand"`
	ExpiresAt timeline.Instant   `json:"expiresAt"`
}

// HoldReleaseReason classifies why a hold left the Active state without
// being confirmed.
type HoldReleaseReason string

const (
	ReleaseReasonClient  HoldReleaseReason = "released"
	ReleaseReasonExpired HoldReleaseReason = "expired"
)

// HoldReleasedPayload is the payload of an EventHoldReleased event. An
// expiry is modeled as a hold.released event with Reason=expired, per the
// hold table's lazy-expiration design.
type HoldReleasedPayload struct {
	HoldId tapid.HoldId      `json:"holdId"`
	Reason HoldReleaseReason `json:"reason"`
}

// AllocCommittedPayload is the payload of an EventAllocCommitted event.
type AllocCommittedPayload struct {
	AllocationId tapid.AllocationId `json:"allocationId"`
	HoldId       tapid.HoldId       `json:"holdId"`
	Interval     timeline.Interval  `json:"interval"`
	Demand       int64              `json:"demand"`
}

// AllocCanceledPayload is the payload of an EventAllocCanceled event.
type AllocCanceledPayload struct {
	AllocationId tapid.AllocationId `json:"allocationId"`
	Reason       string             `json:"reason,omitempty"`
}

// Event is an immutable, ordered record in a single resource's log. Events
// are the Event Log's exclusive data: Holds and Allocations are merely a
// projection reconstructable by replaying them.
type Event struct {
	Resource   tapid.ResourceId        `json:"resource"`
	Seq        uint64                  `json:"seq"`
	Type       EventType               `json:"type"`
	Ts         time.Time               `json:"ts"`
	SourceIdem tapid.IdempotencyKey    `json:"sourceIdem,omitempty"`
	Payload    any                     `json:"payload"`
}
