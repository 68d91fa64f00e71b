package engine

import (
	"github.com/tapfederation/tap/tapid"
	"github.com/tapfederation/tap/timeline"
)

// SupplyDeltaCmd implements spec.md §4.5.1.
type SupplyDeltaCmd struct {
	Resource tapid.ResourceId     `json:"resource"`
	Interval timeline.Interval    `json:"interval"`
	Delta    int64                `json:"delta"`
	Idem     tapid.IdempotencyKey `json:"idem"`
}

// HoldPlaceCmd implements spec.md §4.5.2. Demands must be the same length
// as Resources: Demands[i] is the capacity demanded of Resources[i].
type HoldPlaceCmd struct {
	Resources []tapid.ResourceId   `json:"resources"`
	Interval  timeline.Interval    `json:"interval"`
	Demands   []int64              `json:"demands"`
	TTLSec    int64                `json:"ttlSec"`
	Idem      tapid.IdempotencyKey `json:"idem"`
}

// HoldConfirmCmd implements spec.md §4.5.3.
type HoldConfirmCmd struct {
	HoldId tapid.HoldId         `json:"holdId"`
	Idem   tapid.IdempotencyKey `json:"idem"`
}

// HoldReleaseCmd implements spec.md §4.5.4.
type HoldReleaseCmd struct {
	HoldId tapid.HoldId         `json:"holdId"`
	Reason string               `json:"reason,omitempty"`
	Idem   tapid.IdempotencyKey `json:"idem"`
}

// AllocCancelCmd implements spec.md §4.5.5.
type AllocCancelCmd struct {
	AllocationId tapid.AllocationId   `json:"allocationId"`
	Reason       string               `json:"reason,omitempty"`
	Idem         tapid.IdempotencyKey `json:"idem"`
}
