// Package snapshot implements the Snapshot Projector: reconstructing a
// resource's Supply, Allocation, and active-Hold timelines by replaying its
// Event Log up to a Cut, and paginating the resulting Supply and Allocation
// step functions for the state.snapshot query (spec.md §4.6).
package snapshot

import (
	"context"
	"sort"

	"github.com/tapfederation/tap/cutmgr"
	"github.com/tapfederation/tap/ledger"
	"github.com/tapfederation/tap/tapid"
	"github.com/tapfederation/tap/taperrors"
	"github.com/tapfederation/tap/timeline"
)

// ResourceSnapshot is the replayed state of a single resource as of a Cut.
type ResourceSnapshot struct {
	Resource     tapid.ResourceId
	Supply       *timeline.Timeline
	Allocation   *timeline.Timeline
	ActiveHolds  *timeline.Timeline
	Availability *timeline.Timeline
}

type holdRecord struct {
	interval timeline.Interval
	demand   int64
}

type allocRecord struct {
	interval timeline.Interval
	demand   int64
}

// Projector rebuilds per-resource state by replaying a ledger.Log.
// Reconstructable rather than cached, per the event log's role as the
// single source of durable truth (spec.md §4.2).
type Projector struct {
	log ledger.Log
}

// New constructs a Projector reading from log.
func New(log ledger.Log) *Projector {
	return &Projector{log: log}
}

// Snapshot replays resource's event log up to cut's watermark for resource
// (or zero events if resource has no entry in the cut) and returns the
// reconstructed timelines.
func (p *Projector) Snapshot(ctx context.Context, resource tapid.ResourceId, cut cutmgr.Cut) (ResourceSnapshot, error) {
	hi, ok := cut.SeqHi[resource]
	snap := ResourceSnapshot{
		Resource:    resource,
		Supply:      timeline.New(0),
		Allocation:  timeline.New(0),
		ActiveHolds: timeline.New(0),
	}
	if !ok {
		snap.Availability = snap.Supply.Merge(snap.Allocation.Scale(-1)).Merge(snap.ActiveHolds.Scale(-1))
		return snap, nil
	}

	events, err := p.log.Read(ctx, resource, 0, 0)
	if err != nil {
		return ResourceSnapshot{}, taperrors.New(taperrors.Internal, "read log: %v", err)
	}

	openHolds := make(map[tapid.HoldId]holdRecord)
	allocs := make(map[tapid.AllocationId]allocRecord)

	for _, evt := range events {
		if evt.Seq > hi {
			break
		}
		switch p := evt.Payload.(type) {
		case ledger.SupplyDeltaAppliedPayload:
			snap.Supply.AddIntervalDelta(p.Interval, p.Delta)
		case ledger.HoldPlacedPayload:
			openHolds[p.HoldId] = holdRecord{interval: p.Interval, demand: p.Demand}
		case ledger.HoldReleasedPayload:
			delete(openHolds, p.HoldId)
		case ledger.AllocCommittedPayload:
			snap.Allocation.AddIntervalDelta(p.Interval, p.Demand)
			allocs[p.AllocationId] = allocRecord{interval: p.Interval, demand: p.Demand}
			delete(openHolds, p.HoldId)
		case ledger.AllocCanceledPayload:
			if rec, ok := allocs[p.AllocationId]; ok {
				snap.Allocation.AddIntervalDelta(rec.interval, -rec.demand)
				delete(allocs, p.AllocationId)
			}
		}
	}

	for _, h := range openHolds {
		snap.ActiveHolds.AddIntervalDelta(h.interval, h.demand)
	}

	snap.Availability = snap.Supply.Merge(snap.Allocation.Scale(-1)).Merge(snap.ActiveHolds.Scale(-1))
	return snap, nil
}

// Step is one constant-value run of the availability timeline within a
// page's window.
type Step struct {
	At    timeline.Instant
	Value int64
}

// Page is a single page of a paginated state.snapshot query. NextPageAfter
// is nil on the final page.
type Page struct {
	Steps         []Step
	NextPageAfter *timeline.Instant
}

// PageQuery selects a page of availability steps within window, strictly
// after PageAfter (or from window.Start if PageAfter is the zero Instant),
// capped at PageSize entries.
type PageQuery struct {
	Window    timeline.Interval
	PageAfter timeline.Instant
	PageSize  int
}

// DefaultPageSize is used when a PageQuery.PageSize is not positive.
const DefaultPageSize = 500

// Reply is the full state.snapshot wire reply (spec.md §4.7): Supply and
// Allocation within a window, each independently paginated, plus the cut's
// SeqHi echoed for the queried resource. Each page lists the timeline's
// value at every change point (Step), not the raw signed deltas.
type Reply struct {
	SeqHi      uint64
	Supply     Page
	Allocation Page
}

// Project builds the full state.snapshot reply for resource as of cut:
// Supply and Allocation, each paginated per q, plus cut's echoed SeqHi.
func Project(snap ResourceSnapshot, cut cutmgr.Cut, q PageQuery) Reply {
	return Reply{
		SeqHi:      cut.SeqHi[snap.Resource],
		Supply:     PageOf(snap.Supply, q),
		Allocation: PageOf(snap.Allocation, q),
	}
}

// PageOf renders steps of avail within q.Window, paginated per q. Stable
// pagination relies on the Timeline invariant that no two deltas share an
// At, so PageAfter unambiguously identifies a resume point.
func PageOf(avail *timeline.Timeline, q PageQuery) Page {
	size := q.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}

	clipped := avail.Clip(q.Window)
	var boundaries []timeline.Instant
	boundaries = append(boundaries, q.Window.Start)
	for _, d := range clipped.Deltas() {
		boundaries = append(boundaries, d.At)
	}

	sort.Slice(boundaries, func(i, j int) bool { return boundaries[i].Before(boundaries[j]) })

	start := q.PageAfter
	out := Page{}
	for _, at := range boundaries {
		if !at.After(start) {
			continue
		}
		out.Steps = append(out.Steps, Step{At: at, Value: avail.ValueAt(at)})
		if len(out.Steps) >= size {
			next := at
			out.NextPageAfter = &next
			break
		}
	}
	return out
}
