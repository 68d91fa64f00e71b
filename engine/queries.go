package engine

import (
	"context"

	"github.com/tapfederation/tap/taperrors"
	"github.com/tapfederation/tap/tapid"
	"github.com/tapfederation/tap/timeline"
)

// FeasibleCheckCmd is a read-only feasible.check query: can every resource
// satisfy its demand across the interval right now, counting active holds.
type FeasibleCheckCmd struct {
	Resources []tapid.ResourceId `json:"resources"`
	Interval  timeline.Interval  `json:"interval"`
	Demands   []int64            `json:"demands"`
}

// FeasibleResult is the feasible.result reply.
type FeasibleResult struct {
	Feasible bool                          `json:"feasible"`
	Shortfall map[tapid.ResourceId]int64   `json:"shortfall,omitempty"`
}

// FeasibleCheck answers whether cmd.Resources could each support cmd.Demands
// over cmd.Interval if a hold.place were issued right now. It takes no
// resource locks: the answer is advisory, since availability can change
// before a subsequent hold.place lands.
func (e *Engine) FeasibleCheck(_ context.Context, cmd FeasibleCheckCmd) (FeasibleResult, error) {
	if len(cmd.Resources) != len(cmd.Demands) {
		return FeasibleResult{}, taperrors.New(taperrors.BadRequest, "demands must have one entry per resource")
	}

	result := FeasibleResult{Feasible: true}
	for i, r := range cmd.Resources {
		rs := e.state(r)
		avail := e.availability(rs, r)
		if min := avail.MinOver(cmd.Interval); min < cmd.Demands[i] {
			result.Feasible = false
			if result.Shortfall == nil {
				result.Shortfall = make(map[tapid.ResourceId]int64)
			}
			result.Shortfall[r] = cmd.Demands[i] - min
		}
	}
	return result, nil
}

// FreeBusyCmd is a read-only freebusy.get query over a single resource.
type FreeBusyCmd struct {
	Resource tapid.ResourceId  `json:"resource"`
	Interval timeline.Interval `json:"interval"`
}

// FreeBusySegment is one constant-availability run within the queried
// window.
type FreeBusySegment struct {
	Interval     timeline.Interval `json:"interval"`
	Availability int64             `json:"availability"`
}

// FreeBusyData is the freebusy.data reply: the availability timeline for
// Resource, clipped to Interval and rendered as constant-value segments.
type FreeBusyData struct {
	Resource tapid.ResourceId  `json:"resource"`
	Segments []FreeBusySegment `json:"segments"`
}

// FreeBusy answers freebusy.get by clipping the resource's availability
// timeline to cmd.Interval and materializing it as segments, one per
// constant-value run.
func (e *Engine) FreeBusy(_ context.Context, cmd FreeBusyCmd) (FreeBusyData, error) {
	rs := e.state(cmd.Resource)
	avail := e.availability(rs, cmd.Resource).Clip(cmd.Interval)

	boundaries := []timeline.Instant{cmd.Interval.Start}
	for _, d := range avail.Deltas() {
		boundaries = append(boundaries, d.At)
	}
	boundaries = append(boundaries, cmd.Interval.End)

	data := FreeBusyData{Resource: cmd.Resource}
	for i := 0; i < len(boundaries)-1; i++ {
		start, end := boundaries[i], boundaries[i+1]
		if !start.Before(end) {
			continue
		}
		data.Segments = append(data.Segments, FreeBusySegment{
			Interval:     timeline.Interval{Start: start, End: end},
			Availability: avail.ValueAt(start),
		})
	}
	return data, nil
}
