package engine

import (
	"context"

	"github.com/tapfederation/tap/holds"
	"github.com/tapfederation/tap/ledger"
	"github.com/tapfederation/tap/taperrors"
	"github.com/tapfederation/tap/tapid"
	"github.com/tapfederation/tap/timeline"
)

// HoldPlaceResult is the outcome of a successful hold.place command.
type HoldPlaceResult struct {
	HoldId tapid.HoldId
	Events []ledger.Event
}

// HoldPlace implements spec.md §4.5.2. Every resource's availability is
// checked before any event is emitted, so a failure on one resource in a
// multi-resource hold leaves every resource untouched (scenario S5).
func (e *Engine) HoldPlace(ctx context.Context, cmd HoldPlaceCmd) (HoldPlaceResult, error) {
	if cmd.Interval.Start.Compare(cmd.Interval.End) >= 0 {
		return HoldPlaceResult{}, taperrors.New(taperrors.BadRequest, "interval start must precede end")
	}
	if len(cmd.Resources) != len(cmd.Demands) {
		return HoldPlaceResult{}, taperrors.New(taperrors.BadRequest, "demands must have one entry per resource")
	}
	if len(cmd.Resources) == 0 {
		return HoldPlaceResult{}, taperrors.New(taperrors.BadRequest, "at least one resource is required")
	}
	if cmd.TTLSec <= 0 {
		return HoldPlaceResult{}, taperrors.New(taperrors.BadRequest, "ttlSec must be positive")
	}

	states, unlock := e.lockSet(cmd.Resources)
	defer unlock()

	if outcome, replay, err := e.checkIdempotency(ctx, cmd.Idem, cmd); err != nil {
		return HoldPlaceResult{}, err
	} else if replay {
		return HoldPlaceResult{HoldId: holdIdFromEvents(outcome.Events), Events: outcome.Events}, nil
	}

	demand := make(map[tapid.ResourceId]int64, len(cmd.Resources))
	for i, r := range cmd.Resources {
		demand[r] = cmd.Demands[i]
	}

	for _, r := range cmd.Resources {
		avail := e.availability(states[r], r)
		if avail.MinOver(cmd.Interval) < demand[r] {
			return HoldPlaceResult{}, taperrors.New(taperrors.CapacityViolation, "resource %s cannot satisfy demand %d over [%s,%s)", r, demand[r], cmd.Interval.Start, cmd.Interval.End)
		}
	}

	holdId := tapid.NewHoldId()
	expiresAt := timeline.NewInstant(e.clock.Now().Add(durationFromSeconds(cmd.TTLSec)))

	e.holds.Put(&holds.Hold{
		Id:        holdId,
		Resources: cmd.Resources,
		Interval:  cmd.Interval,
		Demand:    demand,
		ExpiresAt: expiresAt,
		State:     holds.Active,
	})

	events := make([]ledger.Event, 0, len(cmd.Resources))
	for _, r := range cmd.Resources {
		evt, err := e.log.Append(ctx, r, func(seq uint64) ledger.Event {
			return ledger.Event{
				Type:       ledger.EventHoldPlaced,
				Ts:         e.clock.Now(),
				SourceIdem: cmd.Idem,
				Payload: ledger.HoldPlacedPayload{
					HoldId:    holdId,
					Resources: cmd.Resources,
					Interval:  cmd.Interval,
					Demand:    demand[r],
					ExpiresAt: expiresAt,
				},
			}
		})
		if err != nil {
			// Undo the registration: no resource may treat this hold's
			// demand as active when no hold.placed event reached the log
			// for it (spec.md §7, invariant 6).
			e.holds.Remove(holdId)
			return HoldPlaceResult{}, taperrors.New(taperrors.Internal, "append failed: %v", err)
		}
		events = append(events, evt)
	}

	e.recordIdempotency(ctx, cmd.Idem, cmd, events)
	e.publishAll(ctx, events)
	e.logger.Info("hold placed", "holdId", holdId, "resources", cmd.Resources)
	return HoldPlaceResult{HoldId: holdId, Events: events}, nil
}

func holdIdFromEvents(events []ledger.Event) tapid.HoldId {
	for _, evt := range events {
		if p, ok := evt.Payload.(ledger.HoldPlacedPayload); ok {
			return p.HoldId
		}
	}
	return ""
}
