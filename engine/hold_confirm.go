package engine

import (
	"context"

	"github.com/tapfederation/tap/holds"
	"github.com/tapfederation/tap/ledger"
	"github.com/tapfederation/tap/taperrors"
	"github.com/tapfederation/tap/tapid"
)

// HoldConfirmResult is the outcome of a successful hold.confirm command.
type HoldConfirmResult struct {
	AllocationId tapid.AllocationId
	Events       []ledger.Event
}

// HoldConfirm implements spec.md §4.5.3: an Active, unexpired hold becomes a
// committed Allocation across every resource it reserved. The wire protocol
// carries no actor on confirm, so no actor-match check is performed
// (supplemented-features decision recorded in SPEC_FULL.md).
func (e *Engine) HoldConfirm(ctx context.Context, cmd HoldConfirmCmd) (HoldConfirmResult, error) {
	if cmd.HoldId == "" {
		return HoldConfirmResult{}, taperrors.New(taperrors.BadRequest, "holdId is required")
	}

	h, ok := e.holds.Get(cmd.HoldId)
	if !ok {
		return HoldConfirmResult{}, taperrors.New(taperrors.NotFound, "hold %s not found", cmd.HoldId)
	}

	states, unlock := e.lockSet(h.Resources)
	defer unlock()

	if outcome, replay, err := e.checkIdempotency(ctx, cmd.Idem, cmd); err != nil {
		return HoldConfirmResult{}, err
	} else if replay {
		return HoldConfirmResult{AllocationId: allocationIdFromEvents(outcome.Events), Events: outcome.Events}, nil
	}

	// Re-read under the resource locks: the hold may have expired or been
	// released between the lock-free Get above and acquiring the locks.
	h, ok = e.holds.Get(cmd.HoldId)
	if !ok {
		return HoldConfirmResult{}, taperrors.New(taperrors.NotFound, "hold %s not found", cmd.HoldId)
	}
	if h.State == holds.Expired {
		return HoldConfirmResult{}, taperrors.New(taperrors.ExpiredHold, "hold %s has expired", cmd.HoldId)
	}
	if h.State != holds.Active {
		return HoldConfirmResult{}, taperrors.New(taperrors.Conflict, "hold %s is already %s", cmd.HoldId, h.State)
	}

	if _, err := e.holds.Transition(cmd.HoldId, holds.Confirmed); err != nil {
		if err == holds.ErrTerminal {
			return HoldConfirmResult{}, taperrors.New(taperrors.ExpiredHold, "hold %s has expired", cmd.HoldId)
		}
		return HoldConfirmResult{}, taperrors.New(taperrors.Internal, "transition failed: %v", err)
	}

	allocId := tapid.NewAllocationId()

	// The allocation timeline delta for each resource is applied
	// immediately before that resource's append, not all upfront, so a
	// failure partway through only needs undoing the resources already
	// processed (mirrors supply_delta.go's mutate-then-rollback pattern).
	events := make([]ledger.Event, 0, len(h.Resources))
	for i, r := range h.Resources {
		rs := states[r]
		rs.alloc.AddIntervalDelta(h.Interval, h.Demand[r])

		evt, err := e.log.Append(ctx, r, func(seq uint64) ledger.Event {
			return ledger.Event{
				Type:       ledger.EventAllocCommitted,
				Ts:         e.clock.Now(),
				SourceIdem: cmd.Idem,
				Payload: ledger.AllocCommittedPayload{
					AllocationId: allocId,
					HoldId:       h.Id,
					Interval:     h.Interval,
					Demand:       h.Demand[r],
				},
			}
		})
		if err != nil {
			// Undo every mutation already applied for this command: the
			// allocation timeline entries for resources processed so far
			// (including r itself) and the hold's transition, so the
			// engine's projected state never diverges from what the Event
			// Log actually committed (spec.md §7, invariant 6).
			for _, undo := range h.Resources[:i+1] {
				states[undo].alloc.AddIntervalDelta(h.Interval, -h.Demand[undo])
			}
			e.holds.SetState(h.Id, holds.Active)
			return HoldConfirmResult{}, taperrors.New(taperrors.Internal, "append failed: %v", err)
		}
		events = append(events, evt)
	}

	e.allocs.put(&Allocation{
		Id:        allocId,
		HoldId:    h.Id,
		Resources: h.Resources,
		Interval:  h.Interval,
		Demand:    h.Demand,
		State:     Committed,
	})

	e.recordIdempotency(ctx, cmd.Idem, cmd, events)
	e.publishAll(ctx, events)
	e.logger.Info("hold confirmed", "holdId", h.Id, "allocationId", allocId)
	return HoldConfirmResult{AllocationId: allocId, Events: events}, nil
}

func allocationIdFromEvents(events []ledger.Event) tapid.AllocationId {
	for _, evt := range events {
		if p, ok := evt.Payload.(ledger.AllocCommittedPayload); ok {
			return p.AllocationId
		}
	}
	return ""
}
