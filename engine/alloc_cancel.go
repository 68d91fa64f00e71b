package engine

import (
	"context"

	"github.com/tapfederation/tap/ledger"
	"github.com/tapfederation/tap/taperrors"
)

// AllocCancel implements spec.md §4.5.5: cancels a Committed Allocation,
// returning its demand to every reserved resource's availability for the
// interval it held. Canceling an already-Canceled allocation is a conflict.
func (e *Engine) AllocCancel(ctx context.Context, cmd AllocCancelCmd) ([]ledger.Event, error) {
	if cmd.AllocationId == "" {
		return nil, taperrors.New(taperrors.BadRequest, "allocationId is required")
	}

	a, ok := e.allocs.get(cmd.AllocationId)
	if !ok {
		return nil, taperrors.New(taperrors.NotFound, "allocation %s not found", cmd.AllocationId)
	}

	states, unlock := e.lockSet(a.Resources)
	defer unlock()

	if outcome, replay, err := e.checkIdempotency(ctx, cmd.Idem, cmd); err != nil {
		return nil, err
	} else if replay {
		return outcome.Events, nil
	}

	a, ok = e.allocs.cancel(cmd.AllocationId)
	if !ok {
		return nil, taperrors.New(taperrors.Conflict, "allocation %s is already canceled", cmd.AllocationId)
	}

	// The allocation timeline delta for each resource is applied
	// immediately before that resource's append, not all upfront, so a
	// failure partway through only needs undoing the resources already
	// processed (mirrors supply_delta.go's mutate-then-rollback pattern).
	events := make([]ledger.Event, 0, len(a.Resources))
	for i, r := range a.Resources {
		rs := states[r]
		rs.alloc.AddIntervalDelta(a.Interval, -a.Demand[r])

		evt, err := e.log.Append(ctx, r, func(seq uint64) ledger.Event {
			return ledger.Event{
				Type:       ledger.EventAllocCanceled,
				Ts:         e.clock.Now(),
				SourceIdem: cmd.Idem,
				Payload: ledger.AllocCanceledPayload{
					AllocationId: a.Id,
					Reason:       cmd.Reason,
				},
			}
		})
		if err != nil {
			// Undo every mutation already applied for this command: the
			// allocation timeline entries for resources processed so far
			// (including r itself) and the allocation's Canceled
			// transition, so engine state never diverges from what the
			// Event Log actually committed (spec.md §7, invariant 6).
			for _, undo := range a.Resources[:i+1] {
				states[undo].alloc.AddIntervalDelta(a.Interval, a.Demand[undo])
			}
			e.allocs.setState(a.Id, Committed)
			return nil, taperrors.New(taperrors.Internal, "append failed: %v", err)
		}
		events = append(events, evt)
	}

	e.recordIdempotency(ctx, cmd.Idem, cmd, events)
	e.publishAll(ctx, events)
	e.logger.Info("allocation canceled", "allocationId", a.Id)
	return events, nil
}
