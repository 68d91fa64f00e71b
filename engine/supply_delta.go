package engine

import (
	"context"

	"github.com/tapfederation/tap/ledger"
	"github.com/tapfederation/tap/taperrors"
	"github.com/tapfederation/tap/tapid"
)

// SupplyDelta implements spec.md §4.5.1. A negative delta is rejected if it
// would drive Supply-Allocation negative anywhere in the interval.
func (e *Engine) SupplyDelta(ctx context.Context, cmd SupplyDeltaCmd) (ledger.Event, error) {
	if cmd.Interval.Start.Compare(cmd.Interval.End) >= 0 {
		return ledger.Event{}, taperrors.New(taperrors.BadRequest, "interval start must precede end")
	}

	states, unlock := e.lockSet([]tapid.ResourceId{cmd.Resource})
	defer unlock()
	rs := states[cmd.Resource]

	if outcome, replay, err := e.checkIdempotency(ctx, cmd.Idem, cmd); err != nil {
		return ledger.Event{}, err
	} else if replay {
		return outcome.Events[0], nil
	}

	if cmd.Delta < 0 {
		projected := rs.supply.Merge(rs.alloc.Scale(-1))
		projected.AddIntervalDelta(cmd.Interval, cmd.Delta)
		if projected.MinOver(cmd.Interval) < 0 {
			return ledger.Event{}, taperrors.New(taperrors.CapacityViolation, "supply reduction on %s would drive availability negative", cmd.Resource)
		}
	}

	rs.supply.AddIntervalDelta(cmd.Interval, cmd.Delta)

	evt, err := e.log.Append(ctx, cmd.Resource, func(seq uint64) ledger.Event {
		return ledger.Event{
			Type:       ledger.EventSupplyDeltaApplied,
			Ts:         e.clock.Now(),
			SourceIdem: cmd.Idem,
			Payload: ledger.SupplyDeltaAppliedPayload{
				Interval: cmd.Interval,
				Delta:    cmd.Delta,
			},
		}
	})
	if err != nil {
		// Roll back the projected timeline mutation: no partial state is
		// visible to callers on an append failure.
		rs.supply.AddIntervalDelta(cmd.Interval, -cmd.Delta)
		return ledger.Event{}, taperrors.New(taperrors.Internal, "append failed: %v", err)
	}

	e.recordIdempotency(ctx, cmd.Idem, cmd, []ledger.Event{evt})
	e.publishAll(ctx, []ledger.Event{evt})
	e.logger.Info("supply delta applied", "resource", cmd.Resource, "delta", cmd.Delta, "seq", evt.Seq)
	return evt, nil
}
