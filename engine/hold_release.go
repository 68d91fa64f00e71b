package engine

import (
	"context"

	"github.com/tapfederation/tap/holds"
	"github.com/tapfederation/tap/ledger"
	"github.com/tapfederation/tap/taperrors"
)

// HoldRelease implements spec.md §4.5.4: a client-initiated release of an
// Active hold. Releasing a Confirmed or Released hold is a conflict, and
// releasing a lazily-Expired one fails with expired_hold; neither is a
// silent no-op, since terminal states never transition again.
func (e *Engine) HoldRelease(ctx context.Context, cmd HoldReleaseCmd) ([]ledger.Event, error) {
	if cmd.HoldId == "" {
		return nil, taperrors.New(taperrors.BadRequest, "holdId is required")
	}

	h, ok := e.holds.Get(cmd.HoldId)
	if !ok {
		return nil, taperrors.New(taperrors.NotFound, "hold %s not found", cmd.HoldId)
	}

	_, unlock := e.lockSet(h.Resources)
	defer unlock()

	if outcome, replay, err := e.checkIdempotency(ctx, cmd.Idem, cmd); err != nil {
		return nil, err
	} else if replay {
		return outcome.Events, nil
	}

	h, ok = e.holds.Get(cmd.HoldId)
	if !ok {
		return nil, taperrors.New(taperrors.NotFound, "hold %s not found", cmd.HoldId)
	}
	if h.State == holds.Expired {
		return nil, taperrors.New(taperrors.ExpiredHold, "hold %s has expired", cmd.HoldId)
	}
	if h.State != holds.Active {
		return nil, taperrors.New(taperrors.Conflict, "hold %s is already %s", cmd.HoldId, h.State)
	}

	if _, err := e.holds.Transition(cmd.HoldId, holds.Released); err != nil {
		if err == holds.ErrTerminal {
			return nil, taperrors.New(taperrors.ExpiredHold, "hold %s has expired", cmd.HoldId)
		}
		return nil, taperrors.New(taperrors.Internal, "transition failed: %v", err)
	}

	events := make([]ledger.Event, 0, len(h.Resources))
	for _, r := range h.Resources {
		evt, err := e.log.Append(ctx, r, func(seq uint64) ledger.Event {
			return ledger.Event{
				Type:       ledger.EventHoldReleased,
				Ts:         e.clock.Now(),
				SourceIdem: cmd.Idem,
				Payload: ledger.HoldReleasedPayload{
					HoldId: h.Id,
					Reason: ledger.ReleaseReasonClient,
				},
			}
		})
		if err != nil {
			return nil, taperrors.New(taperrors.Internal, "append failed: %v", err)
		}
		events = append(events, evt)
	}

	e.recordIdempotency(ctx, cmd.Idem, cmd, events)
	e.publishAll(ctx, events)
	e.logger.Info("hold released", "holdId", h.Id)
	return events, nil
}
