package engine

import (
	"context"

	"github.com/tapfederation/tap/ledger"
	"github.com/tapfederation/tap/tapid"
)

// SweepExpired scans every resource the Hold Table has seen and
// transitions any Active hold whose TTL has lapsed to Expired, emitting
// hold.released{reason=expired} to every resource the hold named — not just
// the one resource whose sweep iteration happened to observe the lapse —
// the same way hold.release does (hold_release.go). ExpireLapsed flips a
// hold's state to Expired globally the first time any one of its resources
// is swept, so without fanning the release event out to every resource, a
// replay of the others would never show the hold ending. This is the
// background sweep path (spec.md §4.4): correctness never depends on it
// running, since ActiveHolds/ActiveHoldTimeline already reapply the TTL
// filter on every read. It is the only path that appends
// hold.released{reason=expired}: reads and commands that observe a lapsed
// hold report it as Expired but append no event.
func (e *Engine) SweepExpired(ctx context.Context) ([]ledger.Event, error) {
	var events []ledger.Event
	for _, r := range e.holds.Resources() {
		_, unlock := e.lockSet([]tapid.ResourceId{r})
		justExpired := e.holds.ExpireLapsed(r)
		unlock()

		for _, h := range justExpired {
			_, unlockAll := e.lockSet(h.Resources)
			for _, hr := range h.Resources {
				evt, err := e.log.Append(ctx, hr, func(seq uint64) ledger.Event {
					return ledger.Event{
						Type: ledger.EventHoldReleased,
						Ts:   e.clock.Now(),
						Payload: ledger.HoldReleasedPayload{
							HoldId: h.Id,
							Reason: ledger.ReleaseReasonExpired,
						},
					}
				})
				if err != nil {
					continue
				}
				events = append(events, evt)
				e.publishAll(ctx, []ledger.Event{evt})
			}
			unlockAll()
		}
	}
	e.logger.Debug("sweep completed", "expired", len(events))
	return events, nil
}
