package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tapfederation/tap/ledger"
	"github.com/tapfederation/tap/taperrors"
	"github.com/tapfederation/tap/tapclock"
	"github.com/tapfederation/tap/tapid"
	"github.com/tapfederation/tap/timeline"
)

const (
	roomA = tapid.ResourceId("urn:tap:resource:room-a")
	roomB = tapid.ResourceId("urn:tap:resource:room-b")
)

func newTestEngine(t *testing.T) (*Engine, *tapclock.Fake) {
	t.Helper()
	clock := tapclock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	e := New(ledger.NewMemoryStore(), clock, nil, nil)
	return e, clock
}

func mustInterval(t *testing.T, start, dur time.Duration, clock *tapclock.Fake) timeline.Interval {
	t.Helper()
	base := clock.Now()
	iv, err := timeline.NewInterval(
		timeline.NewInstant(base.Add(start)),
		timeline.NewInstant(base.Add(start+dur)),
	)
	require.NoError(t, err)
	return iv
}

func TestSupplyDeltaThenHoldPlaceAndConfirm(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()
	window := mustInterval(t, 0, time.Hour, clock)

	_, err := e.SupplyDelta(ctx, SupplyDeltaCmd{Resource: roomA, Interval: window, Delta: 5})
	require.NoError(t, err)

	res, err := e.HoldPlace(ctx, HoldPlaceCmd{
		Resources: []tapid.ResourceId{roomA},
		Interval:  window,
		Demands:   []int64{3},
		TTLSec:    60,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.HoldId)

	confirmRes, err := e.HoldConfirm(ctx, HoldConfirmCmd{HoldId: res.HoldId})
	require.NoError(t, err)
	assert.NotEmpty(t, confirmRes.AllocationId)

	rs := e.state(roomA)
	avail := e.availability(rs, roomA)
	assert.Equal(t, int64(2), avail.MinOver(window))
}

func TestHoldExpiryFreesCapacity(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()
	window := mustInterval(t, 0, time.Hour, clock)

	_, err := e.SupplyDelta(ctx, SupplyDeltaCmd{Resource: roomA, Interval: window, Delta: 2})
	require.NoError(t, err)

	_, err = e.HoldPlace(ctx, HoldPlaceCmd{
		Resources: []tapid.ResourceId{roomA},
		Interval:  window,
		Demands:   []int64{2},
		TTLSec:    1,
	})
	require.NoError(t, err)

	// Fully booked while the hold is active.
	_, err = e.HoldPlace(ctx, HoldPlaceCmd{
		Resources: []tapid.ResourceId{roomA},
		Interval:  window,
		Demands:   []int64{1},
		TTLSec:    60,
	})
	require.Error(t, err)
	assert.Equal(t, taperrors.CapacityViolation, taperrors.CodeOf(err))

	clock.Advance(2 * time.Second)

	// The lapsed hold no longer counts against availability.
	res, err := e.HoldPlace(ctx, HoldPlaceCmd{
		Resources: []tapid.ResourceId{roomA},
		Interval:  window,
		Demands:   []int64{1},
		TTLSec:    60,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.HoldId)
}

func TestHoldConfirmAfterExpiryIsRejected(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()
	window := mustInterval(t, 0, time.Hour, clock)

	_, err := e.SupplyDelta(ctx, SupplyDeltaCmd{Resource: roomA, Interval: window, Delta: 1})
	require.NoError(t, err)

	res, err := e.HoldPlace(ctx, HoldPlaceCmd{
		Resources: []tapid.ResourceId{roomA},
		Interval:  window,
		Demands:   []int64{1},
		TTLSec:    1,
	})
	require.NoError(t, err)

	clock.Advance(2 * time.Second)

	_, err = e.HoldConfirm(ctx, HoldConfirmCmd{HoldId: res.HoldId})
	require.Error(t, err)
	assert.Equal(t, taperrors.ExpiredHold, taperrors.CodeOf(err))
}

func TestSupplyDeltaIdempotentReplayReturnsSameEvent(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()
	window := mustInterval(t, 0, time.Hour, clock)

	cmd := SupplyDeltaCmd{Resource: roomA, Interval: window, Delta: 5, Idem: "K1"}
	first, err := e.SupplyDelta(ctx, cmd)
	require.NoError(t, err)

	second, err := e.SupplyDelta(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, first.Seq, second.Seq)

	rs := e.state(roomA)
	assert.Equal(t, int64(5), rs.supply.ValueAt(window.Start))
}

func TestIdempotencyKeyReuseWithDifferentCommandConflicts(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()
	window := mustInterval(t, 0, time.Hour, clock)

	_, err := e.SupplyDelta(ctx, SupplyDeltaCmd{Resource: roomA, Interval: window, Delta: 5, Idem: "K1"})
	require.NoError(t, err)

	_, err = e.SupplyDelta(ctx, SupplyDeltaCmd{Resource: roomA, Interval: window, Delta: 6, Idem: "K1"})
	require.Error(t, err)
	assert.Equal(t, taperrors.Conflict, taperrors.CodeOf(err))
}

func TestMultiResourceHoldPlaceIsAllOrNothing(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()
	window := mustInterval(t, 0, time.Hour, clock)

	_, err := e.SupplyDelta(ctx, SupplyDeltaCmd{Resource: roomA, Interval: window, Delta: 5})
	require.NoError(t, err)
	// roomB has no supply at all: demand 1 is infeasible.

	_, err = e.HoldPlace(ctx, HoldPlaceCmd{
		Resources: []tapid.ResourceId{roomA, roomB},
		Interval:  window,
		Demands:   []int64{2, 1},
		TTLSec:    60,
	})
	require.Error(t, err)
	assert.Equal(t, taperrors.CapacityViolation, taperrors.CodeOf(err))

	// roomA must show no trace of the failed hold.
	rs := e.state(roomA)
	avail := e.availability(rs, roomA)
	assert.Equal(t, int64(5), avail.MinOver(window))
}

func TestAllocCancelReturnsCapacity(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()
	window := mustInterval(t, 0, time.Hour, clock)

	_, err := e.SupplyDelta(ctx, SupplyDeltaCmd{Resource: roomA, Interval: window, Delta: 3})
	require.NoError(t, err)

	res, err := e.HoldPlace(ctx, HoldPlaceCmd{
		Resources: []tapid.ResourceId{roomA},
		Interval:  window,
		Demands:   []int64{3},
		TTLSec:    60,
	})
	require.NoError(t, err)

	confirmRes, err := e.HoldConfirm(ctx, HoldConfirmCmd{HoldId: res.HoldId})
	require.NoError(t, err)

	rs := e.state(roomA)
	assert.Equal(t, int64(0), e.availability(rs, roomA).MinOver(window))

	_, err = e.AllocCancel(ctx, AllocCancelCmd{AllocationId: confirmRes.AllocationId})
	require.NoError(t, err)
	assert.Equal(t, int64(3), e.availability(rs, roomA).MinOver(window))

	_, err = e.AllocCancel(ctx, AllocCancelCmd{AllocationId: confirmRes.AllocationId})
	require.Error(t, err)
	assert.Equal(t, taperrors.Conflict, taperrors.CodeOf(err))
}

func TestHoldReleaseReturnsCapacity(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()
	window := mustInterval(t, 0, time.Hour, clock)

	_, err := e.SupplyDelta(ctx, SupplyDeltaCmd{Resource: roomA, Interval: window, Delta: 1})
	require.NoError(t, err)

	res, err := e.HoldPlace(ctx, HoldPlaceCmd{
		Resources: []tapid.ResourceId{roomA},
		Interval:  window,
		Demands:   []int64{1},
		TTLSec:    60,
	})
	require.NoError(t, err)

	events, err := e.HoldRelease(ctx, HoldReleaseCmd{HoldId: res.HoldId})
	require.NoError(t, err)
	require.Len(t, events, 1)

	rs := e.state(roomA)
	assert.Equal(t, int64(1), e.availability(rs, roomA).MinOver(window))

	_, err = e.HoldRelease(ctx, HoldReleaseCmd{HoldId: res.HoldId})
	require.Error(t, err)
	assert.Equal(t, taperrors.Conflict, taperrors.CodeOf(err))
}

func TestSupplyReductionRejectedWhenItWouldGoNegative(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()
	window := mustInterval(t, 0, time.Hour, clock)

	_, err := e.SupplyDelta(ctx, SupplyDeltaCmd{Resource: roomA, Interval: window, Delta: 2})
	require.NoError(t, err)

	_, err = e.SupplyDelta(ctx, SupplyDeltaCmd{Resource: roomA, Interval: window, Delta: -3})
	require.Error(t, err)
	assert.Equal(t, taperrors.CapacityViolation, taperrors.CodeOf(err))
}

func TestSweepExpiredEmitsReleaseEvents(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()
	window := mustInterval(t, 0, time.Hour, clock)

	_, err := e.SupplyDelta(ctx, SupplyDeltaCmd{Resource: roomA, Interval: window, Delta: 1})
	require.NoError(t, err)

	_, err = e.HoldPlace(ctx, HoldPlaceCmd{
		Resources: []tapid.ResourceId{roomA},
		Interval:  window,
		Demands:   []int64{1},
		TTLSec:    1,
	})
	require.NoError(t, err)

	clock.Advance(2 * time.Second)

	events, err := e.SweepExpired(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ledger.EventHoldReleased, events[0].Type)
}
