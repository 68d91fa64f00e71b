package holds

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tapfederation/tap/tapclock"
	"github.com/tapfederation/tap/tapid"
	"github.com/tapfederation/tap/timeline"
)

const room = tapid.ResourceId("urn:tap:resource:room-1")

func mustInterval(t *testing.T, start, end string) timeline.Interval {
	t.Helper()
	s, err := timeline.ParseInstant(start)
	require.NoError(t, err)
	e, err := timeline.ParseInstant(end)
	require.NoError(t, err)
	iv, err := timeline.NewInterval(s, e)
	require.NoError(t, err)
	return iv
}

func TestActiveHoldBlocksAvailability(t *testing.T) {
	clock := tapclock.NewFake(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))
	table := New(clock)

	iv := mustInterval(t, "2026-01-01T10:00:00Z", "2026-01-01T11:00:00Z")
	h := &Hold{
		Id:        tapid.NewHoldId(),
		Resources: []tapid.ResourceId{room},
		Interval:  iv,
		Demand:    map[tapid.ResourceId]int64{room: 1},
		ExpiresAt: timeline.NewInstant(clock.Now().Add(10 * time.Minute)),
		State:     Active,
	}
	table.Put(h)

	tl := table.ActiveHoldTimeline(room)
	mid, _ := timeline.ParseInstant("2026-01-01T10:30:00Z")
	assert.Equal(t, int64(1), tl.ValueAt(mid))
}

func TestExpiredHoldNeverBlocks(t *testing.T) {
	clock := tapclock.NewFake(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))
	table := New(clock)

	iv := mustInterval(t, "2026-01-01T10:00:00Z", "2026-01-01T11:00:00Z")
	h := &Hold{
		Id:        tapid.NewHoldId(),
		Resources: []tapid.ResourceId{room},
		Interval:  iv,
		Demand:    map[tapid.ResourceId]int64{room: 1},
		ExpiresAt: timeline.NewInstant(clock.Now().Add(1 * time.Second)),
		State:     Active,
	}
	table.Put(h)

	clock.Advance(2 * time.Second)

	active := table.ActiveHolds(room)
	assert.Empty(t, active)

	got, ok := table.Get(h.Id)
	require.True(t, ok)
	assert.Equal(t, Expired, got.State)
}

func TestTerminalImmutability(t *testing.T) {
	clock := tapclock.NewFake(time.Now())
	table := New(clock)
	h := &Hold{
		Id:        tapid.NewHoldId(),
		Resources: []tapid.ResourceId{room},
		Interval:  mustInterval(t, "2026-01-01T10:00:00Z", "2026-01-01T11:00:00Z"),
		Demand:    map[tapid.ResourceId]int64{room: 1},
		ExpiresAt: timeline.NewInstant(clock.Now().Add(time.Hour)),
		State:     Active,
	}
	table.Put(h)

	_, err := table.Transition(h.Id, Released)
	require.NoError(t, err)

	_, err = table.Transition(h.Id, Confirmed)
	assert.ErrorIs(t, err, ErrTerminal)
}

func TestExpireLapsedReturnsOnlyJustTransitioned(t *testing.T) {
	clock := tapclock.NewFake(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))
	table := New(clock)
	h := &Hold{
		Id:        tapid.NewHoldId(),
		Resources: []tapid.ResourceId{room},
		Interval:  mustInterval(t, "2026-01-01T10:00:00Z", "2026-01-01T11:00:00Z"),
		Demand:    map[tapid.ResourceId]int64{room: 1},
		ExpiresAt: timeline.NewInstant(clock.Now().Add(time.Second)),
		State:     Active,
	}
	table.Put(h)
	clock.Advance(2 * time.Second)

	expired := table.ExpireLapsed(room)
	require.Len(t, expired, 1)

	assert.Empty(t, table.ExpireLapsed(room))
}
