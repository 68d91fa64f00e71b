package cutmgr

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tapfederation/tap/ledger"
	"github.com/tapfederation/tap/tapclock"
	"github.com/tapfederation/tap/tapid"
)

func TestCreateCutSnapshotsSeqHiPerResource(t *testing.T) {
	log := ledger.NewMemoryLog()
	ctx := context.Background()
	roomA := tapid.ResourceId("urn:tap:resource:room-a")
	roomB := tapid.ResourceId("urn:tap:resource:room-b")

	_, err := log.Append(ctx, roomA, func(seq uint64) ledger.Event { return ledger.Event{Seq: seq} })
	require.NoError(t, err)
	_, err = log.Append(ctx, roomA, func(seq uint64) ledger.Event { return ledger.Event{Seq: seq} })
	require.NoError(t, err)

	mgr := New(log, tapclock.NewFake(time.Now()), time.Hour)
	cut, err := mgr.Create(ctx, []tapid.ResourceId{roomA, roomB})
	require.NoError(t, err)

	assert.Equal(t, uint64(1), cut.SeqHi[roomA])
	_, hasB := cut.SeqHi[roomB]
	assert.False(t, hasB, "roomB has no events, so it must be absent from the watermark")

	got, ok := mgr.Get(cut.Id)
	assert.True(t, ok)
	assert.Equal(t, cut.Id, got.Id)
}

func TestCreateCutRejectsEmptyResourceList(t *testing.T) {
	mgr := New(ledger.NewMemoryLog(), tapclock.NewFake(time.Now()), time.Hour)
	_, err := mgr.Create(context.Background(), nil)
	assert.Error(t, err)
}

func TestCreateEvictsCutsOlderThanRetention(t *testing.T) {
	log := ledger.NewMemoryLog()
	ctx := context.Background()
	roomA := tapid.ResourceId("urn:tap:resource:room-a")

	clock := tapclock.NewFake(time.Now())
	mgr := New(log, clock, 10*time.Second)

	old, err := mgr.Create(ctx, []tapid.ResourceId{roomA})
	require.NoError(t, err)

	clock.Advance(11 * time.Second)

	// A second Create runs the lazy eviction sweep before minting the new
	// cut, so the stale one is gone by the time we look it up.
	fresh, err := mgr.Create(ctx, []tapid.ResourceId{roomA})
	require.NoError(t, err)

	_, ok := mgr.Get(old.Id)
	assert.False(t, ok, "cut older than the retention window must be evicted")

	_, ok = mgr.Get(fresh.Id)
	assert.True(t, ok, "the cut just minted must still be retrievable")
}
