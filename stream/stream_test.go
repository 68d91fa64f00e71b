package stream

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

const resource = tapid.ResourceId("urn:tap:resource:room-a")

func drain(t *testing.T, items <-chan Item, n int, timeout time.Duration) []Item {
	t.Helper()
	out := make([]Item, 0, n)
	deadline := time.After(timeout)
	for len(out) < n {
		select {
		case item, ok := <-items:
			if !ok {
				t.Fatalf("channel closed after %d of %d items", len(out), n)
			}
			out = append(out, item)
		case <-deadline:
			t.Fatalf("timed out after %d of %d items", len(out), n)
		}
	}
	return out
}

func TestLiveSubscriptionReceivesPublishedEvents(t *testing.T) {
	log := ledger.NewMemoryLog()
	mux := New(log, tapclock.System{}, time.Minute)

	sub := mux.Subscribe(context.Background(), resource, Options{})
	defer sub.Cancel()

	evt := ledger.Event{Resource: resource, Seq: 0, Type: ledger.EventSupplyDeltaApplied}
	mux.Publish(context.Background(), evt)

	items := drain(t, sub.Items(), 1, time.Second)
	require.NotNil(t, items[0].Event)
	assert.Equal(t, evt.Seq, items[0].Event.Seq)
}

func TestBootstrapReplaysHistoryWithoutDuplicates(t *testing.T) {
	log := ledger.NewMemoryLog()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := log.Append(ctx, resource, func(seq uint64) ledger.Event {
			return ledger.Event{Type: ledger.EventSupplyDeltaApplied}
		})
		require.NoError(t, err)
	}

	mux := New(log, tapclock.System{}, time.Minute)
	sub := mux.Subscribe(ctx, resource, Options{Bootstrap: true})
	defer sub.Cancel()

	items := drain(t, sub.Items(), 3, time.Second)
	for i, item := range items {
		require.NotNil(t, item.Event)
		assert.Equal(t, uint64(i), item.Event.Seq)
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	log := ledger.NewMemoryLog()
	mux := New(log, tapclock.System{}, time.Minute)

	sub := mux.Subscribe(context.Background(), resource, Options{})
	sub.Cancel()

	_, ok := <-sub.Items()
	assert.False(t, ok, "channel should close once cancelled")
}

func TestPublishDropsWhenSubscriberBufferIsFull(t *testing.T) {
	log := ledger.NewMemoryLog()
	mux := New(log, tapclock.System{}, time.Hour)

	sub := mux.Subscribe(context.Background(), resource, Options{})
	defer sub.Cancel()

	for i := 0; i < 4*subscriberBuffer; i++ {
		mux.Publish(context.Background(), ledger.Event{Resource: resource, Seq: uint64(i)})
	}

	assert.Greater(t, mux.Dropped(), uint64(0))
}
