// Package stream implements the Stream Multiplexer: per-subscriber fan-out
// of committed events with resume-after offsets, an optional bootstrap
// replay, and heartbeats (spec.md §4.7).
//
// Grounded on modules/eventbus's MemoryEventBus: a per-topic subscriber map
// guarded by a RWMutex, a buffered per-subscriber channel, and a dedicated
// goroutine per subscription that forwards from an internal channel to the
// one exposed to the caller. Generalized from topic-string pub/sub to
// per-resource tails with seq-based resume, since the wire protocol resumes
// a stream by seq, not by topic name.
package stream

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tapfederation/tap/ledger"
	"github.com/tapfederation/tap/tapclock"
	"github.com/tapfederation/tap/tapid"
)

// MinHeartbeat and MaxHeartbeat bound the heartbeat interval a subscriber
// may request, per spec.md's clamp policy.
const (
	MinHeartbeat = time.Second
	MaxHeartbeat = 300 * time.Second
)

// Item is a single value delivered on a subscription's channel: either an
// event or a heartbeat carrying no event.
type Item struct {
	Event     *ledger.Event
	Heartbeat bool
	Ts        time.Time
}

// Options configures a Subscribe call.
type Options struct {
	// AfterSeq is where the Bootstrap replay starts: strictly after this
	// seq (0 means from the start of the resource's log). It has no effect
	// without Bootstrap; live delivery is not filtered by it.
	AfterSeq uint64
	// Bootstrap replays every event with Seq > AfterSeq before switching to
	// live delivery. Without it, only events published after Subscribe
	// returns are delivered (spec.md's non-bootstrap mode).
	Bootstrap bool
	// Heartbeat overrides the Multiplexer's default interval, clamped to
	// [MinHeartbeat, MaxHeartbeat].
	Heartbeat time.Duration
}

func clampHeartbeat(d time.Duration) time.Duration {
	switch {
	case d <= 0:
		return 0
	case d < MinHeartbeat:
		return MinHeartbeat
	case d > MaxHeartbeat:
		return MaxHeartbeat
	default:
		return d
	}
}

// Subscription is a live, cancelable tail over a single resource's event
// stream.
type Subscription interface {
	ID() string
	Resource() tapid.ResourceId
	Items() <-chan Item
	Cancel()
}

const subscriberBuffer = 64

type subscription struct {
	id        string
	resource  tapid.ResourceId
	out       chan Item
	live      chan Item
	done      chan struct{}
	cancelled sync.Once
	heartbeat time.Duration
}

func (s *subscription) ID() string                    { return s.id }
func (s *subscription) Resource() tapid.ResourceId     { return s.resource }
func (s *subscription) Items() <-chan Item             { return s.out }
func (s *subscription) Cancel()                        { s.cancelled.Do(func() { close(s.done) }) }

// Multiplexer fans out committed events to per-resource subscribers. It
// implements engine.Publisher so an Engine can publish directly into it.
type Multiplexer struct {
	mu            sync.RWMutex
	subs          map[tapid.ResourceId]map[string]*subscription
	log           ledger.Log
	clock         tapclock.Clock
	defaultHeartbeat time.Duration

	droppedMu sync.Mutex
	dropped   uint64
}

// New constructs a Multiplexer reading bootstrap history from log and using
// defaultHeartbeat when a Subscribe call doesn't override it.
func New(log ledger.Log, clock tapclock.Clock, defaultHeartbeat time.Duration) *Multiplexer {
	return &Multiplexer{
		subs:             make(map[tapid.ResourceId]map[string]*subscription),
		log:              log,
		clock:            clock,
		defaultHeartbeat: clampHeartbeat(defaultHeartbeat),
	}
}

// Publish implements engine.Publisher. Delivery is best-effort: a
// subscriber whose buffer is full has the event dropped and the
// multiplexer's dropped counter incremented, rather than blocking the
// engine's command path.
func (m *Multiplexer) Publish(_ context.Context, event ledger.Event) {
	m.mu.RLock()
	subs := m.subs[event.Resource]
	targets := make([]*subscription, 0, len(subs))
	for _, s := range subs {
		targets = append(targets, s)
	}
	m.mu.RUnlock()

	item := Item{Event: &event, Ts: m.clock.Now()}
	for _, s := range targets {
		select {
		case s.live <- item:
		default:
			m.droppedMu.Lock()
			m.dropped++
			m.droppedMu.Unlock()
		}
	}
}

// Dropped returns the number of events dropped across every subscriber
// because its buffer was full.
func (m *Multiplexer) Dropped() uint64 {
	m.droppedMu.Lock()
	defer m.droppedMu.Unlock()
	return m.dropped
}

// Subscribe opens a resumable tail over resource. The returned Subscription
// must be Cancel()ed by the caller once done, or its goroutine leaks.
func (m *Multiplexer) Subscribe(_ context.Context, resource tapid.ResourceId, opts Options) Subscription {
	hb := clampHeartbeat(opts.Heartbeat)
	if hb == 0 {
		hb = m.defaultHeartbeat
	}

	sub := &subscription{
		id:        uuid.NewString(),
		resource:  resource,
		out:       make(chan Item, subscriberBuffer),
		live:      make(chan Item, subscriberBuffer),
		done:      make(chan struct{}),
		heartbeat: hb,
	}

	m.mu.Lock()
	set, ok := m.subs[resource]
	if !ok {
		set = make(map[string]*subscription)
		m.subs[resource] = set
	}
	set[sub.id] = sub
	m.mu.Unlock()

	go m.forward(sub, opts)
	return sub
}

func (m *Multiplexer) unregister(sub *subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if set, ok := m.subs[sub.resource]; ok {
		delete(set, sub.id)
		if len(set) == 0 {
			delete(m.subs, sub.resource)
		}
	}
}

// forward drives a single subscription: an optional bootstrap replay of
// history, then live delivery with periodic heartbeats. Live events with
// Seq <= the replay boundary are skipped to avoid double delivery, since
// registration (which starts queueing live events) necessarily happens
// before the bootstrap's SeqHi snapshot is read.
func (m *Multiplexer) forward(sub *subscription, opts Options) {
	defer close(sub.out)
	defer m.unregister(sub)

	var replayHi uint64
	if opts.Bootstrap {
		if hi, ok := m.log.SeqHi(context.Background(), sub.resource); ok {
			replayHi = hi
			events, err := m.log.Read(context.Background(), sub.resource, opts.AfterSeq, 0)
			if err == nil {
				for i := range events {
					evt := events[i]
					// Bound the replay to the SeqHi snapshot taken above:
					// anything appended after that point is already queued
					// on sub.live (registration happens before this replay
					// runs) and will be delivered by the live loop below,
					// whose skip condition only filters Seq <= replayHi.
					// Replaying it here too would double-deliver it.
					if evt.Seq > replayHi {
						break
					}
					select {
					case sub.out <- Item{Event: &evt, Ts: m.clock.Now()}:
					case <-sub.done:
						return
					}
				}
			}
		}
	}

	var ticker *time.Ticker
	var tick <-chan time.Time
	if sub.heartbeat > 0 {
		ticker = time.NewTicker(sub.heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-sub.done:
			return
		case item, ok := <-sub.live:
			if !ok {
				return
			}
			if opts.Bootstrap && item.Event != nil && item.Event.Seq <= replayHi {
				continue
			}
			select {
			case sub.out <- item:
			case <-sub.done:
				return
			}
		case <-tick:
			select {
			case sub.out <- Item{Heartbeat: true, Ts: m.clock.Now()}:
			case <-sub.done:
				return
			}
		}
	}
}
