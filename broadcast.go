// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Filipe Johansson

package gopulse

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/quartz"
)

// subscriberBufSize is the buffer of each subscriber's snapshot channel.
// A subscriber that cannot keep up misses snapshots instead of stalling the
// broadcast tick.
const subscriberBufSize = 8

// Broadcaster periodically recomputes a Snapshot and fans it out to every
// subscriber. A new subscriber immediately receives the current snapshot
// before the next tick.
type Broadcaster struct {
	tracker  *Tracker
	clock    quartz.Clock
	interval time.Duration
	logger   Logger

	mu          sync.RWMutex
	subscribers map[uint64]chan Snapshot
	nextID      atomic.Uint64
}

// NewBroadcaster returns a Broadcaster that pushes snapshots at the
// tracker's configured broadcast interval.
func NewBroadcaster(tracker *Tracker) *Broadcaster {
	return &Broadcaster{
		tracker:     tracker,
		clock:       tracker.clock,
		interval:    tracker.cfg.BroadcastInterval,
		logger:      tracker.logger,
		subscribers: make(map[uint64]chan Snapshot),
	}
}

// Subscribe registers a new subscriber and seeds its channel with an
// immediate snapshot. The returned ID must be passed to Unsubscribe when the
// subscriber goes away.
func (b *Broadcaster) Subscribe(ctx context.Context) (uint64, <-chan Snapshot) {
	id := b.nextID.Add(1)
	ch := make(chan Snapshot, subscriberBufSize)
	ch <- b.tracker.Snapshot(ctx)

	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()

	b.logger.Log(LogTypeBroadcast, LogLevelDebug, "subscriber %d registered", id)
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(id uint64) {
	b.mu.Lock()
	ch, exists := b.subscribers[id]
	if exists {
		delete(b.subscribers, id)
		close(ch)
	}
	b.mu.Unlock()

	if exists {
		b.logger.Log(LogTypeBroadcast, LogLevelDebug, "subscriber %d removed", id)
	}
}

// SubscriberCount returns the number of registered subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Run starts the periodic push. It returns immediately; broadcasting stops
// when ctx is canceled. A failed tick is logged and skipped, never fatal.
func (b *Broadcaster) Run(ctx context.Context) quartz.Waiter {
	return b.clock.TickerFunc(ctx, b.interval, func() error {
		b.Tick(ctx)
		return nil
	}, "broadcast")
}

// Tick computes one snapshot and pushes it to every subscriber.
func (b *Broadcaster) Tick(ctx context.Context) {
	snap := b.tracker.Snapshot(ctx)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subscribers {
		select {
		case ch <- snap:
		default:
			b.logger.Log(LogTypeBroadcast, LogLevelDebug, "subscriber %d lagging, snapshot dropped", id)
		}
	}
}
