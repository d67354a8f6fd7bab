package gopulse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_SubscribeSeedsSnapshot(t *testing.T) {
	tracker, _ := newTestTracker(t, nil)
	ctx := context.Background()
	b := NewBroadcaster(tracker)

	tracker.Counters().Increment(ctx, "web")

	id, snaps := b.Subscribe(ctx)
	defer b.Unsubscribe(id)

	require.Len(t, snaps, 1, "a new subscriber gets a snapshot without waiting for a tick")
	snap := <-snaps
	assert.Equal(t, int64(1), snap.Current["web"])
	assert.Equal(t, 1, b.SubscriberCount())
}

func TestBroadcaster_TickFansOut(t *testing.T) {
	tracker, _ := newTestTracker(t, nil)
	ctx := context.Background()
	b := NewBroadcaster(tracker)

	id1, snaps1 := b.Subscribe(ctx)
	defer b.Unsubscribe(id1)
	id2, snaps2 := b.Subscribe(ctx)
	defer b.Unsubscribe(id2)
	<-snaps1
	<-snaps2

	tracker.Counters().Increment(ctx, "desktop")
	b.Tick(ctx)

	for _, snaps := range []<-chan Snapshot{snaps1, snaps2} {
		snap := <-snaps
		assert.Equal(t, int64(1), snap.Current["desktop"])
	}
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	tracker, _ := newTestTracker(t, nil)
	b := NewBroadcaster(tracker)

	id, snaps := b.Subscribe(context.Background())
	<-snaps

	b.Unsubscribe(id)
	assert.Equal(t, 0, b.SubscriberCount())

	_, ok := <-snaps
	assert.False(t, ok, "unsubscribing closes the channel")

	// unsubscribing twice is a no-op
	assert.NotPanics(t, func() { b.Unsubscribe(id) })
}

func TestBroadcaster_LaggingSubscriberDoesNotBlock(t *testing.T) {
	tracker, _ := newTestTracker(t, nil)
	ctx := context.Background()
	b := NewBroadcaster(tracker)

	id, snaps := b.Subscribe(ctx)
	defer b.Unsubscribe(id)

	// never drained: once the buffer is full, ticks drop instead of stalling
	for i := 0; i < subscriberBufSize+3; i++ {
		b.Tick(ctx)
	}

	assert.Len(t, snaps, subscriberBufSize)
}
