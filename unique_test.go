package gopulse

import (
	"context"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUniqueUserTracker_WeeklyUnique(t *testing.T) {
	ctx := context.Background()
	mock := quartz.NewMock(t)
	tracker, mr := newTestTracker(t, nil, WithClock(mock))
	prefix := tracker.cfg.ActivityPrefix

	tracker.Activity().Record(ctx, "web", "u1")
	tracker.Activity().Record(ctx, "web", "u2")
	tracker.Activity().Record(ctx, "web", "u2")

	assert.Equal(t, int64(2), tracker.Unique().WeeklyUnique(ctx, "web"))

	// the union is materialized under a short-lived key
	tempKey := weeklyUniqueKey(prefix, "web", tracker.Window().Today())
	assert.Greater(t, mr.TTL(tempKey), time.Duration(0))
}

func TestUniqueUserTracker_DedupesAcrossDays(t *testing.T) {
	ctx := context.Background()
	mock := quartz.NewMock(t)
	tracker, _ := newTestTracker(t, nil, WithClock(mock))

	tracker.Activity().Record(ctx, "web", "u1")

	mock.Advance(24 * time.Hour).MustWait(ctx)
	require.True(t, tracker.Window().Roll())
	tracker.Activity().Record(ctx, "web", "u1")
	tracker.Activity().Record(ctx, "web", "u2")

	assert.Equal(t, int64(2), tracker.Unique().WeeklyUnique(ctx, "web"))
	assert.Equal(t, int64(2), tracker.Unique().AllTimeUnique(ctx, "web"))
}

func TestUniqueUserTracker_AllTimeOutlivesWindow(t *testing.T) {
	ctx := context.Background()
	mock := quartz.NewMock(t)
	tracker, mr := newTestTracker(t, nil, WithClock(mock))

	tracker.Activity().Record(ctx, "web", "u1")

	// the daily set ages out of the store, the all-time set does not
	mr.FastForward(tracker.cfg.KeyTTL + time.Hour)
	mock.Advance(9 * 24 * time.Hour).MustWait(ctx)
	require.True(t, tracker.Window().Roll())

	assert.Equal(t, int64(0), tracker.Unique().WeeklyUnique(ctx, "web"))
	assert.Equal(t, int64(1), tracker.Unique().AllTimeUnique(ctx, "web"))
}

func TestUniqueUserTracker_StoreFailure(t *testing.T) {
	ctx := context.Background()
	tracker, mr := newTestTracker(t, nil)

	tracker.Activity().Record(ctx, "web", "u1")

	mr.SetError("store down")
	assert.Zero(t, tracker.Unique().WeeklyUnique(ctx, "web"))
	assert.Zero(t, tracker.Unique().AllTimeUnique(ctx, "web"))
}
