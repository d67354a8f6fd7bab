package gopulse

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivityLogger_Record(t *testing.T) {
	mock := quartz.NewMock(t)
	tracker, mr := newTestTracker(t, nil, WithClock(mock))
	ctx := context.Background()
	prefix := tracker.cfg.ActivityPrefix
	today := tracker.Window().Today()

	tracker.Activity().Record(ctx, "web", "u1")
	tracker.Activity().Record(ctx, "web", "u2")

	ts := strconv.FormatInt(mock.Now().UnixMilli(), 10)
	members, err := tracker.rdb.ZRange(ctx, activityKey(prefix, "web"), 0, -1).Result()
	require.NoError(t, err)
	assert.Contains(t, members, ts)

	raw, err := mr.Get(dailyKey(prefix, "web", today))
	require.NoError(t, err)
	assert.Equal(t, "2", raw)
	assert.Greater(t, mr.TTL(dailyKey(prefix, "web", today)), time.Duration(0))

	users, err := tracker.rdb.SMembers(ctx, dayUniqueKey(prefix, "web", today)).Result()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u1", "u2"}, users)
	assert.Greater(t, mr.TTL(dayUniqueKey(prefix, "web", today)), time.Duration(0))

	// the all-time set never expires
	alltime, err := tracker.rdb.SMembers(ctx, allTimeUniqueKey(prefix, "web")).Result()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u1", "u2"}, alltime)
	assert.Equal(t, time.Duration(0), mr.TTL(allTimeUniqueKey(prefix, "web")))
}

func TestActivityLogger_RecordWithoutUserID(t *testing.T) {
	tracker, _ := newTestTracker(t, nil)
	ctx := context.Background()
	prefix := tracker.cfg.ActivityPrefix
	today := tracker.Window().Today()

	tracker.Activity().Record(ctx, "web", "")

	raw, err := tracker.rdb.Get(ctx, dailyKey(prefix, "web", today)).Result()
	require.NoError(t, err)
	assert.Equal(t, "1", raw, "anonymous activity still counts toward the daily total")

	exists, err := tracker.rdb.Exists(ctx, dayUniqueKey(prefix, "web", today)).Result()
	require.NoError(t, err)
	assert.Zero(t, exists, "no unique-set writes without a user ID")
}

func TestActivityLogger_PrunesOldEntries(t *testing.T) {
	ctx := context.Background()
	mock := quartz.NewMock(t)
	tracker, _ := newTestTracker(t, nil, WithClock(mock))
	prefix := tracker.cfg.ActivityPrefix

	tracker.Activity().Record(ctx, "web", "u1")

	mock.Advance(8 * 24 * time.Hour).MustWait(ctx)
	require.True(t, tracker.Window().Roll())
	tracker.Activity().Record(ctx, "web", "u1")

	members, err := tracker.rdb.ZRange(ctx, activityKey(prefix, "web"), 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, members, 1, "entries outside the rolling window are pruned")
	assert.Equal(t, strconv.FormatInt(mock.Now().UnixMilli(), 10), members[0])
}

func TestActivityLogger_StoreFailureIsNotFatal(t *testing.T) {
	tracker, mr := newTestTracker(t, nil)
	ctx := context.Background()

	mr.SetError("store down")
	assert.NotPanics(t, func() {
		tracker.Activity().Record(ctx, "web", "u1")
	})
}
