package gopulse

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/coder/quartz"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestTracker builds a Tracker backed by an in-process store. Additional
// options (mock clock, custom config) are applied on top of the defaults.
func newTestTracker(t *testing.T, cfg *Config, options ...func(*Tracker)) (*Tracker, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	if cfg == nil {
		cfg = DefaultConfig()
	}

	opts := append([]func(*Tracker){
		WithRedisClient(client),
		WithLogger(&NullLogger{}),
	}, options...)

	tracker, err := New(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { tracker.Close() })

	return tracker, mr
}

func TestNew(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		_, err := New(context.Background(), nil)
		assert.ErrorIs(t, err, ErrNilConfig)
	})

	t.Run("missing redis URL", func(t *testing.T) {
		_, err := New(context.Background(), &Config{})
		assert.ErrorIs(t, err, ErrMissingRedisURL)
	})

	t.Run("invalid variant config", func(t *testing.T) {
		cfg := &Config{
			RedisURL: "redis://localhost:6379",
			Variants: []VariantConfig{{ID: "web", CounterKey: ""}},
		}
		_, err := New(context.Background(), cfg)
		assert.ErrorIs(t, err, ErrEmptyCounterKey)
	})

	t.Run("unreachable store is fatal", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		client := redis.NewClient(&redis.Options{Addr: addr})
		_, err := New(context.Background(), DefaultConfig(),
			WithRedisClient(client), WithLogger(&NullLogger{}))
		assert.ErrorIs(t, err, ErrStoreConnect)
	})

	t.Run("initializes every counter to zero", func(t *testing.T) {
		tracker, mr := newTestTracker(t, nil)

		for _, v := range tracker.Variants() {
			raw, err := mr.Get(tracker.Registry().CounterKey(v))
			require.NoError(t, err)
			assert.Equal(t, "0", raw)
			assert.Equal(t, int64(0), tracker.mirror.get(v))
		}
	})
}

func TestTracker_Snapshot(t *testing.T) {
	mock := quartz.NewMock(t)
	tracker, _ := newTestTracker(t, nil, WithClock(mock))
	ctx := context.Background()

	tracker.Counters().Increment(ctx, "web")
	tracker.Counters().Increment(ctx, "web")
	tracker.Activity().Record(ctx, "web", "u1")

	snap := tracker.Snapshot(ctx)

	assert.Equal(t, mock.Now().UnixMilli(), snap.Timestamp)
	assert.Len(t, snap.Current, tracker.Registry().Len())
	assert.Len(t, snap.WeeklyAvg, tracker.Registry().Len())
	assert.Len(t, snap.Unique, tracker.Registry().Len())

	assert.Equal(t, int64(2), snap.Current["web"])
	assert.Equal(t, int64(0), snap.Current["desktop"])
	assert.InDelta(t, 1.0/7, snap.WeeklyAvg["web"], 1e-9)
	assert.Equal(t, int64(1), snap.Unique["web"])
}

func TestTracker_Reset(t *testing.T) {
	tracker, mr := newTestTracker(t, nil)
	ctx := context.Background()

	tracker.Counters().Increment(ctx, "web")
	tracker.Counters().Increment(ctx, "desktop")
	tracker.Activity().Record(ctx, "web", "u1")
	require.Positive(t, tracker.Unique().WeeklyUnique(ctx, "web"))

	require.NoError(t, tracker.Reset(ctx))

	for _, v := range tracker.Variants() {
		assert.Equal(t, int64(0), tracker.Counters().Read(ctx, v))
		assert.Equal(t, int64(0), tracker.mirror.get(v))
	}

	keys := mr.Keys()
	for _, key := range keys {
		assert.NotContains(t, key, tracker.cfg.ActivityPrefix)
	}
	assert.Equal(t, int64(0), tracker.Unique().WeeklyUnique(ctx, "web"))
}

func TestTracker_RefreshMirror(t *testing.T) {
	tracker, mr := newTestTracker(t, nil)
	ctx := context.Background()

	// another process moved the counter behind our back
	mr.Set(tracker.Registry().CounterKey("web"), "5")
	assert.Equal(t, int64(0), tracker.mirror.get("web"))

	tracker.RefreshMirror(ctx)
	assert.Equal(t, int64(5), tracker.mirror.get("web"))
}

func TestTracker_MirrorFallbackDuringOutage(t *testing.T) {
	tracker, mr := newTestTracker(t, nil)
	ctx := context.Background()

	tracker.Counters().Increment(ctx, "web")
	tracker.Counters().Increment(ctx, "web")
	require.Equal(t, int64(2), tracker.mirror.get("web"))

	mr.SetError("store down")

	assert.Equal(t, int64(2), tracker.Counters().Read(ctx, "web"))
	assert.Equal(t, int64(2), tracker.Counters().Increment(ctx, "web"))
	assert.Equal(t, int64(2), tracker.Counters().Decrement(ctx, "web"))

	mr.SetError("")
	assert.Equal(t, int64(2), tracker.Counters().Read(ctx, "web"))
}

func TestTracker_EndToEndConnectionCounts(t *testing.T) {
	tracker, _ := newTestTracker(t, nil)
	ctx := context.Background()

	// 3 connects then 1 disconnect
	tracker.Counters().Increment(ctx, "desktop")
	tracker.Counters().Increment(ctx, "desktop")
	tracker.Counters().Increment(ctx, "desktop")
	tracker.Counters().Decrement(ctx, "desktop")

	assert.Equal(t, int64(2), tracker.Counters().Read(ctx, "desktop"))
}

func TestTracker_EndToEndWeeklyUnique(t *testing.T) {
	mock := quartz.NewMock(t)
	tracker, _ := newTestTracker(t, nil, WithClock(mock))
	ctx := context.Background()

	// same user on two different days within the rolling window
	tracker.Activity().Record(ctx, "web", "u1")

	mock.Advance(24 * time.Hour).MustWait(ctx)
	require.True(t, tracker.Window().Roll())
	tracker.Activity().Record(ctx, "web", "u1")

	assert.Equal(t, int64(1), tracker.Unique().WeeklyUnique(ctx, "web"))
	assert.Equal(t, int64(1), tracker.Unique().AllTimeUnique(ctx, "web"))
}
