// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Filipe Johansson

package gopulse

import (
	"context"
	"time"

	"github.com/coder/quartz"
	"github.com/cskr/pubsub/v2"
	"github.com/redis/go-redis/v9"
)

// eventChanBufSize is the per-subscriber buffer of the count-event bus.
const eventChanBufSize = 64

// Tracker owns every piece of presence-analytics state: the store client,
// the clock, the variant registry, the date window, the local cache mirror
// and the aggregation components. It is constructed once at startup and
// passed by reference; there are no package-level singletons.
type Tracker struct {
	cfg      *Config
	rdb      redis.Cmdable
	closer   interface{ Close() error }
	clock    quartz.Clock
	logger   Logger
	registry *Registry
	window   *DateWindow
	mirror   *mirror
	events   *pubsub.PubSub[Variant, CountEvent]

	counters *CounterStore
	activity *ActivityLogger
	weekly   *WeeklyAggregator
	unique   *UniqueUserTracker
}

// Snapshot is a point-in-time aggregate of current counts and weekly
// statistics, as pushed to subscribers.
type Snapshot struct {
	Current   map[Variant]int64   `json:"current"`
	WeeklyAvg map[Variant]float64 `json:"weeklyAvg"`
	Unique    map[Variant]int64   `json:"unique"`
	Timestamp int64               `json:"timestamp"` // epoch milliseconds
}

// ===== Functional Options =====

// WithClock sets the clock used for timestamps, tickers and cache expiry.
// Tests inject a mock clock here.
func WithClock(clock quartz.Clock) func(*Tracker) {
	return func(t *Tracker) {
		t.clock = clock
	}
}

// WithLogger sets the tracker's logger.
func WithLogger(logger Logger) func(*Tracker) {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// WithRedisClient sets an already-constructed store client, bypassing
// Config.RedisURL.
func WithRedisClient(rdb *redis.Client) func(*Tracker) {
	return func(t *Tracker) {
		t.rdb = rdb
		t.closer = rdb
	}
}

// New constructs a Tracker from the given config, connects to the store and
// resets every variant's active counter and mirror entry to zero.
//
// A store that cannot be reached here is fatal: the returned error is the
// only store error this package ever propagates. Everything after a
// successful New degrades gracefully instead of failing.
func New(ctx context.Context, cfg *Config, options ...func(*Tracker)) (*Tracker, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	cfg = cfg.withDefaults()

	registry, err := NewRegistry(cfg.Variants)
	if err != nil {
		return nil, err
	}

	t := &Tracker{
		cfg:      cfg,
		clock:    quartz.NewReal(),
		logger:   &DefaultLogger{},
		registry: registry,
	}

	for _, o := range options {
		o(t)
	}

	if t.rdb == nil {
		if cfg.RedisURL == "" {
			return nil, ErrMissingRedisURL
		}
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, newStoreConnectError(err)
		}
		client := redis.NewClient(opts)
		t.rdb = client
		t.closer = client
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := t.rdb.Ping(pingCtx).Err(); err != nil {
		return nil, newStoreConnectError(err)
	}

	t.window = NewDateWindow(t.clock)
	t.mirror = newMirror(registry.Variants())
	t.events = pubsub.New[Variant, CountEvent](eventChanBufSize)

	t.counters = &CounterStore{
		rdb:      t.rdb,
		registry: registry,
		mirror:   t.mirror,
		events:   t.events,
		logger:   t.logger,
	}
	t.activity = &ActivityLogger{
		rdb:    t.rdb,
		window: t.window,
		clock:  t.clock,
		prefix: cfg.ActivityPrefix,
		keyTTL: cfg.KeyTTL,
		logger: t.logger,
	}
	t.weekly = &WeeklyAggregator{
		rdb:    t.rdb,
		window: t.window,
		prefix: cfg.ActivityPrefix,
		memo:   newMemoCache[float64](t.clock, cfg.MemoTTL),
		logger: t.logger,
	}
	t.unique = &UniqueUserTracker{
		rdb:     t.rdb,
		window:  t.window,
		prefix:  cfg.ActivityPrefix,
		tempTTL: cfg.MemoTTL,
		memo:    newMemoCache[int64](t.clock, cfg.MemoTTL),
		logger:  t.logger,
	}

	if err := t.initCounters(ctx); err != nil {
		return nil, err
	}

	t.logger.Log(LogTypeServer, LogLevelInfo, "tracker initialized with %d variants", registry.Len())
	return t, nil
}

// initCounters resets every active counter to zero in the store and in the
// mirror. Initialization is the only place a counter is assigned directly.
func (t *Tracker) initCounters(ctx context.Context) error {
	pipe := t.rdb.TxPipeline()
	for _, v := range t.registry.Variants() {
		pipe.Set(ctx, t.registry.CounterKey(v), "0", 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return newStoreConnectError(err)
	}
	t.mirror.reset()
	return nil
}

// Start launches the tracker's recurring work: the date-rollover check and
// the mirror refresh. Both stop when ctx is canceled.
func (t *Tracker) Start(ctx context.Context) {
	t.window.Watch(ctx, t.cfg.RolloverInterval)
	t.clock.TickerFunc(ctx, t.cfg.MirrorRefreshInterval, func() error {
		t.RefreshMirror(ctx)
		return nil
	}, "mirror")
}

// RefreshMirror reads every variant's counter from the store, updating the
// local mirror as a side effect.
func (t *Tracker) RefreshMirror(ctx context.Context) {
	for _, v := range t.registry.Variants() {
		t.counters.Read(ctx, v)
	}
}

// Snapshot assembles the current counts (from the mirror) and the memoized
// weekly statistics for every variant. It never fails; unavailable figures
// come back as zero.
func (t *Tracker) Snapshot(ctx context.Context) Snapshot {
	snap := Snapshot{
		Current:   t.mirror.snapshot(),
		WeeklyAvg: make(map[Variant]float64, t.registry.Len()),
		Unique:    make(map[Variant]int64, t.registry.Len()),
		Timestamp: t.clock.Now().UnixMilli(),
	}

	for _, v := range t.registry.Variants() {
		snap.WeeklyAvg[v] = t.weekly.AverageActivity(ctx, v)
		snap.Unique[v] = t.unique.WeeklyUnique(ctx, v)
	}

	return snap
}

// Reset wipes every tracked store key (counters, activity logs, daily and
// unique sets) and zeroes the local cache mirror and memoized aggregates.
// This is the flush-all operation behind the admin clear endpoint.
func (t *Tracker) Reset(ctx context.Context) error {
	keys, err := t.rdb.Keys(ctx, t.cfg.ActivityPrefix+":*").Result()
	if err != nil {
		return newStoreResetError(err)
	}

	pipe := t.rdb.TxPipeline()
	if len(keys) > 0 {
		pipe.Del(ctx, keys...)
	}
	for _, v := range t.registry.Variants() {
		pipe.Set(ctx, t.registry.CounterKey(v), "0", 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return newStoreResetError(err)
	}

	t.mirror.reset()
	t.weekly.memo.reset()
	t.unique.memo.reset()

	t.logger.Log(LogTypeStore, LogLevelWarn, "store flushed, all counters reset")
	return nil
}

// Close shuts down the count-event bus and the store client.
func (t *Tracker) Close() error {
	t.events.Shutdown()
	if t.closer != nil {
		return t.closer.Close()
	}
	return nil
}

// Counters returns the active-counter store.
func (t *Tracker) Counters() *CounterStore {
	return t.counters
}

// Activity returns the activity logger.
func (t *Tracker) Activity() *ActivityLogger {
	return t.activity
}

// Weekly returns the weekly aggregator.
func (t *Tracker) Weekly() *WeeklyAggregator {
	return t.weekly
}

// Unique returns the unique-user tracker.
func (t *Tracker) Unique() *UniqueUserTracker {
	return t.unique
}

// Window returns the tracker's date window.
func (t *Tracker) Window() *DateWindow {
	return t.window
}

// Registry returns the variant registry.
func (t *Tracker) Registry() *Registry {
	return t.registry
}

// Variants returns the configured variants in order.
func (t *Tracker) Variants() []Variant {
	return t.registry.Variants()
}

// Events returns the bus carrying variant-keyed count-change events.
// Subscribe with the variants of interest as topics.
func (t *Tracker) Events() *pubsub.PubSub[Variant, CountEvent] {
	return t.events
}

// Clock returns the tracker's clock.
func (t *Tracker) Clock() quartz.Clock {
	return t.clock
}
