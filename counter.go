// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Filipe Johansson

package gopulse

import (
	"context"
	"strconv"

	"github.com/cskr/pubsub/v2"
	"github.com/redis/go-redis/v9"
)

// CountEvent is published on a variant's topic whenever its active counter
// changes through Increment or Decrement.
type CountEvent struct {
	Variant Variant `json:"type"`
	Count   int64   `json:"count"`
}

// decrClampScript decrements the counter and clamps it at zero in a single
// scripted store command, so no reader can observe a negative count and no
// race window exists between the decrement and the corrective write.
var decrClampScript = redis.NewScript(`
local v = redis.call("DECR", KEYS[1])
if v < 0 then
  redis.call("SET", KEYS[1], "0")
  v = 0
end
return v`)

// CounterStore mutates and reads the per-variant active-connection counters.
//
// None of its methods return store errors: on failure they log, fall back to
// the local mirror and keep the calling connection handler alive. ActiveCount
// never goes negative; Decrement clamps at zero inside the store.
type CounterStore struct {
	rdb      redis.Cmdable
	registry *Registry
	mirror   *mirror
	events   *pubsub.PubSub[Variant, CountEvent]
	logger   Logger
}

// Increment atomically adds one to the variant's active counter and returns
// the new value. On store failure it returns the last mirrored value.
func (c *CounterStore) Increment(ctx context.Context, v Variant) int64 {
	key := c.registry.CounterKey(v)

	count, err := c.rdb.IncrBy(ctx, key, 1).Result()
	if err != nil {
		c.logger.Log(LogTypeStore, LogLevelError, "failed to increment %s active users: %v", v, err)
		return c.mirror.get(v)
	}

	c.mirror.set(v, count)
	c.notify(v, count)
	return count
}

// Decrement atomically subtracts one from the variant's active counter,
// clamping at zero, and returns the new value. On store failure it returns
// the last mirrored value.
func (c *CounterStore) Decrement(ctx context.Context, v Variant) int64 {
	key := c.registry.CounterKey(v)

	res, err := decrClampScript.Run(ctx, c.rdb, []string{key}).Result()
	if err != nil {
		c.logger.Log(LogTypeStore, LogLevelError, "failed to decrement %s active users: %v", v, err)
		return c.mirror.get(v)
	}

	count, _ := res.(int64)
	c.mirror.set(v, count)
	c.notify(v, count)
	return count
}

// Read returns the variant's stored active counter, 0 if the key is absent,
// or the last mirrored value if the store is unavailable.
func (c *CounterStore) Read(ctx context.Context, v Variant) int64 {
	key := c.registry.CounterKey(v)

	raw, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		c.mirror.set(v, 0)
		return 0
	}
	if err != nil {
		c.logger.Log(LogTypeStore, LogLevelError, "failed to read %s active users: %v", v, err)
		return c.mirror.get(v)
	}

	count, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.logger.Log(LogTypeStore, LogLevelWarn, "unparsable counter value for %s: %q", v, raw)
		return c.mirror.get(v)
	}

	c.mirror.set(v, count)
	return count
}

// notify publishes the new count on the variant's topic without blocking;
// slow subscribers miss intermediate values rather than stalling a counter
// mutation.
func (c *CounterStore) notify(v Variant, count int64) {
	if c.events == nil {
		return
	}
	c.events.TryPub(CountEvent{Variant: v, Count: count}, v)
}
