// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Filipe Johansson

package gopulse

import (
	"context"
	"strconv"
	"time"

	"github.com/coder/quartz"
	"github.com/redis/go-redis/v9"
)

// ActivityLogger records per-connection activity events.
type ActivityLogger struct {
	rdb    redis.Cmdable
	window *DateWindow
	clock  quartz.Clock
	prefix string
	keyTTL time.Duration
	logger Logger
}

// Record writes one activity event for the variant as a single store
// transaction: it appends to the time-ordered activity log, bumps today's
// daily counter, registers the user in today's unique set and the all-time
// unique set when userID is non-empty, and prunes log entries older than the
// rolling window.
//
// The transaction is best-effort and never retried: under a store outage the
// event is logged and dropped, so an outage can lose activity but can never
// double-count it.
func (a *ActivityLogger) Record(ctx context.Context, v Variant, userID string) {
	now := a.clock.Now()
	ts := now.UnixMilli()
	today := a.window.Today()

	logKey := activityKey(a.prefix, v)
	cutoff := ts - windowDays*24*time.Hour.Milliseconds()

	pipe := a.rdb.TxPipeline()
	pipe.ZAdd(ctx, logKey, redis.Z{
		Score:  float64(ts),
		Member: strconv.FormatInt(ts, 10),
	})
	pipe.Incr(ctx, dailyKey(a.prefix, v, today))
	pipe.Expire(ctx, dailyKey(a.prefix, v, today), a.keyTTL)

	if userID != "" {
		pipe.SAdd(ctx, dayUniqueKey(a.prefix, v, today), userID)
		pipe.Expire(ctx, dayUniqueKey(a.prefix, v, today), a.keyTTL)
		pipe.SAdd(ctx, allTimeUniqueKey(a.prefix, v), userID)
	}

	pipe.ZRemRangeByScore(ctx, logKey, "0", strconv.FormatInt(cutoff, 10))

	if _, err := pipe.Exec(ctx); err != nil {
		a.logger.Log(LogTypeActivity, LogLevelError, "failed to log %s activity: %v", v, err)
	}
}
