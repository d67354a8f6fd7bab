// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Filipe Johansson

package gopulse

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// UniqueUserTracker computes deduplicated user counts over the rolling
// window and over all time.
type UniqueUserTracker struct {
	rdb     redis.Cmdable
	window  *DateWindow
	prefix  string
	tempTTL time.Duration
	memo    *memoCache[int64]
	logger  Logger
}

// WeeklyUnique returns the number of distinct users seen in the current
// 7-day window. The union of the daily sets is materialized into a
// short-lived store key so repeated polls within the TTL reuse it instead of
// recomputing the union; the result is additionally memoized locally.
//
// On store failure it logs and returns 0.
func (u *UniqueUserTracker) WeeklyUnique(ctx context.Context, v Variant) int64 {
	if count, ok := u.memo.get(v); ok {
		return count
	}

	dates := u.window.Week()
	keys := make([]string, len(dates))
	for i, date := range dates {
		keys[i] = dayUniqueKey(u.prefix, v, date)
	}
	tempKey := weeklyUniqueKey(u.prefix, v, u.window.Today())

	if err := u.rdb.SUnionStore(ctx, tempKey, keys...).Err(); err != nil {
		u.logger.Log(LogTypeStore, LogLevelError, "failed to union %s weekly unique users: %v", v, err)
		return 0
	}
	if err := u.rdb.Expire(ctx, tempKey, u.tempTTL).Err(); err != nil {
		u.logger.Log(LogTypeStore, LogLevelWarn, "failed to expire %s weekly union key: %v", v, err)
	}

	count, err := u.rdb.SCard(ctx, tempKey).Result()
	if err != nil {
		u.logger.Log(LogTypeStore, LogLevelError, "failed to count %s weekly unique users: %v", v, err)
		return 0
	}

	u.memo.put(v, count)
	return count
}

// AllTimeUnique returns the cardinality of the variant's permanent unique
// set. On store failure it logs and returns 0.
func (u *UniqueUserTracker) AllTimeUnique(ctx context.Context, v Variant) int64 {
	count, err := u.rdb.SCard(ctx, allTimeUniqueKey(u.prefix, v)).Result()
	if err != nil {
		u.logger.Log(LogTypeStore, LogLevelError, "failed to count %s all-time unique users: %v", v, err)
		return 0
	}
	return count
}
