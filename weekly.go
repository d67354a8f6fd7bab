// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Filipe Johansson

package gopulse

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// WeeklyAggregator computes the rolling 7-day average of daily activity
// counters.
type WeeklyAggregator struct {
	rdb    redis.Cmdable
	window *DateWindow
	prefix string
	memo   *memoCache[float64]
	logger Logger
}

// AverageActivity returns the variant's average daily activity over the
// current 7-day window. Missing days count as zero. The result is memoized
// per variant for the configured TTL; within the TTL repeated calls return
// the cached value without touching the store.
//
// On store failure it logs and returns 0: the explicit zero signals
// unavailability instead of serving a stale figure.
func (w *WeeklyAggregator) AverageActivity(ctx context.Context, v Variant) float64 {
	if avg, ok := w.memo.get(v); ok {
		return avg
	}

	dates := w.window.Week()
	keys := make([]string, len(dates))
	for i, date := range dates {
		keys[i] = dailyKey(w.prefix, v, date)
	}

	values, err := w.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		w.logger.Log(LogTypeStore, LogLevelError, "failed to get %s weekly average: %v", v, err)
		return 0
	}

	var sum float64
	for _, raw := range values {
		s, ok := raw.(string)
		if !ok {
			continue // missing day
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			w.logger.Log(LogTypeStore, LogLevelWarn, "unparsable daily counter for %s: %q", v, s)
			continue
		}
		sum += n
	}

	avg := sum / windowDays
	w.memo.put(v, avg)
	return avg
}
