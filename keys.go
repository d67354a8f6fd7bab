// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Filipe Johansson

package gopulse

// Store key layout, derived from the activity prefix:
//
//	<prefix>:<variant>                      time-ordered activity log (sorted set)
//	<prefix>:<variant>:daily:<date>         per-day activity counter
//	<prefix>:<variant>:unique:<date>        per-day unique-user set
//	<prefix>:<variant>:unique:alltime       all-time unique-user set
//	<prefix>:<variant>:unique:weekly:<date> materialized weekly union (short-lived)
//
// The active-connection counter lives under the variant's own CounterKey.

func activityKey(prefix string, v Variant) string {
	return prefix + ":" + string(v)
}

func dailyKey(prefix string, v Variant, date string) string {
	return activityKey(prefix, v) + ":daily:" + date
}

func dayUniqueKey(prefix string, v Variant, date string) string {
	return activityKey(prefix, v) + ":unique:" + date
}

func allTimeUniqueKey(prefix string, v Variant) string {
	return activityKey(prefix, v) + ":unique:alltime"
}

func weeklyUniqueKey(prefix string, v Variant, date string) string {
	return activityKey(prefix, v) + ":unique:weekly:" + date
}
