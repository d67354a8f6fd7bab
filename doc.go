// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Filipe Johansson

// Package gopulse tracks how many clients of each product variant are
// currently active and maintains rolling 7-day usage statistics (average
// daily activity, unique-visitor counts) in Redis.
//
// The Tracker is the entry point: it owns the store client, the clock, the
// variant registry, the UTC date window and the local cache mirror, and
// hands out the counter store, activity logger and aggregators that operate
// on them. A Broadcaster pushes periodic snapshots to subscribers; the
// server package exposes both over websockets and HTTP.
//
// Every operation past construction is fail-soft: store errors are logged
// and absorbed, and callers see the last mirrored value or an explicit zero
// instead of an error.
package gopulse
