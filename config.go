// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Filipe Johansson

package gopulse

import "time"

// Config holds the tracker configuration. All durations have working
// defaults; only RedisURL has to be provided.
type Config struct {
	// RedisURL is the connection URL of the backing store, e.g.
	// "redis://localhost:6379/0".
	RedisURL string

	// Variants is the closed set of tracked product variants.
	Variants []VariantConfig

	// ActivityPrefix namespaces every activity, daily and unique key.
	ActivityPrefix string

	// BroadcastInterval is how often the broadcaster pushes a snapshot to
	// every subscriber.
	BroadcastInterval time.Duration

	// MirrorRefreshInterval is how often the local cache mirror is refreshed
	// from the store, bounding its staleness between counter mutations.
	MirrorRefreshInterval time.Duration

	// RolloverInterval is how often the date window checks whether the UTC
	// calendar date has advanced.
	RolloverInterval time.Duration

	// MemoTTL is how long weekly averages and weekly unique counts are
	// memoized before being recomputed from the store.
	MemoTTL time.Duration

	// KeyTTL is the expiry applied to daily counters and daily unique sets.
	// The all-time unique set never expires.
	KeyTTL time.Duration
}

// DefaultConfig returns a Config with the default variants, key namespace
// and intervals.
func DefaultConfig() *Config {
	return &Config{
		Variants:              DefaultVariants(),
		ActivityPrefix:        "pulse_activity",
		BroadcastInterval:     5 * time.Second,
		MirrorRefreshInterval: 3 * time.Second,
		RolloverInterval:      time.Minute,
		MemoTTL:               time.Minute,
		KeyTTL:                8 * 24 * time.Hour,
	}
}

// DefaultVariants returns the variant set used when none is configured.
func DefaultVariants() []VariantConfig {
	return []VariantConfig{
		{ID: "web", Name: "Web App", CounterKey: "pulse_web:users"},
		{ID: "desktop", Name: "Desktop App", CounterKey: "pulse_desktop:users"},
		{ID: "extension", Name: "Browser Extension", CounterKey: "pulse_extension:users"},
	}
}

// withDefaults fills the zero-valued fields of c from DefaultConfig.
func (c *Config) withDefaults() *Config {
	def := DefaultConfig()
	out := *c

	if len(out.Variants) == 0 {
		out.Variants = def.Variants
	}
	if out.ActivityPrefix == "" {
		out.ActivityPrefix = def.ActivityPrefix
	}
	if out.BroadcastInterval <= 0 {
		out.BroadcastInterval = def.BroadcastInterval
	}
	if out.MirrorRefreshInterval <= 0 {
		out.MirrorRefreshInterval = def.MirrorRefreshInterval
	}
	if out.RolloverInterval <= 0 {
		out.RolloverInterval = def.RolloverInterval
	}
	if out.MemoTTL <= 0 {
		out.MemoTTL = def.MemoTTL
	}
	if out.KeyTTL <= 0 {
		out.KeyTTL = def.KeyTTL
	}

	return &out
}
