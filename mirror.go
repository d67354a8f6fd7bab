// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Filipe Johansson

package gopulse

import (
	"sync"
	"time"

	"github.com/coder/quartz"
)

// mirror is the process-local copy of the per-variant active counters. It is
// advisory, never authoritative: it serves reads while the store is slow or
// unavailable and is overwritten by every successful store operation.
type mirror struct {
	mu     sync.RWMutex
	counts map[Variant]int64
}

func newMirror(variants []Variant) *mirror {
	counts := make(map[Variant]int64, len(variants))
	for _, v := range variants {
		counts[v] = 0
	}
	return &mirror{counts: counts}
}

func (m *mirror) get(v Variant) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counts[v]
}

func (m *mirror) set(v Variant, count int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[v] = count
}

// reset zeroes every variant's mirrored count.
func (m *mirror) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for v := range m.counts {
		m.counts[v] = 0
	}
}

// snapshot returns a copy of all mirrored counts.
func (m *mirror) snapshot() map[Variant]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[Variant]int64, len(m.counts))
	for v, n := range m.counts {
		out[v] = n
	}
	return out
}

type memoEntry[T any] struct {
	value     T
	expiresAt time.Time
}

// memoCache memoizes one value per variant for a fixed TTL, bounding store
// read amplification under subscriber/poll volume. Expiry is judged against
// the injected clock; an expired entry is never returned.
type memoCache[T any] struct {
	clock quartz.Clock
	ttl   time.Duration

	mu      sync.Mutex
	entries map[Variant]memoEntry[T]
}

func newMemoCache[T any](clock quartz.Clock, ttl time.Duration) *memoCache[T] {
	return &memoCache[T]{
		clock:   clock,
		ttl:     ttl,
		entries: make(map[Variant]memoEntry[T]),
	}
}

func (c *memoCache[T]) get(v Variant) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[v]
	if !exists || !c.clock.Now().Before(entry.expiresAt) {
		var zero T
		return zero, false
	}
	return entry.value, true
}

func (c *memoCache[T]) put(v Variant, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[v] = memoEntry[T]{
		value:     value,
		expiresAt: c.clock.Now().Add(c.ttl),
	}
}

func (c *memoCache[T]) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Variant]memoEntry[T])
}
