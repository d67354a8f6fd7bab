// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Filipe Johansson

package gopulse

import (
	"context"
	"sync"
	"time"

	"github.com/coder/quartz"
)

// windowDays is the size of the rolling window, in calendar days.
const windowDays = 7

const dateLayout = "2006-01-02"

// DateWindow is the single source of truth for "today" and the trailing
// 7-day date list, both in UTC. Every component that builds day-keyed store
// lookups must consult the same DateWindow so no two of them can disagree on
// where the day boundary is.
//
// The window is recomputed by a low-frequency ticker rather than on every
// read: a read sees either the old window or the new one, never a mix.
type DateWindow struct {
	clock quartz.Clock

	mu    sync.RWMutex
	today string
	week  []string // most-recent first, week[0] == today
}

// NewDateWindow returns a DateWindow initialized to the clock's current UTC
// date.
func NewDateWindow(clock quartz.Clock) *DateWindow {
	w := &DateWindow{clock: clock}
	w.recompute(clock.Now())
	return w
}

// Today returns the current UTC calendar date as an ISO date string.
func (w *DateWindow) Today() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.today
}

// Week returns the trailing 7 ISO dates, most-recent first. The returned
// slice is a copy.
func (w *DateWindow) Week() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]string, len(w.week))
	copy(out, w.week)
	return out
}

// Watch periodically checks whether the UTC date has advanced and swaps in a
// fresh window when it has. It returns immediately; the returned waiter
// resolves when ctx is canceled.
func (w *DateWindow) Watch(ctx context.Context, interval time.Duration) quartz.Waiter {
	return w.clock.TickerFunc(ctx, interval, func() error {
		w.Roll()
		return nil
	}, "datewindow")
}

// Roll recomputes the window if the UTC calendar date has advanced since
// the last computation. It reports whether the window changed.
func (w *DateWindow) Roll() bool {
	now := w.clock.Now()
	if formatDateISO(now) == w.Today() {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if formatDateISO(now) == w.today {
		return false
	}
	w.recomputeLocked(now)
	return true
}

func (w *DateWindow) recompute(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.recomputeLocked(now)
}

func (w *DateWindow) recomputeLocked(now time.Time) {
	base := now.UTC()
	week := make([]string, windowDays)
	for i := 0; i < windowDays; i++ {
		week[i] = formatDateISO(base.AddDate(0, 0, -i))
	}

	w.today = week[0]
	w.week = week
}

// formatDateISO formats t as a UTC ISO calendar date (YYYY-MM-DD).
func formatDateISO(t time.Time) string {
	return t.UTC().Format(dateLayout)
}
