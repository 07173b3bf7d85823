// Package window plans the time ranges an incremental stream is read in.
package window

import (
	"fmt"
	"time"
)

// Window is the half-open range [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Duration returns End - Start.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

// Iterator yields consecutive windows of a fixed width starting at a given
// instant. Each window starts where the previous one ended, and iteration
// stops once a window's end reaches the current time.
//
//	it := window.NewIterator(start, time.Hour, time.Now)
//	for it.Next() {
//		w := it.Window()
//		...
//	}
type Iterator struct {
	interval time.Duration
	cursor   time.Time
	now      func() time.Time
	current  Window
}

// NewIterator creates an iterator starting at start. now is consulted before
// every window. interval must be positive.
func NewIterator(start time.Time, interval time.Duration, now func() time.Time) *Iterator {
	if interval <= 0 {
		panic(fmt.Sprintf("window: non-positive interval %s", interval))
	}
	if now == nil {
		now = time.Now
	}
	return &Iterator{
		interval: interval,
		cursor:   start,
		now:      now,
	}
}

// Next advances to the next window. It returns false when the previous window
// already ended at or after now, or when start was not before now.
func (it *Iterator) Next() bool {
	if !it.cursor.Before(it.now()) {
		return false
	}
	it.current = Window{Start: it.cursor, End: it.cursor.Add(it.interval)}
	it.cursor = it.current.End
	return true
}

// Window returns the current window.
func (it *Iterator) Window() Window {
	return it.current
}

// Plan returns every window from start to now in one slice.
func Plan(start time.Time, interval time.Duration, now time.Time) []Window {
	var out []Window
	it := NewIterator(start, interval, func() time.Time { return now })
	for it.Next() {
		out = append(out, it.Window())
	}
	return out
}
