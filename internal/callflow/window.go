// ABOUTME: Time-of-day window membership for the call rejection gate
// ABOUTME: Windows whose end precedes their start wrap around midnight

package callflow

import (
	"time"

	"github.com/2389/switchboard/internal/store"
)

// InWindow reports whether the local time-of-day of now falls within
// [start, end]. An unset bound means the window is always open.
func InWindow(now time.Time, start, end *store.TimeOfDay) bool {
	if start == nil || end == nil {
		return true
	}
	t := store.TimeOfDayOf(now).Seconds()
	s, e := start.Seconds(), end.Seconds()
	if s <= e {
		return t >= s && t <= e
	}
	return t >= s || t <= e
}
