package session

import (
	"sort"
	"time"
)

// nextWake returns the earliest due instant over the reminders, or false
// when there are none and the timer should be disarmed.
func nextWake(reminders []Reminder) (time.Time, bool) {
	if len(reminders) == 0 {
		return time.Time{}, false
	}
	min := reminders[0].At
	for _, r := range reminders[1:] {
		if r.At < min {
			min = r.At
		}
	}
	return time.UnixMilli(min), true
}

// splitDue partitions reminders into those at or past now and those still in
// the future, preserving insertion order within each part. Reminders sharing
// the fired instant are delivered together.
func splitDue(reminders []Reminder, now time.Time) (due, future []Reminder) {
	nowMs := now.UnixMilli()
	for _, r := range reminders {
		if r.At <= nowMs {
			due = append(due, r)
		} else {
			future = append(future, r)
		}
	}
	return due, future
}

// sortedByAt returns a copy sorted ascending by due instant. Ties keep
// insertion order.
func sortedByAt(reminders []Reminder) []Reminder {
	out := make([]Reminder, len(reminders))
	copy(out, reminders)
	sort.SliceStable(out, func(i, j int) bool { return out[i].At < out[j].At })
	return out
}
