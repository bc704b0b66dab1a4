// Package session implements the per-user actor at the core of plannerd:
// conversation memory, reminder CRUD with a single exact-instant timer, and
// the pending-notification queue. All operations on one session are
// serialized behind its mutex; sessions never share state.
package session

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Reminder is a scheduled text item due at an absolute instant (epoch ms).
type Reminder struct {
	ID   string `json:"id"`
	At   int64  `json:"at"`
	Text string `json:"text"`
}

// Notification is a reminder that crossed its due instant and awaits
// acknowledgment via PollDue.
type Notification struct {
	ID   string `json:"id"`
	At   int64  `json:"at"`
	Text string `json:"text"`
}

// Storage is the durable per-session key-value view the actor owns. Get
// reports absence explicitly so an empty collection and a never-written key
// are distinguishable.
type Storage interface {
	Get(key string, v any) (bool, error)
	Put(key string, v any) error
}

// Timer is the session's single wall-clock alarm. Arm replaces any earlier
// instant; after every reminder mutation it holds min(at) or is disarmed.
type Timer interface {
	Arm(at time.Time)
	Disarm()
}

// State entry names. Each lives under its own storage key.
const (
	keyMemory        = "memory"
	keyReminders     = "reminders"
	keyNotifications = "notifications"
	keyPlans         = "plans"
)

// acceptable layouts for date-string reminder instants, tried in order.
// A bare date resolves to local midnight.
var instantLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseInstant interprets a raw JSON value as an absolute instant: a number
// is epoch milliseconds, a string is parsed against the known layouts.
func ParseInstant(raw json.RawMessage) (time.Time, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return time.Time{}, validationf("missing at")
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if ms, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return time.UnixMilli(ms), nil
		}
		for _, layout := range instantLayouts {
			if t, err := time.ParseInLocation(layout, strings.TrimSpace(s), time.Local); err == nil {
				return t, nil
			}
		}
		return time.Time{}, validationf("unparseable at: %q", s)
	}

	var ms int64
	if err := json.Unmarshal(raw, &ms); err == nil {
		return time.UnixMilli(ms), nil
	}

	return time.Time{}, validationf("unparseable at: %s", trimmed)
}
