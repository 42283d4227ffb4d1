package schedule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time with minute precision and no date or zone.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// At returns a TimeOfDay for the given hour and minute. It panics on out-of-range
// values and is meant for fixtures and constants.
func At(hour, minute int) *TimeOfDay {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		panic(fmt.Sprintf("schedule: invalid time %02d:%02d", hour, minute))
	}
	return &TimeOfDay{Hour: hour, Minute: minute}
}

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS". Seconds, when present, must be zero.
func ParseTimeOfDay(s string) (*TimeOfDay, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return nil, fmt.Errorf("invalid time of day %q: want HH:MM", s)
	}

	hour, err := parseField(parts[0], 23)
	if err != nil {
		return nil, fmt.Errorf("invalid hour in %q: %w", s, err)
	}
	minute, err := parseField(parts[1], 59)
	if err != nil {
		return nil, fmt.Errorf("invalid minute in %q: %w", s, err)
	}
	if len(parts) == 3 {
		sec, err := parseField(parts[2], 59)
		if err != nil {
			return nil, fmt.Errorf("invalid second in %q: %w", s, err)
		}
		if sec != 0 {
			return nil, fmt.Errorf("invalid time of day %q: reminders have minute precision", s)
		}
	}

	return &TimeOfDay{Hour: hour, Minute: minute}, nil
}

func parseField(s string, max int) (int, error) {
	if len(s) != 2 {
		return 0, fmt.Errorf("want two digits, got %q", s)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > max {
		return 0, fmt.Errorf("%d out of range 0-%d", n, max)
	}
	return n, nil
}

// String formats the time as HH:MM.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// MarshalText implements encoding.TextMarshaler.
func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TimeOfDay) UnmarshalText(b []byte) error {
	parsed, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = *parsed
	return nil
}

// Equal reports whether t falls on the same hour and minute as now.
func (t TimeOfDay) Equal(now time.Time) bool {
	return t.Hour == now.Hour() && t.Minute == now.Minute()
}

// ParseReminderTimes converts raw slot values into reminder times. An empty value
// marks the slot as inactive.
func ParseReminderTimes(raw map[string]string) (map[string]*TimeOfDay, error) {
	times := make(map[string]*TimeOfDay, len(raw))
	for label, value := range raw {
		label = strings.TrimSpace(label)
		if label == "" {
			return nil, fmt.Errorf("reminder slot label is required")
		}
		if strings.TrimSpace(value) == "" {
			times[label] = nil
			continue
		}
		tod, err := ParseTimeOfDay(value)
		if err != nil {
			return nil, fmt.Errorf("slot %q: %w", label, err)
		}
		times[label] = tod
	}
	return times, nil
}

// FormatReminderTimes is the inverse of ParseReminderTimes.
func FormatReminderTimes(times map[string]*TimeOfDay) map[string]string {
	out := make(map[string]string, len(times))
	for label, tod := range times {
		if tod == nil {
			out[label] = ""
			continue
		}
		out[label] = tod.String()
	}
	return out
}

// MinuteOf converts t into loc and drops seconds and sub-second precision.
func MinuteOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, loc)
}

// MatchDueSlots returns the labels whose configured time equals nowMinute exactly.
// Slots without a configured time never match. The result is sorted.
func MatchDueSlots(times map[string]*TimeOfDay, nowMinute time.Time) []string {
	var due []string
	for label, tod := range times {
		if tod == nil {
			continue
		}
		if tod.Equal(nowMinute) {
			due = append(due, label)
		}
	}
	sort.Strings(due)
	return due
}
