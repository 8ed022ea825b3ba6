package schedule

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	minutesPerDay = 24 * 60

	// lateNightEnd is the first hour that no longer belongs to the
	// previous festival day.
	lateNightEnd = 6
)

// unparsedMinutes sorts events with malformed times after all others.
const unparsedMinutes = math.MaxInt32

// ParseClock parses "HH:MM" (24h) or the legacy "H:MM AM/PM" form.
func ParseClock(s string) (hour, minute int, err error) {
	s = strings.TrimSpace(s)
	clock, period, hasPeriod := strings.Cut(s, " ")

	h, m, ok := strings.Cut(clock, ":")
	if !ok {
		return 0, 0, fmt.Errorf("clock %q: missing ':'", s)
	}
	hour, err = strconv.Atoi(h)
	if err != nil {
		return 0, 0, fmt.Errorf("clock %q: hour: %w", s, err)
	}
	minute, err = strconv.Atoi(m)
	if err != nil {
		return 0, 0, fmt.Errorf("clock %q: minute: %w", s, err)
	}

	if hasPeriod {
		if hour < 1 || hour > 12 {
			return 0, 0, fmt.Errorf("clock %q: hour out of range", s)
		}
		switch strings.ToUpper(strings.TrimSpace(period)) {
		case "AM":
			if hour == 12 {
				hour = 0
			}
		case "PM":
			if hour != 12 {
				hour += 12
			}
		default:
			return 0, 0, fmt.Errorf("clock %q: unknown period %q", s, period)
		}
	}

	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("clock %q: out of range", s)
	}
	return hour, minute, nil
}

// FestivalMinutes returns minutes since the start of the festival day.
// Hours before 06:00 belong to the night of that day and are shifted by
// a full day, so 01:30 sorts after 23:00.
func FestivalMinutes(s string) (int, error) {
	h, m, err := ParseClock(s)
	if err != nil {
		return 0, err
	}
	total := h*60 + m
	if h < lateNightEnd {
		total += minutesPerDay
	}
	return total, nil
}

func sortMinutes(s string) int {
	n, err := FestivalMinutes(s)
	if err != nil {
		return unparsedMinutes
	}
	return n
}

// Format12h renders a 24h clock as "h:MM AM/PM". Anything that is not a
// 24h clock is returned unchanged.
func Format12h(s string) string {
	if strings.Contains(s, " ") {
		return s
	}
	h, m, err := ParseClock(s)
	if err != nil {
		return s
	}
	period := "AM"
	if h >= 12 {
		period = "PM"
	}
	h12 := h % 12
	if h12 == 0 {
		h12 = 12
	}
	return fmt.Sprintf("%d:%02d %s", h12, m, period)
}
