package ics

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"festplan/internal/model"
	"festplan/internal/schedule"
)

// DayDates maps each festival day to its calendar date (midnight in the
// festival's location). start is the date of the first festival day.
func DayDates(start time.Time) (map[model.Day]time.Time, error) {
	first := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	r, err := rrule.NewRRule(rrule.ROption{
		Freq:    rrule.DAILY,
		Count:   len(model.DayOrder),
		Dtstart: first,
	})
	if err != nil {
		return nil, fmt.Errorf("ics: festival days: %w", err)
	}
	out := make(map[model.Day]time.Time, len(model.DayOrder))
	for i, d := range r.All() {
		out[model.DayOrder[i]] = d
	}
	return out, nil
}

// EventTimes resolves an event to absolute start and end instants. Start
// times before 06:00 fall on the night after the listed day.
func EventTimes(ev model.Event, festivalStart time.Time) (start, end time.Time, err error) {
	dates, err := DayDates(festivalStart)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	date, ok := dates[ev.Day]
	if !ok {
		return time.Time{}, time.Time{}, fmt.Errorf("ics: event %s: unknown day %q", ev.ID, ev.Day)
	}

	startMin, err := schedule.FestivalMinutes(ev.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("ics: event %s: %w", ev.ID, err)
	}
	start = time.Date(date.Year(), date.Month(), date.Day(), 0, startMin, 0, 0, date.Location())

	switch {
	case ev.EndTime != "":
		h, m, err := schedule.ParseClock(ev.EndTime)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("ics: event %s: %w", ev.ID, err)
		}
		end = time.Date(start.Year(), start.Month(), start.Day(), h, m, 0, 0, start.Location())
		if end.Before(start) {
			end = end.AddDate(0, 0, 1)
		}
	case ev.LengthMinutes > 0:
		end = start.Add(time.Duration(ev.LengthMinutes) * time.Minute)
	default:
		end = start.Add(model.DefaultLength)
	}
	return start, end, nil
}
