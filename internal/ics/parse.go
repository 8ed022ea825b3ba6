package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "festplan/internal/log"
	"festplan/internal/model"
)

// lateNightHours is how far past midnight a festival day extends.
const lateNightHours = 6

// ParseCatalog turns a line-up feed into catalog events. Each VEVENT is
// placed on the festival day it belongs to (early-morning starts count
// toward the previous day). Events outside the festival are skipped.
func ParseCatalog(feed Feed, body []byte, festivalStart time.Time) ([]model.Event, error) {
	if len(body) == 0 {
		return nil, errors.New("ics: empty feed body")
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("feed parse failed", err, "id", feed.ID)
		return nil, err
	}
	dates, err := DayDates(festivalStart)
	if err != nil {
		return nil, err
	}

	events := make([]model.Event, 0)
	for _, ve := range cal.Events() {
		ev, err := parseVEvent(ve, dates, festivalStart.Location())
		if err != nil {
			// Log and skip this event, but keep parsing others.
			appLog.Warn("feed vevent skipped", err, "id", feed.ID)
			continue
		}
		events = append(events, ev)
	}
	appLog.Info("feed parse completed", "id", feed.ID, "event_count", len(events))
	return events, nil
}

func parseVEvent(ve *ical.VEvent, dates map[model.Day]time.Time, loc *time.Location) (model.Event, error) {
	var ev model.Event

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return ev, errors.New("missing UID")
	}
	ev.ID = strings.TrimSuffix(uid.Value, "@"+uidDomain)

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		ev.Name = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		ev.Location = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		ev.Description = p.Value
	}
	ev.Category = model.CategoryMusic
	if p := ve.GetProperty(ical.ComponentPropertyCategories); p != nil && p.Value != "" {
		first, _, _ := strings.Cut(p.Value, ",")
		ev.Category = model.Category(strings.ToLower(strings.TrimSpace(first)))
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return ev, fmt.Errorf("event %s: DTSTART: %w", ev.ID, err)
	}
	start = start.In(loc)

	// The festival day is the calendar date of start shifted back by the
	// late-night window.
	shifted := start.Add(-lateNightHours * time.Hour)
	dayDate := time.Date(shifted.Year(), shifted.Month(), shifted.Day(), 0, 0, 0, 0, loc)
	for day, d := range dates {
		if d.Equal(dayDate) {
			ev.Day = day
			break
		}
	}
	if ev.Day == "" {
		return ev, fmt.Errorf("event %s: %s is outside the festival", ev.ID, start.Format(time.RFC3339))
	}
	ev.StartTime = start.Format("15:04")

	if end, err := ve.GetEndAt(); err == nil && end.After(start) {
		ev.LengthMinutes = int(end.Sub(start) / time.Minute)
	}
	return ev, ev.Validate()
}
