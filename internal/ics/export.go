package ics

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"festplan/internal/model"
)

const (
	productID = "-//Festplan//Schedule//EN"
	uidDomain = "festplan"

	googleCalendarURL = "https://calendar.google.com/calendar/render"
	utcStamp          = "20060102T150405Z"
)

// GenerateICS renders a single-event calendar document with a 30 minute
// display alarm.
func GenerateICS(ev model.Event, festivalStart time.Time, now time.Time) (string, error) {
	start, end, err := EventTimes(ev, festivalStart)
	if err != nil {
		return "", err
	}

	cal := ical.NewCalendar()
	cal.SetProductId(productID)
	cal.SetCalscale("GREGORIAN")
	cal.SetMethod(ical.MethodPublish)

	vev := cal.AddEvent(ev.ID + "@" + uidDomain)
	vev.SetDtStampTime(now)
	vev.SetStartAt(start)
	vev.SetEndAt(end)
	vev.SetSummary(ev.Name)
	vev.SetLocation(ev.Location)
	vev.SetDescription(description(ev))
	vev.SetStatus(ical.ObjectStatusConfirmed)
	if ev.Category != "" {
		vev.SetProperty(ical.ComponentPropertyCategories, string(ev.Category))
	}

	alarm := vev.AddAlarm()
	alarm.SetAction(ical.ActionDisplay)
	alarm.SetTrigger("-PT30M")
	alarm.SetProperty(ical.ComponentPropertyDescription, "Event reminder: 30 minutes before")

	return cal.Serialize(), nil
}

// GoogleCalendarURL builds a "create event" link for Google Calendar.
func GoogleCalendarURL(ev model.Event, festivalStart time.Time) (string, error) {
	start, end, err := EventTimes(ev, festivalStart)
	if err != nil {
		return "", err
	}
	q := url.Values{}
	q.Set("action", "TEMPLATE")
	q.Set("text", ev.Name)
	q.Set("dates", start.UTC().Format(utcStamp)+"/"+end.UTC().Format(utcStamp))
	q.Set("details", description(ev))
	q.Set("location", ev.Location)
	return googleCalendarURL + "?" + q.Encode(), nil
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]`)

// FileName is the download name for an event's calendar file.
func FileName(ev model.Event) string {
	return nonAlnum.ReplaceAllString(strings.ToLower(ev.Name), "-") + ".ics"
}

func description(ev model.Event) string {
	d := fmt.Sprintf("%s at %s", ev.Name, ev.Location)
	if ev.Description != "" {
		d += "\n\n" + ev.Description
	}
	return d
}
