package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"festplan/internal/model"
	"festplan/internal/reminder"
	"festplan/internal/schedule"
)

func TestPrintGroups(t *testing.T) {
	var buf bytes.Buffer
	printGroups(&buf, []schedule.Group{{
		Key: "Friday",
		Entries: []schedule.Entry{
			{Event: model.Event{ID: "aa-4", Name: "Finch", Location: "Astral Arena", StartTime: "19:30"}, Status: model.StatusMustSee},
			{Event: model.Event{ID: "aa-7", Name: "Chromatone", Location: "Astral Arena", StartTime: "00:00"}, Status: model.StatusHave},
		},
	}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, "== Friday ==", lines[0])
	assert.Contains(t, lines[1], "7:30 PM")
	assert.Contains(t, lines[1], "Must See")
	assert.Contains(t, lines[2], "12:00 AM")
	assert.Contains(t, lines[2], "Going")

	buf.Reset()
	printGroups(&buf, nil)
	assert.Equal(t, "Nothing planned yet.\n", buf.String())
}

func TestPrintRemindersUpcomingFirst(t *testing.T) {
	var buf bytes.Buffer
	at := time.Date(2025, 2, 28, 9, 0, 0, 0, time.UTC)
	printReminders(&buf, []reminder.Item{
		{Reminder: model.Reminder{EventID: "aa-1", ReminderDate: "2025-02-28", ReminderTime: "09:00"}, Event: model.Event{Name: "Opening"}, At: at, Completed: true},
		{Reminder: model.Reminder{EventID: "aa-4", ReminderDate: "2025-02-28", ReminderTime: "19:00"}, Event: model.Event{Name: "Finch"}, At: at.Add(10 * time.Hour)},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.True(t, strings.HasPrefix(lines[0], "upcoming"))
	assert.Contains(t, lines[0], "Finch")
	assert.True(t, strings.HasPrefix(lines[1], "done"))
}
