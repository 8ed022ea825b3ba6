package model

import (
	"fmt"
	"time"
)

// Day is a logical festival day. A festival day also covers the early
// morning hours of the following calendar date.
type Day string

const (
	Friday   Day = "Friday"
	Saturday Day = "Saturday"
	Sunday   Day = "Sunday"
	Monday   Day = "Monday"
)

// DayOrder is the display order of festival days. Days not listed here are
// dropped from grouped views.
var DayOrder = []Day{Friday, Saturday, Sunday, Monday}

// Index returns the position of d within DayOrder.
func (d Day) Index() (int, bool) {
	for i, o := range DayOrder {
		if o == d {
			return i, true
		}
	}
	return -1, false
}

type Category string

const (
	CategoryMusic     Category = "music"
	CategoryWorkshop  Category = "workshop"
	CategoryPerformer Category = "performer"
	CategoryVJ        Category = "vj"
	CategoryInfo      Category = "info"
)

// Event is a single catalog entry. Catalog events are never mutated.
type Event struct {
	ID       string   `yaml:"id" json:"id"`
	Name     string   `yaml:"name" json:"name"`
	Location string   `yaml:"location" json:"location"`
	Day      Day      `yaml:"day" json:"day"`
	Category Category `yaml:"category" json:"category"`

	// StartTime is "HH:MM" (24h). Older catalogs use "H:MM AM/PM".
	StartTime string `yaml:"start_time" json:"startTime"`

	// At most one of EndTime / LengthMinutes is set.
	EndTime       string `yaml:"end_time,omitempty" json:"endTime,omitempty"`
	LengthMinutes int    `yaml:"length_minutes,omitempty" json:"lengthMinutes,omitempty"`

	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// DefaultLength is used when an event has neither an end time nor a length.
const DefaultLength = 60 * time.Minute

// Validate checks the catalog-level invariants of a single event.
func (e Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("event: missing id")
	}
	if e.StartTime == "" {
		return fmt.Errorf("event %s: missing start time", e.ID)
	}
	if e.EndTime != "" && e.LengthMinutes > 0 {
		return fmt.Errorf("event %s: both end time and length set", e.ID)
	}
	return nil
}

// Reminder is a user-requested notification for one event.
type Reminder struct {
	EventID               string `json:"eventId"`
	ReminderDate          string `json:"reminderDate"` // YYYY-MM-DD
	ReminderTime          string `json:"reminderTime"` // HH:MM
	EventName             string `json:"eventName,omitempty"`
	NotificationScheduled bool   `json:"notificationScheduled"`
}

// FriendSchedule is a read-only snapshot of somebody else's plan.
type FriendSchedule struct {
	Name       string            `json:"name"`
	Schedule   map[string]Status `json:"schedule"`
	ExportedAt string            `json:"exportedAt"`
}
