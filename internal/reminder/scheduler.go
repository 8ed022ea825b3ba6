package reminder

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"festplan/internal/catalog"
	"festplan/internal/clock"
	appLog "festplan/internal/log"
	"festplan/internal/model"
	"festplan/internal/notify"
)

// Scheduler owns the notification permission state and the reminder
// store, and fans each reminder out to every configured Delivery.
type Scheduler struct {
	store       *Store
	permissions notify.Permissions
	clock       clock.Clock
	loc         *time.Location
	deliveries  []Delivery

	mu      sync.Mutex
	cancels map[string][]func()
}

func NewScheduler(store *Store, perms notify.Permissions, clk clock.Clock, loc *time.Location, deliveries ...Delivery) *Scheduler {
	if clk == nil {
		clk = clock.Real{}
	}
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		store:       store,
		permissions: perms,
		clock:       clk,
		loc:         loc,
		deliveries:  deliveries,
		cancels:     make(map[string][]func()),
	}
}

func (s *Scheduler) Store() *Store { return s.store }

// Permission re-queries the platform rather than trusting a cached value.
func (s *Scheduler) Permission() notify.Permission {
	return s.permissions.Permission()
}

// RequestPermission prompts only while the permission is undecided.
func (s *Scheduler) RequestPermission(ctx context.Context) (notify.Permission, error) {
	if p := s.permissions.Permission(); p != notify.PermissionDefault {
		return p, nil
	}
	return s.permissions.RequestPermission(ctx)
}

// ParseDateTime combines a YYYY-MM-DD date and HH:MM time in loc.
func ParseDateTime(date, clockTime string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02 15:04", date+" "+clockTime, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("reminder: bad date/time %q %q: %w", date, clockTime, err)
	}
	return t, nil
}

// SetReminder records a reminder for eventID and, when it lies in the
// future and notifications are allowed, arms every delivery. The reminder
// is stored even when permission is refused.
func (s *Scheduler) SetReminder(ctx context.Context, eventID, date, clockTime, eventName string) (notify.Permission, error) {
	at, err := ParseDateTime(date, clockTime, s.loc)
	if err != nil {
		return s.Permission(), err
	}

	perm, err := s.RequestPermission(ctx)
	if err != nil {
		appLog.Warn("reminders: permission request failed", err, "event_id", eventID)
		perm = notify.PermissionDenied
	}

	delay := at.Sub(s.clock.Now())
	scheduled := perm == notify.PermissionGranted && delay > 0

	s.cancel(eventID)
	if scheduled {
		s.arm(ctx, Request{EventID: eventID, EventName: displayName(eventID, eventName), At: at, Delay: delay})
	} else {
		appLog.Info("reminders: stored without notification", "event_id", eventID, "permission", perm, "delay", delay)
	}

	s.store.Put(model.Reminder{
		EventID:               eventID,
		ReminderDate:          date,
		ReminderTime:          clockTime,
		EventName:             eventName,
		NotificationScheduled: scheduled,
	})
	return perm, nil
}

// ClearReminder removes the reminder and stops local timers. A reminder
// already handed to the worker still fires.
func (s *Scheduler) ClearReminder(eventID string) bool {
	s.cancel(eventID)
	return s.store.Delete(eventID)
}

// Rearm re-schedules stored future reminders after a restart. It returns
// the number of reminders armed.
func (s *Scheduler) Rearm(ctx context.Context) int {
	if s.Permission() != notify.PermissionGranted {
		return 0
	}
	now := s.clock.Now()
	n := 0
	for id, r := range s.store.All() {
		if !r.NotificationScheduled {
			continue
		}
		at, err := ParseDateTime(r.ReminderDate, r.ReminderTime, s.loc)
		if err != nil || !at.After(now) {
			continue
		}
		s.cancel(id)
		s.arm(ctx, Request{EventID: id, EventName: displayName(id, r.EventName), At: at, Delay: at.Sub(now)})
		n++
	}
	return n
}

// Armed reports how many cancellable local deliveries exist for eventID.
func (s *Scheduler) Armed(eventID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cancels[eventID])
}

func (s *Scheduler) arm(ctx context.Context, req Request) {
	var cancels []func()
	for _, d := range s.deliveries {
		cancel, err := d.Schedule(ctx, req)
		if err != nil {
			appLog.Warn("reminders: delivery failed", err, "delivery", d.Name(), "event_id", req.EventID)
			continue
		}
		if cancel != nil {
			cancels = append(cancels, cancel)
		}
	}
	s.mu.Lock()
	prev := s.cancels[req.EventID]
	s.cancels[req.EventID] = cancels
	s.mu.Unlock()
	// A concurrent SetReminder for the same event may have armed in between.
	for _, c := range prev {
		c()
	}
	appLog.Info("reminders: scheduled", "event_id", req.EventID, "at", req.At.Format(time.RFC3339), "deliveries", len(s.deliveries))
}

func (s *Scheduler) cancel(eventID string) {
	s.mu.Lock()
	cancels := s.cancels[eventID]
	delete(s.cancels, eventID)
	s.mu.Unlock()
	for _, c := range cancels {
		c()
	}
}

func displayName(eventID, name string) string {
	if name != "" {
		return name
	}
	return eventID
}

// Item is a reminder joined with its catalog event.
type Item struct {
	Reminder  model.Reminder `json:"reminder"`
	Event     model.Event    `json:"event"`
	At        time.Time      `json:"at"`
	Completed bool           `json:"completed"`
}

// List joins reminders with the catalog, ordered by reminder time. Past
// reminders are kept and flagged Completed. Reminders for unknown events
// or with unparseable times are skipped.
func (s *Scheduler) List(cat *catalog.Catalog) []Item {
	now := s.clock.Now()
	items := make([]Item, 0)
	for id, r := range s.store.All() {
		ev, err := cat.Get(id)
		if err != nil {
			continue
		}
		at, err := ParseDateTime(r.ReminderDate, r.ReminderTime, s.loc)
		if err != nil {
			continue
		}
		items = append(items, Item{Reminder: r, Event: ev, At: at, Completed: !at.After(now)})
	}
	slices.SortFunc(items, func(a, b Item) int {
		if c := a.At.Compare(b.At); c != 0 {
			return c
		}
		return cmp.Compare(a.Reminder.EventID, b.Reminder.EventID)
	})
	return items
}
