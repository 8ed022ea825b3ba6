package offline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"festplan/internal/clock"
	appLog "festplan/internal/log"
	"festplan/internal/notify"
)

type MessageType string

const (
	MsgSkipWaiting          MessageType = "SKIP_WAITING"
	MsgScheduleNotification MessageType = "SCHEDULE_NOTIFICATION"
)

// Message is the page -> worker protocol.
type Message struct {
	Type      MessageType `json:"type"`
	EventID   string      `json:"eventId,omitempty"`
	EventName string      `json:"eventName,omitempty"`
	// EventTime is a local "2006-01-02T15:04:05" timestamp or RFC 3339.
	EventTime string `json:"eventTime,omitempty"`
}

// ParseEventTime parses the eventTime field of a schedule message.
func ParseEventTime(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("offline: bad event time %q", s)
}

// PostMessage queues msg for the worker's event loop. Delivery is
// asynchronous and unordered relative to anything the caller does next.
func (w *Worker) PostMessage(msg Message) error {
	return w.dispatch(func(ctx context.Context) {
		if err := w.HandleMessage(ctx, msg); err != nil {
			appLog.Warn("offline worker: message failed", err, "type", msg.Type)
		}
	})
}

// Run is the worker's event loop. Messages, timer callbacks and pushes are
// handled one at a time until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.running.Store(true)
	defer func() {
		w.running.Store(false)
		w.stopTimers()
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case task := <-w.tasks:
			task(ctx)
		}
	}
}

// dispatch hands fn to the running loop, or runs it inline when no loop
// is running (one-shot CLI use and tests).
func (w *Worker) dispatch(fn func(context.Context)) error {
	if !w.running.Load() {
		fn(context.Background())
		return nil
	}
	select {
	case w.tasks <- fn:
		return nil
	default:
		return ErrInboxFull
	}
}

// HandleMessage processes one message synchronously.
func (w *Worker) HandleMessage(ctx context.Context, msg Message) error {
	switch msg.Type {
	case MsgSkipWaiting:
		return w.SkipWaiting(ctx)
	case MsgScheduleNotification:
		return w.scheduleNotification(msg)
	default:
		appLog.Debug("offline worker: ignoring message", "type", msg.Type)
		return nil
	}
}

func (w *Worker) scheduleNotification(msg Message) error {
	if msg.EventID == "" {
		return errors.New("offline: schedule notification: missing eventId")
	}
	at, err := ParseEventTime(msg.EventTime, w.location())
	if err != nil {
		return err
	}
	delay := at.Sub(w.clock.Now())
	if delay <= 0 {
		appLog.Debug("offline worker: reminder already due, skipping", "event_id", msg.EventID, "event_time", msg.EventTime)
		return nil
	}

	n := w.cfg.Style.Reminder(msg.EventID, msg.EventName, true)
	w.mu.Lock()
	defer w.mu.Unlock()
	if prev, ok := w.timers[msg.EventID]; ok {
		prev.Stop()
	}
	var timer clock.Timer
	timer = w.clock.AfterFunc(delay, func() {
		err := w.dispatch(func(ctx context.Context) {
			w.mu.Lock()
			// A reschedule after this timer fired owns the entry now.
			if w.timers[msg.EventID] == timer {
				delete(w.timers, msg.EventID)
			}
			w.mu.Unlock()
			if err := w.notifier.Show(ctx, n); err != nil {
				appLog.Warn("offline worker: show notification failed", err, "event_id", msg.EventID)
			}
		})
		if err != nil {
			appLog.Warn("offline worker: dropping due notification", err, "event_id", msg.EventID)
		}
	})
	w.timers[msg.EventID] = timer

	appLog.Info("offline worker scheduled notification", "event_id", msg.EventID, "delay", delay.Round(time.Second))
	return nil
}

// location is the zone local event times are read in.
func (w *Worker) location() *time.Location {
	if w.cfg.Location != nil {
		return w.cfg.Location
	}
	return w.clock.Now().Location()
}

// Scheduled reports how many notifications are armed.
func (w *Worker) Scheduled() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.timers)
}

func (w *Worker) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, t := range w.timers {
		t.Stop()
		delete(w.timers, id)
	}
}

// Push delivers a platform push payload to the worker loop.
func (w *Worker) Push(data []byte) error {
	return w.dispatch(func(ctx context.Context) {
		if err := w.HandlePush(ctx, data); err != nil {
			appLog.Warn("offline worker: push notification failed", err)
		}
	})
}

// HandlePush shows the generic reminder notification for a push.
func (w *Worker) HandlePush(ctx context.Context, data []byte) error {
	body := "Event reminder"
	if len(data) > 0 {
		body = string(data)
	}
	return w.notifier.Show(ctx, notify.Notification{
		Title:              w.cfg.Style.AppName,
		Body:               body,
		Icon:               w.cfg.Style.Icon,
		Badge:              w.cfg.Style.Icon,
		Vibrate:            []int{200, 100, 200},
		Tag:                pushTag,
		RequireInteraction: true,
	})
}

type closer interface {
	Close(tag string) bool
}

// HandleNotificationClick closes the notification, then focuses the first
// open window or opens a new one at the root path.
func (w *Worker) HandleNotificationClick(_ context.Context, tag, action string) (Client, error) {
	if c, ok := w.notifier.(closer); ok {
		c.Close(tag)
	}
	if action == "dismiss" {
		return Client{}, nil
	}
	if open := w.clients.List(); len(open) > 0 {
		cl, _ := w.clients.Focus(open[0].ID)
		return cl, nil
	}
	cl := w.clients.Open("/")
	if w.State() == StateActivated {
		w.clients.Claim(w.cfg.Version)
		cl.Controller = w.cfg.Version
	}
	return cl, nil
}
