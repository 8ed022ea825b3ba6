package reminder

import (
	"context"
	"time"

	"festplan/internal/clock"
	appLog "festplan/internal/log"
	"festplan/internal/notify"
	"festplan/internal/offline"
)

// Request is a notification to deliver at a point in time.
type Request struct {
	EventID   string
	EventName string
	At        time.Time
	Delay     time.Duration
}

// Delivery is one path by which a reminder reaches the user. Deliveries are
// independent and may both fire; they share the event id as tag so the
// platform can collapse duplicates.
type Delivery interface {
	Name() string
	// Schedule arms the delivery. The returned cancel func is nil when the
	// delivery cannot be retracted.
	Schedule(ctx context.Context, req Request) (cancel func(), err error)
}

// Poster is the page side of the worker message channel.
type Poster interface {
	PostMessage(msg offline.Message) error
}

// WorkerDelivery hands the reminder to the offline worker, which outlives
// any single page. Once posted it cannot be cancelled.
type WorkerDelivery struct {
	Worker Poster
}

func (WorkerDelivery) Name() string { return "worker" }

func (d WorkerDelivery) Schedule(_ context.Context, req Request) (func(), error) {
	err := d.Worker.PostMessage(offline.Message{
		Type:      offline.MsgScheduleNotification,
		EventID:   req.EventID,
		EventName: req.EventName,
		EventTime: req.At.Format(time.RFC3339),
	})
	return nil, err
}

// TimerDelivery shows the notification from a local timer. It only fires
// while this process is alive.
type TimerDelivery struct {
	Clock       clock.Clock
	Notifier    notify.Notifier
	Permissions notify.Permissions
	Style       notify.Style
}

func (TimerDelivery) Name() string { return "timer" }

func (d TimerDelivery) Schedule(_ context.Context, req Request) (func(), error) {
	n := d.Style.Reminder(req.EventID, req.EventName, false)
	t := d.Clock.AfterFunc(req.Delay, func() {
		if d.Permissions.Permission() != notify.PermissionGranted {
			return
		}
		if err := d.Notifier.Show(context.Background(), n); err != nil {
			appLog.Warn("reminder timer: show failed", err, "event_id", req.EventID)
		}
	})
	return func() { t.Stop() }, nil
}
