package reminder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"festplan/internal/catalog"
	"festplan/internal/clock"
	"festplan/internal/model"
	"festplan/internal/notify"
	"festplan/internal/offline"
	"festplan/internal/storage"
)

type recordingPoster struct {
	msgs []offline.Message
}

func (p *recordingPoster) PostMessage(msg offline.Message) error {
	p.msgs = append(p.msgs, msg)
	return nil
}

type fixture struct {
	kv     *storage.Memory
	clk    *clock.Fake
	center *notify.Center
	poster *recordingPoster
	sched  *Scheduler
}

func newFixture(t *testing.T, answer notify.Permission) *fixture {
	t.Helper()
	f := &fixture{
		kv:     storage.NewMemory(),
		clk:    clock.NewFake(time.Date(2025, 2, 28, 12, 0, 0, 0, time.UTC)),
		center: notify.NewCenter(answer),
		poster: &recordingPoster{},
	}
	f.sched = f.build()
	return f
}

func (f *fixture) build() *Scheduler {
	style := notify.Style{AppName: "Festplan"}
	return NewScheduler(
		NewStore(context.Background(), f.kv),
		f.center, f.clk, time.UTC,
		WorkerDelivery{Worker: f.poster},
		TimerDelivery{Clock: f.clk, Notifier: f.center, Permissions: f.center, Style: style},
	)
}

func TestSetReminderFutureArmsBothPaths(t *testing.T) {
	f := newFixture(t, notify.PermissionGranted)

	perm, err := f.sched.SetReminder(context.Background(), "aa-4", "2025-02-28", "19:00", "Finch")
	require.NoError(t, err)
	assert.Equal(t, notify.PermissionGranted, perm)

	r, ok := f.sched.Store().Get("aa-4")
	require.True(t, ok)
	assert.True(t, r.NotificationScheduled)

	require.Len(t, f.poster.msgs, 1)
	assert.Equal(t, offline.MsgScheduleNotification, f.poster.msgs[0].Type)
	assert.Equal(t, "2025-02-28T19:00:00Z", f.poster.msgs[0].EventTime)
	assert.Equal(t, 1, f.sched.Armed("aa-4"))

	f.clk.Advance(7 * time.Hour)
	active := f.center.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "aa-4", active[0].Tag)
}

func TestSetReminderInPastIsNotScheduled(t *testing.T) {
	f := newFixture(t, notify.PermissionGranted)

	_, err := f.sched.SetReminder(context.Background(), "ev1", "2025-02-01", "09:00", "")
	require.NoError(t, err)

	r, ok := f.sched.Store().Get("ev1")
	require.True(t, ok)
	assert.False(t, r.NotificationScheduled)
	assert.Empty(t, f.poster.msgs)
	assert.Equal(t, 0, f.clk.Pending())
}

func TestSetReminderPermissionDenied(t *testing.T) {
	f := newFixture(t, notify.PermissionDenied)

	perm, err := f.sched.SetReminder(context.Background(), "aa-4", "2025-02-28", "19:00", "Finch")
	require.NoError(t, err)
	assert.Equal(t, notify.PermissionDenied, perm)
	assert.Equal(t, notify.PermissionDenied, f.sched.Permission())

	r, ok := f.sched.Store().Get("aa-4")
	require.True(t, ok, "reminder is stored anyway")
	assert.False(t, r.NotificationScheduled)
	assert.Empty(t, f.poster.msgs)
}

func TestSetReminderRejectsBadInput(t *testing.T) {
	f := newFixture(t, notify.PermissionGranted)
	_, err := f.sched.SetReminder(context.Background(), "aa-4", "28/02/2025", "19:00", "")
	assert.Error(t, err)
	assert.False(t, f.sched.Store().Has("aa-4"))
}

func TestClearReminderStopsLocalTimer(t *testing.T) {
	f := newFixture(t, notify.PermissionGranted)
	_, err := f.sched.SetReminder(context.Background(), "aa-4", "2025-02-28", "13:00", "Finch")
	require.NoError(t, err)

	assert.True(t, f.sched.ClearReminder("aa-4"))
	assert.False(t, f.sched.Store().Has("aa-4"))
	assert.Equal(t, 0, f.clk.Pending())
	assert.Len(t, f.poster.msgs, 1, "the worker copy cannot be retracted")

	f.clk.Advance(2 * time.Hour)
	assert.Empty(t, f.center.Active())
}

func TestResetOverwritesReminder(t *testing.T) {
	f := newFixture(t, notify.PermissionGranted)
	ctx := context.Background()
	_, _ = f.sched.SetReminder(ctx, "aa-4", "2025-02-28", "13:00", "Finch")
	_, _ = f.sched.SetReminder(ctx, "aa-4", "2025-02-28", "14:00", "Finch")

	assert.Len(t, f.sched.Store().All(), 1)
	assert.Equal(t, 1, f.clk.Pending())
	r, _ := f.sched.Store().Get("aa-4")
	assert.Equal(t, "14:00", r.ReminderTime)
}

func TestRemindersPersistAndRearm(t *testing.T) {
	f := newFixture(t, notify.PermissionGranted)
	ctx := context.Background()
	_, _ = f.sched.SetReminder(ctx, "aa-4", "2025-02-28", "19:00", "Finch")
	_, _ = f.sched.SetReminder(ctx, "aa-1", "2025-02-27", "19:00", "Opening")

	restarted := f.build()
	assert.Equal(t, f.sched.Store().All(), restarted.Store().All())
	assert.Equal(t, 1, restarted.Rearm(ctx))
	assert.Equal(t, 1, restarted.Armed("aa-4"))
}

func TestListMarksCompleted(t *testing.T) {
	f := newFixture(t, notify.PermissionGranted)
	ctx := context.Background()
	cat, err := catalog.New([]model.Event{
		{ID: "aa-1", Name: "Opening", StartTime: "15:00"},
		{ID: "aa-4", Name: "Finch", StartTime: "19:30"},
	})
	require.NoError(t, err)

	_, _ = f.sched.SetReminder(ctx, "aa-4", "2025-02-28", "19:00", "Finch")
	_, _ = f.sched.SetReminder(ctx, "aa-1", "2025-02-28", "09:00", "Opening")
	_, _ = f.sched.SetReminder(ctx, "gone", "2025-02-28", "10:00", "")

	items := f.sched.List(cat)
	require.Len(t, items, 2)
	assert.Equal(t, "aa-1", items[0].Reminder.EventID)
	assert.True(t, items[0].Completed)
	assert.Equal(t, "aa-4", items[1].Reminder.EventID)
	assert.False(t, items[1].Completed)
}

func TestArmReplacesExistingLocalTimers(t *testing.T) {
	f := newFixture(t, notify.PermissionGranted)
	ctx := context.Background()
	at := f.clk.Now().Add(time.Hour)

	// Two interleaved sets for one event both reach arm without a cancel between.
	f.sched.arm(ctx, Request{EventID: "aa-4", EventName: "Finch", At: at, Delay: time.Hour})
	f.sched.arm(ctx, Request{EventID: "aa-4", EventName: "Finch", At: at, Delay: time.Hour})
	assert.Equal(t, 1, f.sched.Armed("aa-4"))
	assert.Equal(t, 1, f.clk.Pending())

	f.sched.ClearReminder("aa-4")
	assert.Equal(t, 0, f.clk.Pending())
}

func TestStoreNotifiesSubscribers(t *testing.T) {
	f := newFixture(t, notify.PermissionGranted)

	var seen []int
	cancel := f.sched.Store().Subscribe(func(m map[string]model.Reminder) { seen = append(seen, len(m)) })
	_, err := f.sched.SetReminder(context.Background(), "aa-4", "2025-02-28", "19:00", "Finch")
	require.NoError(t, err)
	f.sched.ClearReminder("aa-4")
	f.sched.ClearReminder("aa-4")
	cancel()

	assert.Equal(t, []int{1, 0}, seen, "a no-op delete does not notify")
}
