// Package notify models the platform notification surface: permission
// state, notification payloads and an in-process notification center.
package notify

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	appLog "festplan/internal/log"
)

type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// Action is a button offered on a notification.
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// Notification is what gets shown to the user. Tag identifies it: showing
// another notification with the same tag replaces the first.
type Notification struct {
	Title              string    `json:"title"`
	Body               string    `json:"body"`
	Icon               string    `json:"icon,omitempty"`
	Badge              string    `json:"badge,omitempty"`
	Tag                string    `json:"tag"`
	Vibrate            []int     `json:"vibrate,omitempty"`
	RequireInteraction bool      `json:"requireInteraction"`
	Actions            []Action  `json:"actions,omitempty"`
	ShownAt            time.Time `json:"shownAt"`
}

// Notifier displays notifications.
type Notifier interface {
	Show(ctx context.Context, n Notification) error
}

// Permissions reports and requests the notification permission.
type Permissions interface {
	Permission() Permission
	RequestPermission(ctx context.Context) (Permission, error)
}

// Style carries the deployment-specific look of reminders.
type Style struct {
	AppName string
	Icon    string
	Vibrate []int
}

// Reminder builds the notification for an event reminder. Both delivery
// paths use it so that the platform collapses duplicates by tag.
func (s Style) Reminder(eventID, eventName string, withActions bool) Notification {
	n := Notification{
		Title:              "Event Reminder - " + s.AppName,
		Body:               fmt.Sprintf("%s is starting soon!", eventName),
		Icon:               s.Icon,
		Badge:              s.Icon,
		Tag:                eventID,
		Vibrate:            slices.Clone(s.Vibrate),
		RequireInteraction: true,
	}
	if withActions {
		n.Actions = []Action{
			{Action: "view", Title: "View Event"},
			{Action: "dismiss", Title: "Dismiss"},
		}
	}
	return n
}

// Center is an in-process notification surface. It answers permission
// requests with a fixed policy and keeps one visible notification per tag.
type Center struct {
	now func() time.Time

	mu      sync.Mutex
	policy  Permission
	current Permission
	shown   []Notification
}

// NewCenter creates a center that answers permission prompts with answer.
// Passing PermissionDefault leaves every prompt undecided.
func NewCenter(answer Permission) *Center {
	return &Center{now: time.Now, policy: answer, current: PermissionDefault}
}

func (c *Center) Permission() Permission {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Center) RequestPermission(_ context.Context) (Permission, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == PermissionDefault {
		c.current = c.policy
	}
	return c.current, nil
}

// SetPermission overrides the decided permission, e.g. from user settings.
func (c *Center) SetPermission(p Permission) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = p
	c.policy = p
}

func (c *Center) Show(_ context.Context, n Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != PermissionGranted {
		return fmt.Errorf("notify: permission %s", c.current)
	}
	if n.ShownAt.IsZero() {
		n.ShownAt = c.now()
	}
	replaced := false
	if n.Tag != "" {
		for i := range c.shown {
			if c.shown[i].Tag == n.Tag {
				c.shown[i] = n
				replaced = true
				break
			}
		}
	}
	if !replaced {
		c.shown = append(c.shown, n)
	}
	appLog.Info("notification shown", "tag", n.Tag, "title", n.Title, "replaced", replaced)
	return nil
}

// Active returns the visible notifications in the order first shown.
func (c *Center) Active() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.shown)
}

// Close dismisses the notification with tag.
func (c *Center) Close(tag string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, n := range c.shown {
		if n.Tag == tag {
			c.shown = slices.Delete(c.shown, i, i+1)
			return true
		}
	}
	return false
}
