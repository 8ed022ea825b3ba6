// Package catalog holds the read-only festival event directory.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"festplan/internal/model"
)

// ErrUnknownEvent is returned when an event id is not in the catalog.
var ErrUnknownEvent = errors.New("unknown event")

//go:embed default_catalog.yaml
var defaultCatalog []byte

// Catalog is an immutable, ordered list of events. Catalog order is the
// tie-breaker for every derived view.
type Catalog struct {
	events []model.Event
	byID   map[string]int
}

type catalogFile struct {
	Events []model.Event `yaml:"events"`
}

// New builds a catalog, rejecting duplicate ids and invalid events.
func New(events []model.Event) (*Catalog, error) {
	c := &Catalog{
		events: make([]model.Event, 0, len(events)),
		byID:   make(map[string]int, len(events)),
	}
	for _, ev := range events {
		if err := ev.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byID[ev.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate event id %q", ev.ID)
		}
		c.byID[ev.ID] = len(c.events)
		c.events = append(c.events, ev)
	}
	return c, nil
}

// Parse reads a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return New(f.Events)
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic("catalog: embedded catalog is invalid: " + err.Error())
	}
	return c
}

// LoadFile reads a YAML catalog from disk. An empty path means the
// built-in catalog.
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Events returns the events in catalog order.
func (c *Catalog) Events() []model.Event {
	out := make([]model.Event, len(c.events))
	copy(out, c.events)
	return out
}

func (c *Catalog) Len() int { return len(c.events) }

// Get looks up an event by id.
func (c *Catalog) Get(id string) (model.Event, error) {
	i, ok := c.byID[id]
	if !ok {
		return model.Event{}, fmt.Errorf("%w: %s", ErrUnknownEvent, id)
	}
	return c.events[i], nil
}

// ByCategory filters events by category, keeping catalog order. An empty
// category matches everything.
func (c *Catalog) ByCategory(cat model.Category) []model.Event {
	out := make([]model.Event, 0)
	for _, ev := range c.events {
		if cat == "" || ev.Category == cat {
			out = append(out, ev)
		}
	}
	return out
}

// Locations lists distinct locations in first-seen order.
func (c *Catalog) Locations() []string {
	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, ev := range c.events {
		if !seen[ev.Location] {
			seen[ev.Location] = true
			out = append(out, ev.Location)
		}
	}
	return out
}

// Live holds the catalog currently in use; refreshes swap it atomically.
type Live struct {
	p   atomic.Pointer[Catalog]
	gen atomic.Uint64
}

func NewLive(c *Catalog) *Live {
	l := &Live{}
	l.p.Store(c)
	return l
}

func (l *Live) Get() *Catalog { return l.p.Load() }

func (l *Live) Set(c *Catalog) {
	l.p.Store(c)
	l.gen.Add(1)
}

// Generation counts the swaps since NewLive.
func (l *Live) Generation() uint64 { return l.gen.Load() }
