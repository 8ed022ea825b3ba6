package model

import "fmt"

// Status is a user's preference level for an event.
type Status string

const (
	StatusNone    Status = "none"
	StatusMustSee Status = "must-see"
	StatusNice    Status = "nice"
	StatusHave    Status = "have"
)

// Statuses lists every non-none status in display priority order.
var Statuses = []Status{StatusMustSee, StatusNice, StatusHave}

// ParseStatus accepts the wire form of a status. The empty string is none.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case "", StatusNone:
		return StatusNone, nil
	case StatusMustSee, StatusNice, StatusHave:
		return Status(s), nil
	}
	return StatusNone, fmt.Errorf("unknown status %q", s)
}

// Style holds the presentation attributes of a status.
type Style struct {
	Label string `json:"label"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

// Style returns the presentation attributes for s. StatusNone has none.
func (s Status) Style() Style {
	switch s {
	case StatusNone:
		return Style{}
	case StatusMustSee:
		return Style{Label: "Must See", Icon: "star", Color: "neon-yellow"}
	case StatusNice:
		return Style{Label: "Nice to See", Icon: "thumbs-up", Color: "neon-cyan"}
	case StatusHave:
		return Style{Label: "Going", Icon: "check-circle", Color: "neon-green"}
	default:
		panic(fmt.Sprintf("model: unhandled status %q", string(s)))
	}
}

// Rank orders statuses for grouping; lower ranks come first.
func (s Status) Rank() int {
	switch s {
	case StatusMustSee:
		return 0
	case StatusNice:
		return 1
	case StatusHave:
		return 2
	case StatusNone:
		return 3
	default:
		return 4
	}
}
