// Package schedule derives the day-grouped, time-ordered views over the
// catalog, the user's plan and imported friend plans. Everything here is
// a pure function of its inputs.
package schedule

import (
	"slices"

	"festplan/internal/model"
)

// Entry is an event together with the status it carries in the view.
type Entry struct {
	Event  model.Event  `json:"event"`
	Status model.Status `json:"status"`
}

// Key selects the group an entry belongs to. rank orders groups; groups of
// equal rank keep first-seen order. ok=false drops the entry.
type Key struct {
	Name string
	Of   func(Entry) (key string, rank int, ok bool)
}

var (
	// ByDay groups by festival day in DayOrder; unknown days are dropped.
	ByDay = Key{Name: "day", Of: func(e Entry) (string, int, bool) {
		i, ok := e.Event.Day.Index()
		return string(e.Event.Day), i, ok
	}}

	// ByStatus groups by preference level, must-see first; none is dropped.
	ByStatus = Key{Name: "status", Of: func(e Entry) (string, int, bool) {
		if e.Status == model.StatusNone {
			return "", 0, false
		}
		return string(e.Status), e.Status.Rank(), true
	}}

	// ByLocation groups by location in first-seen order.
	ByLocation = Key{Name: "location", Of: func(e Entry) (string, int, bool) {
		return e.Event.Location, 0, true
	}}
)

// Grouping is a primary key with an optional secondary key.
type Grouping struct {
	Primary   Key
	Secondary Key // zero value means a single level
}

// Group is one bucket of a grouped view. Leaf groups carry Entries sorted
// by festival time; two-level groupings carry Groups instead.
type Group struct {
	Key     string  `json:"key"`
	Entries []Entry `json:"entries,omitempty"`
	Groups  []Group `json:"groups,omitempty"`
}

// Apply groups entries. Input order is preserved for equal start times.
func (g Grouping) Apply(entries []Entry) []Group {
	groups := bucket(entries, g.Primary)
	for i := range groups {
		if g.Secondary.Of != nil {
			groups[i].Groups = bucket(groups[i].Entries, g.Secondary)
			groups[i].Entries = nil
			for j := range groups[i].Groups {
				sortByTime(groups[i].Groups[j].Entries)
			}
			continue
		}
		sortByTime(groups[i].Entries)
	}
	return groups
}

type rankedGroup struct {
	Group
	rank int
}

func bucket(entries []Entry, key Key) []Group {
	index := make(map[string]int)
	ranked := make([]rankedGroup, 0)
	for _, e := range entries {
		k, rank, ok := key.Of(e)
		if !ok {
			continue
		}
		i, seen := index[k]
		if !seen {
			i = len(ranked)
			index[k] = i
			ranked = append(ranked, rankedGroup{Group: Group{Key: k}, rank: rank})
		}
		ranked[i].Entries = append(ranked[i].Entries, e)
	}
	slices.SortStableFunc(ranked, func(a, b rankedGroup) int { return a.rank - b.rank })

	out := make([]Group, len(ranked))
	for i, r := range ranked {
		out[i] = r.Group
	}
	return out
}

func sortByTime(entries []Entry) {
	slices.SortStableFunc(entries, func(a, b Entry) int {
		return sortMinutes(a.Event.StartTime) - sortMinutes(b.Event.StartTime)
	})
}

// planned returns the catalog events that have a non-none status in prefs.
func planned(events []model.Event, prefs map[string]model.Status) []Entry {
	out := make([]Entry, 0)
	for _, ev := range events {
		st, ok := prefs[ev.ID]
		if !ok || st == model.StatusNone {
			continue
		}
		out = append(out, Entry{Event: ev, Status: st})
	}
	return out
}

// MyPlan is the "my plan" view: planned events grouped by day, each day
// ordered by festival time.
func MyPlan(events []model.Event, prefs map[string]model.Status) []Group {
	return Grouping{Primary: ByDay}.Apply(planned(events, prefs))
}

// MyPlanByStatus groups planned events by status first and day second.
func MyPlanByStatus(events []model.Event, prefs map[string]model.Status) []Group {
	return Grouping{Primary: ByStatus, Secondary: ByDay}.Apply(planned(events, prefs))
}

// FriendPlan is the day-grouped view of a friend's imported schedule.
func FriendPlan(events []model.Event, friend model.FriendSchedule) []Group {
	return MyPlan(events, friend.Schedule)
}

// Presence is one friend's status for an event.
type Presence struct {
	Name   string       `json:"name"`
	Status model.Status `json:"status"`
}

// Overlap lists the friends that planned eventID, in friends-list order.
func Overlap(eventID string, friends []model.FriendSchedule) []Presence {
	out := make([]Presence, 0)
	for _, f := range friends {
		st, ok := f.Schedule[eventID]
		if !ok || st == model.StatusNone {
			continue
		}
		out = append(out, Presence{Name: f.Name, Status: st})
	}
	return out
}

// Timetable is the browse view: events of one category on one day, grouped
// by location and ordered by festival time. prefs may be nil.
func Timetable(events []model.Event, category model.Category, day model.Day, prefs map[string]model.Status) []Group {
	entries := make([]Entry, 0)
	for _, ev := range events {
		if category != "" && ev.Category != category {
			continue
		}
		if ev.Day != day {
			continue
		}
		st := model.StatusNone
		if s, ok := prefs[ev.ID]; ok {
			st = s
		}
		entries = append(entries, Entry{Event: ev, Status: st})
	}
	return Grouping{Primary: ByLocation}.Apply(entries)
}
