package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"festplan/internal/model"
)

func ids(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Event.ID)
	}
	return out
}

func keys(groups []Group) []string {
	out := make([]string, 0, len(groups))
	for _, g := range groups {
		out = append(out, g.Key)
	}
	return out
}

func TestParseClock(t *testing.T) {
	cases := []struct {
		in   string
		h, m int
	}{
		{"23:30", 23, 30},
		{"01:00", 1, 0},
		{"1:30 AM", 1, 30},
		{"12:00 AM", 0, 0},
		{"12:30 PM", 12, 30},
		{"07:30 pm", 19, 30},
	}
	for _, c := range cases {
		h, m, err := ParseClock(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.h, h, c.in)
		assert.Equal(t, c.m, m, c.in)
	}

	for _, bad := range []string{"", "25:00", "10", "ab:cd", "13:00 PM", "10:00 XM"} {
		_, _, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}
}

func TestFestivalMinutesLateNightWrap(t *testing.T) {
	late, err := FestivalMinutes("23:30")
	require.NoError(t, err)
	early, err := FestivalMinutes("01:00")
	require.NoError(t, err)
	assert.Equal(t, 23*60+30, late)
	assert.Equal(t, 25*60, early)

	six, _ := FestivalMinutes("06:00")
	assert.Equal(t, 360, six)
}

func TestMyPlanOrdersPastMidnightLast(t *testing.T) {
	events := []model.Event{
		{ID: "b", Day: model.Saturday, StartTime: "01:00"},
		{ID: "a", Day: model.Saturday, StartTime: "23:30"},
	}
	prefs := map[string]model.Status{"a": model.StatusNice, "b": model.StatusHave}

	groups := MyPlan(events, prefs)
	require.Len(t, groups, 1)
	assert.Equal(t, "Saturday", groups[0].Key)
	assert.Equal(t, []string{"a", "b"}, ids(groups[0].Entries))
}

func TestMyPlanDayOrderAndFiltering(t *testing.T) {
	events := []model.Event{
		{ID: "m", Day: model.Monday, StartTime: "10:00"},
		{ID: "x", Day: "Tuesday", StartTime: "10:00"},
		{ID: "f", Day: model.Friday, StartTime: "10:00"},
		{ID: "s", Day: model.Saturday, StartTime: "10:00"},
		{ID: "unplanned", Day: model.Friday, StartTime: "09:00"},
	}
	prefs := map[string]model.Status{
		"m": model.StatusNice, "x": model.StatusNice, "f": model.StatusNice, "s": model.StatusNice,
		"none": model.StatusNone,
	}

	groups := MyPlan(events, prefs)
	assert.Equal(t, []string{"Friday", "Saturday", "Monday"}, keys(groups))
}

func TestSortIsStableForEqualTimes(t *testing.T) {
	events := []model.Event{
		{ID: "1", Day: model.Friday, StartTime: "20:00"},
		{ID: "2", Day: model.Friday, StartTime: "8:00 PM"},
		{ID: "3", Day: model.Friday, StartTime: "20:00"},
		{ID: "bad", Day: model.Friday, StartTime: "later"},
		{ID: "0", Day: model.Friday, StartTime: "19:00"},
	}
	prefs := map[string]model.Status{}
	for _, e := range events {
		prefs[e.ID] = model.StatusHave
	}
	groups := MyPlan(events, prefs)
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"0", "1", "2", "3", "bad"}, ids(groups[0].Entries))
}

func TestMyPlanByStatus(t *testing.T) {
	events := []model.Event{
		{ID: "a", Day: model.Saturday, StartTime: "10:00"},
		{ID: "b", Day: model.Friday, StartTime: "10:00"},
		{ID: "c", Day: model.Friday, StartTime: "09:00"},
	}
	prefs := map[string]model.Status{"a": model.StatusHave, "b": model.StatusMustSee, "c": model.StatusHave}

	groups := MyPlanByStatus(events, prefs)
	assert.Equal(t, []string{"must-see", "have"}, keys(groups))
	assert.Equal(t, []string{"Friday", "Saturday"}, keys(groups[1].Groups))
	assert.Equal(t, []string{"c"}, ids(groups[1].Groups[0].Entries))
}

func TestOverlap(t *testing.T) {
	friends := []model.FriendSchedule{
		{Name: "Alex", Schedule: map[string]model.Status{"aa-1": model.StatusHave}},
		{Name: "Bo", Schedule: map[string]model.Status{"aa-2": model.StatusNice}},
		{Name: "Cy", Schedule: map[string]model.Status{"aa-1": model.StatusMustSee}},
	}
	assert.Equal(t, []Presence{
		{Name: "Alex", Status: model.StatusHave},
		{Name: "Cy", Status: model.StatusMustSee},
	}, Overlap("aa-1", friends))

	assert.Equal(t, []Presence{{Name: "Alex", Status: model.StatusHave}}, Overlap("aa-1", friends[:1]))
	assert.Empty(t, Overlap("zz", friends))
}

func TestTimetable(t *testing.T) {
	events := []model.Event{
		{ID: "n2", Location: "Nova", Day: model.Friday, StartTime: "08:00 PM", Category: model.CategoryMusic},
		{ID: "a1", Location: "Arena", Day: model.Friday, StartTime: "01:30", Category: model.CategoryMusic},
		{ID: "a0", Location: "Arena", Day: model.Friday, StartTime: "22:30", Category: model.CategoryMusic},
		{ID: "n1", Location: "Nova", Day: model.Friday, StartTime: "17:00", Category: model.CategoryMusic},
		{ID: "w", Location: "Nova", Day: model.Friday, StartTime: "10:00", Category: model.CategoryWorkshop},
		{ID: "sat", Location: "Arena", Day: model.Saturday, StartTime: "10:00", Category: model.CategoryMusic},
	}

	groups := Timetable(events, model.CategoryMusic, model.Friday, map[string]model.Status{"a1": model.StatusNice})
	require.Equal(t, []string{"Nova", "Arena"}, keys(groups))
	assert.Equal(t, []string{"n1", "n2"}, ids(groups[0].Entries))
	assert.Equal(t, []string{"a0", "a1"}, ids(groups[1].Entries))
	assert.Equal(t, model.StatusNice, groups[1].Entries[1].Status)
}

func TestFormat12h(t *testing.T) {
	assert.Equal(t, "12:00 AM", Format12h("00:00"))
	assert.Equal(t, "1:30 PM", Format12h("13:30"))
	assert.Equal(t, "12:15 PM", Format12h("12:15"))
	assert.Equal(t, "03:00 PM", Format12h("03:00 PM"))
}
