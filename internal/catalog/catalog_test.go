package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"festplan/internal/model"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	require.Greater(t, c.Len(), 0)

	ev, err := c.Get("aa-1")
	require.NoError(t, err)
	assert.Equal(t, "Opening Ceremony", ev.Name)
	assert.Equal(t, model.Friday, ev.Day)

	_, err = c.Get("nope")
	assert.ErrorIs(t, err, ErrUnknownEvent)

	for _, ev := range c.ByCategory(model.CategoryWorkshop) {
		assert.Equal(t, model.CategoryWorkshop, ev.Category)
	}
	assert.Equal(t, "Cosmic Cove", c.Locations()[0])
}

func TestParseRejectsDuplicatesAndConflicts(t *testing.T) {
	_, err := Parse([]byte(`
events:
  - {id: a, name: A, day: Friday, start_time: "10:00"}
  - {id: a, name: B, day: Friday, start_time: "11:00"}
`))
	assert.Error(t, err)

	_, err = Parse([]byte(`
events:
  - {id: a, name: A, day: Friday, start_time: "10:00", end_time: "11:00", length_minutes: 30}
`))
	assert.Error(t, err)
}

func TestLiveSwap(t *testing.T) {
	first, err := New([]model.Event{{ID: "a", StartTime: "10:00"}})
	require.NoError(t, err)
	second, err := New(nil)
	require.NoError(t, err)

	l := NewLive(first)
	assert.Equal(t, 1, l.Get().Len())
	assert.Equal(t, uint64(0), l.Generation())
	l.Set(second)
	assert.Equal(t, 0, l.Get().Len())
	assert.Equal(t, uint64(1), l.Generation())
}
