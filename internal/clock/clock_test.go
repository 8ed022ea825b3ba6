package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeFiresInOrder(t *testing.T) {
	c := NewFake(time.Date(2025, 2, 28, 12, 0, 0, 0, time.UTC))
	var got []string
	c.AfterFunc(2*time.Minute, func() { got = append(got, "b") })
	c.AfterFunc(time.Minute, func() { got = append(got, "a") })
	stopped := c.AfterFunc(time.Minute, func() { got = append(got, "never") })
	assert.True(t, stopped.Stop())
	assert.Equal(t, 2, c.Pending())

	c.Advance(90 * time.Second)
	assert.Equal(t, []string{"a"}, got)
	c.Advance(time.Minute)
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, 0, c.Pending())
	assert.False(t, stopped.Stop())
}
