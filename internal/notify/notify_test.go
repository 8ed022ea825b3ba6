package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCenterPermissionPolicy(t *testing.T) {
	ctx := context.Background()

	c := NewCenter(PermissionDenied)
	assert.Equal(t, PermissionDefault, c.Permission())
	p, err := c.RequestPermission(ctx)
	require.NoError(t, err)
	assert.Equal(t, PermissionDenied, p)
	assert.Error(t, c.Show(ctx, Notification{Tag: "x"}))

	c.SetPermission(PermissionGranted)
	assert.NoError(t, c.Show(ctx, Notification{Tag: "x"}))
}

func TestCenterReplacesByTag(t *testing.T) {
	ctx := context.Background()
	c := NewCenter(PermissionGranted)
	_, _ = c.RequestPermission(ctx)

	style := Style{AppName: "Festplan", Icon: "/icon-192.png", Vibrate: []int{200, 100, 200}}
	require.NoError(t, c.Show(ctx, style.Reminder("aa-1", "Finch", false)))
	require.NoError(t, c.Show(ctx, style.Reminder("aa-2", "Sharkra", true)))
	require.NoError(t, c.Show(ctx, style.Reminder("aa-1", "Finch", true)))

	active := c.Active()
	require.Len(t, active, 2)
	assert.Equal(t, "aa-1", active[0].Tag)
	assert.Len(t, active[0].Actions, 2)
	assert.Equal(t, "Finch is starting soon!", active[0].Body)
	assert.True(t, active[0].RequireInteraction)
	assert.Equal(t, "Event Reminder - Festplan", active[0].Title)

	assert.True(t, c.Close("aa-2"))
	assert.False(t, c.Close("aa-2"))
	assert.Len(t, c.Active(), 1)
}
