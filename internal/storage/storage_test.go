package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseKV(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	_, err := kv.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, kv.Set(ctx, "schedule", []byte(`{"aa-1":"must-see"}`)))
	got, err := kv.Get(ctx, "schedule")
	require.NoError(t, err)
	assert.Equal(t, `{"aa-1":"must-see"}`, string(got))

	require.NoError(t, kv.Set(ctx, "schedule", []byte(`{}`)))
	got, err = kv.Get(ctx, "schedule")
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(got))

	require.NoError(t, kv.Delete(ctx, "schedule"))
	_, err = kv.Get(ctx, "schedule")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory(t *testing.T) {
	exerciseKV(t, NewMemory())
}

func TestSQLite(t *testing.T) {
	db, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "state", "festplan.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	exerciseKV(t, db)
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "festplan.db")

	db, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, db.Set(ctx, "k", []byte("v")))
	require.NoError(t, db.Close())

	db, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer db.Close()
	got, err := db.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))
}
