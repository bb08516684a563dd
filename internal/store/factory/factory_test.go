package factory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lifesync/internal/config"
	"lifesync/internal/store/memory"
	"lifesync/internal/store/sqlite"
)

func TestOpenMemory(t *testing.T) {
	res, err := New(nil).Open(context.Background(), &config.Config{DataBackend: config.BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, res.Store)
	assert.Nil(t, res.Publisher)
	assert.NoError(t, res.Cleanup())
}

func TestOpenSQLite(t *testing.T) {
	cfg := &config.Config{
		DataBackend:  config.BackendSQLite,
		SQLiteDBPath: filepath.Join(t.TempDir(), "lifesync.db"),
	}
	res, err := New(nil).Open(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &sqlite.Store{}, res.Store)

	ctx := context.Background()
	id, err := res.Store.Create(ctx, "users/u1/tasks", map[string]any{"title": "x"})
	require.NoError(t, err)
	doc, err := res.Store.Get(ctx, "users/u1/tasks", id)
	require.NoError(t, err)
	assert.Equal(t, "x", doc.Data["title"])
	assert.NoError(t, res.Cleanup())
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := New(nil).Open(context.Background(), &config.Config{DataBackend: "sheets"})
	assert.ErrorContains(t, err, "unsupported backend type")
}
