package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yumo666666/nasweb/internal/store"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.EnsureSchema(context.Background()))
	return db
}

func TestNewEmptyPath(t *testing.T) {
	_, err := New("  ")
	require.Error(t, err)
}

func TestAppendAndRecent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	recs := []store.Record{
		{Name: "api_server", PID: 100, Event: "start", At: base},
		{Name: "http_server", PID: 101, Event: "start", At: base.Add(time.Second)},
		{Name: "http_server", PID: 101, Event: "stop", At: base.Add(2 * time.Second), Detail: "signal: terminated"},
	}
	for _, r := range recs {
		require.NoError(t, db.Append(ctx, r))
	}

	got, err := db.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// newest first
	require.Equal(t, "stop", got[0].Event)
	require.Equal(t, "signal: terminated", got[0].Detail)
	require.Equal(t, "http_server", got[1].Name)
	require.Equal(t, "start", got[1].Event)
}

func TestRecentDefaultLimit(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Append(ctx, store.Record{Name: "api_server", PID: 1, Event: "start", At: time.Now().UTC()}))

	got, err := db.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestEnsureSchemaIdempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.EnsureSchema(context.Background()))
}
