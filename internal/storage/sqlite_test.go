package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *History {
	t.Helper()
	db, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewHistory(db)
}

func TestOpenSQLiteBootstrapsTables(t *testing.T) {
	t.Parallel()

	db, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var name string
	require.NoError(t, db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='builds';").Scan(&name))

	// Bootstrapping twice is harmless.
	require.NoError(t, BootstrapSQLite(context.Background(), db))
}

func TestOpenSQLiteEmptyPath(t *testing.T) {
	t.Parallel()
	_, err := OpenSQLite(context.Background(), "")
	require.Error(t, err)
}

func TestHistoryInsertAndRecent(t *testing.T) {
	t.Parallel()
	h := openTestDB(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	id1, err := h.Insert(ctx, BuildRecord{Runner: "api", Build: 1, Outcome: "clean", Artifact: "/w/bin/app", Digest: "abc", DurationMs: 120, CompletedAt: at})
	require.NoError(t, err)
	_, err = h.Insert(ctx, BuildRecord{Runner: "api", Outcome: "fatal", Error: "artifact is missing", CompletedAt: at.Add(time.Second)})
	require.NoError(t, err)
	_, err = h.Insert(ctx, BuildRecord{Runner: "web", Build: 1, Outcome: "warnings", Warnings: 2, CompletedAt: at})
	require.NoError(t, err)

	require.NoError(t, h.MarkSkipped(ctx, id1, "stale"))

	recs, err := h.Recent(ctx, "api", 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "fatal", recs[0].Outcome)
	assert.Equal(t, 0, recs[0].Build)
	assert.Equal(t, "artifact is missing", recs[0].Error)

	assert.Equal(t, 1, recs[1].Build)
	assert.Equal(t, "clean", recs[1].Outcome)
	assert.Equal(t, "/w/bin/app", recs[1].Artifact)
	assert.Equal(t, int64(120), recs[1].DurationMs)
	assert.Equal(t, "stale", recs[1].SkipReason)
	assert.True(t, at.Equal(recs[1].CompletedAt))

	all, err := h.Recent(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestHistoryInsertRequiresRunner(t *testing.T) {
	t.Parallel()
	_, err := openTestDB(t).Insert(context.Background(), BuildRecord{Outcome: "clean"})
	require.Error(t, err)
}

func TestHistoryPrune(t *testing.T) {
	t.Parallel()
	h := openTestDB(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		_, err := h.Insert(ctx, BuildRecord{Runner: "api", Build: i, Outcome: "clean"})
		require.NoError(t, err)
	}
	_, err := h.Insert(ctx, BuildRecord{Runner: "web", Build: 1, Outcome: "clean"})
	require.NoError(t, err)

	n, err := h.Prune(ctx, "api", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	recs, err := h.Recent(ctx, "api", 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 5, recs[0].Build)
	assert.Equal(t, 4, recs[1].Build)

	web, err := h.Recent(ctx, "web", 10)
	require.NoError(t, err)
	assert.Len(t, web, 1, "pruning one runner leaves the others alone")
}
