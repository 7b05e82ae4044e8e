package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestRecordAndFetchByRunID(t *testing.T) {
	a := openTestArchive(t)

	report := []byte(`{"verdict":"NULL"}`)
	id, err := a.Record("deadbeef", "window-137", "NULL", report)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	records, err := a.ByRunID("deadbeef")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, id, records[0].ID)
	require.Equal(t, "window-137", records[0].PlanName)
	require.Equal(t, "NULL", records[0].Verdict)
	require.Equal(t, report, records[0].Report)
	require.False(t, records[0].CreatedAt.IsZero())
}

func TestRepeatRunsAppend(t *testing.T) {
	a := openTestArchive(t)

	report := []byte(`{"verdict":"ABORTED"}`)
	for i := 0; i < 3; i++ {
		_, err := a.Record("cafef00d", "window-137", "ABORTED", report)
		require.NoError(t, err)
	}

	records, err := a.ByRunID("cafef00d")
	require.NoError(t, err)
	require.Len(t, records, 3)
	// Identical reports archived as-is: idempotence of the report bytes.
	require.Equal(t, records[0].Report, records[1].Report)
	require.Equal(t, records[1].Report, records[2].Report)
}

func TestListOrdersOldestFirst(t *testing.T) {
	a := openTestArchive(t)

	_, err := a.Record("run-a", "p1", "NULL", []byte("{}"))
	require.NoError(t, err)
	_, err = a.Record("run-b", "p2", "CONFIRMED", []byte("{}"))
	require.NoError(t, err)

	records, err := a.List()
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestArchiveReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "runs.db")

	a, err := Open(path)
	require.NoError(t, err)
	_, err = a.Record("persist", "p", "CANDIDATE", []byte("{}"))
	require.NoError(t, err)
	require.NoError(t, a.Close())

	b, err := Open(path)
	require.NoError(t, err)
	defer b.Close()
	records, err := b.ByRunID("persist")
	require.NoError(t, err)
	require.Len(t, records, 1)
}
