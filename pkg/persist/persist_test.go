package persist

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openswoop/rosterwatch/pkg/roster"
)

func testSnapshot() roster.Snapshot {
	s := roster.NewSnapshot("335", time.Date(2024, 9, 1, 6, 0, 0, 0, time.UTC))
	s.RunID = "run-1"
	s.Put(roster.Course{ID: "C1", Name: "CS 1010", Term: "335"}, []roster.Instructor{{ID: "T1", Name: "Ada"}})
	s.Put(roster.Course{ID: "C2", Name: "CS 2011", Term: "335"}, nil)
	return s
}

func TestFileStoreMissingTerm(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	snapshot, err := store.LoadSnapshot(context.Background(), "335")
	require.NoError(t, err)
	assert.Nil(t, snapshot)
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	saved := testSnapshot()
	require.NoError(t, store.SaveSnapshot(ctx, saved))
	require.NoError(t, store.SaveSnapshot(ctx, saved))

	loaded, err := store.LoadSnapshot(ctx, "335")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.True(t, saved.TakenAt.Equal(loaded.TakenAt))
	assert.Equal(t, saved.Courses["C1"].Instructors, loaded.Courses["C1"].Instructors)
	assert.Contains(t, loaded.Courses, "C2")
	assert.Empty(t, roster.Diff(loaded, saved))

	// Only the snapshot itself is left behind
	entries, err := os.ReadDir(store.Dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileStoreFailedSaveKeepsPrevious(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.SaveSnapshot(ctx, testSnapshot()))

	// The temp file cannot be created in a directory that does not exist
	broken := FileStore{Dir: filepath.Join(dir, "missing")}
	require.Error(t, broken.SaveSnapshot(ctx, roster.NewSnapshot("335", time.Now())))

	loaded, err := store.LoadSnapshot(ctx, "335")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Len(t, loaded.Courses, 2)
}

func TestFileStoreKeepsSimilarTermsApart(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	slashed := roster.NewSnapshot("2024/fall", time.Now())
	slashed.Put(roster.Course{ID: "C1"}, []roster.Instructor{{ID: "T1"}})
	underscored := roster.NewSnapshot("2024_fall", time.Now())
	underscored.Put(roster.Course{ID: "C9"}, nil)
	require.NoError(t, store.SaveSnapshot(ctx, slashed))
	require.NoError(t, store.SaveSnapshot(ctx, underscored))

	loaded, err := store.LoadSnapshot(ctx, "2024/fall")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "2024/fall", loaded.Term)
	assert.Contains(t, loaded.Courses, "C1")

	entries, err := os.ReadDir(store.Dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestFileStoreRejectsSnapshotOfAnotherTerm(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.SaveSnapshot(ctx, testSnapshot()))

	// A file copied over from another term must not become its baseline
	data, err := os.ReadFile(store.path("335"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(store.path("336"), data, 0o644))

	_, err = store.LoadSnapshot(ctx, "336")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `belongs to term "335"`)
}
