package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/openswoop/rosterwatch/pkg/roster"
)

func openTestDB(t *testing.T) *SQL {
	t.Helper()
	db, err := Open(DriverSqlite, filepath.Join(t.TempDir(), "rosterwatch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func sampleSnapshot(takenAt time.Time) roster.Snapshot {
	s := roster.NewSnapshot("335", takenAt)
	s.RunID = "run-1"
	s.Put(roster.Course{ID: "C1", Name: "CS 1010", Code: "CS1010", Term: "335"}, []roster.Instructor{
		{ID: "T1", Name: "Ada Lovelace"},
		{ID: "T2", Name: "Grace Hopper"},
	})
	s.Put(roster.Course{ID: "C2", Name: "CS 2011", Term: "335"}, nil)
	return s
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("oracle", "whatever")
	assert.Error(t, err)
}

func TestLoadSnapshotAbsent(t *testing.T) {
	db := openTestDB(t)
	snapshot, err := db.LoadSnapshot(context.Background(), "335")
	require.NoError(t, err)
	assert.Nil(t, snapshot)
}

func TestSaveAndLoadSnapshot(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	takenAt := time.Date(2024, 9, 1, 6, 0, 0, 0, time.UTC)
	saved := sampleSnapshot(takenAt)

	require.NoError(t, db.SaveSnapshot(ctx, saved))

	loaded, err := db.LoadSnapshot(ctx, "335")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "run-1", loaded.RunID)
	assert.True(t, takenAt.Equal(loaded.TakenAt))
	assert.Equal(t, saved.Courses, loaded.Courses)
	assert.Empty(t, roster.Diff(loaded, saved))
}

func TestSaveSnapshotReplacesPrevious(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, db.SaveSnapshot(ctx, sampleSnapshot(time.Now())))

	next := roster.NewSnapshot("335", time.Now())
	next.Put(roster.Course{ID: "C3", Name: "CS 3220", Term: "335"}, []roster.Instructor{{ID: "T9", Name: "Barbara Liskov"}})
	require.NoError(t, db.SaveSnapshot(ctx, next))
	require.NoError(t, db.SaveSnapshot(ctx, next))

	loaded, err := db.LoadSnapshot(ctx, "335")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Len(t, loaded.Courses, 1)
	assert.Equal(t, roster.InstructorSet{"T9": "Barbara Liskov"}, loaded.Courses["C3"].Instructors)
}

func TestSnapshotsAreScopedByTerm(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, db.SaveSnapshot(ctx, sampleSnapshot(time.Now())))

	other, err := db.LoadSnapshot(ctx, "336")
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestFailedSaveKeepsPreviousSnapshot(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, db.SaveSnapshot(ctx, sampleSnapshot(time.Now())))

	// Abort the transaction after the old rows were already deleted
	_, err := db.db.Exec(`CREATE TRIGGER reject_bad BEFORE INSERT ON snapshot_courses
		WHEN NEW.course_id = 'BAD' BEGIN SELECT RAISE(ABORT, 'rejected'); END`)
	require.NoError(t, err)

	bad := roster.NewSnapshot("335", time.Now())
	bad.Put(roster.Course{ID: "BAD", Term: "335"}, nil)
	require.Error(t, db.SaveSnapshot(ctx, bad))

	loaded, err := db.LoadSnapshot(ctx, "335")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Len(t, loaded.Courses, 2)
	assert.Len(t, loaded.Courses["C1"].Instructors, 2)
}

func TestAppendAndListChanges(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	first := time.Date(2024, 9, 1, 6, 0, 0, 0, time.UTC)
	second := first.Add(24 * time.Hour)

	require.NoError(t, db.AppendChanges(ctx, nil))
	require.NoError(t, db.AppendChanges(ctx, []roster.ChangeRecord{
		{RunID: "r1", Term: "335", CourseID: "C1", InstructorID: "T3", Kind: roster.Added, ObservedAt: first},
		{RunID: "r1", Term: "335", CourseID: "C1", InstructorID: "T1", Kind: roster.Removed, ObservedAt: first},
	}))
	require.NoError(t, db.AppendChanges(ctx, []roster.ChangeRecord{
		{RunID: "r2", Term: "335", CourseID: "C2", CourseName: "CS 2011", InstructorID: "T5", InstructorName: "Alan Kay", Kind: roster.Added, ObservedAt: second},
		{RunID: "r2", Term: "336", CourseID: "C9", InstructorID: "T6", Kind: roster.Added, ObservedAt: second},
	}))

	all, err := db.ListChanges(ctx, "335", time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "T3", all[0].InstructorID)
	assert.Equal(t, roster.Removed, all[1].Kind)
	assert.Equal(t, "CS 2011", all[2].CourseName)
	assert.Equal(t, "Alan Kay", all[2].InstructorName)
	assert.True(t, second.Equal(all[2].ObservedAt))

	recent, err := db.ListChanges(ctx, "335", second)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "r2", recent[0].RunID)
}

func TestRecordWritesChangesAndSnapshot(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, db.SaveSnapshot(ctx, sampleSnapshot(time.Now())))

	next := roster.NewSnapshot("335", time.Now())
	next.RunID = "run-2"
	next.Put(roster.Course{ID: "C1", Name: "CS 1010", Term: "335"}, []roster.Instructor{{ID: "T1", Name: "Ada Lovelace"}})
	records := []roster.ChangeRecord{
		{RunID: "run-2", Term: "335", CourseID: "C1", InstructorID: "T2", Kind: roster.Removed, ObservedAt: next.TakenAt},
	}
	require.NoError(t, db.Record(ctx, records, next))

	changes, err := db.ListChanges(ctx, "335", time.Time{})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "T2", changes[0].InstructorID)

	loaded, err := db.LoadSnapshot(ctx, "335")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "run-2", loaded.RunID)
	assert.Len(t, loaded.Courses, 1)
}

func TestFailedRecordWritesNothing(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, db.SaveSnapshot(ctx, sampleSnapshot(time.Now())))

	_, err := db.db.Exec(`CREATE TRIGGER reject_bad BEFORE INSERT ON snapshot_courses
		WHEN NEW.course_id = 'BAD' BEGIN SELECT RAISE(ABORT, 'rejected'); END`)
	require.NoError(t, err)

	bad := roster.NewSnapshot("335", time.Now())
	bad.Put(roster.Course{ID: "BAD", Term: "335"}, nil)
	records := []roster.ChangeRecord{
		{RunID: "run-2", Term: "335", CourseID: "BAD", InstructorID: "T7", Kind: roster.Added, ObservedAt: time.Now()},
	}
	require.Error(t, db.Record(ctx, records, bad))

	changes, err := db.ListChanges(ctx, "335", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, changes)

	loaded, err := db.LoadSnapshot(ctx, "335")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "run-1", loaded.RunID)
	assert.Len(t, loaded.Courses, 2)
}

func TestPendingCourseRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	s := sampleSnapshot(time.Now())
	s.Courses["C3"] = roster.Roster{
		Course:      roster.Course{ID: "C3", Name: "CS 3220", Term: "335"},
		Instructors: roster.InstructorSet{},
		Pending:     true,
	}
	require.NoError(t, db.SaveSnapshot(ctx, s))

	loaded, err := db.LoadSnapshot(ctx, "335")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.True(t, loaded.Courses["C3"].Pending)
	assert.False(t, loaded.Courses["C1"].Pending)
}

func TestIsDuplicateError(t *testing.T) {
	assert.True(t, isDuplicateError(&googleapi.Error{Code: 409}))
	assert.True(t, isDuplicateError(fmt.Errorf("create: %w", &googleapi.Error{Code: 409})))
	assert.False(t, isDuplicateError(&googleapi.Error{Code: 404}))
	assert.False(t, isDuplicateError(errors.New("boom")))
}

func TestToChangeRows(t *testing.T) {
	observed := time.Date(2024, 9, 1, 6, 0, 0, 0, time.FixedZone("PDT", -7*3600))
	rows := toChangeRows([]roster.ChangeRecord{{RunID: "r1", CourseID: "C1", InstructorID: "T1", Kind: roster.Removed, ObservedAt: observed}})
	require.Len(t, rows, 1)
	assert.Equal(t, "removed", rows[0].ChangeKind)
	assert.Equal(t, time.UTC, rows[0].ObservedAt.Location())
}
