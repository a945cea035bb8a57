package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openswoop/rosterwatch/pkg/roster"
)

func TestChangesCsv(t *testing.T) {
	records := []roster.ChangeRecord{
		{
			RunID: "r1", Term: "335", CourseID: "C1", CourseName: "CS 1010",
			InstructorID: "T3", InstructorName: "Ada Lovelace", Kind: roster.Added,
			ObservedAt: time.Date(2024, 9, 1, 6, 0, 0, 0, time.UTC),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCsv(Changes(records), &buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "observed_at,term,course_id,course,change,instructor_id,instructor,run_id", lines[0])
	assert.Equal(t, "2024-09-01T06:00:00Z,335,C1,CS 1010,added,T3,Ada Lovelace,r1", lines[1])
}

func TestSnapshotRowsAreSorted(t *testing.T) {
	s := roster.NewSnapshot("335", time.Now())
	s.Put(roster.Course{ID: "C2", Name: "CS 2011"}, nil)
	s.Put(roster.Course{ID: "C1", Name: "CS 1010", Code: "CS1010"}, []roster.Instructor{
		{ID: "T2", Name: "Grace Hopper"},
		{ID: "T1", Name: "Ada Lovelace"},
	})

	rows := Snapshot(s)
	require.Len(t, rows, 3)
	assert.Equal(t, snapshotView{Term: "335", CourseID: "C1", CourseName: "CS 1010", CourseCode: "CS1010", InstructorID: "T1", InstructorName: "Ada Lovelace"}, rows[0])
	assert.Equal(t, "T2", rows[1].InstructorID)
	assert.Equal(t, snapshotView{Term: "335", CourseID: "C2", CourseName: "CS 2011"}, rows[2])
}

func TestWriteCsvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "changes.csv")
	require.NoError(t, WriteCsvFile(Changes(nil), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "observed_at,term,course_id,course,change,instructor_id,instructor,run_id", strings.TrimSpace(string(data)))
}
