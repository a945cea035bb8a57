package report

import (
	"sort"

	"github.com/openswoop/rosterwatch/pkg/roster"
)

type snapshotView struct {
	Term           string `csv:"term"`
	CourseID       string `csv:"course_id"`
	CourseName     string `csv:"course"`
	CourseCode     string `csv:"code"`
	InstructorID   string `csv:"instructor_id"`
	InstructorName string `csv:"instructor"`
}

// Snapshot flattens a snapshot into one row per course and instructor,
// sorted by course then instructor. Courses without instructors get a
// single row with empty instructor columns.
func Snapshot(s roster.Snapshot) []snapshotView {
	courseIDs := make([]string, 0, len(s.Courses))
	for id := range s.Courses {
		courseIDs = append(courseIDs, id)
	}
	sort.Strings(courseIDs)

	var rows []snapshotView
	for _, id := range courseIDs {
		r := s.Courses[id]
		base := snapshotView{
			Term:       s.Term,
			CourseID:   id,
			CourseName: r.Course.Name,
			CourseCode: r.Course.Code,
		}
		if len(r.Instructors) == 0 {
			rows = append(rows, base)
			continue
		}

		instructorIDs := make([]string, 0, len(r.Instructors))
		for instructorID := range r.Instructors {
			instructorIDs = append(instructorIDs, instructorID)
		}
		sort.Strings(instructorIDs)
		for _, instructorID := range instructorIDs {
			row := base
			row.InstructorID = instructorID
			row.InstructorName = r.Instructors[instructorID]
			rows = append(rows, row)
		}
	}
	return rows
}
