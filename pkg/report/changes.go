package report

import (
	"time"

	"github.com/openswoop/rosterwatch/pkg/roster"
)

type changeView struct {
	ObservedAt     string `csv:"observed_at"`
	Term           string `csv:"term"`
	CourseID       string `csv:"course_id"`
	CourseName     string `csv:"course"`
	Change         string `csv:"change"`
	InstructorID   string `csv:"instructor_id"`
	InstructorName string `csv:"instructor"`
	RunID          string `csv:"run_id"`
}

// Changes lays out the change log one row per record, in log order.
func Changes(records []roster.ChangeRecord) []changeView {
	rows := make([]changeView, len(records))
	for i, r := range records {
		rows[i] = changeView{
			ObservedAt:     r.ObservedAt.UTC().Format(time.RFC3339),
			Term:           r.Term,
			CourseID:       r.CourseID,
			CourseName:     r.CourseName,
			Change:         string(r.Kind),
			InstructorID:   r.InstructorID,
			InstructorName: r.InstructorName,
			RunID:          r.RunID,
		}
	}
	return rows
}
