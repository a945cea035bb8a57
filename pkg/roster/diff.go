package roster

import (
	"sort"
	"time"
)

type ChangeKind string

const (
	Added   ChangeKind = "added"
	Removed ChangeKind = "removed"
)

type ChangeRecord struct {
	RunID          string
	Term           string
	CourseID       string
	CourseName     string
	InstructorID   string
	InstructorName string
	Kind           ChangeKind
	ObservedAt     time.Time
}

type DiffOption func(*diffOptions)

type diffOptions struct {
	skip map[string]bool
}

// SkipCourses leaves the given courses out of the comparison entirely.
func SkipCourses(ids ...string) DiffOption {
	return func(o *diffOptions) {
		for _, id := range ids {
			o.skip[id] = true
		}
	}
}

// Diff compares the instructor sets of every course in either snapshot.
// A nil previous snapshot is a bootstrap run and produces no changes, and a
// course that is pending in previous has nothing to compare against yet.
func Diff(previous *Snapshot, current Snapshot, opts ...DiffOption) []ChangeRecord {
	if previous == nil {
		return nil
	}
	o := diffOptions{skip: make(map[string]bool)}
	for _, opt := range opts {
		opt(&o)
	}

	var changes []ChangeRecord
	for _, id := range courseIDs(previous.Courses, current.Courses) {
		before := previous.Courses[id]
		if o.skip[id] || before.Pending {
			continue
		}
		after, isListed := current.Courses[id]

		// Prefer the latest course name when the course is still listed
		course := after.Course
		if !isListed {
			course = before.Course
		}

		record := func(instructorID, name string, kind ChangeKind) ChangeRecord {
			return ChangeRecord{
				RunID:          current.RunID,
				Term:           current.Term,
				CourseID:       id,
				CourseName:     course.Name,
				InstructorID:   instructorID,
				InstructorName: name,
				Kind:           kind,
				ObservedAt:     current.TakenAt,
			}
		}

		for _, instructorID := range subtract(after.Instructors, before.Instructors) {
			changes = append(changes, record(instructorID, after.Instructors[instructorID], Added))
		}
		for _, instructorID := range subtract(before.Instructors, after.Instructors) {
			changes = append(changes, record(instructorID, before.Instructors[instructorID], Removed))
		}
	}
	return changes
}

// subtract returns the sorted ids in a that are not in b.
func subtract(a, b InstructorSet) []string {
	var ids []string
	for id := range a {
		if !b.Has(id) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func courseIDs(a, b map[string]Roster) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var ids []string
	for _, m := range []map[string]Roster{a, b} {
		for id := range m {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	sort.Strings(ids)
	return ids
}
