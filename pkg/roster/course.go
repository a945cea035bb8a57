package roster

import "time"

type Course struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Code string `json:"code,omitempty"`
	Term string `json:"term"`
}

type Instructor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// InstructorSet maps instructor id to display name.
type InstructorSet map[string]string

func NewInstructorSet(instructors ...Instructor) InstructorSet {
	set := make(InstructorSet, len(instructors))
	for _, i := range instructors {
		set[i.ID] = i.Name
	}
	return set
}

func (s InstructorSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Roster is the instructor set of one course. Pending marks a course whose
// instructors have never been fetched, so its set is not yet known.
type Roster struct {
	Course      Course        `json:"course"`
	Instructors InstructorSet `json:"instructors"`
	Pending     bool          `json:"pending,omitempty"`
}

type Snapshot struct {
	Term    string            `json:"term"`
	RunID   string            `json:"run_id,omitempty"`
	TakenAt time.Time         `json:"taken_at"`
	Courses map[string]Roster `json:"courses"`
}

func NewSnapshot(term string, takenAt time.Time) Snapshot {
	return Snapshot{
		Term:    term,
		TakenAt: takenAt,
		Courses: make(map[string]Roster),
	}
}

// Put records the roster of a course, replacing any previous one.
func (s Snapshot) Put(course Course, instructors []Instructor) {
	s.Courses[course.ID] = Roster{Course: course, Instructors: NewInstructorSet(instructors...)}
}
