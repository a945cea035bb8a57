// Package fetch collects the instructors of many courses concurrently.
package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/openswoop/rosterwatch/pkg/roster"
)

const DefaultWorkers = 8

// InstructorsFunc fetches the instructors of a single course.
type InstructorsFunc func(ctx context.Context, courseID string) ([]roster.Instructor, error)

// Failure is a course whose instructors could not be fetched this run.
type Failure struct {
	Course roster.Course
	Err    error
}

func (f Failure) Error() string {
	return fmt.Sprintf("course %s (%s): %v", f.Course.ID, f.Course.Name, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

type Result struct {
	Snapshot roster.Snapshot
	Failures []Failure
}

// FailedIDs lists the course ids that are missing from the snapshot.
func (r Result) FailedIDs() []string {
	ids := make([]string, len(r.Failures))
	for i, f := range r.Failures {
		ids[i] = f.Course.ID
	}
	return ids
}

type outcome struct {
	instructors []roster.Instructor
	err         error
}

// Fetch runs fetchOne for every course on at most workers goroutines. Each
// goroutine only writes its own slot; the snapshot is assembled after all of
// them have finished.
func Fetch(ctx context.Context, term string, courses []roster.Course, fetchOne InstructorsFunc, workers int) Result {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	outcomes := make([]outcome, len(courses))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, course := range courses {
		i, course := i, course
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				outcomes[i] = outcome{err: err}
				return nil
			}
			instructors, err := fetchOne(ctx, course.ID)
			outcomes[i] = outcome{instructors, err}
			return nil
		})
	}
	_ = g.Wait() // workers never return errors, failures live in outcomes

	result := Result{Snapshot: roster.NewSnapshot(term, time.Now().UTC())}
	for i, course := range courses {
		if err := outcomes[i].err; err != nil {
			log.Warn().Err(err).Str("course_id", course.ID).Str("course", course.Name).Msg("Failed to fetch instructors")
			result.Failures = append(result.Failures, Failure{Course: course, Err: err})
			continue
		}
		result.Snapshot.Put(course, outcomes[i].instructors)
	}
	return result
}
