// Package app runs the fetch, diff and persist pipeline for a term.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/openswoop/rosterwatch/pkg/fetch"
	"github.com/openswoop/rosterwatch/pkg/notify"
	"github.com/openswoop/rosterwatch/pkg/persist"
	"github.com/openswoop/rosterwatch/pkg/roster"
)

// Source lists the courses of a term and the instructors of a course.
type Source interface {
	ListCourses(ctx context.Context, term string) ([]roster.Course, error)
	ListInstructors(ctx context.Context, courseID string) ([]roster.Instructor, error)
}

type Options struct {
	Workers       int
	DryRun        bool
	FailOnPartial bool
	// Mirror receives a copy of the changes once they are committed. It is
	// optional and its failures are only logged.
	Mirror persist.ChangeLog
	// Notifier is optional.
	Notifier notify.Notifier
}

type Syncer struct {
	source    Source
	snapshots persist.SnapshotStore
	changes   persist.ChangeLog
	opts      Options
}

func NewSyncer(source Source, snapshots persist.SnapshotStore, changes persist.ChangeLog, opts Options) *Syncer {
	return &Syncer{source: source, snapshots: snapshots, changes: changes, opts: opts}
}

type Summary struct {
	Term      string
	RunID     string
	Courses   int
	Fetched   int
	Failed    int
	Added     int
	Removed   int
	Bootstrap bool
	DryRun    bool
	Failures  []fetch.Failure
	Changes   []roster.ChangeRecord
	Duration  time.Duration
}

// Run performs one pipeline run for term. A returned Summary is populated as
// far as the run got, even when an error is returned.
func (s *Syncer) Run(ctx context.Context, term string) (summary Summary, err error) {
	started := time.Now()
	summary = Summary{Term: term, RunID: uuid.NewString(), DryRun: s.opts.DryRun}
	logger := log.With().Str("term", term).Str("run_id", summary.RunID).Logger()
	defer func() { summary.Duration = time.Since(started) }()

	// Listing failures, auth included, abort before any course is fetched
	courses, err := s.source.ListCourses(ctx, term)
	if err != nil {
		return summary, fmt.Errorf("failed to list courses: %w", err)
	}
	summary.Courses = len(courses)
	logger.Info().Int("courses", len(courses)).Msg("Fetching instructors")

	result := fetch.Fetch(ctx, term, courses, s.source.ListInstructors, s.opts.Workers)
	current := result.Snapshot
	current.RunID = summary.RunID
	summary.Fetched = len(current.Courses)
	summary.Failed = len(result.Failures)
	summary.Failures = result.Failures
	if summary.Failed > 0 {
		logger.Warn().Int("failed", summary.Failed).Int("fetched", summary.Fetched).Msg("Some courses could not be fetched")
	}

	previous, err := s.snapshots.LoadSnapshot(ctx, term)
	if err != nil {
		return summary, &PersistenceError{Phase: PhaseSnapshot, Err: err}
	}
	summary.Bootstrap = previous == nil

	changes := roster.Diff(previous, current, roster.SkipCourses(result.FailedIDs()...))
	summary.Changes = changes
	for _, c := range changes {
		switch c.Kind {
		case roster.Added:
			summary.Added++
		case roster.Removed:
			summary.Removed++
		}
	}

	if s.opts.DryRun {
		logger.Info().Int("added", summary.Added).Int("removed", summary.Removed).Msg("Dry run: changes will not be saved")
		return summary, s.partial(summary)
	}

	if err := s.save(ctx, changes, baseline(previous, current, result.Failures)); err != nil {
		return summary, err
	}

	if len(changes) > 0 && s.opts.Mirror != nil {
		if err := s.opts.Mirror.AppendChanges(ctx, changes); err != nil {
			logger.Error().Err(err).Int("changes", len(changes)).Msg("Failed to mirror changes")
		}
	}

	if len(changes) > 0 && s.opts.Notifier != nil {
		event := notify.Event{
			RunID:      summary.RunID,
			Term:       term,
			Added:      summary.Added,
			Removed:    summary.Removed,
			ObservedAt: current.TakenAt,
		}
		if err := s.opts.Notifier.Notify(ctx, event); err != nil {
			logger.Error().Err(err).Msg("Failed to publish change notification")
		}
	}

	logger.Info().
		Bool("bootstrap", summary.Bootstrap).
		Int("added", summary.Added).
		Int("removed", summary.Removed).
		Int("failed", summary.Failed).
		Msg("Run complete")
	return summary, s.partial(summary)
}

// save writes the changes and the new baseline. A store that also keeps
// the change log does both in one transaction. Otherwise the change log goes
// first so a failure leaves the old baseline in place.
func (s *Syncer) save(ctx context.Context, changes []roster.ChangeRecord, snapshot roster.Snapshot) error {
	if rec, ok := s.recorder(); ok {
		if err := rec.Record(ctx, changes, snapshot); err != nil {
			return &PersistenceError{Phase: PhaseChanges, Err: err}
		}
		return nil
	}

	if len(changes) > 0 {
		if err := s.changes.AppendChanges(ctx, changes); err != nil {
			return &PersistenceError{Phase: PhaseChanges, Err: err}
		}
	}
	if err := s.snapshots.SaveSnapshot(ctx, snapshot); err != nil {
		return &PersistenceError{Phase: PhaseSnapshot, Err: err}
	}
	return nil
}

func (s *Syncer) recorder() (persist.Recorder, bool) {
	rec, ok := s.snapshots.(persist.Recorder)
	if !ok {
		return nil, false
	}
	changeLog, ok := s.changes.(persist.Recorder)
	return rec, ok && rec == changeLog
}

func (s *Syncer) partial(summary Summary) error {
	if s.opts.FailOnPartial && summary.Failed > 0 {
		return fmt.Errorf("%w: %d of %d courses", ErrPartialFetch, summary.Failed, summary.Courses)
	}
	return nil
}

// baseline is the snapshot to compare the next run against. Courses that
// failed this run keep their previous roster so they are reported neither as
// removed now nor as added once they can be fetched again. On a bootstrap run
// there is no previous roster, so failed courses are stored as pending.
func baseline(previous *roster.Snapshot, current roster.Snapshot, failures []fetch.Failure) roster.Snapshot {
	if len(failures) == 0 {
		return current
	}
	saved := roster.Snapshot{
		Term:    current.Term,
		RunID:   current.RunID,
		TakenAt: current.TakenAt,
		Courses: make(map[string]roster.Roster, len(current.Courses)+len(failures)),
	}
	for id, r := range current.Courses {
		saved.Courses[id] = r
	}
	for _, f := range failures {
		if previous == nil {
			saved.Courses[f.Course.ID] = roster.Roster{Course: f.Course, Instructors: roster.InstructorSet{}, Pending: true}
			continue
		}
		if r, ok := previous.Courses[f.Course.ID]; ok {
			saved.Courses[f.Course.ID] = r
		}
	}
	return saved
}
