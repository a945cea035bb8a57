package persist

import (
	"context"

	"github.com/openswoop/rosterwatch/pkg/roster"
)

// SnapshotStore keeps the latest snapshot of each term. LoadSnapshot returns
// nil without an error when the term has never been saved.
type SnapshotStore interface {
	LoadSnapshot(ctx context.Context, term string) (*roster.Snapshot, error)
	SaveSnapshot(ctx context.Context, snapshot roster.Snapshot) error
}

// ChangeLog is an append-only record of detected roster changes.
type ChangeLog interface {
	AppendChanges(ctx context.Context, records []roster.ChangeRecord) error
}

// Recorder is a store that keeps both the change log and the snapshot and
// can write a run's changes and its new baseline in one transaction.
type Recorder interface {
	SnapshotStore
	ChangeLog
	Record(ctx context.Context, records []roster.ChangeRecord, snapshot roster.Snapshot) error
}
