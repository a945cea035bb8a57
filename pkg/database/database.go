package database

import (
	"context"
	"io"
	"time"

	"github.com/openswoop/rosterwatch/pkg/persist"
	"github.com/openswoop/rosterwatch/pkg/roster"
)

type Database interface {
	io.Closer
	persist.Recorder
	ListChanges(ctx context.Context, term string, since time.Time) ([]roster.ChangeRecord, error)
}
