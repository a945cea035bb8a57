package cmd

import (
	"github.com/openswoop/rosterwatch/pkg/config"
	"github.com/openswoop/rosterwatch/pkg/database"
	"github.com/openswoop/rosterwatch/pkg/persist"
)

func openDatabase(cfg *config.Config) (database.Database, error) {
	dsn, err := cfg.DatabaseDSN()
	if err != nil {
		return nil, err
	}
	db, err := database.Open(cfg.Database.Driver, dsn)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// snapshotStore picks where the baseline snapshot lives. The change log is
// always kept in the database.
func snapshotStore(cfg *config.Config, db database.Database) (persist.SnapshotStore, error) {
	if cfg.Snapshot.Store != config.SnapshotStoreFile {
		return db, nil
	}
	dir, err := cfg.SnapshotDir()
	if err != nil {
		return nil, err
	}
	return persist.NewFileStore(dir)
}
