package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-gorp/gorp/v3"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "github.com/mattn/go-sqlite3"   // registers the "sqlite3" driver
	"github.com/rs/zerolog/log"

	"github.com/openswoop/rosterwatch/pkg/roster"
)

const (
	DriverSqlite   = "sqlite3"
	DriverPostgres = "pgx"
)

type snapshotEntity struct {
	Term    string    `db:"term"`
	RunID   string    `db:"run_id"`
	TakenAt time.Time `db:"taken_at"`
	Courses int       `db:"courses"`
}

type courseEntity struct {
	Term       string `db:"term"`
	CourseID   string `db:"course_id"`
	CourseName string `db:"course_name"`
	CourseCode string `db:"course_code"`
	Pending    bool   `db:"pending"`
}

type instructorEntity struct {
	Term           string `db:"term"`
	CourseID       string `db:"course_id"`
	InstructorID   string `db:"instructor_id"`
	InstructorName string `db:"instructor_name"`
}

type changeEntity struct {
	ID             int64     `db:"id"`
	RunID          string    `db:"run_id"`
	Term           string    `db:"term"`
	CourseID       string    `db:"course_id"`
	CourseName     string    `db:"course_name"`
	InstructorID   string    `db:"instructor_id"`
	InstructorName string    `db:"instructor_name"`
	ChangeKind     string    `db:"change_kind"`
	ObservedAt     time.Time `db:"observed_at"`
}

// SQL stores snapshots and the change log in a relational database.
type SQL struct {
	db    *sql.DB
	dbmap *gorp.DbMap
}

var _ Database = (*SQL)(nil)

func Open(driver, dsn string) (*SQL, error) {
	var dialect gorp.Dialect
	switch strings.ToLower(driver) {
	case DriverSqlite, "sqlite":
		driver, dialect = DriverSqlite, gorp.SqliteDialect{}
	case DriverPostgres, "postgres", "postgresql":
		driver, dialect = DriverPostgres, gorp.PostgresDialect{}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	// Initialize the database connection
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if driver == DriverSqlite {
		db.SetMaxOpenConns(1) // sqlite allows a single writer
	}

	// Initialize the database mapping, creating the tables if it's our first run
	dbmap := &gorp.DbMap{Db: db, Dialect: dialect}
	dbmap.AddTableWithName(snapshotEntity{}, "snapshots").SetKeys(false, "term")
	dbmap.AddTableWithName(courseEntity{}, "snapshot_courses").SetKeys(false, "term", "course_id")
	dbmap.AddTableWithName(instructorEntity{}, "snapshot_instructors").SetKeys(false, "term", "course_id", "instructor_id")
	dbmap.AddTableWithName(changeEntity{}, "changes").SetKeys(true, "id")
	if err := dbmap.CreateTablesIfNotExists(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("unable to create tables: %w", err)
	}

	return &SQL{db: db, dbmap: dbmap}, nil
}

func (s *SQL) bind(i int) string {
	return s.dbmap.Dialect.BindVar(i)
}

func (s *SQL) executor(ctx context.Context) *gorp.DbMap {
	return s.dbmap.WithContext(ctx).(*gorp.DbMap)
}

func (s *SQL) LoadSnapshot(ctx context.Context, term string) (*roster.Snapshot, error) {
	dbmap := s.executor(ctx)

	var headers []snapshotEntity
	if _, err := dbmap.Select(&headers, "SELECT * FROM snapshots WHERE term = "+s.bind(0), term); err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	if len(headers) == 0 {
		return nil, nil
	}

	var courses []courseEntity
	if _, err := dbmap.Select(&courses, "SELECT * FROM snapshot_courses WHERE term = "+s.bind(0), term); err != nil {
		return nil, fmt.Errorf("failed to load snapshot courses: %w", err)
	}
	var instructors []instructorEntity
	if _, err := dbmap.Select(&instructors, "SELECT * FROM snapshot_instructors WHERE term = "+s.bind(0), term); err != nil {
		return nil, fmt.Errorf("failed to load snapshot instructors: %w", err)
	}

	snapshot := roster.NewSnapshot(term, headers[0].TakenAt.UTC())
	snapshot.RunID = headers[0].RunID
	for _, c := range courses {
		snapshot.Courses[c.CourseID] = roster.Roster{
			Course:      roster.Course{ID: c.CourseID, Name: c.CourseName, Code: c.CourseCode, Term: term},
			Instructors: roster.InstructorSet{},
			Pending:     c.Pending,
		}
	}
	for _, i := range instructors {
		r, ok := snapshot.Courses[i.CourseID]
		if !ok {
			log.Warn().Str("term", term).Str("course_id", i.CourseID).Msg("Instructor row without a course row")
			continue
		}
		r.Instructors[i.InstructorID] = i.InstructorName
	}
	return &snapshot, nil
}

// SaveSnapshot replaces the stored snapshot of the term inside one
// transaction. On any failure the previous snapshot is left untouched.
func (s *SQL) SaveSnapshot(ctx context.Context, snapshot roster.Snapshot) error {
	tx, err := s.executor(ctx).Begin()
	if err != nil {
		return err
	}
	if err := s.replaceSnapshot(tx, snapshot); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return tx.Commit()
}

func (s *SQL) replaceSnapshot(tx *gorp.Transaction, snapshot roster.Snapshot) error {
	for _, table := range []string{"snapshot_instructors", "snapshot_courses", "snapshots"} {
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE term = "+s.bind(0), snapshot.Term); err != nil {
			return err
		}
	}

	rows := []interface{}{&snapshotEntity{
		Term:    snapshot.Term,
		RunID:   snapshot.RunID,
		TakenAt: snapshot.TakenAt.UTC(),
		Courses: len(snapshot.Courses),
	}}
	for id, r := range snapshot.Courses {
		rows = append(rows, &courseEntity{
			Term:       snapshot.Term,
			CourseID:   id,
			CourseName: r.Course.Name,
			CourseCode: r.Course.Code,
			Pending:    r.Pending,
		})
		for instructorID, name := range r.Instructors {
			rows = append(rows, &instructorEntity{
				Term:           snapshot.Term,
				CourseID:       id,
				InstructorID:   instructorID,
				InstructorName: name,
			})
		}
	}
	return tx.Insert(rows...)
}

// AppendChanges inserts all records in one transaction, so either every
// record is written or none are.
func (s *SQL) AppendChanges(ctx context.Context, records []roster.ChangeRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.executor(ctx).Begin()
	if err != nil {
		return err
	}
	if err := insertChanges(tx, records); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Record appends the changes of a run and replaces the snapshot of its term
// in the same transaction, so the log never holds changes measured against
// a baseline that was not advanced.
func (s *SQL) Record(ctx context.Context, records []roster.ChangeRecord, snapshot roster.Snapshot) error {
	tx, err := s.executor(ctx).Begin()
	if err != nil {
		return err
	}
	if err := insertChanges(tx, records); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := s.replaceSnapshot(tx, snapshot); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return tx.Commit()
}

func insertChanges(tx *gorp.Transaction, records []roster.ChangeRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]interface{}, 0, len(records))
	for _, r := range records {
		rows = append(rows, &changeEntity{
			RunID:          r.RunID,
			Term:           r.Term,
			CourseID:       r.CourseID,
			CourseName:     r.CourseName,
			InstructorID:   r.InstructorID,
			InstructorName: r.InstructorName,
			ChangeKind:     string(r.Kind),
			ObservedAt:     r.ObservedAt.UTC(),
		})
	}
	if err := tx.Insert(rows...); err != nil {
		return fmt.Errorf("failed to insert %d change rows: %w", len(records), err)
	}
	return nil
}

// ListChanges returns the change log of a term in insertion order. A zero
// since returns every change.
func (s *SQL) ListChanges(ctx context.Context, term string, since time.Time) ([]roster.ChangeRecord, error) {
	query := "SELECT * FROM changes WHERE term = " + s.bind(0)
	args := []interface{}{term}
	if !since.IsZero() {
		query += " AND observed_at >= " + s.bind(1)
		args = append(args, since.UTC())
	}
	query += " ORDER BY id"

	var rows []changeEntity
	if _, err := s.executor(ctx).Select(&rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list changes: %w", err)
	}

	records := make([]roster.ChangeRecord, len(rows))
	for i, r := range rows {
		records[i] = roster.ChangeRecord{
			RunID:          r.RunID,
			Term:           r.Term,
			CourseID:       r.CourseID,
			CourseName:     r.CourseName,
			InstructorID:   r.InstructorID,
			InstructorName: r.InstructorName,
			Kind:           roster.ChangeKind(r.ChangeKind),
			ObservedAt:     r.ObservedAt.UTC(),
		}
	}
	return records, nil
}

func (s *SQL) Close() error {
	return s.db.Close()
}
