package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"

	"github.com/openswoop/rosterwatch/pkg/roster"
)

const changesTable = "changes"

type changeRow struct {
	RunID          string    `bigquery:"run_id"`
	Term           string    `bigquery:"term"`
	CourseID       string    `bigquery:"course_id"`
	CourseName     string    `bigquery:"course_name"`
	InstructorID   string    `bigquery:"instructor_id"`
	InstructorName string    `bigquery:"instructor_name"`
	ChangeKind     string    `bigquery:"change_kind"`
	ObservedAt     time.Time `bigquery:"observed_at"`
}

func toChangeRows(records []roster.ChangeRecord) []*changeRow {
	rows := make([]*changeRow, len(records))
	for i, r := range records {
		rows[i] = &changeRow{
			RunID:          r.RunID,
			Term:           r.Term,
			CourseID:       r.CourseID,
			CourseName:     r.CourseName,
			InstructorID:   r.InstructorID,
			InstructorName: r.InstructorName,
			ChangeKind:     string(r.Kind),
			ObservedAt:     r.ObservedAt.UTC(),
		}
	}
	return rows
}

// BigQuery mirrors the change log into a BigQuery table.
type BigQuery struct {
	client *bigquery.Client
	table  *bigquery.Table
}

func NewBigQuery(ctx context.Context, projectID, datasetID string) (*BigQuery, error) {
	// Set up BigQuery
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	dataset := client.Dataset(datasetID)
	if err := dataset.Create(ctx, nil); err != nil {
		if !isDuplicateError(err) {
			_ = client.Close()
			return nil, fmt.Errorf("failed to create dataset: %w", err)
		}
	}

	// Infer the table schema
	schema, err := bigquery.InferSchema(changeRow{})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to infer schema: %w", err)
	}

	table := dataset.Table(changesTable)
	if err := table.Create(ctx, &bigquery.TableMetadata{Schema: schema}); err != nil {
		if !isDuplicateError(err) {
			_ = client.Close()
			return nil, fmt.Errorf("failed to create table: %w", err)
		}
	}

	return &BigQuery{client: client, table: table}, nil
}

func (bq *BigQuery) AppendChanges(ctx context.Context, records []roster.ChangeRecord) error {
	if len(records) == 0 {
		return nil
	}
	err := bq.table.Inserter().Put(ctx, toChangeRows(records))
	if err == nil {
		return nil
	}

	var rowErrs bigquery.PutMultiError
	if errors.As(err, &rowErrs) {
		return fmt.Errorf("failed to insert %d of %d change rows: %w", len(rowErrs), len(records), err)
	}
	return fmt.Errorf("failed to insert rows: %w", err)
}

func (bq *BigQuery) Close() error {
	return bq.client.Close()
}

func isDuplicateError(err error) bool {
	var e *googleapi.Error
	if errors.As(err, &e) {
		return e.Code == 409
	}
	return false
}
