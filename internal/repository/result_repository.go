package repository

import (
	"context"
	"fmt"
	"time"

	r "gopkg.in/rethinkdb/rethinkdb-go.v6"

	"fts-benchmark/internal/domain"
)

type ResultRepository interface {
	SaveResults(ctx context.Context, records []domain.JobRecord) error
	ListResults(ctx context.Context, runID string) ([]domain.JobRecord, error)
}

type resultRepository struct {
	session r.QueryExecutor
	table   string
}

func NewResultRepository(session r.QueryExecutor, table string) ResultRepository {
	return &resultRepository{
		session: session,
		table:   table,
	}
}

func (repo *resultRepository) SaveResults(ctx context.Context, records []domain.JobRecord) error {
	if len(records) == 0 {
		return nil
	}

	now := time.Now().UTC()
	for i := range records {
		if records[i].CreatedAt.IsZero() {
			records[i].CreatedAt = now
		}
	}

	if _, err := r.Table(repo.table).Insert(records).RunWrite(repo.session, r.RunOpts{Context: ctx}); err != nil {
		return fmt.Errorf("failed to save %d results: %w", len(records), err)
	}

	return nil
}

// ListResults returns the job records of a run ordered by window.
func (repo *resultRepository) ListResults(ctx context.Context, runID string) ([]domain.JobRecord, error) {
	cursor, err := r.Table(repo.table).
		GetAllByIndex("run_id", runID).
		OrderBy("window", "job_id").
		Run(repo.session, r.RunOpts{Context: ctx})
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer cursor.Close()

	records := []domain.JobRecord{}
	if err := cursor.All(&records); err != nil {
		return nil, fmt.Errorf("failed to decode results: %w", err)
	}

	return records, nil
}
