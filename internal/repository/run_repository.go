package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	r "gopkg.in/rethinkdb/rethinkdb-go.v6"

	"fts-benchmark/internal/domain"
)

var ErrNotFound = errors.New("not found")

type RunRepository interface {
	CreateRun(ctx context.Context, run *domain.Run) error
	GetRun(ctx context.Context, id string) (*domain.Run, error)
	UpdateRun(ctx context.Context, id string, updates map[string]any) error
	ListRuns(ctx context.Context, limit int) ([]domain.Run, error)
}

type rethinkDBRepository struct {
	session r.QueryExecutor
	table   string
}

func NewRunRepository(session r.QueryExecutor, table string) RunRepository {
	return &rethinkDBRepository{
		session: session,
		table:   table,
	}
}

func (repo *rethinkDBRepository) CreateRun(ctx context.Context, run *domain.Run) error {
	now := time.Now().UTC()
	run.CreatedAt = now
	run.UpdatedAt = now
	if run.Status == "" {
		run.Status = domain.RunStatusPending
	}

	result, err := r.Table(repo.table).Insert(run).RunWrite(repo.session, r.RunOpts{Context: ctx})
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	if run.ID == "" && len(result.GeneratedKeys) > 0 {
		run.ID = result.GeneratedKeys[0]
	}

	return nil
}

func (repo *rethinkDBRepository) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	cursor, err := r.Table(repo.table).Get(id).Run(repo.session, r.RunOpts{Context: ctx})
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	defer cursor.Close()

	if cursor.IsNil() {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}

	var run domain.Run
	if err := cursor.One(&run); err != nil {
		return nil, fmt.Errorf("failed to decode run: %w", err)
	}

	return &run, nil
}

func (repo *rethinkDBRepository) UpdateRun(ctx context.Context, id string, updates map[string]any) error {
	updates["updated_at"] = time.Now().UTC()

	result, err := r.Table(repo.table).Get(id).Update(updates).RunWrite(repo.session, r.RunOpts{Context: ctx})
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if result.Skipped > 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}

	return nil
}

// ListRuns returns the newest runs first, without their reports.
func (repo *rethinkDBRepository) ListRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	cursor, err := r.Table(repo.table).
		OrderBy(r.Desc("created_at")).
		Limit(limit).
		Without("report").
		Run(repo.session, r.RunOpts{Context: ctx})
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer cursor.Close()

	runs := []domain.Run{}
	if err := cursor.All(&runs); err != nil {
		return nil, fmt.Errorf("failed to decode runs: %w", err)
	}

	return runs, nil
}
