package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	r "gopkg.in/rethinkdb/rethinkdb-go.v6"

	"fts-benchmark/internal/domain"
)

func TestCreateRun(t *testing.T) {
	mock := r.NewMock()
	mock.On(r.Table("runs").Insert(r.MockAnything())).Return(r.WriteResponse{
		Inserted:      1,
		GeneratedKeys: []string{"run-1"},
	}, nil)

	repo := NewRunRepository(mock, "runs")
	run := &domain.Run{Mode: domain.ModePoint, Dataset: "TAIEX"}

	require.NoError(t, repo.CreateRun(context.Background(), run))
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, domain.RunStatusPending, run.Status)
	assert.False(t, run.CreatedAt.IsZero())
	mock.AssertExpectations(t)
}

func TestCreateRunError(t *testing.T) {
	mock := r.NewMock()
	mock.On(r.Table("runs").Insert(r.MockAnything())).Return(nil, errors.New("connection refused"))

	repo := NewRunRepository(mock, "runs")
	err := repo.CreateRun(context.Background(), &domain.Run{})
	assert.ErrorContains(t, err, "connection refused")
}

func TestGetRun(t *testing.T) {
	mock := r.NewMock()
	mock.On(r.Table("runs").Get("run-1")).Return(map[string]interface{}{
		"id":      "run-1",
		"mode":    "interval",
		"dataset": "SP500",
		"status":  "success",
		"windows": 7,
		"request": map[string]interface{}{"mode": "interval", "dataset": "SP500", "partitions": []int{10, 20}},
	}, nil)
	mock.On(r.Table("runs").Get("missing")).Return(nil, nil)

	repo := NewRunRepository(mock, "runs")

	run, err := repo.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ModeInterval, run.Mode)
	assert.Equal(t, domain.RunStatusSuccess, run.Status)
	assert.Equal(t, 7, run.Windows)
	assert.Equal(t, []int{10, 20}, run.Request.Partitions)

	_, err = repo.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateRun(t *testing.T) {
	mock := r.NewMock()
	mock.On(r.Table("runs").Get("run-1").Update(r.MockAnything())).Return(r.WriteResponse{Replaced: 1}, nil)
	mock.On(r.Table("runs").Get("missing").Update(r.MockAnything())).Return(r.WriteResponse{Skipped: 1}, nil)

	repo := NewRunRepository(mock, "runs")

	updates := map[string]any{"status": domain.RunStatusCancelled}
	require.NoError(t, repo.UpdateRun(context.Background(), "run-1", updates))
	assert.Contains(t, updates, "updated_at")

	err := repo.UpdateRun(context.Background(), "missing", map[string]any{"status": domain.RunStatusCancelled})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListRuns(t *testing.T) {
	mock := r.NewMock()
	mock.On(r.Table("runs").OrderBy(r.Desc("created_at")).Limit(10).Without("report")).Return([]interface{}{
		map[string]interface{}{"id": "b", "mode": "point", "status": "processing"},
		map[string]interface{}{"id": "a", "mode": "ahead", "status": "success"},
	}, nil)

	repo := NewRunRepository(mock, "runs")

	runs, err := repo.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "b", runs[0].ID)
	assert.Equal(t, domain.ModeAhead, runs[1].Mode)
}

func TestSaveResults(t *testing.T) {
	mock := r.NewMock()
	insert := mock.On(r.Table("results").Insert(r.MockAnything())).Return(r.WriteResponse{Inserted: 2}, nil)

	repo := NewResultRepository(mock, "results")

	require.NoError(t, repo.SaveResults(context.Background(), nil))
	mock.AssertNotExecuted(t, insert)

	records := []domain.JobRecord{
		{RunID: "run-1", JobID: "j1", Window: 0, Metrics: map[string]float64{"rmse": 1.5}},
		{RunID: "run-1", JobID: "j2", Window: 1, Error: "boom"},
	}
	require.NoError(t, repo.SaveResults(context.Background(), records))
	mock.AssertExecuted(t, insert)
	for _, rec := range records {
		assert.False(t, rec.CreatedAt.IsZero())
	}
}

func TestListResults(t *testing.T) {
	mock := r.NewMock()
	mock.On(r.Table("results").GetAllByIndex("run_id", "run-1").OrderBy("window", "job_id")).Return([]interface{}{
		map[string]interface{}{"run_id": "run-1", "job_id": "j1", "window": 0, "metrics": map[string]float64{"rmse": 1.5}},
		map[string]interface{}{"run_id": "run-1", "job_id": "j2", "window": 1, "error": "boom"},
	}, nil)

	repo := NewResultRepository(mock, "results")

	records, err := repo.ListResults(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.InDelta(t, 1.5, records[0].Metrics["rmse"], 1e-9)
	assert.Equal(t, "boom", records[1].Error)
}

func TestSetupDatabase(t *testing.T) {
	mock := r.NewMock()
	mock.On(r.DBList()).Return([]interface{}{"rethinkdb"}, nil)
	createDB := mock.On(r.DBCreate("ftsbench")).Return(map[string]interface{}{"dbs_created": 1}, nil)
	mock.On(r.DB("ftsbench").TableList()).Return([]interface{}{"runs"}, nil)
	createRuns := mock.On(r.DB("ftsbench").TableCreate("runs")).Return(map[string]interface{}{"tables_created": 1}, nil)
	createResults := mock.On(r.DB("ftsbench").TableCreate("results")).Return(map[string]interface{}{"tables_created": 1}, nil)
	mock.On(r.DB("ftsbench").Table("results").IndexCreate("run_id")).Return(map[string]interface{}{"created": 1}, nil)
	mock.On(r.DB("ftsbench").Table("results").IndexCreate("created_at")).Return(map[string]interface{}{"created": 1}, nil)
	mock.On(r.DB("ftsbench").Table("results").IndexWait()).Return([]interface{}{
		map[string]interface{}{"index": "run_id", "ready": true},
	}, nil)

	err := SetupDatabase(context.Background(), mock, "ftsbench", Indexes{
		"runs":    {"status", "created_at"},
		"results": {"run_id", "created_at"},
	}, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	mock.AssertExecuted(t, createDB)
	mock.AssertExecuted(t, createResults)
	mock.AssertNotExecuted(t, createRuns)
}

func TestPing(t *testing.T) {
	mock := r.NewMock()
	mock.On(r.Expr(1)).Return(1, nil)
	assert.NoError(t, Ping(context.Background(), mock))

	failing := r.NewMock()
	failing.On(r.Expr(1)).Return(nil, errors.New("down"))
	assert.ErrorContains(t, Ping(context.Background(), failing), "down")
}
