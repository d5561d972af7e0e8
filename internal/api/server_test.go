package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"fts-benchmark/internal/domain"
	"fts-benchmark/internal/repository"
)

type MockRunRepository struct {
	mock.Mock
}

func (m *MockRunRepository) CreateRun(ctx context.Context, run *domain.Run) error {
	return m.Called(ctx, run).Error(0)
}

func (m *MockRunRepository) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	args := m.Called(ctx, id)
	run, _ := args.Get(0).(*domain.Run)
	return run, args.Error(1)
}

func (m *MockRunRepository) UpdateRun(ctx context.Context, id string, updates map[string]any) error {
	return m.Called(ctx, id, updates).Error(0)
}

func (m *MockRunRepository) ListRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	args := m.Called(ctx, limit)
	runs, _ := args.Get(0).([]domain.Run)
	return runs, args.Error(1)
}

type MockResultRepository struct {
	mock.Mock
}

func (m *MockResultRepository) SaveResults(ctx context.Context, records []domain.JobRecord) error {
	return m.Called(ctx, records).Error(0)
}

func (m *MockResultRepository) ListResults(ctx context.Context, runID string) ([]domain.JobRecord, error) {
	args := m.Called(ctx, runID)
	records, _ := args.Get(0).([]domain.JobRecord)
	return records, args.Error(1)
}

type fakeLauncher struct {
	mu        sync.Mutex
	launched  []domain.Run
	cancelled []string
}

func (f *fakeLauncher) Launch(run domain.Run) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.launched = append(f.launched, run)
}

func (f *fakeLauncher) Cancel(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	return true
}

type fixture struct {
	runs     *MockRunRepository
	results  *MockResultRepository
	launcher *fakeLauncher
	server   *Server
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		runs:     new(MockRunRepository),
		results:  new(MockResultRepository),
		launcher: &fakeLauncher{},
	}
	f.server = NewServer(f.runs, f.results, f.launcher, ":0", zaptest.NewLogger(t).Sugar())
	return f
}

func (f *fixture) do(method, path string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(v))
}

func TestCreateRun(t *testing.T) {
	f := newFixture(t)
	f.runs.On("CreateRun", mock.Anything, mock.AnythingOfType("*domain.Run")).
		Run(func(args mock.Arguments) { args.Get(1).(*domain.Run).ID = "run-1" }).
		Return(nil)

	rec := f.do(http.MethodPost, "/api/v1/runs", `{"mode":"interval","dataset":"TAIEX","partitions":[10,20],"alphas":[0.05]}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var run domain.Run
	decode(t, rec, &run)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, domain.RunStatusPending, run.Status)
	assert.Equal(t, domain.ModeInterval, run.Mode)

	require.Len(t, f.launcher.launched, 1)
	assert.Equal(t, []int{10, 20}, f.launcher.launched[0].Request.Partitions)
}

func TestCreateRunValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"mode":`},
		{"unknown mode", `{"mode":"density","dataset":"TAIEX"}`},
		{"missing dataset", `{"mode":"point"}`},
		{"bad partitions", `{"mode":"point","dataset":"TAIEX","partitions":[1]}`},
		{"bad alpha", `{"mode":"point","dataset":"TAIEX","alphas":[1.5]}`},
		{"bad train ratio", `{"mode":"point","dataset":"TAIEX","train_ratio":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rec := f.do(http.MethodPost, "/api/v1/runs", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			f.runs.AssertNotCalled(t, "CreateRun", mock.Anything, mock.Anything)
			assert.Empty(t, f.launcher.launched)
		})
	}
}

func TestCreateRunStorageError(t *testing.T) {
	f := newFixture(t)
	f.runs.On("CreateRun", mock.Anything, mock.Anything).Return(errors.New("no primary replica"))

	rec := f.do(http.MethodPost, "/api/v1/runs", `{"mode":"point","dataset":"TAIEX"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, f.launcher.launched)
}

func TestGetRun(t *testing.T) {
	f := newFixture(t)
	f.runs.On("GetRun", mock.Anything, "run-1").Return(&domain.Run{ID: "run-1", Status: domain.RunStatusSuccess}, nil)
	f.runs.On("GetRun", mock.Anything, "missing").Return(nil, repository.ErrNotFound)
	f.runs.On("GetRun", mock.Anything, "broken").Return(nil, errors.New("timeout"))

	rec := f.do(http.MethodGet, "/api/v1/runs/run-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var run domain.Run
	decode(t, rec, &run)
	assert.Equal(t, domain.RunStatusSuccess, run.Status)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/v1/runs/missing", "").Code)
	assert.Equal(t, http.StatusInternalServerError, f.do(http.MethodGet, "/api/v1/runs/broken", "").Code)
}

func TestGetReport(t *testing.T) {
	f := newFixture(t)
	report := "Model;Type\nCFTS n=1;CFTS\n"
	f.runs.On("GetRun", mock.Anything, "done").Return(&domain.Run{ID: "done", Status: domain.RunStatusSuccess, Report: report}, nil)
	f.runs.On("GetRun", mock.Anything, "busy").Return(&domain.Run{ID: "busy", Status: domain.RunStatusProcessing}, nil)

	rec := f.do(http.MethodGet, "/api/v1/runs/done/report", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, report, rec.Body.String())

	assert.Equal(t, http.StatusConflict, f.do(http.MethodGet, "/api/v1/runs/busy/report", "").Code)
}

func TestListRuns(t *testing.T) {
	f := newFixture(t)
	f.runs.On("ListRuns", mock.Anything, 50).Return([]domain.Run{{ID: "a"}, {ID: "b"}}, nil)
	f.runs.On("ListRuns", mock.Anything, 5).Return([]domain.Run{{ID: "a"}}, nil)

	var body struct {
		Runs  []domain.Run `json:"runs"`
		Count int          `json:"count"`
		Limit int          `json:"limit"`
	}
	rec := f.do(http.MethodGet, "/api/v1/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &body)
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, 50, body.Limit)

	rec = f.do(http.MethodGet, "/api/v1/runs?limit=5", "")
	decode(t, rec, &body)
	assert.Equal(t, 5, body.Limit)

	rec = f.do(http.MethodGet, "/api/v1/runs?limit=1000", "")
	decode(t, rec, &body)
	assert.Equal(t, 50, body.Limit)
}

func TestListResults(t *testing.T) {
	f := newFixture(t)
	f.results.On("ListResults", mock.Anything, "run-1").Return([]domain.JobRecord{
		{RunID: "run-1", JobID: "j1", Metrics: map[string]float64{"rmse": 2}},
	}, nil)

	rec := f.do(http.MethodGet, "/api/v1/runs/run-1/results", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Results []domain.JobRecord `json:"results"`
		Count   int                `json:"count"`
	}
	decode(t, rec, &body)
	assert.Equal(t, 1, body.Count)
	assert.InDelta(t, 2.0, body.Results[0].Metrics["rmse"], 1e-9)
}

func TestCancelRun(t *testing.T) {
	f := newFixture(t)
	f.runs.On("GetRun", mock.Anything, "run-1").Return(&domain.Run{ID: "run-1", Status: domain.RunStatusProcessing}, nil)
	f.runs.On("GetRun", mock.Anything, "done").Return(&domain.Run{ID: "done", Status: domain.RunStatusSuccess}, nil)
	f.runs.On("UpdateRun", mock.Anything, "run-1", mock.MatchedBy(func(u map[string]any) bool {
		return u["status"] == domain.RunStatusCancelled
	})).Return(nil)

	rec := f.do(http.MethodDelete, "/api/v1/runs/run-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"run-1"}, f.launcher.cancelled)
	f.runs.AssertExpectations(t)

	assert.Equal(t, http.StatusConflict, f.do(http.MethodDelete, "/api/v1/runs/done", "").Code)
}

func TestHealthDocsAndNotFound(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"healthy"`)

	rec = f.do(http.MethodGet, "/docs", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/v1/runs/{id}/report")

	rec = f.do(http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSHeaders(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/docs", "")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "DELETE")
}

func TestRecoveryMiddleware(t *testing.T) {
	f := newFixture(t)
	f.runs.On("ListRuns", mock.Anything, mock.Anything).Run(func(mock.Arguments) { panic("nil map") })

	rec := f.do(http.MethodGet, "/api/v1/runs", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
