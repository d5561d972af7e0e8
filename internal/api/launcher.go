package api

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"fts-benchmark/internal/benchmark"
	"fts-benchmark/internal/config"
	"fts-benchmark/internal/domain"
	"fts-benchmark/internal/infrastructure"
	"fts-benchmark/internal/repository"
)

// Dataset loads the series a run request names.
type Dataset interface {
	Load(ctx context.Context, name, column string) (*infrastructure.Dataset, error)
}

// Engine runs one benchmark under a given run id.
type Engine interface {
	RunWithID(ctx context.Context, runID string, mode domain.Mode, data []float64, cfg config.BenchmarkConfig) (*benchmark.Result, error)
}

// BackgroundLauncher runs each launched run in its own goroutine and records
// its progress in the run repository.
type BackgroundLauncher struct {
	engine   Engine
	datasets Dataset
	runs     repository.RunRepository
	defaults config.BenchmarkConfig
	logger   *zap.SugaredLogger

	ctx     context.Context
	stop    context.CancelFunc
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func NewBackgroundLauncher(engine Engine, datasets Dataset, runs repository.RunRepository,
	defaults config.BenchmarkConfig, logger *zap.SugaredLogger) *BackgroundLauncher {
	ctx, stop := context.WithCancel(context.Background())
	return &BackgroundLauncher{
		engine:   engine,
		datasets: datasets,
		runs:     runs,
		defaults: defaults,
		logger:   logger,
		ctx:      ctx,
		stop:     stop,
		cancels:  make(map[string]context.CancelFunc),
	}
}

func (l *BackgroundLauncher) Launch(run domain.Run) {
	ctx, cancel := context.WithCancel(l.ctx)

	l.mu.Lock()
	l.cancels[run.ID] = cancel
	l.mu.Unlock()

	l.wg.Add(1)
	go func() {
		defer func() {
			l.mu.Lock()
			delete(l.cancels, run.ID)
			l.mu.Unlock()
			cancel()
			l.wg.Done()
		}()
		l.execute(ctx, run)
	}()
}

func (l *BackgroundLauncher) Cancel(id string) bool {
	l.mu.Lock()
	cancel, ok := l.cancels[id]
	l.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Wait blocks until every launched run has finished.
func (l *BackgroundLauncher) Wait() {
	l.wg.Wait()
}

// Shutdown cancels every run in flight and waits for them.
func (l *BackgroundLauncher) Shutdown() {
	l.stop()
	l.wg.Wait()
}

func (l *BackgroundLauncher) execute(ctx context.Context, run domain.Run) {
	logger := l.logger.With("run", run.ID)
	// bookkeeping writes outlive cancellation
	store := context.WithoutCancel(ctx)

	l.update(store, run.ID, map[string]any{"status": domain.RunStatusProcessing}, logger)

	ds, err := l.datasets.Load(ctx, run.Request.Dataset, run.Request.Column)
	if err != nil {
		l.finish(store, ctx, run.ID, nil, err, logger)
		return
	}

	cfg := l.defaults.Apply(run.Request)
	res, err := l.engine.RunWithID(ctx, run.ID, run.Request.Mode, ds.Values, cfg)
	l.finish(store, ctx, run.ID, res, err, logger)
}

func (l *BackgroundLauncher) finish(store, ctx context.Context, id string, res *benchmark.Result, err error, logger *zap.SugaredLogger) {
	now := time.Now().UTC()
	updates := map[string]any{"completed_at": now}

	if res != nil {
		updates["windows"] = res.Windows
		updates["dispatched"] = res.Dispatched
		updates["failed"] = len(res.Failures)
		var buf bytes.Buffer
		if werr := res.Report.WriteCSV(&buf); werr != nil {
			logger.Warnw("Failed to render report", zap.Error(werr))
		} else if res.Report.Len() > 0 {
			updates["report"] = buf.String()
		}
	}

	switch {
	case ctx.Err() != nil:
		updates["status"] = domain.RunStatusCancelled
	case err != nil:
		updates["status"] = domain.RunStatusError
		updates["error"] = err.Error()
		if !errors.Is(err, domain.ErrEmptyResult) && !domain.IsConfigError(err) {
			logger.Errorw("Run failed", zap.Error(err))
		}
	default:
		updates["status"] = domain.RunStatusSuccess
	}

	l.update(store, id, updates, logger)
	logger.Infow("Run finished", "status", updates["status"])
}

func (l *BackgroundLauncher) update(ctx context.Context, id string, updates map[string]any, logger *zap.SugaredLogger) {
	if err := l.runs.UpdateRun(ctx, id, updates); err != nil {
		logger.Errorw("Failed to update run", zap.Error(err))
	}
}
