// Package benchmark runs a sliding-window benchmark end to end: it validates
// the configuration, fans jobs out to a cluster, collects their results and
// builds the report.
package benchmark

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"fts-benchmark/internal/aggregate"
	"fts-benchmark/internal/cluster"
	"fts-benchmark/internal/collect"
	"fts-benchmark/internal/config"
	"fts-benchmark/internal/dispatch"
	"fts-benchmark/internal/domain"
	"fts-benchmark/internal/evaluate"
	"fts-benchmark/internal/pool"
	"fts-benchmark/internal/window"
	"fts-benchmark/pkg/fts"
)

// Result is the outcome of one run.
type Result struct {
	RunID      string
	Report     *aggregate.Report
	Windows    int
	Dispatched int
	Failures   []collect.FailureReport
	Duration   time.Duration
}

// Runner executes benchmark runs on clusters obtained from its factory. A
// cluster lives for exactly one run.
type Runner struct {
	factory      cluster.Factory
	registry     fts.Registry
	partitioners map[string]fts.Partitioner
	logger       *zap.SugaredLogger
	sink         ResultSink
	batchSize    int
	newID        func() string
}

type Option func(*Runner)

// WithSink persists every job result of the run.
func WithSink(sink ResultSink) Option {
	return func(r *Runner) { r.sink = sink }
}

// WithBatchSize sets how many job results are buffered before a sink write.
func WithBatchSize(n int) Option {
	return func(r *Runner) { r.batchSize = n }
}

func WithPartitioners(p map[string]fts.Partitioner) Option {
	return func(r *Runner) { r.partitioners = p }
}

func WithIDGenerator(f func() string) Option {
	return func(r *Runner) { r.newID = f }
}

func New(factory cluster.Factory, registry fts.Registry, logger *zap.SugaredLogger, opts ...Option) *Runner {
	r := &Runner{
		factory:      factory,
		registry:     registry,
		partitioners: fts.Partitioners(),
		logger:       logger,
		batchSize:    100,
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// plan is a validated run configuration.
type plan struct {
	specs        []domain.ModelSpec
	partitioners []fts.Partitioner
	windows      int
}

// Run benchmarks the model pool of cfg on data. Configuration errors are
// returned before the cluster is opened. Job failures never fail the run;
// ErrEmptyResult is returned with the empty report when no job succeeded.
func (r *Runner) Run(ctx context.Context, mode domain.Mode, data []float64, cfg config.BenchmarkConfig) (*Result, error) {
	return r.RunWithID(ctx, r.newID(), mode, data, cfg)
}

// RunWithID is Run under a caller chosen run id.
func (r *Runner) RunWithID(ctx context.Context, runID string, mode domain.Mode, data []float64, cfg config.BenchmarkConfig) (res *Result, err error) {
	p, err := r.plan(mode, len(data), cfg)
	if err != nil {
		return nil, err
	}

	logger := r.logger.With("run", runID, "mode", mode)
	started := time.Now()
	logger.Infow("Process start",
		"windows", p.windows, "models", len(p.specs), "partitions", cfg.Partitions, "partitioners", cfg.Partitioners)

	gen, err := window.New(data, cfg.WindowSize, cfg.TrainRatio, cfg.IncRatio)
	if err != nil {
		return nil, err
	}

	c, err := r.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open cluster: %w", err)
	}
	defer func() {
		err = multierr.Append(err, c.Close())
	}()

	d := dispatch.New(c,
		dispatch.WithLogger(logger),
		dispatch.WithRunID(runID),
		dispatch.WithMode(mode, domain.JobArgs{Steps: cfg.Steps, Resolution: cfg.Resolution, Indexer: cfg.Indexer}),
		dispatch.WithDump(cfg.Dump),
		dispatch.WithIDGenerator(r.newID),
	)
	transformation := fts.TransformSpec{Type: cfg.Transformation, Lag: cfg.TransformationLag}
	handles, windows, err := d.Submit(ctx, p.specs, gen, cfg.Partitions, p.partitioners, transformation)
	if err != nil {
		return nil, err
	}
	logger.Infow("Jobs dispatched", "jobs", len(handles), "windows", windows)

	opts := []collect.Option{collect.WithMode(mode)}
	var buf *batcher
	if r.sink != nil {
		buf = newBatcher(ctx, runID, r.sink, r.batchSize, logger)
		opts = append(opts, collect.WithObserver(buf.add))
	}
	table, failures := collect.New(logger, cfg.JobTimeout, opts...).Collect(ctx, handles)
	if buf != nil {
		buf.flush()
	}

	report := aggregate.Finalize(table, windows, cfg.Synthetic, evaluate.Metrics(mode)...)
	res = &Result{
		RunID:      runID,
		Report:     report,
		Windows:    windows,
		Dispatched: len(handles),
		Failures:   failures,
		Duration:   time.Since(started),
	}

	if cfg.Save {
		if err := report.SaveCSV(cfg.File); err != nil {
			return res, err
		}
		logger.Infow("Report saved", "file", cfg.File, "rows", report.Len())
	}

	logger.Infow("Process end",
		"duration", res.Duration, "jobs", len(handles), "failed", len(failures), "rows", report.Len())

	if table.Len() == 0 {
		return res, domain.ErrEmptyResult
	}
	return res, nil
}

func (r *Runner) plan(mode domain.Mode, n int, cfg config.BenchmarkConfig) (plan, error) {
	var p plan
	if !mode.Valid() {
		return p, domain.NewConfigError("mode", "unknown mode %q", mode)
	}
	if err := cfg.Validate(); err != nil {
		return p, err
	}

	models, benchmarks, params, alphas := cfg.Models, cfg.BenchmarkModels, cfg.BenchmarkParams, cfg.Alphas
	if len(models) == 0 && len(benchmarks) == 0 {
		def := pool.DefaultsFor(mode)
		models, benchmarks, params = def.Models, def.Benchmarks, def.BenchmarkParams
		if len(alphas) == 0 {
			alphas = def.Alphas
		}
	}
	if mode == domain.ModePoint {
		alphas = nil
	}

	families, err := pool.Resolve(r.registry, "models", models)
	if err != nil {
		return p, err
	}
	baselines, err := pool.Resolve(r.registry, "benchmark_models", benchmarks)
	if err != nil {
		return p, err
	}
	if p.specs, err = pool.Build(families, cfg.MaxOrder, baselines, params, alphas); err != nil {
		return p, err
	}
	if len(p.specs) == 0 {
		return p, domain.NewConfigError("models", "the model pool is empty")
	}

	for _, name := range cfg.Partitioners {
		part, ok := r.partitioners[name]
		if !ok {
			return p, domain.NewConfigError("partitioners", "unknown partitioner %q", name)
		}
		p.partitioners = append(p.partitioners, part)
	}

	if _, err := fts.NewTransformation(fts.TransformSpec{Type: cfg.Transformation, Lag: cfg.TransformationLag}); err != nil {
		return p, &domain.ConfigError{Field: "transformation", Err: err}
	}

	if p.windows, err = window.Count(n, cfg.WindowSize, cfg.TrainRatio, cfg.IncRatio); err != nil {
		return p, err
	}
	if p.windows == 0 {
		return p, &domain.ConfigError{
			Field:  "window_size",
			Reason: fmt.Sprintf("%d points, window of %d", n, cfg.WindowSize),
			Err:    domain.ErrNoWindows,
		}
	}
	return p, nil
}
