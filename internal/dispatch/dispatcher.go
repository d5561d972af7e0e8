// Package dispatch fans a model pool out over sliding windows and
// partitionings as cluster jobs.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fts-benchmark/internal/cluster"
	"fts-benchmark/internal/domain"
	"fts-benchmark/internal/metrics"
	"fts-benchmark/internal/window"
	"fts-benchmark/pkg/fts"
)

// Dispatcher submits one job per (window, partition count, partitioner,
// model spec) without waiting for any of them.
type Dispatcher struct {
	cluster cluster.Cluster
	logger  *zap.SugaredLogger
	runID   string
	mode    domain.Mode
	args    domain.JobArgs
	dump    bool
	newID   func() string
}

type Option func(*Dispatcher)

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

func WithRunID(id string) Option {
	return func(d *Dispatcher) { d.runID = id }
}

// WithMode sets the mode of every job and the extra args it carries.
func WithMode(mode domain.Mode, args domain.JobArgs) Option {
	return func(d *Dispatcher) {
		d.mode = mode
		d.args = args
	}
}

// WithDump logs every window at info level.
func WithDump(dump bool) Option {
	return func(d *Dispatcher) { d.dump = dump }
}

func WithIDGenerator(f func() string) Option {
	return func(d *Dispatcher) { d.newID = f }
}

func New(c cluster.Cluster, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		cluster: c,
		logger:  zap.NewNop().Sugar(),
		mode:    domain.ModePoint,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Submit drains gen and returns the job handles in submission order together
// with the number of windows processed. Benchmark-only specs are sent once per
// short name within a (window, partition count, partitioner) scope. A
// partitioner that fails yields resolved failures for its jobs. Only cluster
// errors abort the submission.
func (d *Dispatcher) Submit(ctx context.Context, pool []domain.ModelSpec, gen *window.Generator,
	partitions []int, partitioners []fts.Partitioner, transformation fts.TransformSpec) ([]cluster.Handle, int, error) {
	tr, err := fts.NewTransformation(transformation)
	if err != nil {
		return nil, 0, &domain.ConfigError{Field: "transformation", Err: err}
	}

	var handles []cluster.Handle
	windows := 0
	for {
		w, ok := gen.Next()
		if !ok {
			break
		}
		windows++
		if d.dump {
			d.logger.Infow("Window", "index", w.Index, "start", w.Start)
		} else {
			d.logger.Debugw("Window", "index", w.Index, "start", w.Start)
		}

		for _, n := range partitions {
			for _, partitioner := range partitioners {
				part, perr := partitioner.Build(w.Train, n, tr)
				if perr != nil {
					d.logger.Warnw("Partitioner failed",
						"window", w.Index, "partitioner", partitioner.Name(), "partitions", n, zap.Error(perr))
					part = fts.Partition{Scheme: partitioner.Name(), Partitions: n}
				}

				seen := make(map[string]bool)
				for _, spec := range pool {
					if spec.BenchmarkOnly {
						name := spec.ShortName()
						if seen[name] {
							continue
						}
						seen[name] = true
					}

					job := d.job(w, spec, part, transformation)
					metrics.JobsDispatched.WithLabelValues(string(d.mode)).Inc()
					if perr != nil {
						handles = append(handles, cluster.Resolved(
							domain.Fail(job, fmt.Errorf("partitioner %s: %w", partitioner.Name(), perr), "")))
						continue
					}
					h, err := d.cluster.Submit(ctx, job)
					if err != nil {
						return handles, windows, fmt.Errorf("submit job %s: %w", job.ID, err)
					}
					handles = append(handles, h)
				}
			}
		}
	}
	return handles, windows, nil
}

func (d *Dispatcher) job(w window.Window, spec domain.ModelSpec, part fts.Partition, tr fts.TransformSpec) domain.Job {
	return domain.Job{
		ID:             d.newID(),
		RunID:          d.runID,
		Mode:           d.mode,
		Spec:           spec,
		Partition:      part,
		Train:          w.Train,
		Test:           w.Test,
		Window:         w.Index,
		WindowStart:    w.Start,
		Transformation: tr,
		Args:           d.args,
		SubmittedAt:    time.Now(),
	}
}
