package benchmark

import (
	"context"

	"go.uber.org/zap"

	"fts-benchmark/internal/domain"
)

// ResultSink stores the job results of a run.
type ResultSink interface {
	SaveResults(ctx context.Context, records []domain.JobRecord) error
}

// batcher buffers job records and writes them in batches. Sink errors are
// logged and the batch is dropped.
type batcher struct {
	ctx    context.Context
	runID  string
	sink   ResultSink
	size   int
	buf    []domain.JobRecord
	logger *zap.SugaredLogger
}

func newBatcher(ctx context.Context, runID string, sink ResultSink, size int, logger *zap.SugaredLogger) *batcher {
	if size < 1 {
		size = 1
	}
	return &batcher{ctx: ctx, runID: runID, sink: sink, size: size, logger: logger}
}

func (b *batcher) add(result domain.JobResult) {
	b.buf = append(b.buf, domain.NewJobRecord(b.runID, result))
	if len(b.buf) >= b.size {
		b.flush()
	}
}

func (b *batcher) flush() {
	if len(b.buf) == 0 {
		return
	}
	// results already collected are kept even when the run is canceled
	ctx := context.WithoutCancel(b.ctx)
	if err := b.sink.SaveResults(ctx, b.buf); err != nil {
		b.logger.Errorw("Failed to save job results", "count", len(b.buf), zap.Error(err))
	}
	b.buf = nil
}
