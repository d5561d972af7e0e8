package benchmark

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"fts-benchmark/internal/cluster"
	"fts-benchmark/internal/config"
	"fts-benchmark/internal/evaluate"
	"fts-benchmark/internal/messaging"
	"fts-benchmark/pkg/fts"
)

// remoteWaitMargin covers queueing and transport on top of the worker task timeout.
const remoteWaitMargin = time.Minute

const (
	ExecutorLocal = "local"
	ExecutorRedis = "redis"
)

// NewFactory returns the cluster factory of the configured executor. The
// local executor evaluates in process with worker_count goroutines; the
// redis executor publishes jobs to worker nodes.
func NewFactory(cfg *config.Config, registry fts.Registry, logger *zap.SugaredLogger) (cluster.Factory, error) {
	switch cfg.Benchmark.Executor {
	case "", ExecutorLocal:
		evaluators := evaluate.NewSet(registry, logger)
		return func(context.Context) (cluster.Cluster, error) {
			return cluster.NewLocal(evaluators, cfg.WorkerCount, logger), nil
		}, nil
	case ExecutorRedis:
		return func(ctx context.Context) (cluster.Cluster, error) {
			queue, err := messaging.NewRedisClient(ctx, messaging.Options{
				Addr:          cfg.RedisURL,
				Password:      cfg.RedisPassword,
				DB:            cfg.RedisDB,
				StreamName:    cfg.StreamName,
				ConsumerGroup: cfg.ConsumerGroup,
				ResultTTL:     cfg.ResultTTL,
			}, logger)
			if err != nil {
				return nil, err
			}
			remote, err := cluster.NewRemote(ctx, queue, cluster.RemoteOptions{
				Nodes:      cfg.Benchmark.Nodes,
				Depends:    cfg.Benchmark.Depends,
				JobTimeout: remoteJobTimeout(cfg),
			}, logger)
			if err != nil {
				_ = queue.Close()
				return nil, err
			}
			return remote, nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown executor %q", cfg.Benchmark.Executor)
	}
}

// remoteJobTimeout is the wait bound for jobs on worker nodes: the
// configured job timeout, else the task timeout plus a margin.
func remoteJobTimeout(cfg *config.Config) time.Duration {
	if cfg.Benchmark.JobTimeout > 0 {
		return cfg.Benchmark.JobTimeout
	}
	if cfg.TaskTimeout > 0 {
		return cfg.TaskTimeout + remoteWaitMargin
	}
	return cluster.DefaultJobTimeout
}
