// Command worker evaluates benchmark jobs consumed from the Redis job stream.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"fts-benchmark/internal/config"
	"fts-benchmark/internal/domain"
	"fts-benchmark/internal/evaluate"
	"fts-benchmark/internal/logging"
	"fts-benchmark/internal/messaging"
	"fts-benchmark/internal/worker"
	"fts-benchmark/pkg/fts"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := logging.NewLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	workerID := newWorkerID()
	logger.Infow("Starting benchmark worker",
		"worker", workerID,
		"redis", cfg.RedisURL,
		"stream", cfg.StreamName,
		"group", cfg.ConsumerGroup,
		"concurrency", cfg.WorkerCount,
		"task_timeout", cfg.TaskTimeout,
		"health_port", cfg.HealthPort,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue, err := connectToRedis(ctx, cfg, workerID, logger)
	if err != nil {
		logger.Fatalw("Failed to connect to Redis", zap.Error(err))
	}
	defer queue.Close()

	registry := fts.Models()
	w := worker.NewWorker(workerID, queue, evaluate.NewSet(registry, logger), worker.Options{
		Concurrency: cfg.WorkerCount,
		TaskTimeout: cfg.TaskTimeout,
		MaxRetries:  cfg.MaxRetries,
	}, logger)

	healthServer := startHealthServer(cfg.HealthPort, w, queue, registry, logger)
	metricsServer := startMetricsServer(cfg.MetricsPort, logger)

	done := make(chan error, 1)
	go func() {
		done <- w.Start(ctx)
	}()

	waitForShutdown(logger, cancel, w, done, healthServer, metricsServer)
	logger.Infow("Worker stopped gracefully")
}

func newWorkerID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "worker"
	}
	return fmt.Sprintf("%s-%s", hostname, uuid.NewString()[:8])
}

func connectToRedis(ctx context.Context, cfg *config.Config, workerID string, logger *zap.SugaredLogger) (messaging.JobQueue, error) {
	const maxRetries = 10
	var err error

	for i := 1; i <= maxRetries; i++ {
		var queue messaging.JobQueue
		queue, err = messaging.NewRedisClient(ctx, messaging.Options{
			Addr:          cfg.RedisURL,
			Password:      cfg.RedisPassword,
			DB:            cfg.RedisDB,
			StreamName:    cfg.StreamName,
			ConsumerGroup: cfg.ConsumerGroup,
			ConsumerName:  workerID,
			ResultTTL:     cfg.ResultTTL,
			ClaimMinIdle:  claimMinIdle(cfg.TaskTimeout),
		}, logger)
		if err == nil {
			return queue, nil
		}

		if i < maxRetries {
			wait := time.Duration(i) * 2 * time.Second
			logger.Warnw("Redis connection failed, retrying", "attempt", i, "wait", wait, zap.Error(err))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
	}

	return nil, fmt.Errorf("failed to connect to Redis after %d attempts: %w", maxRetries, err)
}

// startHealthServer serves the node status the coordinator probes before a
// redis run.
func startHealthServer(addr string, w *worker.Worker, queue messaging.JobQueue, registry fts.Registry, logger *zap.SugaredLogger) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(rw http.ResponseWriter, req *http.Request) {
		status := domain.NodeStatus{
			Status:   domain.NodeHealthy,
			WorkerID: w.ID(),
			Models:   registry.Types(),
			Stats:    w.GetStats(),
		}
		code := http.StatusOK

		ctx, cancel := context.WithTimeout(req.Context(), 3*time.Second)
		defer cancel()
		if err := queue.HealthCheck(ctx); err != nil {
			status.Status = "redis: " + err.Error()
			code = http.StatusServiceUnavailable
		} else if !w.IsRunning() {
			status.Status = "stopped"
			code = http.StatusServiceUnavailable
		}

		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(code)
		_ = json.NewEncoder(rw).Encode(status)
	})

	mux.HandleFunc("/ready", func(rw http.ResponseWriter, _ *http.Request) {
		if !w.IsRunning() {
			rw.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ready"))
	})

	return serve(addr, mux, "health", logger)
}

func startMetricsServer(addr string, logger *zap.SugaredLogger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return serve(addr, mux, "metrics", logger)
}

func serve(addr string, handler http.Handler, name string, logger *zap.SugaredLogger) *http.Server {
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infow("Server listening", "server", name, "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("Server error", "server", name, zap.Error(err))
		}
	}()

	return server
}

func waitForShutdown(logger *zap.SugaredLogger, cancel context.CancelFunc, w *worker.Worker,
	done <-chan error, servers ...*http.Server) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Infow("Received signal, shutting down", "signal", sig.String())
		w.Stop()
	case err := <-done:
		if err != nil {
			logger.Errorw("Worker exited", zap.Error(err))
		}
		done = nil
	}

	if done != nil {
		// jobs in flight finish and publish; a second signal forces exit
		select {
		case err := <-done:
			if err != nil {
				logger.Errorw("Worker exited", zap.Error(err))
			}
		case sig := <-sigChan:
			logger.Warnw("Received second signal, forcing shutdown", "signal", sig.String())
		case <-time.After(time.Minute):
			logger.Warnw("Shutdown timeout")
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	for _, server := range servers {
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Errorw("Server shutdown error", "addr", server.Addr, zap.Error(err))
		}
	}
}

// claimMinIdle lets a delivered job wait for a slot and run to its task
// timeout before another worker takes it over.
func claimMinIdle(taskTimeout time.Duration) time.Duration {
	if taskTimeout <= 0 {
		return messaging.DefaultClaimMinIdle
	}
	return 2*taskTimeout + time.Minute
}
