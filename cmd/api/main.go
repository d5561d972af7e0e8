// Command api serves the benchmark REST API and runs submitted benchmarks.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	r "gopkg.in/rethinkdb/rethinkdb-go.v6"

	"fts-benchmark/internal/api"
	"fts-benchmark/internal/benchmark"
	"fts-benchmark/internal/config"
	"fts-benchmark/internal/infrastructure"
	"fts-benchmark/internal/logging"
	"fts-benchmark/internal/repository"
	"fts-benchmark/pkg/fts"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := logging.NewLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	logger.Infow("Starting benchmark API",
		"rethinkdb", cfg.RethinkDBURL,
		"database", cfg.DBName,
		"executor", cfg.Benchmark.Executor,
		"redis", cfg.RedisURL,
		"stream", cfg.StreamName,
		"server_port", cfg.ServerPort,
		"health_port", cfg.HealthPort,
		"metrics_port", cfg.MetricsPort,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session, err := repository.Connect(ctx, cfg.RethinkDBURL, cfg.DBName, 10, logger)
	if err != nil {
		logger.Fatalw("Failed to connect to RethinkDB", zap.Error(err))
	}
	defer session.Close()

	tables := repository.Indexes{
		cfg.RunTableName:    {"status", "created_at"},
		cfg.ResultTableName: {"run_id", "created_at"},
	}
	if err := repository.SetupDatabase(ctx, session, cfg.DBName, tables, logger); err != nil {
		logger.Fatalw("Failed to setup database", zap.Error(err))
	}

	runs := repository.NewRunRepository(session, cfg.RunTableName)
	results := repository.NewResultRepository(session, cfg.ResultTableName)

	registry := fts.Models()
	factory, err := benchmark.NewFactory(cfg, registry, logger)
	if err != nil {
		logger.Fatalw("Invalid executor", zap.Error(err))
	}
	runner := benchmark.New(factory, registry, logger, benchmark.WithSink(results))
	datasets := infrastructure.NewDatasetReader(logger.Desugar())
	launcher := api.NewBackgroundLauncher(runner, datasets, runs, cfg.Benchmark, logger)

	apiServer := api.NewServer(runs, results, launcher, cfg.ServerPort, logger)
	healthServer := startHealthServer(cfg.HealthPort, session, logger)
	metricsServer := startMetricsServer(cfg.MetricsPort, logger)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- apiServer.Start()
	}()

	waitForShutdown(logger, apiServer, launcher, serverErrors, healthServer, metricsServer)
	logger.Infow("API server stopped")
}

func startHealthServer(addr string, session *r.Session, logger *zap.SugaredLogger) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		if err := repository.Ping(req.Context(), session); err != nil {
			http.Error(w, "RethinkDB: "+err.Error(), http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":    "healthy",
			"service":   "benchmark-api",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
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

func waitForShutdown(logger *zap.SugaredLogger, apiServer *api.Server, launcher *api.BackgroundLauncher,
	serverErrors <-chan error, servers ...*http.Server) {
	osSignals := make(chan os.Signal, 1)
	signal.Notify(osSignals, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("API server error", zap.Error(err))
		}
	case sig := <-osSignals:
		logger.Infow("Received signal, shutting down", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorw("API server shutdown error", zap.Error(err))
	}

	// runs still in flight are recorded as cancelled
	launcher.Shutdown()

	for _, server := range servers {
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Errorw("Server shutdown error", "addr", server.Addr, zap.Error(err))
		}
	}
}
