package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fts-benchmark/internal/benchmark"
	"fts-benchmark/internal/config"
	"fts-benchmark/internal/domain"
	"fts-benchmark/internal/infrastructure"
	"fts-benchmark/internal/logging"
	"fts-benchmark/pkg/fts"
)

// viperFlags maps persistent flags to configuration keys.
var viperFlags = map[string]string{
	"executor":           "benchmark.executor",
	"window-size":        "benchmark.window_size",
	"train-ratio":        "benchmark.train_ratio",
	"inc-ratio":          "benchmark.inc_ratio",
	"models":             "benchmark.models",
	"partitioners":       "benchmark.partitioners",
	"partitions":         "benchmark.partitions",
	"max-order":          "benchmark.max_order",
	"transformation":     "benchmark.transformation",
	"transformation-lag": "benchmark.transformation_lag",
	"indexer":            "benchmark.indexer",
	"dump":               "benchmark.dump",
	"benchmark-models":   "benchmark.benchmark_models",
	"alphas":             "benchmark.alphas",
	"steps":              "benchmark.steps",
	"resolution":         "benchmark.resolution",
	"save":               "benchmark.save",
	"file":               "benchmark.file",
	"synthetic":          "benchmark.synthetic",
	"nodes":              "benchmark.nodes",
	"depends":            "benchmark.depends",
	"job-timeout":        "benchmark.job_timeout",
	"workers":            "worker_count",
	"redis-url":          "redis_url",
	"log-level":          "log_level",
}

type datasetOptions struct {
	name     string
	column   string
	cacheDir string
}

func NewRootCommand() *cobra.Command {
	var ds datasetOptions

	command := &cobra.Command{
		Use:   "ftsbench",
		Short: "Sliding-window benchmarks of fuzzy time series models",
		Long: `ftsbench slides a window over a time series, fits every model of the
pool on each training split and reports accuracy metrics per model
configuration, aggregated over all windows.`,
		SilenceUsage: true,
	}

	flags := command.PersistentFlags()
	flags.StringVar(&ds.name, "dataset", "", "Dataset file path or built-in name ("+strings.Join(infrastructure.Builtin(), ", ")+")")
	flags.StringVar(&ds.column, "column", "", "Column holding the series, by name or index")
	flags.StringVar(&ds.cacheDir, "cache-dir", "", "Directory caching downloaded built-in datasets")

	flags.String("executor", benchmark.ExecutorLocal, "Where jobs run: local or redis")
	flags.Int("window-size", 1000, "Window length in points")
	flags.Float64("train-ratio", 0.8, "Fraction of each window used for training")
	flags.Float64("inc-ratio", 0.1, "Window increment as a fraction of the window size")
	flags.StringSlice("models", nil, "FTS model types")
	flags.StringSlice("partitioners", []string{"Grid"}, "Partitioning schemes")
	flags.IntSlice("partitions", []int{10}, "Partition counts")
	flags.Int("max-order", 3, "Highest order of high-order models")
	flags.String("transformation", "none", "Series transformation: none or diff")
	flags.Int("transformation-lag", 1, "Lag of the diff transformation")
	flags.String("indexer", "", "Seasonal indexer passed to the models")
	flags.Bool("dump", false, "Log every dispatched job")
	flags.StringSlice("benchmark-models", nil, "Baseline model types")
	flags.StringSlice("alphas", nil, "Interval significance levels")
	flags.Int("steps", 10, "Forecast horizon of ahead runs")
	flags.Float64("resolution", 0, "Bin width of ahead distributions, 0 derives it from the data")
	flags.Bool("save", false, "Write the report to --file instead of stdout")
	flags.String("file", "benchmark.csv", "Report file")
	flags.Bool("synthetic", false, "Report mean and standard deviation instead of raw values")
	flags.StringSlice("nodes", nil, "Worker health endpoints checked before a redis run")
	flags.StringSlice("depends", nil, "Model types every worker node must serve")
	flags.Duration("job-timeout", 0, "Time to wait for each job result, 0 waits forever")
	flags.Int("workers", 4, "Local executor goroutines")
	flags.String("redis-url", "localhost:6379", "Redis address of the redis executor")
	flags.String("log-level", "info", "Log level")

	for flag, key := range viperFlags {
		_ = viper.BindPFlag(key, flags.Lookup(flag))
	}

	command.AddCommand(
		newRunCommand(domain.ModePoint, "Benchmark one-step point forecasts", &ds),
		newRunCommand(domain.ModeInterval, "Benchmark one-step prediction intervals", &ds),
		newRunCommand(domain.ModeAhead, "Benchmark multi-step interval and distribution forecasts", &ds),
		newModelsCommand(),
		newDatasetsCommand(),
	)
	return command
}

func newRunCommand(mode domain.Mode, short string, ds *datasetOptions) *cobra.Command {
	return &cobra.Command{
		Use:   string(mode),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if ds.name == "" {
				return errors.New("--dataset is required")
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := logging.NewStderrLogger(cfg.LogLevel)
			defer func() { _ = logger.Sync() }()

			var opts []infrastructure.ReaderOption
			if ds.cacheDir != "" {
				opts = append(opts, infrastructure.WithCacheDir(ds.cacheDir))
			}
			data, err := infrastructure.NewDatasetReader(logger.Desugar(), opts...).Load(cmd.Context(), ds.name, ds.column)
			if err != nil {
				return err
			}
			logger.Infow("Dataset loaded", "dataset", data.Name, "column", data.Column, "points", data.Len())

			registry := fts.Models()
			factory, err := benchmark.NewFactory(cfg, registry, logger)
			if err != nil {
				return err
			}
			res, err := benchmark.New(factory, registry, logger).Run(cmd.Context(), mode, data.Values, cfg.Benchmark)
			if res != nil {
				for _, f := range res.Failures {
					logger.Warnw("Job failed", "job", f.JobID, "window", f.Window, "error", f.Exception)
				}
				if !cfg.Benchmark.Save {
					if werr := res.Report.WriteCSV(cmd.OutOrStdout()); werr != nil {
						return werr
					}
				}
			}
			return err
		},
	}
}

func newModelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the available model types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry := fts.Models()
			for _, name := range registry.Types() {
				d, err := registry.Lookup(name)
				if err != nil {
					return err
				}
				kind := "fts"
				if d.BenchmarkOnly() {
					kind = "benchmark"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\thigh-order=%t\tmin-order=%d\n", name, kind, d.IsHighOrder(), d.MinimumOrder())
			}
			return nil
		},
	}
}

func newDatasetsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "datasets",
		Short: "List the built-in datasets",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			for _, name := range infrastructure.Builtin() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	}
}
