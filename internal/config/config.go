package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"fts-benchmark/internal/domain"
)

type Config struct {
	// Redis
	RedisURL      string        `mapstructure:"redis_url"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	StreamName    string        `mapstructure:"redis_stream"`
	ConsumerGroup string        `mapstructure:"redis_consumer_group"`
	ResultTTL     time.Duration `mapstructure:"redis_result_ttl"`

	// RethinkDB
	RethinkDBURL    string `mapstructure:"rethinkdb_url"`
	DBName          string `mapstructure:"db_name"`
	RunTableName    string `mapstructure:"run_table_name"`
	ResultTableName string `mapstructure:"result_table_name"`

	// Server
	ServerPort  string `mapstructure:"server_port"`
	HealthPort  string `mapstructure:"health_port"`
	MetricsPort string `mapstructure:"metrics_port"`

	// Worker
	WorkerCount int           `mapstructure:"worker_count"`
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`

	LogLevel string `mapstructure:"log_level"`

	Benchmark BenchmarkConfig `mapstructure:"benchmark"`
}

// BenchmarkConfig holds the options of one benchmark run.
type BenchmarkConfig struct {
	Executor          string        `mapstructure:"executor" validate:"oneof=local redis"`
	WindowSize        int           `mapstructure:"window_size" validate:"gt=1"`
	TrainRatio        float64       `mapstructure:"train_ratio" validate:"gt=0,lt=1"`
	IncRatio          float64       `mapstructure:"inc_ratio" validate:"gt=0"`
	Models            []string      `mapstructure:"models"`
	Partitioners      []string      `mapstructure:"partitioners" validate:"min=1"`
	Partitions        []int         `mapstructure:"partitions" validate:"min=1,dive,gt=1"`
	MaxOrder          int           `mapstructure:"max_order" validate:"gte=1"`
	Transformation    string        `mapstructure:"transformation" validate:"oneof=none diff"`
	TransformationLag int           `mapstructure:"transformation_lag" validate:"gte=0"`
	Indexer           string        `mapstructure:"indexer"`
	Dump              bool          `mapstructure:"dump"`
	BenchmarkModels   []string      `mapstructure:"benchmark_models"`
	BenchmarkParams   [][]int       `mapstructure:"benchmark_params"`
	Alphas            []float64     `mapstructure:"alphas" validate:"dive,gt=0,lt=1"`
	Steps             int           `mapstructure:"steps" validate:"gte=0"`
	Resolution        float64       `mapstructure:"resolution" validate:"gte=0"`
	Save              bool          `mapstructure:"save"`
	File              string        `mapstructure:"file" validate:"required_if=Save true"`
	Synthetic         bool          `mapstructure:"synthetic"`
	Nodes             []string      `mapstructure:"nodes"`
	Depends           []string      `mapstructure:"depends"`
	JobTimeout        time.Duration `mapstructure:"job_timeout" validate:"gte=0"`
}

var validate = validator.New()

// Validate reports the first invalid field as a ConfigError.
func (b BenchmarkConfig) Validate() error {
	err := validate.Struct(b)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &domain.ConfigError{
			Field:  fe.Namespace(),
			Reason: fmt.Sprintf("failed %q constraint (value %v)", fe.Tag(), fe.Value()),
		}
	}
	return &domain.ConfigError{Err: err}
}

// Apply overlays the non-zero fields of an API run request.
func (b BenchmarkConfig) Apply(req domain.RunRequest) BenchmarkConfig {
	if req.WindowSize > 0 {
		b.WindowSize = req.WindowSize
	}
	if req.TrainRatio > 0 {
		b.TrainRatio = req.TrainRatio
	}
	if req.IncRatio > 0 {
		b.IncRatio = req.IncRatio
	}
	if len(req.Models) > 0 {
		b.Models = req.Models
	}
	if len(req.Partitioners) > 0 {
		b.Partitioners = req.Partitioners
	}
	if len(req.Partitions) > 0 {
		b.Partitions = req.Partitions
	}
	if req.MaxOrder > 0 {
		b.MaxOrder = req.MaxOrder
	}
	if len(req.BenchmarkModels) > 0 {
		b.BenchmarkModels = req.BenchmarkModels
		b.BenchmarkParams = req.BenchmarkParams
	}
	if len(req.Alphas) > 0 {
		b.Alphas = req.Alphas
	}
	if req.Synthetic != nil {
		b.Synthetic = *req.Synthetic
	}
	// reports of API runs are persisted, not written to the coordinator's disk
	b.Save = false
	return b
}

func setDefaults() {
	viper.SetDefault("redis_url", "localhost:6379")
	viper.SetDefault("redis_password", "")
	viper.SetDefault("redis_db", 0)
	viper.SetDefault("redis_stream", "benchmark-jobs")
	viper.SetDefault("redis_consumer_group", "benchmark-workers")
	viper.SetDefault("redis_result_ttl", time.Hour)
	viper.SetDefault("rethinkdb_url", "localhost:28015")
	viper.SetDefault("db_name", "fts_benchmark")
	viper.SetDefault("run_table_name", "benchmark_runs")
	viper.SetDefault("result_table_name", "job_results")
	viper.SetDefault("server_port", ":8081")
	viper.SetDefault("health_port", ":8082")
	viper.SetDefault("metrics_port", ":9090")
	viper.SetDefault("max_retries", 3)
	viper.SetDefault("worker_count", 4)
	viper.SetDefault("task_timeout", 30*time.Minute)
	viper.SetDefault("log_level", "info")

	viper.SetDefault("benchmark.executor", "local")
	viper.SetDefault("benchmark.window_size", 1000)
	viper.SetDefault("benchmark.train_ratio", 0.8)
	viper.SetDefault("benchmark.inc_ratio", 0.1)
	viper.SetDefault("benchmark.models", []string{})
	viper.SetDefault("benchmark.partitioners", []string{"Grid"})
	viper.SetDefault("benchmark.partitions", []int{10})
	viper.SetDefault("benchmark.max_order", 3)
	viper.SetDefault("benchmark.transformation", "none")
	viper.SetDefault("benchmark.transformation_lag", 1)
	viper.SetDefault("benchmark.indexer", "")
	viper.SetDefault("benchmark.dump", false)
	viper.SetDefault("benchmark.benchmark_models", []string{})
	viper.SetDefault("benchmark.benchmark_params", [][]int{})
	viper.SetDefault("benchmark.alphas", []float64{})
	viper.SetDefault("benchmark.steps", 10)
	viper.SetDefault("benchmark.resolution", 0.0)
	viper.SetDefault("benchmark.save", false)
	viper.SetDefault("benchmark.file", "benchmark.csv")
	viper.SetDefault("benchmark.synthetic", false)
	viper.SetDefault("benchmark.nodes", []string{})
	viper.SetDefault("benchmark.depends", []string{})
	viper.SetDefault("benchmark.job_timeout", time.Duration(0))

	viper.RegisterAlias("benchmark.sintetic", "benchmark.synthetic")
}

func Load() (*Config, error) {
	setDefaults()

	// optional config file
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/ftsbench/")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	return &cfg, nil
}
