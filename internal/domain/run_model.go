package domain

import (
	"time"
)

type RunStatus string

const (
	RunStatusPending    RunStatus = "pending"
	RunStatusProcessing RunStatus = "processing"
	RunStatusSuccess    RunStatus = "success"
	RunStatusError      RunStatus = "error"
	RunStatusCancelled  RunStatus = "cancelled"
)

// Run is the persisted record of one benchmark call.
type Run struct {
	ID          string     `gorethink:"id,omitempty" json:"id"`
	Mode        Mode       `gorethink:"mode" json:"mode"`
	Dataset     string     `gorethink:"dataset" json:"dataset"`
	Status      RunStatus  `gorethink:"status" json:"status"`
	Request     RunRequest `gorethink:"request" json:"request"`
	Windows     int        `gorethink:"windows" json:"windows"`
	Dispatched  int        `gorethink:"dispatched" json:"dispatched"`
	Failed      int        `gorethink:"failed" json:"failed"`
	Report      string     `gorethink:"report,omitempty" json:"report,omitempty"`
	Error       string     `gorethink:"error,omitempty" json:"error,omitempty"`
	CreatedAt   time.Time  `gorethink:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `gorethink:"updated_at" json:"updated_at"`
	CompletedAt *time.Time `gorethink:"completed_at,omitempty" json:"completed_at,omitempty"`
}

// RunRequest is the API payload that starts a benchmark run. Zero values fall
// back to the coordinator's configured defaults.
type RunRequest struct {
	Mode            Mode      `gorethink:"mode" json:"mode" validate:"required,oneof=point interval ahead"`
	Dataset         string    `gorethink:"dataset" json:"dataset" validate:"required"`
	Column          string    `gorethink:"column,omitempty" json:"column,omitempty"`
	WindowSize      int       `gorethink:"window_size,omitempty" json:"window_size,omitempty" validate:"omitempty,gt=1"`
	TrainRatio      float64   `gorethink:"train_ratio,omitempty" json:"train_ratio,omitempty" validate:"omitempty,gt=0,lt=1"`
	IncRatio        float64   `gorethink:"inc_ratio,omitempty" json:"inc_ratio,omitempty" validate:"omitempty,gt=0"`
	Models          []string  `gorethink:"models,omitempty" json:"models,omitempty"`
	Partitioners    []string  `gorethink:"partitioners,omitempty" json:"partitioners,omitempty"`
	Partitions      []int     `gorethink:"partitions,omitempty" json:"partitions,omitempty" validate:"omitempty,dive,gt=1"`
	MaxOrder        int       `gorethink:"max_order,omitempty" json:"max_order,omitempty" validate:"omitempty,gt=0"`
	BenchmarkModels []string  `gorethink:"benchmark_models,omitempty" json:"benchmark_models,omitempty"`
	BenchmarkParams [][]int   `gorethink:"benchmark_params,omitempty" json:"benchmark_params,omitempty"`
	Alphas          []float64 `gorethink:"alphas,omitempty" json:"alphas,omitempty" validate:"omitempty,dive,gt=0,lt=1"`
	Synthetic       *bool     `gorethink:"synthetic,omitempty" json:"synthetic,omitempty"`
}

// JobRecord is the persisted outcome of one job.
type JobRecord struct {
	ID          string             `gorethink:"id,omitempty" json:"id"`
	RunID       string             `gorethink:"run_id" json:"run_id"`
	JobID       string             `gorethink:"job_id" json:"job_id"`
	Window      int                `gorethink:"window" json:"window"`
	Key         string             `gorethink:"key,omitempty" json:"key,omitempty"`
	Snapshot    *Snapshot          `gorethink:"snapshot,omitempty" json:"snapshot,omitempty"`
	Metrics     map[string]float64 `gorethink:"metrics,omitempty" json:"metrics,omitempty"`
	Error       string             `gorethink:"error,omitempty" json:"error,omitempty"`
	Output      string             `gorethink:"output,omitempty" json:"output,omitempty"`
	WorkerID    string             `gorethink:"worker_id,omitempty" json:"worker_id,omitempty"`
	DurationSec float64            `gorethink:"duration_sec" json:"duration_sec"`
	CreatedAt   time.Time          `gorethink:"created_at" json:"created_at"`
}

// NewJobRecord flattens a result for storage.
func NewJobRecord(runID string, res JobResult) JobRecord {
	rec := JobRecord{
		RunID:       runID,
		JobID:       res.JobID,
		Window:      res.Window,
		WorkerID:    res.WorkerID,
		DurationSec: res.Duration.Seconds(),
	}
	if res.Success != nil {
		snap := res.Success.Snapshot
		rec.Key = res.Success.Key.String()
		rec.Snapshot = &snap
		rec.Metrics = res.Success.Metrics
	}
	if res.Failure != nil {
		rec.Error = res.Failure.Exception
		rec.Output = res.Failure.Output
	}
	return rec
}
