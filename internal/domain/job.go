package domain

import (
	"time"

	"fts-benchmark/pkg/fts"
)

// Mode selects the evaluation unit and the metric set of a benchmark.
type Mode string

const (
	ModePoint    Mode = "point"
	ModeInterval Mode = "interval"
	ModeAhead    Mode = "ahead"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModePoint, ModeInterval, ModeAhead:
		return true
	}
	return false
}

// JobArgs carries evaluation arguments specific to the benchmark mode.
type JobArgs struct {
	Steps      int     `json:"steps,omitempty"`
	Resolution float64 `json:"resolution,omitempty"`
	Indexer    string  `json:"indexer,omitempty"`
}

// Job is one evaluation of a ModelSpec on one window under one partitioning.
// Jobs hold value snapshots only.
type Job struct {
	ID             string            `json:"id"`
	RunID          string            `json:"run_id"`
	Mode           Mode              `json:"mode"`
	Spec           ModelSpec         `json:"spec"`
	Partition      fts.Partition     `json:"partition"`
	Train          []float64         `json:"train"`
	Test           []float64         `json:"test"`
	Window         int               `json:"window"`
	WindowStart    int               `json:"window_start"`
	Transformation fts.TransformSpec `json:"transformation"`
	Args           JobArgs           `json:"args"`
	SubmittedAt    time.Time         `json:"submitted_at"`
}

// Key is the aggregation key the job's success will be filed under.
func (j Job) Key() ResultKey {
	return KeyFor(j.Spec, j.Partition.Partitions, j.Partition.Scheme)
}

// Snapshot is the descriptive identity of a trained model returned by a worker.
type Snapshot struct {
	Spec        ModelSpec `gorethink:"spec" json:"spec"`
	Partitioner string    `gorethink:"partitioner" json:"partitioner"`
	Partitions  int       `gorethink:"partitions" json:"partitions"`
	Size        int       `gorethink:"size" json:"size"`
}

// Outcome is the payload of a successful job.
type Outcome struct {
	Key      ResultKey          `json:"key"`
	Snapshot Snapshot           `json:"snapshot"`
	Metrics  map[string]float64 `json:"metrics"`
}

// Failure describes why a job produced no result.
type Failure struct {
	Exception string `json:"exception"`
	Output    string `json:"output,omitempty"`
}

func (f *Failure) Error() string {
	return f.Exception
}

// JobResult is either a Success or a Failure, never both.
type JobResult struct {
	JobID    string        `json:"job_id"`
	Window   int           `json:"window"`
	WorkerID string        `json:"worker_id,omitempty"`
	Duration time.Duration `json:"duration"`
	Success  *Outcome      `json:"success,omitempty"`
	Failure  *Failure      `json:"failure,omitempty"`
}

// Succeeded reports whether the result carries an outcome.
func (r JobResult) Succeeded() bool {
	return r.Success != nil && r.Failure == nil
}

// Succeed builds a successful result for job.
func Succeed(job Job, snapshot Snapshot, metrics map[string]float64) JobResult {
	return JobResult{
		JobID:  job.ID,
		Window: job.Window,
		Success: &Outcome{
			Key:      job.Key(),
			Snapshot: snapshot,
			Metrics:  metrics,
		},
	}
}

// Fail builds a failed result for job.
func Fail(job Job, err error, output string) JobResult {
	return JobResult{
		JobID:  job.ID,
		Window: job.Window,
		Failure: &Failure{
			Exception: err.Error(),
			Output:    output,
		},
	}
}
