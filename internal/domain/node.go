package domain

// NodeStatus is the health document a worker node serves on /health.
type NodeStatus struct {
	Status   string         `json:"status"`
	WorkerID string         `json:"worker_id"`
	Models   []string       `json:"models"`
	Stats    map[string]any `json:"stats,omitempty"`
}

const NodeHealthy = "healthy"
