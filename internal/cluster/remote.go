package cluster

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"fts-benchmark/internal/domain"
	"fts-benchmark/internal/messaging"
)

// DefaultJobTimeout bounds a remote wait whose context has no deadline.
const DefaultJobTimeout = 31 * time.Minute

// RemoteOptions describe the worker nodes a remote cluster relies on.
type RemoteOptions struct {
	// Nodes are host:port addresses of worker health endpoints.
	Nodes []string
	// Depends lists model types every node must serve.
	Depends      []string
	ProbeTimeout time.Duration
	// JobTimeout bounds waits for a result when the caller sets no deadline,
	// so a job lost by its worker fails instead of blocking the batch.
	JobTimeout time.Duration
	Client     *http.Client
}

// Remote publishes jobs on the Redis job queue consumed by worker nodes.
type Remote struct {
	queue      messaging.JobQueue
	jobTimeout time.Duration
	logger     *zap.SugaredLogger
}

// NewRemote checks the queue and every configured node before accepting
// jobs. The cluster owns queue and closes it.
func NewRemote(ctx context.Context, queue messaging.JobQueue, opts RemoteOptions, logger *zap.SugaredLogger) (*Remote, error) {
	if err := queue.HealthCheck(ctx); err != nil {
		return nil, fmt.Errorf("job queue unavailable: %w", err)
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 5 * time.Second
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = DefaultJobTimeout
	}
	for _, node := range opts.Nodes {
		status, err := probe(ctx, opts, node)
		if err != nil {
			return nil, err
		}
		for _, model := range opts.Depends {
			if !slices.Contains(status.Models, model) {
				return nil, fmt.Errorf("node %s does not serve model %s", node, model)
			}
		}
		logger.Infow("Node ready", "node", node, "worker", status.WorkerID, "models", status.Models)
	}
	return &Remote{queue: queue, jobTimeout: opts.JobTimeout, logger: logger}, nil
}

func probe(ctx context.Context, opts RemoteOptions, node string) (domain.NodeStatus, error) {
	var status domain.NodeStatus
	ctx, cancel := context.WithTimeout(ctx, opts.ProbeTimeout)
	defer cancel()

	url := node
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(url, "/")+"/health", nil)
	if err != nil {
		return status, fmt.Errorf("node %s: %w", node, err)
	}
	resp, err := opts.Client.Do(req)
	if err != nil {
		return status, fmt.Errorf("node %s unreachable: %w", node, err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return status, fmt.Errorf("node %s: invalid health response: %w", node, err)
	}
	if resp.StatusCode != http.StatusOK || status.Status != domain.NodeHealthy {
		return status, fmt.Errorf("node %s unhealthy: %s", node, status.Status)
	}
	return status, nil
}

func (r *Remote) Submit(ctx context.Context, job domain.Job) (Handle, error) {
	if err := r.queue.PublishJob(ctx, job); err != nil {
		return nil, err
	}
	return &remoteHandle{queue: r.queue, id: job.ID, window: job.Window, timeout: r.jobTimeout}, nil
}

func (r *Remote) Close() error {
	return r.queue.Close()
}

type remoteHandle struct {
	queue   messaging.JobQueue
	id      string
	window  int
	timeout time.Duration
}

func (h *remoteHandle) JobID() string { return h.id }

func (h *remoteHandle) Window() int { return h.window }

// Wait applies the job timeout unless ctx already carries a deadline.
func (h *remoteHandle) Wait(ctx context.Context) (domain.JobResult, error) {
	if _, ok := ctx.Deadline(); ok {
		return h.queue.AwaitResult(ctx, h.id)
	}

	waitCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	res, err := h.queue.AwaitResult(waitCtx, h.id)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return res, fmt.Errorf("%w: no result from workers after %s", domain.ErrJobTimeout, h.timeout)
	}
	return res, err
}
