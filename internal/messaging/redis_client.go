package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"fts-benchmark/internal/domain"
)

const (
	DefaultStreamName    = "benchmark-jobs"
	DefaultConsumerGroup = "benchmark-workers"
	DefaultResultPrefix  = "benchmark-results:"
	DefaultResultTTL     = time.Hour
	DefaultClaimMinIdle  = 10 * time.Minute

	pollInterval  = 5 * time.Second
	claimInterval = 30 * time.Second
	claimBatch    = 10
)

// JobHandler processes one delivered job. ack removes the job from the
// pending entries list; a job that is never acked is redelivered to a
// consumer once it has been idle for the claim period.
type JobHandler func(ctx context.Context, job domain.Job, ack func())

// JobQueue carries jobs from the coordinator to worker nodes and results back.
type JobQueue interface {
	PublishJob(ctx context.Context, job domain.Job) error
	// SubscribeToJobs starts consuming in the background until ctx is done.
	SubscribeToJobs(ctx context.Context, handler JobHandler) error
	PublishResult(ctx context.Context, result domain.JobResult) error
	// AwaitResult blocks until the result of jobID arrives or ctx is done.
	AwaitResult(ctx context.Context, jobID string) (domain.JobResult, error)
	HealthCheck(ctx context.Context) error
	Close() error
}

type Options struct {
	Addr          string
	Password      string
	DB            int
	StreamName    string
	ConsumerGroup string
	ConsumerName  string
	ResultTTL     time.Duration
	// ClaimMinIdle is how long a delivered job may stay unacked before
	// another consumer claims it.
	ClaimMinIdle time.Duration
}

type redisClient struct {
	client        redis.UniversalClient
	streamName    string
	consumerGroup string
	consumerName  string
	resultTTL     time.Duration
	claimMinIdle  time.Duration
	logger        *zap.SugaredLogger
}

func NewRedisClient(ctx context.Context, opts Options, logger *zap.SugaredLogger) (JobQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     20,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c := newRedisClient(client, opts, logger)
	if err := c.createConsumerGroup(pingCtx); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Infow("Redis client initialized", "stream", c.streamName, "group", c.consumerGroup)
	return c, nil
}

func newRedisClient(client redis.UniversalClient, opts Options, logger *zap.SugaredLogger) *redisClient {
	c := &redisClient{
		client:        client,
		streamName:    opts.StreamName,
		consumerGroup: opts.ConsumerGroup,
		consumerName:  opts.ConsumerName,
		resultTTL:     opts.ResultTTL,
		claimMinIdle:  opts.ClaimMinIdle,
		logger:        logger,
	}
	if c.streamName == "" {
		c.streamName = DefaultStreamName
	}
	if c.consumerGroup == "" {
		c.consumerGroup = DefaultConsumerGroup
	}
	if c.consumerName == "" {
		c.consumerName = fmt.Sprintf("consumer-%d", time.Now().UnixNano())
	}
	if c.resultTTL <= 0 {
		c.resultTTL = DefaultResultTTL
	}
	if c.claimMinIdle <= 0 {
		c.claimMinIdle = DefaultClaimMinIdle
	}
	return c
}

func (c *redisClient) createConsumerGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.streamName, c.consumerGroup, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	if err == nil {
		c.logger.Infow("Created consumer group", "group", c.consumerGroup, "stream", c.streamName)
	} else {
		c.logger.Debugw("Consumer group already exists", "group", c.consumerGroup)
	}
	return nil
}

func (c *redisClient) PublishJob(ctx context.Context, job domain.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	id, err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.streamName,
		Values: map[string]interface{}{
			"job_id":  job.ID,
			"data":    string(data),
			"created": time.Now().UnixNano(),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to Redis Stream: %w", err)
	}

	c.logger.Debugw("Job published", "job", job.ID, "entry", id)
	return nil
}

func (c *redisClient) SubscribeToJobs(ctx context.Context, handler JobHandler) error {
	c.logger.Infow("Consumer started listening for jobs", "consumer", c.consumerName)

	go c.processMessages(ctx, handler)

	return nil
}

func (c *redisClient) processMessages(ctx context.Context, handler JobHandler) {
	var lastClaim time.Time
	for {
		select {
		case <-ctx.Done():
			c.logger.Infow("Consumer stopped", "consumer", c.consumerName)
			return
		default:
		}

		if time.Since(lastClaim) >= claimInterval {
			c.claimStale(ctx, handler)
			lastClaim = time.Now()
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.consumerGroup,
			Consumer: c.consumerName,
			Streams:  []string{c.streamName, ">"},
			Count:    1,
			Block:    pollInterval,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			c.logger.Errorw("Error reading from Redis Stream", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		for _, stream := range streams {
			for _, message := range stream.Messages {
				c.processMessage(ctx, message, handler)
			}
		}
	}
}

// claimStale takes over jobs left pending by consumers that crashed, were
// stopped mid-job or failed to publish a result.
func (c *redisClient) claimStale(ctx context.Context, handler JobHandler) {
	start := "0-0"
	for {
		messages, next, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   c.streamName,
			Group:    c.consumerGroup,
			Consumer: c.consumerName,
			MinIdle:  c.claimMinIdle,
			Start:    start,
			Count:    claimBatch,
		}).Result()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Errorw("Failed to claim pending jobs", zap.Error(err))
			}
			return
		}

		for _, message := range messages {
			c.logger.Warnw("Claimed stale job", "consumer", c.consumerName, "entry", message.ID)
			c.processMessage(ctx, message, handler)
		}
		if next == "" || next == "0-0" || ctx.Err() != nil {
			return
		}
		start = next
	}
}

func (c *redisClient) processMessage(ctx context.Context, message redis.XMessage, handler JobHandler) {
	job, err := decodeJob(message)
	if err != nil {
		// undecodable entries are acked so they are not redelivered forever
		c.logger.Errorw("Dropping malformed job message", "entry", message.ID, zap.Error(err))
		c.ack(ctx, message.ID)
		return
	}

	c.logger.Debugw("Processing job", "consumer", c.consumerName, "job", job.ID, "entry", message.ID)
	handler(ctx, job, func() { c.ack(context.WithoutCancel(ctx), message.ID) })
}

func (c *redisClient) ack(ctx context.Context, entryID string) {
	if err := c.client.XAck(ctx, c.streamName, c.consumerGroup, entryID).Err(); err != nil {
		c.logger.Errorw("Failed to ACK message", "entry", entryID, zap.Error(err))
	}
}

func decodeJob(message redis.XMessage) (domain.Job, error) {
	var job domain.Job
	raw, ok := message.Values["data"].(string)
	if !ok {
		return job, fmt.Errorf("message %s has no data field", message.ID)
	}
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return job, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return job, nil
}

func (c *redisClient) resultKey(jobID string) string {
	return DefaultResultPrefix + jobID
}

func (c *redisClient) PublishResult(ctx context.Context, result domain.JobResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	key := c.resultKey(result.JobID)
	if err := c.client.LPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("failed to publish result: %w", err)
	}
	if err := c.client.Expire(ctx, key, c.resultTTL).Err(); err != nil {
		return fmt.Errorf("failed to set result expiry: %w", err)
	}
	return nil
}

func (c *redisClient) AwaitResult(ctx context.Context, jobID string) (domain.JobResult, error) {
	key := c.resultKey(jobID)
	for {
		if err := ctx.Err(); err != nil {
			return domain.JobResult{}, err
		}

		wait := pollInterval
		if deadline, ok := ctx.Deadline(); ok {
			wait = min(wait, time.Until(deadline))
		}
		if wait < time.Millisecond {
			wait = time.Millisecond
		}

		values, err := c.client.BLPop(ctx, wait, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return domain.JobResult{}, ctxErr
			}
			return domain.JobResult{}, fmt.Errorf("failed to read result of job %s: %w", jobID, err)
		}

		var result domain.JobResult
		if err := json.Unmarshal([]byte(values[1]), &result); err != nil {
			return domain.JobResult{}, fmt.Errorf("failed to unmarshal result: %w", err)
		}
		return result, nil
	}
}

func (c *redisClient) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}

	_, err := c.client.XInfoStream(ctx, c.streamName).Result()
	if err != nil && !strings.Contains(err.Error(), "no such key") {
		return fmt.Errorf("redis stream check failed: %w", err)
	}

	return nil
}

func (c *redisClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
