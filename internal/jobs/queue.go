// Package jobs provides the asynchronous job runtime: a redis-backed
// queue with per-tenant routing, a single-threaded worker executing
// registered job functions, and introspection over running and
// finished jobs.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/openmeld/meld/internal/meld"
	"github.com/openmeld/meld/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	jobKeyPrefix       = "meld:job:"
	queueKeyPrefix     = "meld:queue:"
	scheduledKeyPrefix = "meld:scheduled:"
	registryKeyPrefix  = "meld:registry:"
)

func jobKey(id string) string          { return jobKeyPrefix + id }
func queueKey(queue string) string     { return queueKeyPrefix + queue }
func scheduledKey(queue string) string { return scheduledKeyPrefix + queue }

func registryKey(queue string, status models.JobStatus) string {
	return registryKeyPrefix + queue + ":" + string(status)
}

// QueueConfig holds configuration for the job queue.
type QueueConfig struct {
	// ResultTTL is how long finished and failed jobs stay readable.
	ResultTTL time.Duration
}

// DefaultQueueConfig returns a QueueConfig with sensible defaults.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		ResultTTL: 7 * 24 * time.Hour,
	}
}

// Queue stores jobs in redis. Each named queue is a list of job ids
// fed to workers with blocking pops; scheduled jobs park in a sorted
// set keyed by due time until MoveDueJobs promotes them.
type Queue struct {
	rdb    *redis.Client
	config QueueConfig
	logger zerolog.Logger
}

// NewQueue creates a job queue over the given redis client.
func NewQueue(rdb *redis.Client, config QueueConfig, logger zerolog.Logger) *Queue {
	return &Queue{
		rdb:    rdb,
		config: config,
		logger: logger.With().Str("component", "job_queue").Logger(),
	}
}

// Ping verifies the redis connection.
func (q *Queue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}

func (q *Queue) saveJob(ctx context.Context, job *models.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	var ttl time.Duration
	if job.Status == models.JobStatusFinished || job.Status == models.JobStatusFailed {
		ttl = q.config.ResultTTL
	}
	if err := q.rdb.Set(ctx, jobKey(job.ID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

func (q *Queue) loadJob(ctx context.Context, id string) (*models.Job, error) {
	payload, err := q.rdb.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, meld.NotFoundf("job %q not found", id)
		}
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	var job models.Job
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job %s: %w", id, err)
	}
	return &job, nil
}

// Enqueue adds a job to the tail of its queue.
func (q *Queue) Enqueue(ctx context.Context, job *models.Job) error {
	job.Status = models.JobStatusQueued
	if err := q.saveJob(ctx, job); err != nil {
		return err
	}
	if err := q.rdb.LPush(ctx, queueKey(job.Queue), job.ID).Err(); err != nil {
		return fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}
	q.logger.Info().
		Str("job_id", job.ID).
		Str("func", job.FuncName).
		Str("queue", job.Queue).
		Str("tenant", job.Tenant).
		Msg("job enqueued")
	return nil
}

// Schedule parks a job until its due time.
func (q *Queue) Schedule(ctx context.Context, job *models.Job, at time.Time) error {
	job.Status = models.JobStatusScheduled
	if err := q.saveJob(ctx, job); err != nil {
		return err
	}
	member := redis.Z{Score: float64(at.UTC().Unix()), Member: job.ID}
	if err := q.rdb.ZAdd(ctx, scheduledKey(job.Queue), member).Err(); err != nil {
		return fmt.Errorf("schedule job %s: %w", job.ID, err)
	}
	q.logger.Info().
		Str("job_id", job.ID).
		Str("queue", job.Queue).
		Time("due", at).
		Msg("job scheduled")
	return nil
}

// MoveDueJobs promotes scheduled jobs whose due time has passed onto
// their queue. It returns how many were promoted.
func (q *Queue) MoveDueJobs(ctx context.Context, queue string) (int, error) {
	now := strconv.FormatInt(time.Now().UTC().Unix(), 10)
	ids, err := q.rdb.ZRangeByScore(ctx, scheduledKey(queue), &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("due jobs for queue %q: %w", queue, err)
	}

	moved := 0
	for _, id := range ids {
		if err := q.rdb.ZRem(ctx, scheduledKey(queue), id).Err(); err != nil {
			return moved, fmt.Errorf("unpark job %s: %w", id, err)
		}
		job, err := q.loadJob(ctx, id)
		if err != nil {
			if meld.IsNotFound(err) {
				continue
			}
			return moved, err
		}
		if err := q.Enqueue(ctx, job); err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}

// Dequeue blocks until a job is available on one of the queues, in
// priority order. It returns nil when the timeout elapses.
func (q *Queue) Dequeue(ctx context.Context, queues []string, timeout time.Duration) (*models.Job, error) {
	keys := make([]string, len(queues))
	for i, name := range queues {
		keys[i] = queueKey(name)
	}
	popped, err := q.rdb.BRPop(ctx, timeout, keys...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("dequeue: %w", err)
	}
	return q.loadJob(ctx, popped[1])
}

// MarkStarted records that a worker picked up the job.
func (q *Queue) MarkStarted(ctx context.Context, job *models.Job) error {
	now := time.Now().UTC()
	job.Status = models.JobStatusStarted
	job.StartedAt = &now
	if err := q.saveJob(ctx, job); err != nil {
		return err
	}
	return q.rdb.SAdd(ctx, registryKey(job.Queue, models.JobStatusStarted), job.ID).Err()
}

// MarkFinished records a successful run and its result.
func (q *Queue) MarkFinished(ctx context.Context, job *models.Job, result *models.JobResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result of job %s: %w", job.ID, err)
	}
	now := time.Now().UTC()
	job.Status = models.JobStatusFinished
	job.EndedAt = &now
	job.Result = payload
	if err := q.saveJob(ctx, job); err != nil {
		return err
	}
	pipe := q.rdb.Pipeline()
	pipe.SRem(ctx, registryKey(job.Queue, models.JobStatusStarted), job.ID)
	pipe.SAdd(ctx, registryKey(job.Queue, models.JobStatusFinished), job.ID)
	_, err = pipe.Exec(ctx)
	return err
}

// MarkFailed records a failed run.
func (q *Queue) MarkFailed(ctx context.Context, job *models.Job, jobErr error) error {
	now := time.Now().UTC()
	job.Status = models.JobStatusFailed
	job.EndedAt = &now
	job.Error = jobErr.Error()
	if err := q.saveJob(ctx, job); err != nil {
		return err
	}
	pipe := q.rdb.Pipeline()
	pipe.SRem(ctx, registryKey(job.Queue, models.JobStatusStarted), job.ID)
	pipe.SAdd(ctx, registryKey(job.Queue, models.JobStatusFailed), job.ID)
	_, err := pipe.Exec(ctx)
	return err
}

// Cancel removes a queued or scheduled job. A running job cannot be
// preempted; it runs to completion.
func (q *Queue) Cancel(ctx context.Context, id string) error {
	job, err := q.loadJob(ctx, id)
	if err != nil {
		return err
	}
	switch job.Status {
	case models.JobStatusQueued:
		if err := q.rdb.LRem(ctx, queueKey(job.Queue), 0, job.ID).Err(); err != nil {
			return fmt.Errorf("cancel job %s: %w", job.ID, err)
		}
	case models.JobStatusScheduled:
		if err := q.rdb.ZRem(ctx, scheduledKey(job.Queue), job.ID).Err(); err != nil {
			return fmt.Errorf("cancel job %s: %w", job.ID, err)
		}
	default:
		return meld.JobErrorf("job %s is %s and cannot be cancelled", job.ID, job.Status)
	}
	if err := q.rdb.Del(ctx, jobKey(job.ID)).Err(); err != nil {
		return fmt.Errorf("cancel job %s: %w", job.ID, err)
	}
	q.logger.Info().Str("job_id", job.ID).Str("queue", job.Queue).Msg("job cancelled")
	return nil
}

// FindJob returns a job by id.
func (q *Queue) FindJob(ctx context.Context, id string) (*models.Job, error) {
	return q.loadJob(ctx, id)
}

// Depth returns how many jobs wait on the queue.
func (q *Queue) Depth(ctx context.Context, queue string) (int64, error) {
	return q.rdb.LLen(ctx, queueKey(queue)).Result()
}

// ListJobs returns the jobs known to a queue: waiting, scheduled,
// started and recently ended. Jobs whose record expired are skipped.
func (q *Queue) ListJobs(ctx context.Context, queue string) ([]*models.Job, error) {
	var ids []string
	waiting, err := q.rdb.LRange(ctx, queueKey(queue), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list queue %q: %w", queue, err)
	}
	ids = append(ids, waiting...)

	parked, err := q.rdb.ZRange(ctx, scheduledKey(queue), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list scheduled %q: %w", queue, err)
	}
	ids = append(ids, parked...)

	for _, status := range []models.JobStatus{models.JobStatusStarted, models.JobStatusFinished, models.JobStatusFailed} {
		members, err := q.rdb.SMembers(ctx, registryKey(queue, status)).Result()
		if err != nil {
			return nil, fmt.Errorf("list %s registry %q: %w", status, queue, err)
		}
		ids = append(ids, members...)
	}

	seen := make(map[string]bool, len(ids))
	jobs := make([]*models.Job, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		job, err := q.loadJob(ctx, id)
		if err != nil {
			if meld.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
