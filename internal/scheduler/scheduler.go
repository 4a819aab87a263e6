// Package scheduler manages the lifecycle of background tasks: one
// persistent ScheduledTask per recurring job, at most one queue job in
// flight per task, and rescheduling driven by completion callbacks.
package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/openmeld/meld/internal/jobs"
	"github.com/openmeld/meld/internal/meld"
	"github.com/openmeld/meld/internal/models"
	"github.com/openmeld/meld/internal/tenant"
	"github.com/rs/zerolog"
)

// Store is the persistence surface for scheduled tasks.
type Store interface {
	CreateScheduledTask(ctx context.Context, t *models.ScheduledTask) error
	GetScheduledTask(ctx context.Context, id uuid.UUID) (*models.ScheduledTask, error)
	UpdateScheduledTask(ctx context.Context, t *models.ScheduledTask) error
	DeleteScheduledTask(ctx context.Context, id uuid.UUID) error
	ListScheduledTasks(ctx context.Context, page, pageSize int) (*models.Paginated[*models.ScheduledTask], error)
}

// Queue is the slice of the job queue the scheduler drives.
type Queue interface {
	Enqueue(ctx context.Context, job *models.Job) error
	Schedule(ctx context.Context, job *models.Job, at time.Time) error
	Cancel(ctx context.Context, id string) error
}

// Service owns the scheduled task verbs and the completion callbacks
// rescheduling periodic tasks. It implements jobs.TaskNotifier.
type Service struct {
	store    func(ctx context.Context) (Store, error)
	storeFor func(tenant string) (Store, error)
	queueFor func(tenant string) (string, error)
	queue    Queue
	logger   zerolog.Logger
}

// NewService creates a scheduler routing through the tenant registry.
func NewService(tenants *tenant.Registry, queue Queue, logger zerolog.Logger) *Service {
	return &Service{
		store: func(ctx context.Context) (Store, error) {
			d, err := tenants.DB(ctx)
			if err != nil {
				return nil, err
			}
			return d, nil
		},
		storeFor: func(name string) (Store, error) {
			d, err := tenants.DBFor(name)
			if err != nil {
				return nil, err
			}
			return d, nil
		},
		queueFor: tenants.QueueFor,
		queue:    queue,
		logger:   logger.With().Str("component", "scheduler").Logger(),
	}
}

// NewServiceWithStore creates a scheduler over a fixed store and queue
// name, for a single-tenant setup.
func NewServiceWithStore(store Store, queueName string, queue Queue, logger zerolog.Logger) *Service {
	return &Service{
		store:    func(context.Context) (Store, error) { return store, nil },
		storeFor: func(string) (Store, error) { return store, nil },
		queueFor: func(string) (string, error) { return queueName, nil },
		queue:    queue,
		logger:   logger.With().Str("component", "scheduler").Logger(),
	}
}

// ScheduleTask registers a task and enqueues its first run. when nil
// runs it immediately; interval nil makes it one-shot. Only the
// self-applying job functions and imports may recur.
func (s *Service) ScheduleTask(ctx context.Context, jobType string, interval *int, args map[string]any, when *time.Time) (*models.ScheduledTask, error) {
	if !jobs.KnownJobs[jobType] {
		return nil, meld.InvalidValuef("unknown job type %q", jobType)
	}
	if interval != nil {
		if *interval <= 0 {
			return nil, meld.InvalidValuef("interval must be positive, got %d", *interval)
		}
		if !jobs.PeriodicJobs[jobType] {
			return nil, meld.InvalidValuef("job type %q cannot run periodically", jobType)
		}
	}

	store, err := s.store(ctx)
	if err != nil {
		return nil, err
	}

	task := models.NewScheduledTask(jobType, interval, args)
	if err := store.CreateScheduledTask(ctx, task); err != nil {
		return nil, err
	}

	at := time.Now().UTC()
	if when != nil {
		at = when.UTC()
	}
	mc, _ := meld.CtxFrom(ctx)
	if err := s.enqueue(ctx, store, task, mc.Tenant, at); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("task_id", task.ID.String()).
		Str("job_type", jobType).
		Time("at", at).
		Msg("task scheduled")
	return task, nil
}

// enqueue creates the queue job for a task run and records it on the
// task. A due time in the past goes straight onto the queue.
func (s *Service) enqueue(ctx context.Context, store Store, task *models.ScheduledTask, tenantName string, at time.Time) error {
	queueName, err := s.queueFor(tenantName)
	if err != nil {
		return err
	}

	job := models.NewJob(task.JobType, tenantName, queueName, task.Args)
	job.TaskID = task.ID.String()

	if at.After(time.Now().UTC()) {
		err = s.queue.Schedule(ctx, job, at)
	} else {
		err = s.queue.Enqueue(ctx, job)
	}
	if err != nil {
		return err
	}

	task.JobID = &job.ID
	task.ScheduledAt = &at
	return store.UpdateScheduledTask(ctx, task)
}

// GetTask returns a scheduled task by id.
func (s *Service) GetTask(ctx context.Context, id uuid.UUID) (*models.ScheduledTask, error) {
	store, err := s.store(ctx)
	if err != nil {
		return nil, err
	}
	return store.GetScheduledTask(ctx, id)
}

// ListTasks returns a page of scheduled tasks.
func (s *Service) ListTasks(ctx context.Context, page, pageSize int) (*models.Paginated[*models.ScheduledTask], error) {
	store, err := s.store(ctx)
	if err != nil {
		return nil, err
	}
	return store.ListScheduledTasks(ctx, page, pageSize)
}

// TaskUpdate carries the mutable task fields. Nil leaves a field
// untouched.
type TaskUpdate struct {
	IntervalMinutes *int
	Args            map[string]any
}

// UpdateTask changes a task's interval or arguments. The running or
// parked job, if any, keeps its original arguments; changes take
// effect on the next reschedule.
func (s *Service) UpdateTask(ctx context.Context, id uuid.UUID, update TaskUpdate) (*models.ScheduledTask, error) {
	store, err := s.store(ctx)
	if err != nil {
		return nil, err
	}
	task, err := store.GetScheduledTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if update.IntervalMinutes != nil {
		if *update.IntervalMinutes <= 0 {
			return nil, meld.InvalidValuef("interval must be positive, got %d", *update.IntervalMinutes)
		}
		if !jobs.PeriodicJobs[task.JobType] {
			return nil, meld.InvalidValuef("job type %q cannot run periodically", task.JobType)
		}
		task.IntervalMinutes = update.IntervalMinutes
	}
	if update.Args != nil {
		task.Args = update.Args
	}
	task.LastModified = time.Now().UTC()
	if err := store.UpdateScheduledTask(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// DeleteTask removes a task, cancelling its parked job when one is
// waiting. A job already running finishes but will not reschedule.
func (s *Service) DeleteTask(ctx context.Context, id uuid.UUID) error {
	store, err := s.store(ctx)
	if err != nil {
		return err
	}
	task, err := store.GetScheduledTask(ctx, id)
	if err != nil {
		return err
	}
	if task.JobID != nil {
		if err := s.queue.Cancel(ctx, *task.JobID); err != nil && !meld.IsNotFound(err) && !meld.IsKind(err, meld.KindJobError) {
			return err
		}
	}
	return store.DeleteScheduledTask(ctx, id)
}
