package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/openmeld/meld/internal/meld"
	"github.com/openmeld/meld/internal/models"
	"github.com/rs/zerolog"
)

// workerUser is the author recorded on audit trails written by job
// functions.
const workerUser = "meld-worker"

// Handler executes jobs of one function name.
type Handler interface {
	// Handle runs the job. Per-item problems go into the result's
	// Errors; a returned error fails the whole job.
	Handle(ctx context.Context, job *models.Job) (*models.JobResult, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, job *models.Job) (*models.JobResult, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, job *models.Job) (*models.JobResult, error) {
	return f(ctx, job)
}

// TaskNotifier observes job completions on behalf of the task
// scheduler.
type TaskNotifier interface {
	JobSucceeded(ctx context.Context, job *models.Job)
	JobFailed(ctx context.Context, job *models.Job)
}

// JobObserver records job outcomes, typically for metrics.
type JobObserver interface {
	ObserveJob(funcName, status string, duration time.Duration)
}

// WorkerConfig holds configuration for a queue worker.
type WorkerConfig struct {
	// DequeueTimeout bounds each blocking pop so shutdown is prompt.
	DequeueTimeout time.Duration
	// MaxJobDuration bounds a job's run time when positive. Zero or
	// negative means no limit; jobs run until their work is done.
	MaxJobDuration time.Duration
}

// DefaultWorkerConfig returns a WorkerConfig with sensible defaults.
// Jobs carry no time limit by default; a large unify or import run
// takes as long as it takes.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		DequeueTimeout: 5 * time.Second,
	}
}

// Worker drains one or more queues, executing jobs one at a time.
// Verbs invoked by a job see the job's tenant in their context, so all
// storage access lands on the right database.
type Worker struct {
	queue    *Queue
	queues   []string
	config   WorkerConfig
	handlers map[string]Handler
	notifier TaskNotifier
	observer JobObserver
	logger   zerolog.Logger
}

// NewWorker creates a worker draining the given queues in priority
// order.
func NewWorker(queue *Queue, queues []string, config WorkerConfig, logger zerolog.Logger) *Worker {
	return &Worker{
		queue:    queue,
		queues:   queues,
		config:   config,
		handlers: make(map[string]Handler),
		logger:   logger.With().Str("component", "worker").Strs("queues", queues).Logger(),
	}
}

// RegisterHandler registers a handler for a job function name.
func (w *Worker) RegisterHandler(funcName string, handler Handler) {
	w.handlers[funcName] = handler
	w.logger.Info().Str("func", funcName).Msg("registered job handler")
}

// SetNotifier installs the completion observer for scheduled tasks.
func (w *Worker) SetNotifier(n TaskNotifier) {
	w.notifier = n
}

// SetObserver installs the outcome observer.
func (w *Worker) SetObserver(o JobObserver) {
	w.observer = o
}

// Run processes jobs until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().Msg("worker started")
	for {
		if err := ctx.Err(); err != nil {
			w.logger.Info().Msg("worker stopping")
			return nil
		}
		job, err := w.queue.Dequeue(ctx, w.queues, w.config.DequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info().Msg("worker stopping")
				return nil
			}
			w.logger.Error().Err(err).Msg("dequeue failed")
			continue
		}
		if job == nil {
			continue
		}
		w.process(ctx, job)
	}
}

func (w *Worker) process(ctx context.Context, job *models.Job) {
	logger := w.logger.With().
		Str("job_id", job.ID).
		Str("func", job.FuncName).
		Str("tenant", job.Tenant).
		Logger()

	if err := w.queue.MarkStarted(ctx, job); err != nil {
		logger.Error().Err(err).Msg("failed to mark job started")
		return
	}
	started := time.Now()

	handler, ok := w.handlers[job.FuncName]
	if !ok {
		err := fmt.Errorf("no handler registered for %q", job.FuncName)
		logger.Error().Err(err).Msg("job rejected")
		w.finish(ctx, job, nil, err, started, logger)
		return
	}

	jobCtx, cancel := context.WithCancel(ctx)
	if w.config.MaxJobDuration > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, w.config.MaxJobDuration)
	}
	jobCtx = meld.WithCtx(jobCtx, meld.Ctx{
		User:   workerUser,
		Tenant: job.Tenant,
		JobID:  job.ID,
	})
	result, err := handler.Handle(jobCtx, job)
	cancel()

	w.finish(ctx, job, result, err, started, logger)
}

func (w *Worker) finish(ctx context.Context, job *models.Job, result *models.JobResult, jobErr error, started time.Time, logger zerolog.Logger) {
	if jobErr != nil {
		if err := w.queue.MarkFailed(ctx, job, jobErr); err != nil {
			logger.Error().Err(err).Msg("failed to record job failure")
		}
		logger.Error().Err(jobErr).Msg("job failed")
		if w.observer != nil {
			w.observer.ObserveJob(job.FuncName, string(models.JobStatusFailed), time.Since(started))
		}
		if w.notifier != nil && job.TaskID != "" {
			w.notifier.JobFailed(ctx, job)
		}
		return
	}

	if result == nil {
		result = &models.JobResult{}
	}
	if err := w.queue.MarkFinished(ctx, job, result); err != nil {
		logger.Error().Err(err).Msg("failed to record job result")
	}
	logger.Info().
		Dur("duration", time.Since(started)).
		Int("errors", len(result.Errors)).
		Msg("job finished")
	if w.observer != nil {
		w.observer.ObserveJob(job.FuncName, string(models.JobStatusFinished), time.Since(started))
	}
	if w.notifier != nil && job.TaskID != "" {
		w.notifier.JobSucceeded(ctx, job)
	}
}
