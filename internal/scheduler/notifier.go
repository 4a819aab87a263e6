package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/openmeld/meld/internal/jobs"
	"github.com/openmeld/meld/internal/models"
)

// JobSucceeded records a successful run and reschedules periodic
// tasks. Part of the jobs.TaskNotifier contract.
func (s *Service) JobSucceeded(ctx context.Context, job *models.Job) {
	s.complete(ctx, job, false)
}

// JobFailed records a failed run. Periodic tasks reschedule anyway, so
// a transient failure does not silence the task forever.
func (s *Service) JobFailed(ctx context.Context, job *models.Job) {
	s.complete(ctx, job, true)
}

func (s *Service) complete(ctx context.Context, job *models.Job, failed bool) {
	logger := s.logger.With().
		Str("task_id", job.TaskID).
		Str("job_id", job.ID).
		Str("tenant", job.Tenant).
		Logger()

	id, err := uuid.Parse(job.TaskID)
	if err != nil {
		logger.Error().Err(err).Msg("job carries a malformed task id")
		return
	}
	store, err := s.storeFor(job.Tenant)
	if err != nil {
		logger.Error().Err(err).Msg("no store for task tenant")
		return
	}
	task, err := store.GetScheduledTask(ctx, id)
	if err != nil {
		// Deleted while its job ran; nothing left to reschedule.
		logger.Warn().Err(err).Msg("task vanished before completion")
		return
	}

	now := time.Now().UTC()
	task.Executions++
	task.Failed = failed
	if failed {
		task.Failures++
	}
	task.LastExecution = &now
	task.LastModified = now

	if !task.IsPeriodic() {
		task.JobID = nil
		task.ScheduledAt = nil
		if err := store.UpdateScheduledTask(ctx, task); err != nil {
			logger.Error().Err(err).Msg("failed to close out task")
		}
		return
	}

	s.rewriteArgs(task)

	next := now.Add(time.Duration(*task.IntervalMinutes) * time.Minute)
	if err := s.enqueue(ctx, store, task, job.Tenant, next); err != nil {
		logger.Error().Err(err).Msg("failed to reschedule task")
		return
	}
	logger.Info().Bool("failed", failed).Time("next", next).Msg("task rescheduled")
}

// rewriteArgs advances the canonical next arguments stored on the
// task. Imports move their update_from watermark to the run they just
// finished, so each run only fetches what changed since the last one.
func (s *Service) rewriteArgs(task *models.ScheduledTask) {
	if task.JobType != jobs.JobImportIdentities || task.ScheduledAt == nil {
		return
	}
	if task.Args == nil {
		task.Args = map[string]any{}
	}
	params, _ := task.Args["params"].(map[string]any)
	if params == nil {
		params = map[string]any{}
	}
	params["update_from"] = task.ScheduledAt.UTC().Format(time.RFC3339)
	task.Args["params"] = params
}
