package models

import (
	"time"

	"github.com/google/uuid"
)

// ScheduledTask is the persistent record of a one-shot or periodic
// background job. A task points to at most one live queue job at a
// time; the follow-up enqueue happens only in the completion callback
// of the previous run.
type ScheduledTask struct {
	ID      uuid.UUID      `json:"id"`
	JobType string         `json:"job_type"`
	Args    map[string]any `json:"args,omitempty"`

	// IntervalMinutes is nil for one-shot tasks.
	IntervalMinutes *int `json:"interval_minutes,omitempty"`

	// JobID and ScheduledAt identify the queue job currently in flight,
	// if any.
	JobID       *string    `json:"job_id,omitempty"`
	ScheduledAt *time.Time `json:"scheduled_datetime,omitempty"`

	LastExecution *time.Time `json:"last_execution,omitempty"`
	Executions    int        `json:"executions"`
	Failures      int        `json:"failures"`
	Failed        bool       `json:"failed"`

	CreatedAt    time.Time `json:"created_at"`
	LastModified time.Time `json:"last_modified"`
}

// NewScheduledTask creates a task for the given job type. interval is
// nil for one-shot tasks.
func NewScheduledTask(jobType string, interval *int, args map[string]any) *ScheduledTask {
	now := time.Now().UTC()
	return &ScheduledTask{
		ID:              uuid.New(),
		JobType:         jobType,
		Args:            args,
		IntervalMinutes: interval,
		CreatedAt:       now,
		LastModified:    now,
	}
}

// IsPeriodic reports whether the task reschedules itself after a run.
func (t *ScheduledTask) IsPeriodic() bool { return t.IntervalMinutes != nil }
