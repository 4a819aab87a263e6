package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a queued job.
type JobStatus string

const (
	// JobStatusQueued indicates the job is waiting in its queue.
	JobStatusQueued JobStatus = "queued"
	// JobStatusScheduled indicates the job is parked until its due time.
	JobStatusScheduled JobStatus = "scheduled"
	// JobStatusStarted indicates a worker is executing the job.
	JobStatusStarted JobStatus = "started"
	// JobStatusFinished indicates the job completed successfully.
	JobStatusFinished JobStatus = "finished"
	// JobStatusFailed indicates the job raised an error.
	JobStatusFailed JobStatus = "failed"
)

// Job is a unit of background work routed through a tenant's queue.
type Job struct {
	ID       string         `json:"id"`
	FuncName string         `json:"func_name"`
	Tenant   string         `json:"tenant"`
	Queue    string         `json:"queue"`
	Args     map[string]any `json:"args,omitempty"`

	// TaskID links the job back to the scheduled task that enqueued it,
	// when there is one.
	TaskID string `json:"task_id,omitempty"`

	Status     JobStatus       `json:"status"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	EndedAt    *time.Time      `json:"ended_at,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// NewJob creates a queued job for the given function and tenant.
func NewJob(funcName, tenant, queue string, args map[string]any) *Job {
	return &Job{
		ID:         uuid.NewString(),
		FuncName:   funcName,
		Tenant:     tenant,
		Queue:      queue,
		Args:       args,
		Status:     JobStatusQueued,
		EnqueuedAt: time.Now().UTC(),
	}
}

// JobResult is the shape produced by long-running job functions. Jobs
// collect per-item errors and keep going; only infrastructure failures
// fail the whole job.
type JobResult struct {
	Results any      `json:"results"`
	Errors  []string `json:"errors,omitempty"`
}
