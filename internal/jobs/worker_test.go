package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmeld/meld/internal/meld"
	"github.com/openmeld/meld/internal/models"
)

type recordingNotifier struct {
	mu        sync.Mutex
	succeeded []string
	failed    []string
}

func (n *recordingNotifier) JobSucceeded(_ context.Context, job *models.Job) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.succeeded = append(n.succeeded, job.ID)
}

func (n *recordingNotifier) JobFailed(_ context.Context, job *models.Job) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, job.ID)
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes map[string]string
}

func (o *recordingObserver) ObserveJob(funcName, status string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.outcomes == nil {
		o.outcomes = map[string]string{}
	}
	o.outcomes[funcName] = status
}

// waitForStatus polls until the job reaches the wanted status.
func waitForStatus(t *testing.T, queue *Queue, id string, want models.JobStatus) *models.Job {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		job, err := queue.FindJob(context.Background(), id)
		require.NoError(t, err)
		if job.Status == want {
			return job
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s stuck in %s, want %s", id, job.Status, want)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestWorkerLifecycle(t *testing.T) {
	queue := setupTestQueue(t)
	logger := zerolog.New(zerolog.NewTestWriter(t))

	cfg := DefaultWorkerConfig()
	cfg.DequeueTimeout = 500 * time.Millisecond
	worker := NewWorker(queue, []string{"default"}, cfg, logger)

	notifier := &recordingNotifier{}
	observer := &recordingObserver{}
	worker.SetNotifier(notifier)
	worker.SetObserver(observer)

	var (
		mu          sync.Mutex
		seenTenant  string
		hadDeadline bool
	)
	worker.RegisterHandler(JobAffiliate, HandlerFunc(func(ctx context.Context, job *models.Job) (*models.JobResult, error) {
		mu.Lock()
		defer mu.Unlock()
		if mctx, ok := meld.CtxFrom(ctx); ok {
			seenTenant = mctx.Tenant
		}
		_, hadDeadline = ctx.Deadline()
		return &models.JobResult{Results: 2}, nil
	}))
	worker.RegisterHandler(JobGenderize, HandlerFunc(func(ctx context.Context, job *models.Job) (*models.JobResult, error) {
		return nil, errors.New("oracle unavailable")
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	good := models.NewJob(JobAffiliate, "acme", "default", nil)
	good.TaskID = "task-1"
	require.NoError(t, queue.Enqueue(context.Background(), good))
	bad := models.NewJob(JobGenderize, "acme", "default", nil)
	bad.TaskID = "task-2"
	require.NoError(t, queue.Enqueue(context.Background(), bad))

	finished := waitForStatus(t, queue, good.ID, models.JobStatusFinished)
	failed := waitForStatus(t, queue, bad.ID, models.JobStatusFailed)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}

	mu.Lock()
	assert.Equal(t, "acme", seenTenant)
	assert.False(t, hadDeadline, "jobs must run without a wall clock by default")
	mu.Unlock()

	assert.NotNil(t, finished.EndedAt)
	assert.NotEmpty(t, finished.Result)
	assert.Equal(t, "oracle unavailable", failed.Error)

	notifier.mu.Lock()
	assert.Equal(t, []string{good.ID}, notifier.succeeded)
	assert.Equal(t, []string{bad.ID}, notifier.failed)
	notifier.mu.Unlock()

	observer.mu.Lock()
	assert.Equal(t, string(models.JobStatusFinished), observer.outcomes[JobAffiliate])
	assert.Equal(t, string(models.JobStatusFailed), observer.outcomes[JobGenderize])
	observer.mu.Unlock()
}

func TestWorkerRejectsUnknownFunction(t *testing.T) {
	queue := setupTestQueue(t)
	logger := zerolog.New(zerolog.NewTestWriter(t))

	cfg := DefaultWorkerConfig()
	cfg.DequeueTimeout = 500 * time.Millisecond
	worker := NewWorker(queue, []string{"default"}, cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	job := models.NewJob(JobImportIdentities, "acme", "default", nil)
	require.NoError(t, queue.Enqueue(context.Background(), job))

	failed := waitForStatus(t, queue, job.ID, models.JobStatusFailed)
	assert.Contains(t, failed.Error, "no handler registered")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}
