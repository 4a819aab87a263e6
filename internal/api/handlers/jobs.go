package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/openmeld/meld/internal/jobs"
	"github.com/openmeld/meld/internal/meld"
	"github.com/openmeld/meld/internal/models"
	"github.com/openmeld/meld/internal/scheduler"
	"github.com/openmeld/meld/internal/tenant"
	"github.com/rs/zerolog"
)

// JobsHandler handles job enqueueing, job inspection and scheduled
// task management.
type JobsHandler struct {
	tenants   *tenant.Registry
	queue     *jobs.Queue
	scheduler *scheduler.Service
	pageSize  int
	logger    zerolog.Logger
}

// NewJobsHandler creates a new JobsHandler.
func NewJobsHandler(tenants *tenant.Registry, queue *jobs.Queue, sched *scheduler.Service, pageSize int, logger zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		tenants:   tenants,
		queue:     queue,
		scheduler: sched,
		pageSize:  pageSize,
		logger:    logger.With().Str("component", "jobs_handler").Logger(),
	}
}

// RegisterRoutes registers job and task routes.
func (h *JobsHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/jobs", h.Enqueue)
	r.GET("/jobs", h.List)
	r.GET("/jobs/:id", h.Get)
	r.DELETE("/jobs/:id", h.Cancel)

	r.POST("/tasks", h.ScheduleTask)
	r.GET("/tasks", h.ListTasks)
	r.GET("/tasks/:id", h.GetTask)
	r.PATCH("/tasks/:id", h.UpdateTask)
	r.DELETE("/tasks/:id", h.DeleteTask)
}

type enqueueRequest struct {
	FuncName string         `json:"func_name" binding:"required"`
	Args     map[string]any `json:"args"`
}

// Enqueue submits a job to the caller's tenant queue.
// POST /v1/jobs
func (h *JobsHandler) Enqueue(c *gin.Context) {
	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, ok := jobs.KnownJobs[req.FuncName]; !ok {
		fail(c, h.logger, meld.InvalidValuef("unknown job %q", req.FuncName))
		return
	}

	ctx := c.Request.Context()
	mctx, ok := meld.CtxFrom(ctx)
	if !ok || mctx.Tenant == "" {
		fail(c, h.logger, meld.JobErrorf("no tenant in scope"))
		return
	}
	queueName, err := h.tenants.QueueFor(mctx.Tenant)
	if err != nil {
		fail(c, h.logger, err)
		return
	}

	job := models.NewJob(req.FuncName, mctx.Tenant, queueName, req.Args)
	if err := h.queue.Enqueue(ctx, job); err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

// List returns every job parked on the caller's tenant queue.
// GET /v1/jobs
func (h *JobsHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	mctx, ok := meld.CtxFrom(ctx)
	if !ok || mctx.Tenant == "" {
		fail(c, h.logger, meld.JobErrorf("no tenant in scope"))
		return
	}
	queueName, err := h.tenants.QueueFor(mctx.Tenant)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	list, err := h.queue.ListJobs(ctx, queueName)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	depth, err := h.queue.Depth(ctx, queueName)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"queue": queueName, "depth": depth, "jobs": list})
}

// Get returns a single job by id.
// GET /v1/jobs/:id
func (h *JobsHandler) Get(c *gin.Context) {
	job, err := h.queue.FindJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// Cancel removes a queued or scheduled job. Running jobs cannot be
// cancelled.
// DELETE /v1/jobs/:id
func (h *JobsHandler) Cancel(c *gin.Context) {
	if err := h.queue.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type scheduleTaskRequest struct {
	JobType         string         `json:"job_type" binding:"required"`
	IntervalMinutes *int           `json:"interval_minutes"`
	Args            map[string]any `json:"args"`
	When            *time.Time     `json:"when"`
}

// ScheduleTask registers a one-shot or periodic task.
// POST /v1/tasks
func (h *JobsHandler) ScheduleTask(c *gin.Context) {
	var req scheduleTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	task, err := h.scheduler.ScheduleTask(c.Request.Context(), req.JobType, req.IntervalMinutes, req.Args, req.When)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

// ListTasks returns a page of scheduled tasks.
// GET /v1/tasks
func (h *JobsHandler) ListTasks(c *gin.Context) {
	page, pageSize, err := pageParams(c, h.pageSize)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	result, err := h.scheduler.ListTasks(c.Request.Context(), page, pageSize)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetTask returns a single scheduled task.
// GET /v1/tasks/:id
func (h *JobsHandler) GetTask(c *gin.Context) {
	id, err := taskID(c)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	task, err := h.scheduler.GetTask(c.Request.Context(), id)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

type updateTaskRequest struct {
	IntervalMinutes *int           `json:"interval_minutes"`
	Args            map[string]any `json:"args"`
}

// UpdateTask changes the interval or arguments of a scheduled task.
// PATCH /v1/tasks/:id
func (h *JobsHandler) UpdateTask(c *gin.Context) {
	id, err := taskID(c)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	task, err := h.scheduler.UpdateTask(c.Request.Context(), id, scheduler.TaskUpdate{
		IntervalMinutes: req.IntervalMinutes,
		Args:            req.Args,
	})
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// DeleteTask removes a scheduled task and cancels its parked job.
// DELETE /v1/tasks/:id
func (h *JobsHandler) DeleteTask(c *gin.Context) {
	id, err := taskID(c)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	if err := h.scheduler.DeleteTask(c.Request.Context(), id); err != nil {
		fail(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func taskID(c *gin.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, meld.Errorf(meld.KindInvalidRequest, "invalid task id %q", c.Param("id"))
	}
	return id, nil
}
