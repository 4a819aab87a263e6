package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/openmeld/meld/internal/meld"
	"github.com/openmeld/meld/internal/models"
)

const taskColumns = `id, job_type, args, interval_minutes, job_id, scheduled_datetime,
	last_execution, executions, failures, failed, created_at, last_modified`

func scanTask(row interface{ Scan(...any) error }) (*models.ScheduledTask, error) {
	var t models.ScheduledTask
	var args []byte
	err := row.Scan(&t.ID, &t.JobType, &args, &t.IntervalMinutes, &t.JobID, &t.ScheduledAt,
		&t.LastExecution, &t.Executions, &t.Failures, &t.Failed, &t.CreatedAt, &t.LastModified)
	if err != nil {
		return nil, err
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &t.Args); err != nil {
			return nil, fmt.Errorf("decode task args: %w", err)
		}
	}
	return &t, nil
}

// CreateScheduledTask inserts a task record.
func (db *DB) CreateScheduledTask(ctx context.Context, t *models.ScheduledTask) error {
	args, err := json.Marshal(t.Args)
	if err != nil {
		return fmt.Errorf("encode task args: %w", err)
	}
	_, err = db.q.Exec(ctx, `
		INSERT INTO scheduled_tasks (id, job_type, args, interval_minutes, job_id,
			scheduled_datetime, last_execution, executions, failures, failed, created_at, last_modified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, t.ID, t.JobType, args, t.IntervalMinutes, t.JobID, t.ScheduledAt,
		t.LastExecution, t.Executions, t.Failures, t.Failed, t.CreatedAt, t.LastModified)
	if err != nil {
		return fmt.Errorf("create scheduled task: %w", err)
	}
	return nil
}

// GetScheduledTask returns a task by id.
func (db *DB) GetScheduledTask(ctx context.Context, id uuid.UUID) (*models.ScheduledTask, error) {
	t, err := scanTask(db.q.QueryRow(ctx, `
		SELECT `+taskColumns+` FROM scheduled_tasks WHERE id = $1
	`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, meld.NotFoundf("scheduled task %q not found", id)
		}
		return nil, fmt.Errorf("get scheduled task: %w", err)
	}
	return t, nil
}

// UpdateScheduledTask persists the mutable fields of a task record.
func (db *DB) UpdateScheduledTask(ctx context.Context, t *models.ScheduledTask) error {
	args, err := json.Marshal(t.Args)
	if err != nil {
		return fmt.Errorf("encode task args: %w", err)
	}
	tag, err := db.q.Exec(ctx, `
		UPDATE scheduled_tasks
		SET args = $2, interval_minutes = $3, job_id = $4, scheduled_datetime = $5,
		    last_execution = $6, executions = $7, failures = $8, failed = $9, last_modified = $10
		WHERE id = $1
	`, t.ID, args, t.IntervalMinutes, t.JobID, t.ScheduledAt, t.LastExecution,
		t.Executions, t.Failures, t.Failed, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update scheduled task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return meld.NotFoundf("scheduled task %q not found", t.ID)
	}
	return nil
}

// DeleteScheduledTask removes a task record.
func (db *DB) DeleteScheduledTask(ctx context.Context, id uuid.UUID) error {
	tag, err := db.q.Exec(ctx, `DELETE FROM scheduled_tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete scheduled task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return meld.NotFoundf("scheduled task %q not found", id)
	}
	return nil
}

// ListScheduledTasks returns a page of task records.
func (db *DB) ListScheduledTasks(ctx context.Context, page, pageSize int) (*models.Paginated[*models.ScheduledTask], error) {
	var total int
	if err := db.q.QueryRow(ctx, `SELECT COUNT(*) FROM scheduled_tasks`).Scan(&total); err != nil {
		return nil, fmt.Errorf("count scheduled tasks: %w", err)
	}
	info, err := validatePage(page, pageSize, total)
	if err != nil {
		return nil, err
	}

	limit, offset := pageWindow(page, pageSize)
	rows, err := db.q.Query(ctx, `
		SELECT `+taskColumns+` FROM scheduled_tasks
		ORDER BY created_at, id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list scheduled tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.ScheduledTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scheduled task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list scheduled tasks: %w", err)
	}
	return &models.Paginated[*models.ScheduledTask]{Entities: tasks, PageInfo: info}, nil
}
