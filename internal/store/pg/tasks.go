package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opsdash/scheduler/internal/model"
	"github.com/opsdash/scheduler/internal/store"
)

type taskStore struct {
	tx *sql.Tx
}

const taskColumns = `id, job_id, job_name, execution_date, operator, command, state,
	task_handle, result, created_at, updated_at`

func (t *taskStore) Create(ctx context.Context, task *model.TaskInstance) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	now := nowUTC()
	task.CreatedAt, task.UpdatedAt = now, now

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO task_instances (`+taskColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		task.ID, task.JobID, task.JobName, task.ExecutionDate, string(task.Operator),
		task.Command, string(task.State), task.TaskHandle, task.Result,
		task.CreatedAt, task.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create task for %q at %v: %w", task.JobName, task.ExecutionDate, store.ErrDuplicate)
		}
		return fmt.Errorf("create task for %q: %w", task.JobName, err)
	}
	return nil
}

func (t *taskStore) Update(ctx context.Context, task *model.TaskInstance) error {
	task.UpdatedAt = nowUTC()
	res, err := t.tx.ExecContext(ctx, `
		UPDATE task_instances SET
			state = $2, task_handle = $3, result = $4, updated_at = $5
		WHERE id = $1`,
		task.ID, string(task.State), task.TaskHandle, task.Result, task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update task %s: %w", task.ID, err)
	}
	return checkRowsAffected(res, task.ID.String())
}

// ListOpen row-locks every task in {PENDING,STARTED}, for the scheduler's
// reconcile pass (spec.md §4.4.2).
func (t *taskStore) ListOpen(ctx context.Context) ([]model.TaskInstance, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM task_instances
		WHERE state IN ('PENDING','STARTED')
		ORDER BY created_at
		FOR UPDATE`)
	if err != nil {
		return nil, fmt.Errorf("list open tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (t *taskStore) ListForJob(ctx context.Context, jobName string, limit int) ([]model.TaskInstance, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM task_instances
		WHERE job_name = $1
		ORDER BY execution_date DESC
		LIMIT $2`, jobName, limit)
	if err != nil {
		return nil, fmt.Errorf("list tasks for %q: %w", jobName, err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (t *taskStore) FindByDispatchKey(ctx context.Context, jobID uuid.UUID, executionDate time.Time) (*model.TaskInstance, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+taskColumns+` FROM task_instances
		WHERE job_id = $1 AND execution_date = $2`, jobID, executionDate)
	return scanTask(row)
}

func (t *taskStore) DeleteForJob(ctx context.Context, jobName string) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM task_instances WHERE job_name = $1`, jobName)
	if err != nil {
		return fmt.Errorf("clear task history for %q: %w", jobName, err)
	}
	return nil
}

func scanTask(row scanner) (*model.TaskInstance, error) {
	var task model.TaskInstance
	var operator, state string
	if err := row.Scan(
		&task.ID, &task.JobID, &task.JobName, &task.ExecutionDate, &operator, &task.Command,
		&state, &task.TaskHandle, &task.Result, &task.CreatedAt, &task.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	task.Operator = model.Operator(operator)
	task.State = model.TaskState(state)
	return &task, nil
}

func scanTasks(rows *sql.Rows) ([]model.TaskInstance, error) {
	var out []model.TaskInstance
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *task)
	}
	return out, rows.Err()
}
