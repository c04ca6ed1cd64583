package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/opsdash/scheduler/internal/model"
	"github.com/opsdash/scheduler/internal/store"
)

type jobStore struct {
	tx *sql.Tx
}

const jobColumns = `id, name, timezone, operator, database, command, start_dt, end_dt,
	schedule_interval, next_run_local_ts, reset_status_at, active, block_till,
	block_by, block_msg, status, last_execution_ts, last_task_result, created_at, updated_at`

func (j *jobStore) Create(ctx context.Context, job *model.Job) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	now := nowUTC()
	job.CreatedAt, job.UpdatedAt = now, now

	_, err := j.tx.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		job.ID, job.Name, job.Timezone, string(job.Operator), job.Database, job.Command,
		job.StartDT, job.EndDT, job.ScheduleInterval, job.NextRunLocalTS, job.ResetStatusAt,
		job.Active, job.BlockTill, job.BlockBy, job.BlockMsg, int(job.Status),
		job.LastExecutionTS, job.LastTaskResult, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create job %q: %w", job.Name, store.ErrDuplicate)
		}
		return fmt.Errorf("create job %q: %w", job.Name, err)
	}
	return nil
}

func (j *jobStore) Update(ctx context.Context, job *model.Job) error {
	job.UpdatedAt = nowUTC()
	res, err := j.tx.ExecContext(ctx, `
		UPDATE jobs SET
			timezone = $2, operator = $3, database = $4, command = $5,
			start_dt = $6, end_dt = $7, schedule_interval = $8, next_run_local_ts = $9,
			reset_status_at = $10, active = $11, block_till = $12, block_by = $13,
			block_msg = $14, status = $15, last_execution_ts = $16, last_task_result = $17,
			updated_at = $18
		WHERE id = $1`,
		job.ID, job.Timezone, string(job.Operator), job.Database, job.Command,
		job.StartDT, job.EndDT, job.ScheduleInterval, job.NextRunLocalTS, job.ResetStatusAt,
		job.Active, job.BlockTill, job.BlockBy, job.BlockMsg, int(job.Status),
		job.LastExecutionTS, job.LastTaskResult, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update job %q: %w", job.Name, err)
	}
	return checkRowsAffected(res, job.Name)
}

func (j *jobStore) DeleteCascade(ctx context.Context, name string) error {
	res, err := j.tx.ExecContext(ctx, `DELETE FROM jobs WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete job %q: %w", name, err)
	}
	return checkRowsAffected(res, name)
}

func (j *jobStore) Get(ctx context.Context, name string) (*model.Job, error) {
	row := j.tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE name = $1`, name)
	return scanJob(row)
}

func (j *jobStore) List(ctx context.Context, activeOnly bool) ([]model.Job, error) {
	q := `SELECT ` + jobColumns + ` FROM jobs`
	var args []any
	if activeOnly {
		q += ` WHERE active = $1`
		args = append(args, true)
	}
	q += ` ORDER BY name`

	rows, err := j.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

// ClaimActiveJobsForTick row-locks every active job, plus every still-
// inactive job with block_till set, due for evaluation, serializing
// dispatch-pass ticks against concurrent Request Handler edits of the same
// rows (spec.md §4.2, §4.4). A blocked job is active=false until
// dispatchOne's unblock step (spec.md §4.4.1 step 1) flips it back once
// block_till has elapsed — that step can only run on rows this claim
// returns, so a blocked row must stay visible here or it would never
// unblock.
func (j *jobStore) ClaimActiveJobsForTick(ctx context.Context) ([]model.Job, error) {
	rows, err := j.tx.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE active = true OR block_till IS NOT NULL
		ORDER BY id
		FOR UPDATE`)
	if err != nil {
		return nil, fmt.Errorf("claim active jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (j *jobStore) AppendAudit(ctx context.Context, event model.JobAuditEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.At.IsZero() {
		event.At = nowUTC()
	}
	_, err := j.tx.ExecContext(ctx, `
		INSERT INTO job_audit_events (id, job_name, kind, detail, at)
		VALUES ($1,$2,$3,$4,$5)`,
		event.ID, event.JobName, event.Kind, event.Detail, event.At)
	if err != nil {
		return fmt.Errorf("append audit for %q: %w", event.JobName, err)
	}
	return nil
}

func (j *jobStore) ListAudit(ctx context.Context, jobName string, limit int) ([]model.JobAuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.tx.QueryContext(ctx, `
		SELECT id, job_name, kind, detail, at FROM job_audit_events
		WHERE job_name = $1 ORDER BY at DESC LIMIT $2`, jobName, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit for %q: %w", jobName, err)
	}
	defer rows.Close()

	var out []model.JobAuditEvent
	for rows.Next() {
		var e model.JobAuditEvent
		if err := rows.Scan(&e.ID, &e.JobName, &e.Kind, &e.Detail, &e.At); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*model.Job, error) {
	var job model.Job
	var operator string
	var status int
	if err := row.Scan(
		&job.ID, &job.Name, &job.Timezone, &operator, &job.Database, &job.Command,
		&job.StartDT, &job.EndDT, &job.ScheduleInterval, &job.NextRunLocalTS, &job.ResetStatusAt,
		&job.Active, &job.BlockTill, &job.BlockBy, &job.BlockMsg, &status,
		&job.LastExecutionTS, &job.LastTaskResult, &job.CreatedAt, &job.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	job.Operator = model.Operator(operator)
	job.Status = model.JobStatus(status)
	return &job, nil
}

func scanJobs(rows *sql.Rows) ([]model.Job, error) {
	var out []model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *job)
	}
	return out, rows.Err()
}

func checkRowsAffected(res sql.Result, subject string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for %q: %w", subject, err)
	}
	if n == 0 {
		return fmt.Errorf("%q: %w", subject, store.ErrNotFound)
	}
	return nil
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505). The pgx/v5/stdlib driver still surfaces the
// underlying *pgconn.PgError through database/sql, so errors.As unwraps it
// the same way a native pgx pool caller would.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
