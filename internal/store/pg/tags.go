package pg

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/opsdash/scheduler/internal/model"
)

type tagStore struct {
	tx *sql.Tx
}

func (t *tagStore) Add(ctx context.Context, tag model.Tag) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO tags (name, job_name) VALUES ($1,$2)
		ON CONFLICT (name, job_name) DO NOTHING`, tag.Name, tag.JobName)
	if err != nil {
		return fmt.Errorf("add tag %q to %q: %w", tag.Name, tag.JobName, err)
	}
	return nil
}

func (t *tagStore) Remove(ctx context.Context, tag model.Tag) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM tags WHERE name = $1 AND job_name = $2`, tag.Name, tag.JobName)
	if err != nil {
		return fmt.Errorf("remove tag %q from %q: %w", tag.Name, tag.JobName, err)
	}
	return nil
}

func (t *tagStore) ListForJob(ctx context.Context, jobName string) ([]model.Tag, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT name, job_name FROM tags WHERE job_name = $1 ORDER BY name`, jobName)
	if err != nil {
		return nil, fmt.Errorf("list tags for %q: %w", jobName, err)
	}
	defer rows.Close()

	var out []model.Tag
	for rows.Next() {
		var tg model.Tag
		if err := rows.Scan(&tg.Name, &tg.JobName); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		out = append(out, tg)
	}
	return out, rows.Err()
}

// ReplaceForJob sets jobName's full tag set to tags, matching the Request
// Handler's edit_job semantics of overwriting the tag list wholesale
// (spec.md §4.5).
func (t *tagStore) ReplaceForJob(ctx context.Context, jobName string, tags []string) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM tags WHERE job_name = $1`, jobName); err != nil {
		return fmt.Errorf("replace tags for %q: %w", jobName, err)
	}
	for _, name := range tags {
		if err := t.Add(ctx, model.Tag{Name: name, JobName: jobName}); err != nil {
			return err
		}
	}
	return nil
}
