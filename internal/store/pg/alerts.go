package pg

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/opsdash/scheduler/internal/model"
)

type alertStore struct {
	tx *sql.Tx
}

func (a *alertStore) SubscribeJob(ctx context.Context, alert model.JobAlert) error {
	_, err := a.tx.ExecContext(ctx, `
		INSERT INTO job_alerts (job_name, email) VALUES ($1,$2)
		ON CONFLICT (job_name, email) DO NOTHING`, alert.JobName, alert.Email)
	if err != nil {
		return fmt.Errorf("subscribe %q to job %q: %w", alert.Email, alert.JobName, err)
	}
	return nil
}

func (a *alertStore) UnsubscribeJob(ctx context.Context, alert model.JobAlert) error {
	_, err := a.tx.ExecContext(ctx, `DELETE FROM job_alerts WHERE job_name = $1 AND email = $2`,
		alert.JobName, alert.Email)
	if err != nil {
		return fmt.Errorf("unsubscribe %q from job %q: %w", alert.Email, alert.JobName, err)
	}
	return nil
}

func (a *alertStore) SubscribeTag(ctx context.Context, alert model.TagAlert) error {
	_, err := a.tx.ExecContext(ctx, `
		INSERT INTO tag_alerts (tag_name, email) VALUES ($1,$2)
		ON CONFLICT (tag_name, email) DO NOTHING`, alert.TagName, alert.Email)
	if err != nil {
		return fmt.Errorf("subscribe %q to tag %q: %w", alert.Email, alert.TagName, err)
	}
	return nil
}

func (a *alertStore) UnsubscribeTag(ctx context.Context, alert model.TagAlert) error {
	_, err := a.tx.ExecContext(ctx, `DELETE FROM tag_alerts WHERE tag_name = $1 AND email = $2`,
		alert.TagName, alert.Email)
	if err != nil {
		return fmt.Errorf("unsubscribe %q from tag %q: %w", alert.Email, alert.TagName, err)
	}
	return nil
}

func (a *alertStore) ListJobSubscribers(ctx context.Context, jobName string) ([]string, error) {
	return a.queryEmails(ctx, `SELECT email FROM job_alerts WHERE job_name = $1 ORDER BY email`, jobName)
}

func (a *alertStore) ListTagSubscribers(ctx context.Context, tagName string) ([]string, error) {
	return a.queryEmails(ctx, `SELECT email FROM tag_alerts WHERE tag_name = $1 ORDER BY email`, tagName)
}

func (a *alertStore) ReplaceJobSubscribers(ctx context.Context, jobName string, emails []string) error {
	if _, err := a.tx.ExecContext(ctx, `DELETE FROM job_alerts WHERE job_name = $1`, jobName); err != nil {
		return fmt.Errorf("replace job subscribers for %q: %w", jobName, err)
	}
	for _, email := range emails {
		if err := a.SubscribeJob(ctx, model.JobAlert{JobName: jobName, Email: email}); err != nil {
			return err
		}
	}
	return nil
}

func (a *alertStore) ReplaceTagSubscribers(ctx context.Context, tagName string, emails []string) error {
	if _, err := a.tx.ExecContext(ctx, `DELETE FROM tag_alerts WHERE tag_name = $1`, tagName); err != nil {
		return fmt.Errorf("replace tag subscribers for %q: %w", tagName, err)
	}
	for _, email := range emails {
		if err := a.SubscribeTag(ctx, model.TagAlert{TagName: tagName, Email: email}); err != nil {
			return err
		}
	}
	return nil
}

// ListRecipients returns dedup(job subscribers ∪ every tag's subscribers)
// for jobName (spec.md §4.2, §4.6): a job inherits alert recipients from
// every tag attached to it, in addition to its own direct subscribers.
func (a *alertStore) ListRecipients(ctx context.Context, jobName string) ([]string, error) {
	rows, err := a.tx.QueryContext(ctx, `
		SELECT ja.email FROM job_alerts ja WHERE ja.job_name = $1
		UNION
		SELECT ta.email FROM tag_alerts ta
		JOIN tags t ON t.name = ta.tag_name
		WHERE t.job_name = $1`, jobName)
	if err != nil {
		return nil, fmt.Errorf("list recipients for %q: %w", jobName, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		out = append(out, email)
	}
	sort.Strings(out)
	return out, rows.Err()
}

func (a *alertStore) queryEmails(ctx context.Context, query string, arg string) ([]string, error) {
	rows, err := a.tx.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query emails: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scan email: %w", err)
		}
		out = append(out, email)
	}
	return out, rows.Err()
}
