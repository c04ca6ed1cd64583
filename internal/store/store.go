// Package store defines the scheduling engine's durable-storage contract.
// Concrete implementations live in sibling packages (internal/store/pg);
// this package only knows about model types and transactional semantics,
// mirroring the teacher's per-entity *Store interfaces
// (itsddvn-goclaw/internal/store/*.go) generalized to the Job/TaskInstance/
// Tag/Alert/User domain of spec.md §3.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/opsdash/scheduler/internal/model"
)

// Store is the top-level durable-storage handle. All multi-row mutations
// run inside one WithTx call (spec.md §4.2): either every write in fn
// commits, or none do.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Close() error
}

// Tx scopes the per-entity stores to a single transaction.
type Tx interface {
	Jobs() JobStore
	Tasks() TaskStore
	Tags() TagStore
	Alerts() AlertStore
	Users() UserStore
}

// JobStore is the Job entity's persistence contract (spec.md §4.2).
type JobStore interface {
	Create(ctx context.Context, job *model.Job) error
	Update(ctx context.Context, job *model.Job) error
	DeleteCascade(ctx context.Context, name string) error
	Get(ctx context.Context, name string) (*model.Job, error)
	List(ctx context.Context, activeOnly bool) ([]model.Job, error)

	// ClaimActiveJobsForTick selects active jobs with a row-level write
	// lock, for the scheduler's dispatch pass (spec.md §4.2).
	ClaimActiveJobsForTick(ctx context.Context) ([]model.Job, error)

	AppendAudit(ctx context.Context, event model.JobAuditEvent) error
	ListAudit(ctx context.Context, jobName string, limit int) ([]model.JobAuditEvent, error)
}

// TaskStore is the TaskInstance entity's persistence contract.
type TaskStore interface {
	Create(ctx context.Context, task *model.TaskInstance) error
	Update(ctx context.Context, task *model.TaskInstance) error

	// ListOpen selects tasks in {PENDING,STARTED} with a write lock, for
	// the scheduler's reconcile pass.
	ListOpen(ctx context.Context) ([]model.TaskInstance, error)

	// ListForJob returns tasks newest-execution-first, per spec.md §3.
	ListForJob(ctx context.Context, jobName string, limit int) ([]model.TaskInstance, error)

	// FindByDispatchKey looks up an existing task by (job_id,
	// execution_date) — the idempotency key spec.md §9 prescribes for
	// at-least-once dispatch recovery.
	FindByDispatchKey(ctx context.Context, jobID uuid.UUID, executionDate time.Time) (*model.TaskInstance, error)

	DeleteForJob(ctx context.Context, jobName string) error
}

// TagStore is the Tag entity's persistence contract.
type TagStore interface {
	Add(ctx context.Context, tag model.Tag) error
	Remove(ctx context.Context, tag model.Tag) error
	ListForJob(ctx context.Context, jobName string) ([]model.Tag, error)
	ReplaceForJob(ctx context.Context, jobName string, tags []string) error
}

// AlertStore is the JobAlert/TagAlert persistence contract.
type AlertStore interface {
	SubscribeJob(ctx context.Context, alert model.JobAlert) error
	UnsubscribeJob(ctx context.Context, alert model.JobAlert) error
	SubscribeTag(ctx context.Context, alert model.TagAlert) error
	UnsubscribeTag(ctx context.Context, alert model.TagAlert) error

	ListJobSubscribers(ctx context.Context, jobName string) ([]string, error)
	ListTagSubscribers(ctx context.Context, tagName string) ([]string, error)
	ReplaceJobSubscribers(ctx context.Context, jobName string, emails []string) error
	ReplaceTagSubscribers(ctx context.Context, tagName string, emails []string) error

	// ListRecipients returns dedup(job subscribers ∪ every tag's
	// subscribers) for jobName (spec.md §4.2, §4.6).
	ListRecipients(ctx context.Context, jobName string) ([]string, error)
}

// UserStore is the User entity's persistence contract.
type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}
