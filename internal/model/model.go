// Package model holds the scheduling engine's entities: Job, TaskInstance,
// Tag, JobAlert, TagAlert and User, plus the small value types shared by the
// cron evaluator, the store and the scheduler loop.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Operator names the kind of work a Job performs.
type Operator string

const (
	OperatorBash   Operator = "bash"
	OperatorSQL    Operator = "sql"
	OperatorPython Operator = "python"
)

// TaskState is the lifecycle state of a TaskInstance, mirroring the broker's
// own vocabulary so reconciliation never needs to translate between two
// enums.
type TaskState string

const (
	StatePending  TaskState = "PENDING"
	StateStarted  TaskState = "STARTED"
	StateSuccess  TaskState = "SUCCESS"
	StateFailure  TaskState = "FAILURE"
	StateRetry    TaskState = "RETRY"
	StateRevoked  TaskState = "REVOKED"
)

// IsTerminal reports whether no further transition is expected.
func (s TaskState) IsTerminal() bool {
	switch s {
	case StateSuccess, StateFailure, StateRevoked:
		return true
	default:
		return false
	}
}

// JobStatus is the health classification promoted from a task outcome.
type JobStatus int

const (
	StatusFail JobStatus = iota
	StatusSuccess
	StatusUnknown
)

func (s JobStatus) String() string {
	switch s {
	case StatusFail:
		return "fail"
	case StatusSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// MaxResultLen is the storage cap for TaskInstance.Result and
// Job.LastTaskResult (spec: "≤1000 chars").
const MaxResultLen = 1000

// TruncateResult clips s to MaxResultLen, matching the teacher's
// truncate-with-ellipsis convention used for cron run-log summaries.
func TruncateResult(s string) string {
	if len(s) <= MaxResultLen {
		return s
	}
	return s[:MaxResultLen-len("...[truncated]")] + "...[truncated]"
}

// Job is a recurring unit of work.
type Job struct {
	ID               uuid.UUID
	Name             string
	Timezone         string
	Operator         Operator
	Database         string // required iff Operator == OperatorSQL
	Command          string

	StartDT time.Time // wall-clock, naive, in Timezone
	EndDT   *time.Time

	ScheduleInterval string // expanded 5-field crontab
	NextRunLocalTS   time.Time

	ResetStatusAt time.Time // time-of-day only; date component ignored

	Active     bool
	BlockTill  *time.Time // UTC
	BlockBy    string
	BlockMsg   string

	Status           JobStatus
	LastExecutionTS  *time.Time // local
	LastTaskResult   string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TaskInstance is a single materialized execution of a Job.
type TaskInstance struct {
	ID            uuid.UUID
	JobID         uuid.UUID
	JobName       string
	ExecutionDate time.Time // local, the moment it was scheduled
	Operator      Operator
	Command       string
	State         TaskState
	TaskHandle    string
	Result        string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Tag labels a job by name; unique per (Name, JobName) pair.
type Tag struct {
	Name    string
	JobName string
}

// AlertTargetKind distinguishes a subscription's target entity.
type AlertTargetKind string

const (
	TargetJob AlertTargetKind = "job"
	TargetTag AlertTargetKind = "tag"
)

// JobAlert subscribes an email to a job's failure notifications.
type JobAlert struct {
	JobName string
	Email   string
}

// TagAlert subscribes an email to a tag's failure notifications.
type TagAlert struct {
	TagName string
	Email   string
}

// User authorizes mutating Request Handler operations.
type User struct {
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// JobAuditEvent is an append-only record of a job lifecycle transition
// (status change, block, force-run). Additive beyond spec.md — see
// SPEC_FULL.md §9.
type JobAuditEvent struct {
	ID        uuid.UUID
	JobName   string
	Kind      string // "status_change", "block", "force_run"
	Detail    string
	At        time.Time
}
