// Package broker defines the Task Broker adapter contract (spec.md §4.7):
// submit a command or SQL query, get back an opaque handle; poll a handle
// for its current state and result. The actual worker process that runs
// shell/SQL commands is an external collaborator — this package only
// specifies and type-checks the boundary.
package broker

import (
	"context"
	"errors"

	"github.com/opsdash/scheduler/internal/model"
)

// ErrUnreachable wraps any transport/timeout failure talking to the broker
// (spec.md §7's "Broker" error kind). Callers log and continue; a tick
// never aborts because one broker call failed.
var ErrUnreachable = errors.New("broker unreachable")

// Handle is the broker-assigned opaque identifier of a submitted task.
type Handle string

// PollResult is what poll returns for a handle.
type PollResult struct {
	State  model.TaskState
	Result string // stringified value or exception; empty until terminal
}

// Broker is the collaborator interface the dispatch and reconcile passes
// depend on. Submit calls are non-blocking (they enqueue and return);
// Poll is idempotent and cheap enough to call once per open task per tick
// (spec.md §4.7).
type Broker interface {
	SubmitCommand(ctx context.Context, cmd string) (Handle, error)
	SubmitSQL(ctx context.Context, cmd, database string) (Handle, error)
	Poll(ctx context.Context, handle Handle) (PollResult, error)
}
