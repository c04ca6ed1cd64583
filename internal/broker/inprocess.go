package broker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/opsdash/scheduler/internal/model"
)

// InProcess is a deterministic in-memory Broker used by tests, grounded on
// the teacher's JobHandler callback shape (itsddvn-goclaw/internal/cron/
// types.go): submitting a command records it and hands back a handle;
// poll looks the handle up in a map a test can mutate directly to drive
// reconciliation through every state transition.
type InProcess struct {
	mu      sync.Mutex
	seq     int64
	entries map[Handle]*PollResult
	submits []string // commands/sql seen, in submit order
}

// NewInProcess creates an empty in-memory broker.
func NewInProcess() *InProcess {
	return &InProcess{entries: make(map[Handle]*PollResult)}
}

func (b *InProcess) nextHandle() Handle {
	n := atomic.AddInt64(&b.seq, 1)
	return Handle(fmt.Sprintf("h-%d", n))
}

func (b *InProcess) SubmitCommand(_ context.Context, cmd string) (Handle, error) {
	return b.submit(cmd)
}

func (b *InProcess) SubmitSQL(_ context.Context, cmd, database string) (Handle, error) {
	return b.submit(fmt.Sprintf("%s@%s", cmd, database))
}

func (b *InProcess) submit(payload string) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	h := b.nextHandle()
	b.entries[h] = &PollResult{State: model.StatePending}
	b.submits = append(b.submits, payload)
	return h, nil
}

func (b *InProcess) Poll(_ context.Context, handle Handle) (PollResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[handle]
	if !ok {
		return PollResult{}, fmt.Errorf("handle %q: %w", handle, ErrUnreachable)
	}
	return *e, nil
}

// SetState lets a test move a handle to a new state/result, simulating the
// external worker completing (or failing) the task.
func (b *InProcess) SetState(handle Handle, state model.TaskState, result string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[handle] = &PollResult{State: state, Result: result}
}

// Submits returns the payloads seen by SubmitCommand/SubmitSQL, in order.
func (b *InProcess) Submits() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.submits))
	copy(out, b.submits)
	return out
}
