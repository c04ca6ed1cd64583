// Package scheduler implements the Scheduler Loop (spec.md §4.4): a
// long-running control loop with a dispatch pass and a reconcile pass per
// tick, guarded by the single-leader lease. Grounded on
// itsddvn-goclaw/internal/cron/service.go's runLoop (ticker, stop channel,
// mutex-guarded running flag) and internal/heartbeat/service.go's
// Start/Stop/IsRunning shape, generalized from a single-process JSON-file
// loop into the lease-guarded, store-backed loop spec.md §4.4 describes.
package scheduler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opsdash/scheduler/internal/broker"
	"github.com/opsdash/scheduler/internal/cronexpr"
	"github.com/opsdash/scheduler/internal/lease"
	"github.com/opsdash/scheduler/internal/model"
	"github.com/opsdash/scheduler/internal/runtimectx"
	"github.com/opsdash/scheduler/internal/store"
)

// ErrBusy is returned by Run when another instance already holds the
// scheduler lease; spec.md §4.4: "on start: if not Lease.acquire(...): exit
// with code BUSY".
var ErrBusy = errors.New("scheduler: lease already held by another instance")

// Scheduler owns the tick loop. Only one Scheduler across a cluster should
// ever hold the lease at a time; that invariant is enforced by the Lease
// Store, not by this type.
type Scheduler struct {
	rt    *runtimectx.Context
	token string

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// New builds a Scheduler bound to rt, with a random per-process lease token
// so Renew/Release never clobber a different instance's lease.
func New(rt *runtimectx.Context) *Scheduler {
	return &Scheduler{rt: rt, token: newToken()}
}

func newToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Run acquires the lease, then blocks running tick() on rt.PollInterval
// until ctx is cancelled or Stop is called. It always releases the lease on
// the way out (spec.md §4.4: "on exit (including unhandled error):
// Lease.release(SCHED_KEY)").
func (s *Scheduler) Run(ctx context.Context) error {
	result, err := s.rt.Lease.Acquire(ctx, s.rt.LeaseKey, s.token, s.rt.LeaseTTL)
	if err != nil {
		return fmt.Errorf("acquire lease: %w", err)
	}
	if result == lease.AlreadyHeld {
		return ErrBusy
	}
	defer func() {
		if err := s.rt.Lease.Release(context.Background(), s.rt.LeaseKey, s.token); err != nil {
			slog.Error("scheduler: lease release failed", "error", err)
		}
	}()

	s.mu.Lock()
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.mu.Unlock()
	defer close(s.done)

	slog.Info("scheduler: leader acquired, loop starting", "poll_interval", s.rt.PollInterval)
	for {
		t0 := s.rt.Clock()
		s.tick(ctx)

		if err := s.rt.Lease.Renew(ctx, s.rt.LeaseKey, s.token, s.rt.LeaseTTL); err != nil {
			slog.Error("scheduler: lease renew failed, stopping", "error", err)
			return fmt.Errorf("renew lease: %w", err)
		}

		elapsed := s.rt.Clock().Sub(t0)
		sleep := s.rt.PollInterval - elapsed
		if sleep < 0 {
			sleep = 0
		}

		select {
		case <-ctx.Done():
			return nil
		case <-s.stop:
			return nil
		case <-time.After(sleep):
		}
	}
}

// Stop requests a graceful shutdown between ticks (spec.md §5: "the
// scheduler loop observes a cooperative running=false flag between
// passes").
func (s *Scheduler) Stop() {
	s.mu.Lock()
	running, stop, done := s.running, s.stop, s.done
	s.running = false
	s.mu.Unlock()
	if !running {
		return
	}
	close(stop)
	<-done
}

// tick runs one dispatch pass and one reconcile pass, each in its own
// transaction (spec.md §4.4: "tx { dispatch_pass() }; tx {
// reconcile_pass() }"). Per-item failures are logged and isolated
// (§4.4.3); a failure in one job or task never aborts the tick.
func (s *Scheduler) tick(ctx context.Context) {
	ctx, tickSpan := s.rt.Tracer.Start(ctx, "scheduler.tick")
	defer tickSpan.End()

	now := s.rt.Clock()

	dispatchCtx, dispatchSpan := s.rt.Tracer.Start(ctx, "scheduler.dispatch_pass")
	if err := s.rt.Store.WithTx(dispatchCtx, func(ctx context.Context, tx store.Tx) error {
		return s.dispatchPass(ctx, tx, now)
	}); err != nil {
		slog.Error("scheduler: dispatch pass transaction failed", "error", err)
		dispatchSpan.RecordError(err)
		dispatchSpan.SetStatus(codes.Error, err.Error())
	}
	dispatchSpan.End()

	reconcileCtx, reconcileSpan := s.rt.Tracer.Start(ctx, "scheduler.reconcile_pass")
	if err := s.rt.Store.WithTx(reconcileCtx, func(ctx context.Context, tx store.Tx) error {
		return s.reconcilePass(ctx, tx, now)
	}); err != nil {
		slog.Error("scheduler: reconcile pass transaction failed", "error", err)
		reconcileSpan.RecordError(err)
		reconcileSpan.SetStatus(codes.Error, err.Error())
	}
	reconcileSpan.End()
}

// dispatchPass implements spec.md §4.4.1 over every job claim_active_jobs_
// for_tick returns. Jobs are processed in the order the store returns them
// (job.id ascending — spec.md: "dispatch order is by job.id ascending");
// each job's failure is isolated from the rest.
func (s *Scheduler) dispatchPass(ctx context.Context, tx store.Tx, now time.Time) error {
	jobs, err := tx.Jobs().ClaimActiveJobsForTick(ctx)
	if err != nil {
		return fmt.Errorf("claim active jobs: %w", err)
	}
	s.rt.JobCache.Fill(jobs)

	for i := range jobs {
		job := jobs[i]
		if err := s.dispatchOne(ctx, tx, &job, now); err != nil {
			slog.Error("scheduler: dispatch failed for job", "job", job.Name, "error", err)
			continue
		}
	}
	return nil
}

func (s *Scheduler) dispatchOne(ctx context.Context, tx store.Tx, job *model.Job, nowUTC time.Time) (err error) {
	ctx, span := s.rt.Tracer.Start(ctx, "scheduler.dispatch_one",
		trace.WithAttributes(attribute.String("job.name", job.Name)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	nowLocal, err := cronexpr.LocalNow(job.Timezone, nowUTC)
	if err != nil {
		return fmt.Errorf("load zone %q: %w", job.Timezone, err)
	}
	// Stored job timestamps are naive wall-clock digits in the job's zone;
	// relabel them into that zone before comparing with nowLocal.
	inZone := func(t time.Time) time.Time {
		v, _ := cronexpr.NewLocalTs(job.Timezone, t)
		return v.Value
	}

	// Step 1: unblock.
	if job.BlockTill != nil && !nowUTC.Before(*job.BlockTill) {
		job.Active = true
		job.BlockTill = nil
		job.BlockBy = ""
		job.BlockMsg = ""
		if err := tx.Jobs().Update(ctx, job); err != nil {
			return err
		}
	}
	if !job.Active {
		return nil
	}

	// Step 2: deactivate at end.
	if job.EndDT != nil && !nowLocal.Value.Before(inZone(*job.EndDT)) {
		job.Active = false
		return tx.Jobs().Update(ctx, job)
	}

	// Step 3: daily status reset.
	cutoff := cronexpr.TodayAt(nowLocal, job.ResetStatusAt)
	if !nowLocal.Value.Before(cutoff.Value) &&
		(job.LastExecutionTS == nil || inZone(*job.LastExecutionTS).Before(cutoff.Value)) {
		job.Status = model.StatusUnknown
	}

	// Step 4: due check.
	due := cronexpr.LocalTs{Zone: job.Timezone, Value: inZone(job.NextRunLocalTS)}
	if due.ToUTC().Value.After(nowUTC) {
		return tx.Jobs().Update(ctx, job)
	}

	if err := s.materializeAndDispatch(ctx, tx, job, job.NextRunLocalTS); err != nil {
		return err
	}

	next, err := cronexpr.NextFire(job.ScheduleInterval, due)
	if err != nil {
		return fmt.Errorf("compute next fire for %q: %w", job.Name, err)
	}
	job.NextRunLocalTS = next.Value
	return tx.Jobs().Update(ctx, job)
}

// materializeAndDispatch creates a TaskInstance for executionDate and
// submits it through the broker, idempotent-keyed by (job_id,
// execution_date) so a crash between submit and persist never double-
// dispatches on recovery (spec.md §9 "at-least-once"). A task row found at
// that key with no TaskHandle yet means a prior tick created it but never
// got a handle — either the crash-recovery case, or a broker submit that
// failed on an earlier tick (spec.md §4.4.3: broker errors are logged and
// the tick continues, they never abort it) — so that row is reused and
// redispatched rather than skipped; only a row that already has a handle
// represents a submit that actually succeeded.
func (s *Scheduler) materializeAndDispatch(ctx context.Context, tx store.Tx, job *model.Job, executionDate time.Time) error {
	existing, err := tx.Tasks().FindByDispatchKey(ctx, job.ID, executionDate)
	if err != nil && !store.IsNotFound(err) {
		return fmt.Errorf("dispatch key lookup for %q: %w", job.Name, err)
	}
	if existing != nil && existing.TaskHandle != "" {
		return nil
	}

	task := existing
	if task == nil {
		task = &model.TaskInstance{
			JobID:         job.ID,
			JobName:       job.Name,
			ExecutionDate: executionDate,
			Operator:      job.Operator,
			Command:       job.Command,
			State:         model.StatePending,
		}
		if err := tx.Tasks().Create(ctx, task); err != nil {
			return fmt.Errorf("materialize task for %q: %w", job.Name, err)
		}
	}

	handle, err := broker.Dispatch(ctx, s.rt.Broker, job.Operator, job.Command, job.Database)
	if err != nil {
		// Returned to dispatchOne so next_run is not advanced and a later
		// tick retries this key; dispatchPass logs it and continues, so the
		// tick is never aborted (spec.md §4.4.3).
		return fmt.Errorf("broker dispatch for %q: %w", job.Name, err)
	}

	task.TaskHandle = string(handle)
	return tx.Tasks().Update(ctx, task)
}

// ForceScheduleNow materializes a task at the job's current local instant
// without advancing next_run_local_ts (spec.md §4.4.1 "Forced run"), using
// the same materializeAndDispatch path as the tick. The Request Handler's
// ForceScheduleForJob does not call it; it creates and dispatches its own
// task.
func (s *Scheduler) ForceScheduleNow(ctx context.Context, jobName string) (*model.TaskInstance, error) {
	var task *model.TaskInstance
	err := s.rt.Store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		job, err := tx.Jobs().Get(ctx, jobName)
		if err != nil {
			return err
		}
		nowLocal, err := cronexpr.LocalNow(job.Timezone, s.rt.Clock())
		if err != nil {
			return err
		}
		if err := s.materializeAndDispatch(ctx, tx, job, nowLocal.Value); err != nil {
			return err
		}
		task, err = tx.Tasks().FindByDispatchKey(ctx, job.ID, nowLocal.Value)
		return err
	})
	return task, err
}

// reconcilePass implements spec.md §4.4.2 over every open TaskInstance.
func (s *Scheduler) reconcilePass(ctx context.Context, tx store.Tx, now time.Time) error {
	tasks, err := tx.Tasks().ListOpen(ctx)
	if err != nil {
		return fmt.Errorf("list open tasks: %w", err)
	}

	for i := range tasks {
		task := tasks[i]
		if err := s.reconcileOne(ctx, tx, &task, now); err != nil {
			slog.Error("scheduler: reconcile failed for task", "task", task.ID, "job", task.JobName, "error", err)
			continue
		}
	}
	return nil
}

func (s *Scheduler) reconcileOne(ctx context.Context, tx store.Tx, task *model.TaskInstance, now time.Time) (err error) {
	ctx, span := s.rt.Tracer.Start(ctx, "scheduler.reconcile_one",
		trace.WithAttributes(attribute.String("job.name", task.JobName)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if task.TaskHandle == "" {
		return nil // submit never completed; a later tick's dispatch retry will set it
	}

	res, err := s.rt.Broker.Poll(ctx, broker.Handle(task.TaskHandle))
	if err != nil {
		slog.Warn("scheduler: broker poll failed", "task", task.ID, "handle", task.TaskHandle, "error", err)
		return nil // broker errors are logged, never abort the tick (spec.md §4.4.3)
	}
	if res.State == task.State {
		return nil
	}

	task.State = res.State
	if task.State.IsTerminal() {
		task.Result = model.TruncateResult(res.Result)
	}
	if err := tx.Tasks().Update(ctx, task); err != nil {
		return fmt.Errorf("update task %s: %w", task.ID, err)
	}

	if !task.State.IsTerminal() {
		return nil
	}
	return s.promoteJobStatus(ctx, tx, task, now)
}

// promoteJobStatus copies a terminal task's outcome into its owning job and
// fans out a failure alert on failure (spec.md §4.4.2 step 3).
func (s *Scheduler) promoteJobStatus(ctx context.Context, tx store.Tx, task *model.TaskInstance, now time.Time) error {
	job, err := tx.Jobs().Get(ctx, task.JobName)
	if err != nil {
		return fmt.Errorf("load job %q for promotion: %w", task.JobName, err)
	}

	wasFailing := job.Status == model.StatusFail

	job.LastExecutionTS = &task.ExecutionDate
	job.LastTaskResult = task.Result

	success := s.rt.Success(task.Result)
	if success {
		job.Status = model.StatusSuccess
	} else {
		job.Status = model.StatusFail
	}

	if err := tx.Jobs().Update(ctx, job); err != nil {
		return err
	}

	if !success {
		recipients, err := tx.Alerts().ListRecipients(ctx, job.Name)
		if err != nil {
			return fmt.Errorf("resolve recipients for %q: %w", job.Name, err)
		}
		s.rt.Alerts.NotifyFailure(*job, recipients)
		return nil
	}

	if wasFailing {
		recipients, err := tx.Alerts().ListRecipients(ctx, job.Name)
		if err != nil {
			return fmt.Errorf("resolve recipients for %q: %w", job.Name, err)
		}
		s.rt.Alerts.NotifyRecovery(*job, recipients)
	}
	return nil
}
