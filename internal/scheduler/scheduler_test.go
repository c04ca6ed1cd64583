package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/opsdash/scheduler/internal/broker"
	"github.com/opsdash/scheduler/internal/lease"
	"github.com/opsdash/scheduler/internal/mailer"
	"github.com/opsdash/scheduler/internal/model"
	"github.com/opsdash/scheduler/internal/runtimectx"
	"github.com/opsdash/scheduler/internal/store"
	"github.com/opsdash/scheduler/internal/store/memstore"
)

func newTestRig(t *testing.T) (*runtimectx.Context, *broker.InProcess, *mailer.Fake) {
	t.Helper()
	br := broker.NewInProcess()
	fake := &mailer.Fake{}
	rt := runtimectx.New(memstore.New(), lease.NewInMemoryStore(), br, fake)
	t.Cleanup(func() { rt.Close() })
	return rt, br, fake
}

func mustLoc(t *testing.T, zone string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(zone)
	if err != nil {
		t.Fatalf("load location %q: %v", zone, err)
	}
	return loc
}

func getJob(t *testing.T, rt *runtimectx.Context, name string) *model.Job {
	t.Helper()
	var job *model.Job
	err := rt.Store.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		j, err := tx.Jobs().Get(ctx, name)
		job = j
		return err
	})
	if err != nil {
		t.Fatalf("get job %q: %v", name, err)
	}
	return job
}

// TestDispatchPass_PresetDaily_DispatchesAndAdvances is end-to-end scenario
// 1 from spec.md §8: preset daily dispatches one task at the due instant
// and advances next_run_local_ts by one day.
func TestDispatchPass_PresetDaily_DispatchesAndAdvances(t *testing.T) {
	rt, br, _ := newTestRig(t)
	loc := mustLoc(t, "America/New_York")
	start := time.Date(2024, 1, 1, 9, 30, 0, 0, loc)

	job := &model.Job{
		ID:               uuid.New(),
		Name:             "J1",
		Timezone:         "America/New_York",
		Operator:         model.OperatorBash,
		Command:          "echo 1",
		StartDT:          start,
		ScheduleInterval: "30 9 * * *",
		NextRunLocalTS:   start,
		Active:           true,
		Status:           model.StatusUnknown,
	}
	if err := rt.Store.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.Jobs().Create(ctx, job)
	}); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	sched := New(rt)
	nowUTC := start.In(time.UTC)

	if err := rt.Store.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return sched.dispatchPass(ctx, tx, nowUTC)
	}); err != nil {
		t.Fatalf("dispatch pass: %v", err)
	}

	if len(br.Submits()) != 1 {
		t.Fatalf("expected 1 broker submit, got %d", len(br.Submits()))
	}

	got := getJob(t, rt, job.Name)
	wantNext := start.AddDate(0, 0, 1)
	if !got.NextRunLocalTS.Equal(wantNext) {
		t.Errorf("next_run_local_ts = %v, want %v", got.NextRunLocalTS, wantNext)
	}
}

// TestDispatchPass_Idempotent_SameTickDoesNotDoubleDispatch exercises
// spec.md §9's at-least-once dispatch-key recovery: calling
// materializeAndDispatch twice for the same (job, execution_date) creates
// only one TaskInstance.
func TestDispatchPass_Idempotent_SameTickDoesNotDoubleDispatch(t *testing.T) {
	rt, br, _ := newTestRig(t)
	sched := New(rt)
	job := &model.Job{ID: uuid.New(), Name: "J2", Timezone: "UTC", Operator: model.OperatorBash, Command: "echo 1", Active: true}
	execDate := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	err := rt.Store.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if err := tx.Jobs().Create(ctx, job); err != nil {
			return err
		}
		if err := sched.materializeAndDispatch(ctx, tx, job, execDate); err != nil {
			return err
		}
		return sched.materializeAndDispatch(ctx, tx, job, execDate)
	})
	if err != nil {
		t.Fatalf("dispatch twice: %v", err)
	}
	if len(br.Submits()) != 1 {
		t.Fatalf("expected exactly 1 broker submit across both calls, got %d", len(br.Submits()))
	}
}

// TestDispatchPass_EndDT_Deactivates is the "end_dt = now_local" boundary
// behavior from spec.md §8.
func TestDispatchPass_EndDT_Deactivates(t *testing.T) {
	rt, br, _ := newTestRig(t)
	sched := New(rt)
	end := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	job := &model.Job{
		ID: uuid.New(), Name: "J3", Timezone: "UTC", Operator: model.OperatorBash, Command: "echo 1",
		EndDT: &end, Active: true, NextRunLocalTS: end.Add(-time.Hour), ScheduleInterval: "0 0 * * *",
	}
	if err := rt.Store.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.Jobs().Create(ctx, job)
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := rt.Store.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return sched.dispatchPass(ctx, tx, end)
	}); err != nil {
		t.Fatalf("dispatch pass: %v", err)
	}

	if len(br.Submits()) != 0 {
		t.Errorf("expected no dispatch once end_dt reached, got %d", len(br.Submits()))
	}

	got := getJob(t, rt, job.Name)
	if got.Active {
		t.Error("expected job to be deactivated at end_dt")
	}
}

// TestReconcile_Failure_SendsAlertToSortedRecipients is end-to-end scenario
// 3 from spec.md §8.
func TestReconcile_Failure_SendsAlertToSortedRecipients(t *testing.T) {
	rt, br, fake := newTestRig(t)
	sched := New(rt)

	job := &model.Job{ID: uuid.New(), Name: "J1", Timezone: "UTC", Operator: model.OperatorBash, Command: "echo 1", Active: true, Status: model.StatusUnknown}
	err := rt.Store.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if err := tx.Jobs().Create(ctx, job); err != nil {
			return err
		}
		if err := tx.Tags().Add(ctx, model.Tag{Name: "fin", JobName: "J1"}); err != nil {
			return err
		}
		if err := tx.Alerts().SubscribeJob(ctx, model.JobAlert{JobName: "J1", Email: "a@x"}); err != nil {
			return err
		}
		return tx.Alerts().SubscribeTag(ctx, model.TagAlert{TagName: "fin", Email: "b@x"})
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	var handle broker.Handle
	err = rt.Store.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		task := &model.TaskInstance{JobID: job.ID, JobName: "J1", ExecutionDate: time.Now(), Operator: model.OperatorBash, Command: "echo 1", State: model.StatePending}
		if err := tx.Tasks().Create(ctx, task); err != nil {
			return err
		}
		h, err := broker.Dispatch(ctx, rt.Broker, job.Operator, job.Command, job.Database)
		if err != nil {
			return err
		}
		handle = h
		task.TaskHandle = string(h)
		return tx.Tasks().Update(ctx, task)
	})
	if err != nil {
		t.Fatalf("materialize task: %v", err)
	}

	br.SetState(handle, model.StateFailure, "0 rows")

	if err := rt.Store.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return sched.reconcilePass(ctx, tx, time.Now())
	}); err != nil {
		t.Fatalf("reconcile pass: %v", err)
	}

	waitForMail(t, fake, 1)
	sent := fake.All()
	if len(sent) != 1 {
		t.Fatalf("expected 1 alert sent, got %d", len(sent))
	}
	want := []string{"a@x", "b@x"}
	if len(sent[0].Recipients) != 2 || sent[0].Recipients[0] != want[0] || sent[0].Recipients[1] != want[1] {
		t.Errorf("recipients = %v, want %v", sent[0].Recipients, want)
	}
}

func waitForMail(t *testing.T, fake *mailer.Fake, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(fake.All()) >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}
