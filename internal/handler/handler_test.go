package handler

import (
	"context"
	"testing"
	"time"

	"github.com/opsdash/scheduler/internal/broker"
	"github.com/opsdash/scheduler/internal/lease"
	"github.com/opsdash/scheduler/internal/mailer"
	"github.com/opsdash/scheduler/internal/model"
	"github.com/opsdash/scheduler/internal/runtimectx"
	"github.com/opsdash/scheduler/internal/store/memstore"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	rt := runtimectx.New(memstore.New(), lease.NewInMemoryStore(), broker.NewInProcess(), &mailer.Fake{})
	t.Cleanup(func() { rt.Close() })
	return New(rt)
}

func baseArgs(name string) JobArgs {
	return JobArgs{
		Name:     name,
		Timezone: "America/New_York",
		Operator: model.OperatorBash,
		Command:  "echo 1",
		StartDT:  time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC),
		Preset:   "@daily",
	}
}

// TestAddJob_RoundTrip exercises spec.md §8's "add_job(x); get_job(x.name)
// == x (modulo derived fields)" round-trip, including preset expansion.
func TestAddJob_RoundTrip(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()

	ok, err := h.AddJob(ctx, baseArgs("J1"), []string{"fin"}, []string{"a@x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected AddJob to report created")
	}

	info, err := h.InfoJob(ctx, "J1", 20)
	if err != nil {
		t.Fatalf("info job: %v", err)
	}
	if info.Job.ScheduleInterval != "30 9 * * *" {
		t.Errorf("expected expanded preset crontab, got %q", info.Job.ScheduleInterval)
	}
	if !info.Job.NextRunLocalTS.Equal(info.Job.StartDT) {
		t.Errorf("next_run_local_ts should equal start_dt at creation, got %v vs %v",
			info.Job.NextRunLocalTS, info.Job.StartDT)
	}
	if len(info.Tags) != 1 || info.Tags[0].Name != "fin" {
		t.Errorf("expected tag fin, got %v", info.Tags)
	}
	if len(info.Alerts) != 1 || info.Alerts[0] != "a@x" {
		t.Errorf("expected subscriber a@x, got %v", info.Alerts)
	}
}

// TestAddJob_DuplicateName_ReturnsFalseNotError matches spec.md §4.5:
// "returns false on duplicate name" rather than surfacing an error.
func TestAddJob_DuplicateName_ReturnsFalseNotError(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()

	if _, err := h.AddJob(ctx, baseArgs("J1"), nil, nil); err != nil {
		t.Fatalf("unexpected error on first add: %v", err)
	}
	ok, err := h.AddJob(ctx, baseArgs("J1"), nil, nil)
	if err != nil {
		t.Fatalf("expected no error on duplicate, got %v", err)
	}
	if ok {
		t.Fatal("expected false for duplicate job name")
	}
}

// TestEditJob_ReplacesTagsAndSubscribers is spec.md §8's "Edit tags" end-
// to-end scenario 5: {A,B} edited to [B,C] becomes exactly {B,C}.
func TestEditJob_ReplacesTagsAndSubscribers(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()

	if _, err := h.AddJob(ctx, baseArgs("J1"), []string{"A", "B"}, []string{"a@x"}); err != nil {
		t.Fatalf("add job: %v", err)
	}

	if err := h.EditJob(ctx, baseArgs("J1"), []string{"B", "C"}, []string{"a@x", "b@x"}); err != nil {
		t.Fatalf("edit job: %v", err)
	}

	info, err := h.InfoJob(ctx, "J1", 20)
	if err != nil {
		t.Fatalf("info job: %v", err)
	}
	gotTags := map[string]bool{}
	for _, tg := range info.Tags {
		gotTags[tg.Name] = true
	}
	if len(gotTags) != 2 || !gotTags["B"] || !gotTags["C"] || gotTags["A"] {
		t.Errorf("expected tags exactly {B,C}, got %v", info.Tags)
	}
	if len(info.Alerts) != 2 {
		t.Errorf("expected 2 subscribers, got %v", info.Alerts)
	}
}

// TestEditJob_PreservesRuntimeState ensures editing mutable fields doesn't
// clobber scheduler-owned state (status, next_run_local_ts, block fields).
func TestEditJob_PreservesRuntimeState(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()

	if _, err := h.AddJob(ctx, baseArgs("J1"), nil, nil); err != nil {
		t.Fatalf("add job: %v", err)
	}

	var errs []error
	till := time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := h.BlockJobTill(ctx, "J1", till, "maint", "op@x", &errs); err != nil {
		t.Fatalf("block job: %v", err)
	}

	args := baseArgs("J1")
	args.Command = "echo 2"
	if err := h.EditJob(ctx, args, nil, nil); err != nil {
		t.Fatalf("edit job: %v", err)
	}

	info, err := h.InfoJob(ctx, "J1", 20)
	if err != nil {
		t.Fatalf("info job: %v", err)
	}
	if info.Job.Command != "echo 2" {
		t.Errorf("expected command updated to echo 2, got %q", info.Job.Command)
	}
	if info.Job.Active {
		t.Error("expected block to survive edit (still inactive)")
	}
	if info.Job.BlockTill == nil || !info.Job.BlockTill.Equal(till) {
		t.Errorf("expected block_till to survive edit, got %v", info.Job.BlockTill)
	}
}

// TestRemoveJob_CascadeDeletesEverything is spec.md §8 invariant 6:
// "remove_job(name) leaves zero rows mentioning that job's name in any
// table."
func TestRemoveJob_CascadeDeletesEverything(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()

	if _, err := h.AddJob(ctx, baseArgs("J1"), []string{"fin"}, []string{"a@x"}); err != nil {
		t.Fatalf("add job: %v", err)
	}
	if _, err := h.ForceScheduleForJob(ctx, "J1", time.Now()); err != nil {
		t.Fatalf("force schedule: %v", err)
	}

	if err := h.RemoveJob(ctx, "J1"); err != nil {
		t.Fatalf("remove job: %v", err)
	}

	if _, err := h.InfoJob(ctx, "J1", 20); err == nil {
		t.Fatal("expected NotFound after removal")
	}
}

// TestBlockJobTill_SetsInactive is spec.md §8 end-to-end scenario 4.
func TestBlockJobTill_SetsInactive(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()

	if _, err := h.AddJob(ctx, baseArgs("J1"), nil, nil); err != nil {
		t.Fatalf("add job: %v", err)
	}

	var errs []error
	till := time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := h.BlockJobTill(ctx, "J1", till, "maint", "op@x", &errs); err != nil {
		t.Fatalf("block job: %v", err)
	}
	if len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}

	info, err := h.InfoJob(ctx, "J1", 20)
	if err != nil {
		t.Fatalf("info job: %v", err)
	}
	if info.Job.Active {
		t.Error("expected job inactive after block")
	}
	if info.Job.BlockTill == nil || !info.Job.BlockTill.Equal(till) {
		t.Errorf("expected block_till %v, got %v", till, info.Job.BlockTill)
	}
}

// TestBlockJobTill_InvalidEmail_AppendsToErrs matches spec.md §4.5:
// "errors appended to caller-supplied list" rather than aborting silently.
func TestBlockJobTill_InvalidEmail_AppendsToErrs(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()

	if _, err := h.AddJob(ctx, baseArgs("J1"), nil, nil); err != nil {
		t.Fatalf("add job: %v", err)
	}

	var errs []error
	till := time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := h.BlockJobTill(ctx, "J1", till, "maint", "not-an-email", &errs); err == nil {
		t.Fatal("expected error for invalid email")
	}
	if len(errs) != 1 {
		t.Fatalf("expected 1 accumulated error, got %d", len(errs))
	}
}

// TestForceScheduleForJob_DoesNotAdvanceNextRun is spec.md §8 end-to-end
// scenario 2: a forced run materializes a task without advancing
// next_run_local_ts.
func TestForceScheduleForJob_DoesNotAdvanceNextRun(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()

	if _, err := h.AddJob(ctx, baseArgs("J1"), nil, nil); err != nil {
		t.Fatalf("add job: %v", err)
	}
	before, err := h.InfoJob(ctx, "J1", 20)
	if err != nil {
		t.Fatalf("info job: %v", err)
	}

	forcedAt := before.Job.StartDT.Add(30 * time.Minute)
	task, err := h.ForceScheduleForJob(ctx, "J1", forcedAt)
	if err != nil {
		t.Fatalf("force schedule: %v", err)
	}
	if task == nil {
		t.Fatal("expected a task to be created")
	}
	if !task.ExecutionDate.Equal(forcedAt) {
		t.Errorf("expected execution_date %v, got %v", forcedAt, task.ExecutionDate)
	}

	after, err := h.InfoJob(ctx, "J1", 20)
	if err != nil {
		t.Fatalf("info job: %v", err)
	}
	if !after.Job.NextRunLocalTS.Equal(before.Job.NextRunLocalTS) {
		t.Errorf("expected next_run_local_ts unchanged, got %v vs %v",
			before.Job.NextRunLocalTS, after.Job.NextRunLocalTS)
	}
}

// TestForceScheduleForJob_UnknownJob_ReturnsNilNil matches spec.md §4.5:
// "returns null if not found".
func TestForceScheduleForJob_UnknownJob_ReturnsNilNil(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()

	task, err := h.ForceScheduleForJob(ctx, "nope", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task != nil {
		t.Errorf("expected nil task for unknown job, got %+v", task)
	}
}

// TestChangeJobStatus_NoopReturnsReason matches spec.md §4.5: "no-op
// returns a reason message" instead of an error.
func TestChangeJobStatus_NoopReturnsReason(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()

	if _, err := h.AddJob(ctx, baseArgs("J1"), nil, nil); err != nil {
		t.Fatalf("add job: %v", err)
	}

	reason, err := h.ChangeJobStatus(ctx, "J1", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reason == "" {
		t.Error("expected a no-op reason since the job is already active")
	}
}

// TestSubscribeUnsubscribe_TagAndJob exercises both alert target kinds.
func TestSubscribeUnsubscribe_TagAndJob(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()

	if _, err := h.AddJob(ctx, baseArgs("J1"), []string{"fin"}, nil); err != nil {
		t.Fatalf("add job: %v", err)
	}

	if err := h.Subscribe(ctx, model.TargetJob, "J1", "a@x"); err != nil {
		t.Fatalf("subscribe job: %v", err)
	}
	if err := h.Subscribe(ctx, model.TargetTag, "fin", "b@x"); err != nil {
		t.Fatalf("subscribe tag: %v", err)
	}

	info, err := h.InfoJob(ctx, "J1", 20)
	if err != nil {
		t.Fatalf("info job: %v", err)
	}
	if len(info.Alerts) != 2 {
		t.Fatalf("expected 2 recipients, got %v", info.Alerts)
	}

	if err := h.Unsubscribe(ctx, model.TargetJob, "J1", "a@x"); err != nil {
		t.Fatalf("unsubscribe job: %v", err)
	}
	info, err = h.InfoJob(ctx, "J1", 20)
	if err != nil {
		t.Fatalf("info job: %v", err)
	}
	if len(info.Alerts) != 1 || info.Alerts[0] != "b@x" {
		t.Errorf("expected only tag subscriber left, got %v", info.Alerts)
	}
}

// TestClearTasksHistory_DeletesAllTasksForJob.
func TestClearTasksHistory_DeletesAllTasksForJob(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()

	if _, err := h.AddJob(ctx, baseArgs("J1"), nil, nil); err != nil {
		t.Fatalf("add job: %v", err)
	}
	if _, err := h.ForceScheduleForJob(ctx, "J1", time.Now()); err != nil {
		t.Fatalf("force schedule: %v", err)
	}

	if err := h.ClearTasksHistory(ctx, "J1"); err != nil {
		t.Fatalf("clear history: %v", err)
	}

	info, err := h.InfoJob(ctx, "J1", 20)
	if err != nil {
		t.Fatalf("info job: %v", err)
	}
	if len(info.Tasks) != 0 {
		t.Errorf("expected no tasks after clearing history, got %d", len(info.Tasks))
	}
}

// TestRegister_DuplicateEmail matches spec.md §4.5's DuplicateEmail error.
func TestRegister_DuplicateEmail(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()

	if err := h.Register(ctx, "a@x", "pw"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := h.Register(ctx, "a@x", "pw2"); err == nil {
		t.Fatal("expected duplicate email error")
	}
}

// TestAddJob_SQLOperatorRequiresDatabase matches spec.md §3: "database
// (optional, required if operator=sql)".
func TestAddJob_SQLOperatorRequiresDatabase(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()

	args := baseArgs("J1")
	args.Operator = model.OperatorSQL
	if _, err := h.AddJob(ctx, args, nil, nil); err == nil {
		t.Fatal("expected error for sql operator without database")
	}
}
