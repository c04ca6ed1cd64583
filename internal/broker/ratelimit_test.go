package broker

import (
	"context"
	"testing"
	"time"

	"github.com/opsdash/scheduler/internal/model"
)

func TestRateLimited_PassesThroughToUnderlyingBroker(t *testing.T) {
	inner := NewInProcess()
	rl := NewRateLimited(inner, 0, 0) // rps <= 0: unlimited

	h, err := rl.SubmitCommand(context.Background(), "echo hi")
	if err != nil {
		t.Fatalf("SubmitCommand: %v", err)
	}
	inner.SetState(h, model.StateSuccess, "1ok")

	res, err := rl.Poll(context.Background(), h)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if res.State != model.StateSuccess {
		t.Fatalf("expected success state, got %v", res.State)
	}
	if got := inner.Submits(); len(got) != 1 || got[0] != "echo hi" {
		t.Fatalf("expected underlying broker to record the submit, got %v", got)
	}
}

func TestRateLimited_ThrottlesBurstyCalls(t *testing.T) {
	inner := NewInProcess()
	rl := NewRateLimited(inner, 1, 1) // 1 call/sec, burst 1

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := rl.SubmitCommand(context.Background(), "first"); err != nil {
		t.Fatalf("first call should consume the burst token: %v", err)
	}

	if _, err := rl.SubmitCommand(ctx, "second"); err == nil {
		t.Fatal("expected second call to block past the short deadline and return an error")
	}
}

func TestRateLimited_SubmitSQL(t *testing.T) {
	inner := NewInProcess()
	rl := NewRateLimited(inner, 0, 0)

	if _, err := rl.SubmitSQL(context.Background(), "select 1", "reporting"); err != nil {
		t.Fatalf("SubmitSQL: %v", err)
	}
	got := inner.Submits()
	if len(got) != 1 || got[0] != "select 1@reporting" {
		t.Fatalf("expected SubmitSQL to reach the underlying broker, got %v", got)
	}
}
