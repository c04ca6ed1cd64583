package alert

import (
	"testing"

	"github.com/opsdash/scheduler/internal/mailer"
	"github.com/opsdash/scheduler/internal/model"
)

func TestDedupSorted(t *testing.T) {
	in := []string{"b@x", "a@x", "b@x", "c@x"}
	out := dedupSorted(in)

	want := []string{"a@x", "b@x", "c@x"}
	if len(out) != len(want) {
		t.Fatalf("expected %d recipients, got %d (%v)", len(want), len(out), out)
	}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("index %d: expected %q, got %q", i, want[i], out[i])
		}
	}
}

func TestNotifyFailure_SendsComposedBody(t *testing.T) {
	fake := &mailer.Fake{}
	f := NewFanout(fake)
	f.Start()

	job := model.Job{Name: "J1", Command: "echo 1", LastTaskResult: "0 rows"}
	f.NotifyFailure(job, []string{"a@x", "b@x"})
	f.Stop()

	sent := fake.All()
	if len(sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sent))
	}
	if sent[0].Subject != failureSubject {
		t.Errorf("expected subject %q, got %q", failureSubject, sent[0].Subject)
	}
	if len(sent[0].Recipients) != 2 {
		t.Errorf("expected 2 recipients, got %v", sent[0].Recipients)
	}
}

func TestNotifyFailure_MailFailureDoesNotPanic(t *testing.T) {
	fake := &mailer.Fake{FailNext: 1}
	f := NewFanout(fake)
	f.Start()

	job := model.Job{Name: "J1", Command: "echo 1", LastTaskResult: "0 rows"}
	f.NotifyFailure(job, []string{"a@x"})
	f.Stop()

	if len(fake.All()) != 0 {
		t.Errorf("expected the failed send to not be recorded as sent")
	}
}
