// Package alert composes failure alerts for a Job and fans them out
// through a Mailer to a recipient set supplied by the caller (spec.md §4.6). Sends are buffered through
// a background goroutine — grounded on itsddvn-goclaw/internal/tracing's
// Collector (a channel-buffered, single-flusher pattern used there for
// span export) — so a slow or unavailable SMTP target never blocks the
// reconcile transaction that triggered the alert.
package alert

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/opsdash/scheduler/internal/mailer"
	"github.com/opsdash/scheduler/internal/model"
)

// Kind distinguishes the notice being fanned out. Failure is the only kind
// spec.md's core contract requires; Recovery is a [SUPPLEMENTED] addition
// from the original Python dashboard's emails.py (see SPEC_FULL.md §9).
type Kind string

const (
	KindFailure  Kind = "failure"
	KindRecovery Kind = "recovery"
)

const (
	failureSubject  = "Dashboard - Job Failure Alert"
	recoverySubject = "Dashboard - Job Recovery Notice"
)

const defaultBufferSize = 256

// pending is one queued alert awaiting send.
type pending struct {
	kind    Kind
	job     model.Job
	recipients []string
}

// Fanout sends the composed alert to caller-supplied recipients asynchronously.
type Fanout struct {
	mailer mailer.Mailer

	queue chan pending
	stop  chan struct{}
}

// NewFanout creates a Fanout and its send queue; Start launches the
// background flush goroutine. Call Start before the first Notify, and Stop
// to drain + shut down cleanly.
func NewFanout(m mailer.Mailer) *Fanout {
	return &Fanout{
		mailer: m,
		queue:  make(chan pending, defaultBufferSize),
		stop:   make(chan struct{}),
	}
}

// Start begins the background sender loop.
func (f *Fanout) Start() {
	go f.loop()
}

// Stop closes the queue and waits for it to drain.
func (f *Fanout) Stop() {
	close(f.queue)
	<-f.stop
}

func (f *Fanout) loop() {
	defer close(f.stop)
	for p := range f.queue {
		f.send(p)
	}
}

func (f *Fanout) send(p pending) {
	subject := failureSubject
	body := composeFailureBody(p.job)
	if p.kind == KindRecovery {
		subject = recoverySubject
		body = composeRecoveryBody(p.job)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := f.mailer.Send(ctx, subject, p.recipients, body); err != nil {
		// Logged, never propagated: spec.md §4.6 — "the failure is
		// logged but the reconciliation transaction still commits."
		slog.Warn("alert: mail send failed", "job", p.job.Name, "kind", p.kind, "error", err)
	}
}

// dedupSorted removes duplicate emails and stable-sorts the result, for
// any recipient list assembled outside the store layer (which already
// dedups/sorts within ListRecipients itself).
func dedupSorted(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, e := range in {
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// NotifyFailure enqueues a failure alert for job with the given recipients.
// Non-blocking unless the internal buffer is full, in which case it blocks
// briefly rather than dropping an alert silently.
func (f *Fanout) NotifyFailure(job model.Job, recipients []string) {
	f.queue <- pending{kind: KindFailure, job: job, recipients: recipients}
}

// NotifyRecovery enqueues a recovery notice (SPEC_FULL.md §9 addition).
func (f *Fanout) NotifyRecovery(job model.Job, recipients []string) {
	f.queue <- pending{kind: KindRecovery, job: job, recipients: recipients}
}

func composeFailureBody(job model.Job) string {
	return "Job: " + job.Name + "\n" +
		"Command: " + job.Command + "\n" +
		"Result: " + job.LastTaskResult
}

func composeRecoveryBody(job model.Job) string {
	return "Job: " + job.Name + "\n" +
		"Command: " + job.Command + "\n" +
		"Recovered. Last result: " + job.LastTaskResult
}
