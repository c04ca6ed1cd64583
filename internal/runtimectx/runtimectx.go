// Package runtimectx replaces the teacher's process-wide singletons (a
// module-level broker connection, an ambient SQL session factory) with one
// explicit struct threaded through the Request Handler and Scheduler Loop
// constructors, per spec.md §9's "global scheduler state" design note.
package runtimectx

import (
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/opsdash/scheduler/internal/alert"
	"github.com/opsdash/scheduler/internal/broker"
	"github.com/opsdash/scheduler/internal/jobcache"
	"github.com/opsdash/scheduler/internal/lease"
	"github.com/opsdash/scheduler/internal/mailer"
	"github.com/opsdash/scheduler/internal/store"
)

// SuccessPredicate classifies a terminal task result as a job success,
// reifying spec.md §9's "success heuristic" design note. The default,
// StartsWithOne, preserves the source's "result starts with '1'" rule.
type SuccessPredicate func(result string) bool

// StartsWithOne is the legacy success convention spec.md §6 requires as the
// default: "job.status := success iff task.result is a string that starts
// with the character '1'".
func StartsWithOne(result string) bool {
	return len(result) > 0 && result[0] == '1'
}

// Clock is the injectable time source, letting scheduler tests control
// "now" instead of sleeping real wall-clock seconds.
type Clock func() time.Time

// Context bundles every collaborator the engine depends on. Nothing in this
// package is a package-level variable; every constructor in internal/handler
// and internal/scheduler takes a *Context explicitly.
type Context struct {
	Store   store.Store
	Lease   lease.Store
	Broker  broker.Broker
	Mailer  mailer.Mailer
	Alerts  *alert.Fanout

	// JobCache accelerates read-heavy Job lookups (spec.md §8's bounded
	// in-memory job-row cache); it is never the dispatch pass's source
	// of truth, which always reads through ClaimActiveJobsForTick's
	// row lock.
	JobCache *jobcache.Cache

	// Tracer names the spans the scheduler loop opens for each tick's
	// dispatch/reconcile pass. It is obtained from otel's global
	// accessor, so installing a real TracerProvider later (via
	// otel.SetTracerProvider, see internal/tracing) upgrades every
	// Tracer already handed out, including this one.
	Tracer trace.Tracer

	Clock   Clock
	Success SuccessPredicate

	// LeaseKey and LeaseTTL parameterize the single-leader guard
	// (spec.md §4.3, §6: key "scheduler_manager", TTL 20s default).
	LeaseKey string
	LeaseTTL time.Duration

	// PollInterval is the scheduler tick's target period (spec.md §4.4:
	// "default 20-30s").
	PollInterval time.Duration
}

// New builds a Context with spec-default leasing/poll parameters and the
// legacy success predicate. Callers override fields as needed before use.
func New(st store.Store, ls lease.Store, br broker.Broker, ml mailer.Mailer) *Context {
	fanout := alert.NewFanout(ml)
	fanout.Start()
	return &Context{
		Store:        st,
		Lease:        ls,
		Broker:       br,
		Mailer:       ml,
		Alerts:       fanout,
		JobCache:     jobcache.New(0),
		Tracer:       otel.Tracer("scheduler"),
		Clock:        time.Now,
		Success:      StartsWithOne,
		LeaseKey:     lease.SchedulerKey,
		LeaseTTL:     20 * time.Second,
		PollInterval: 25 * time.Second,
	}
}

// Close releases everything the Context owns that needs an orderly
// shutdown (the alert fanout's background goroutine, the store's pool).
func (c *Context) Close() error {
	c.Alerts.Stop()
	return c.Store.Close()
}
