// Package handler implements the in-process Request Handler (spec.md §4.5):
// the transactional operation set HTTP and CLI collaborators call 1:1.
// Grounded on itsddvn-goclaw/internal/gateway/methods/cron.go's
// method-per-operation shape, with the transport layer stripped (transport
// is a non-goal) — each exported method here is a plain Go function over
// typed args, wrapped in exactly one store.WithTx call.
package handler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/opsdash/scheduler/internal/broker"
	"github.com/opsdash/scheduler/internal/cronexpr"
	"github.com/opsdash/scheduler/internal/model"
	"github.com/opsdash/scheduler/internal/runtimectx"
	"github.com/opsdash/scheduler/internal/store"
)

// Handler exposes the Request Handler operations over one runtime Context.
type Handler struct {
	rt *runtimectx.Context
}

// New builds a Handler over rt.
func New(rt *runtimectx.Context) *Handler {
	return &Handler{rt: rt}
}

// JobArgs is the mutable-field bundle shared by AddJob/EditJob.
type JobArgs struct {
	Name                    string
	Timezone                string
	Operator                model.Operator
	Database                string
	Command                 string
	StartDT                 time.Time
	EndDT                   *time.Time
	ScheduleIntervalCrontab string
	Preset                  string
	WeekdayToRun            []int
	ResetStatusAt           time.Time
}

// Register creates a User, hashing the password with bcrypt (spec.md §4.5:
// "email RFC-valid, unique"). Password hashing has no counterpart anywhere
// in the retrieval pack — user authentication is explicitly out of scope
// (spec.md §1) — so this is a documented stdlib-ecosystem exception (see
// DESIGN.md): golang.org/x/crypto/bcrypt, not net/http/cookiejar-adjacent
// stdlib, since the User entity still needs a one-way verifiable hash.
func (h *Handler) Register(ctx context.Context, email, password string) error {
	if err := store.ValidateEmail(email); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	return h.rt.Store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Users().Create(ctx, &model.User{Email: email, PasswordHash: string(hash)})
	})
}

// AddJob validates and inserts a Job plus its Tags and JobAlerts. Returns
// false (no error) on a duplicate name, per spec.md §4.5.
func (h *Handler) AddJob(ctx context.Context, args JobArgs, tags, subs []string) (bool, error) {
	job, err := buildJob(args)
	if err != nil {
		return false, err
	}
	for _, s := range subs {
		if err := store.ValidateEmail(s); err != nil {
			return false, err
		}
	}

	created := false
	err = h.rt.Store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Jobs().Create(ctx, job); err != nil {
			return err
		}
		created = true
		if err := tx.Tags().ReplaceForJob(ctx, job.Name, tags); err != nil {
			return err
		}
		return tx.Alerts().ReplaceJobSubscribers(ctx, job.Name, subs)
	})
	h.rt.JobCache.Invalidate(job.Name)
	if store.IsDuplicate(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return created, nil
}

// EditJob replaces a job's mutable fields and reconciles its tag/subscriber
// sets to exactly the supplied lists (spec.md §4.5: "compute set-difference
// of tags/subs, delete/insert").
func (h *Handler) EditJob(ctx context.Context, args JobArgs, tags, subs []string) error {
	job, err := buildJob(args)
	if err != nil {
		return err
	}
	for _, s := range subs {
		if err := store.ValidateEmail(s); err != nil {
			return err
		}
	}

	err = h.rt.Store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		existing, err := tx.Jobs().Get(ctx, args.Name)
		if err != nil {
			return err
		}
		job.ID = existing.ID
		job.Status = existing.Status
		job.LastExecutionTS = existing.LastExecutionTS
		job.LastTaskResult = existing.LastTaskResult
		job.Active = existing.Active
		job.BlockTill = existing.BlockTill
		job.BlockBy = existing.BlockBy
		job.BlockMsg = existing.BlockMsg
		job.NextRunLocalTS = existing.NextRunLocalTS

		if err := tx.Jobs().Update(ctx, job); err != nil {
			return err
		}
		if err := tx.Tags().ReplaceForJob(ctx, job.Name, tags); err != nil {
			return err
		}
		return tx.Alerts().ReplaceJobSubscribers(ctx, job.Name, subs)
	})
	h.rt.JobCache.Invalidate(job.Name)
	return err
}

// RemoveJob cascades: tasks, tags, job alerts, then the job row itself
// (spec.md §3, §9's "cascading delete" design note — enumerated explicitly
// rather than relying on the schema's ON DELETE CASCADE alone). The job's
// job_audit_events rows are not deleted: they keep the job name after the
// job itself is gone.
func (h *Handler) RemoveJob(ctx context.Context, name string) error {
	err := h.rt.Store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Tasks().DeleteForJob(ctx, name); err != nil {
			return err
		}
		if err := tx.Tags().ReplaceForJob(ctx, name, nil); err != nil {
			return err
		}
		if err := tx.Alerts().ReplaceJobSubscribers(ctx, name, nil); err != nil {
			return err
		}
		return tx.Jobs().DeleteCascade(ctx, name)
	})
	h.rt.JobCache.Invalidate(name)
	return err
}

// ChangeJobStatus toggles active; a no-op transition returns a reason
// string instead of mutating (spec.md §4.5).
func (h *Handler) ChangeJobStatus(ctx context.Context, name string, deactivate bool) (reason string, err error) {
	err = h.rt.Store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		job, err := tx.Jobs().Get(ctx, name)
		if err != nil {
			return err
		}
		want := !deactivate
		if job.Active == want {
			reason = fmt.Sprintf("job %q already %s", name, activeWord(want))
			return nil
		}
		job.Active = want
		kind := "activated"
		if deactivate {
			kind = "deactivated"
		}
		if err := tx.Jobs().Update(ctx, job); err != nil {
			return err
		}
		return tx.Jobs().AppendAudit(ctx, model.JobAuditEvent{JobName: name, Kind: "status_change", Detail: kind})
	})
	h.rt.JobCache.Invalidate(name)
	return reason, err
}

func activeWord(active bool) string {
	if active {
		return "active"
	}
	return "inactive"
}

// BlockJobTill sets active=false and the block fields until ts, appending
// validation failures to errs instead of aborting (spec.md §4.5: "errors
// appended to caller-supplied list").
func (h *Handler) BlockJobTill(ctx context.Context, name string, till time.Time, msg, email string, errs *[]error) error {
	if err := store.ValidateEmail(email); err != nil {
		*errs = append(*errs, err)
		return err
	}

	err := h.rt.Store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		job, err := tx.Jobs().Get(ctx, name)
		if err != nil {
			return err
		}
		job.Active = false
		job.BlockTill = &till
		job.BlockBy = email
		job.BlockMsg = msg
		if err := tx.Jobs().Update(ctx, job); err != nil {
			return err
		}
		return tx.Jobs().AppendAudit(ctx, model.JobAuditEvent{JobName: name, Kind: "block", Detail: msg})
	})
	h.rt.JobCache.Invalidate(name)
	return err
}

// ForceScheduleForJob materializes a task at now_local without advancing
// next_run_local_ts (spec.md §4.4.1 "Forced run") and submits it through
// the broker, recording the returned handle on the task. Returns nil, nil if
// the job does not exist.
func (h *Handler) ForceScheduleForJob(ctx context.Context, name string, nowLocal time.Time) (*model.TaskInstance, error) {
	var task *model.TaskInstance
	err := h.rt.Store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		job, err := tx.Jobs().Get(ctx, name)
		if store.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}

		t := &model.TaskInstance{
			JobID:         job.ID,
			JobName:       job.Name,
			ExecutionDate: nowLocal,
			Operator:      job.Operator,
			Command:       job.Command,
			State:         model.StatePending,
		}
		if err := tx.Tasks().Create(ctx, t); err != nil {
			return err
		}
		handle, err := broker.Dispatch(ctx, h.rt.Broker, job.Operator, job.Command, job.Database)
		if err != nil {
			return err
		}
		t.TaskHandle = string(handle)
		if err := tx.Tasks().Update(ctx, t); err != nil {
			return err
		}
		task = t
		return tx.Jobs().AppendAudit(ctx, model.JobAuditEvent{JobName: name, Kind: "force_run"})
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// Subscribe upserts an alert row for kind ∈ {job,tag}.
func (h *Handler) Subscribe(ctx context.Context, kind model.AlertTargetKind, name, email string) error {
	if err := store.ValidateEmail(email); err != nil {
		return err
	}
	return h.rt.Store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		switch kind {
		case model.TargetJob:
			return tx.Alerts().SubscribeJob(ctx, model.JobAlert{JobName: name, Email: email})
		case model.TargetTag:
			return tx.Alerts().SubscribeTag(ctx, model.TagAlert{TagName: name, Email: email})
		default:
			return fmt.Errorf("subscribe: unknown target kind %q", kind)
		}
	})
}

// Unsubscribe deletes an alert row for kind ∈ {job,tag}.
func (h *Handler) Unsubscribe(ctx context.Context, kind model.AlertTargetKind, name, email string) error {
	return h.rt.Store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		switch kind {
		case model.TargetJob:
			return tx.Alerts().UnsubscribeJob(ctx, model.JobAlert{JobName: name, Email: email})
		case model.TargetTag:
			return tx.Alerts().UnsubscribeTag(ctx, model.TagAlert{TagName: name, Email: email})
		default:
			return fmt.Errorf("unsubscribe: unknown target kind %q", kind)
		}
	})
}

// ClearTasksHistory deletes every TaskInstance belonging to name.
func (h *Handler) ClearTasksHistory(ctx context.Context, name string) error {
	return h.rt.Store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Tasks().DeleteForJob(ctx, name)
	})
}

// JobInfo bundles the read-only view info_job returns.
type JobInfo struct {
	Job    model.Job
	Tags   []model.Tag
	Tasks  []model.TaskInstance
	Alerts []string
}

// InfoJob returns the job, its tags, its newest-first tasks (bounded by
// limit), and its resolved alert recipients.
func (h *Handler) InfoJob(ctx context.Context, name string, limit int) (*JobInfo, error) {
	if limit <= 0 {
		limit = 20
	}
	var info JobInfo
	err := h.rt.Store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if cached, ok := h.rt.JobCache.Get(name); ok {
			info.Job = cached
		} else {
			job, err := tx.Jobs().Get(ctx, name)
			if err != nil {
				return err
			}
			info.Job = *job
			h.rt.JobCache.Put(*job)
		}

		tags, err := tx.Tags().ListForJob(ctx, name)
		if err != nil {
			return err
		}
		info.Tags = tags

		tasks, err := tx.Tasks().ListForJob(ctx, name, limit)
		if err != nil {
			return err
		}
		info.Tasks = tasks

		recipients, err := tx.Alerts().ListRecipients(ctx, name)
		if err != nil {
			return err
		}
		info.Alerts = recipients
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func buildJob(args JobArgs) (*model.Job, error) {
	if err := store.ValidateName(args.Name); err != nil {
		return nil, err
	}
	if args.Operator == model.OperatorSQL && args.Database == "" {
		return nil, fmt.Errorf("job %q: database required for sql operator: %w", args.Name, store.ErrInvalidSchedule)
	}
	if args.EndDT != nil && !args.EndDT.After(args.StartDT) {
		return nil, fmt.Errorf("job %q: end_dt must be after start_dt: %w", args.Name, store.ErrInvalidTimestamp)
	}

	start, err := cronexpr.NewLocalTs(args.Timezone, args.StartDT)
	if err != nil {
		return nil, fmt.Errorf("job %q: %w", args.Name, err)
	}
	expr, err := cronexpr.Resolve(args.ScheduleIntervalCrontab, args.Preset, args.WeekdayToRun, start)
	if err != nil {
		return nil, fmt.Errorf("job %q: %w", args.Name, err)
	}

	slog.Debug("resolved job schedule", "job", args.Name, "crontab", expr)

	if args.Operator == model.OperatorBash {
		if err := broker.ValidateBash(args.Command); err != nil {
			slog.Warn("job command failed shell-token validation", "job", args.Name, "error", err)
		}
	}

	return &model.Job{
		Name:             args.Name,
		Timezone:         args.Timezone,
		Operator:         args.Operator,
		Database:         args.Database,
		Command:          args.Command,
		StartDT:          args.StartDT,
		EndDT:            args.EndDT,
		ScheduleInterval: expr,
		NextRunLocalTS:   args.StartDT,
		ResetStatusAt:    args.ResetStatusAt,
		Active:           true,
		Status:           model.StatusUnknown,
	}, nil
}
