// Package memstore is an in-memory store.Store used by package tests in
// internal/handler and internal/scheduler, so those suites can run the
// store contract without a live Postgres instance —
// grounded on the teacher's own preference for hand-rolled in-memory test
// doubles over a mocking library (itsddvn-goclaw has no mock generator
// dependency anywhere in its go.mod).
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opsdash/scheduler/internal/model"
	"github.com/opsdash/scheduler/internal/store"
)

// Store is a mutex-guarded in-memory store.Store. WithTx holds the single
// lock for the duration of fn, which over-serializes compared to Postgres
// row-locks. Writes apply immediately and are not rolled back when fn
// returns an error.
type Store struct {
	mu sync.Mutex

	jobs   map[string]*model.Job // by name
	tasks  map[uuid.UUID]*model.TaskInstance
	tags   map[string]map[string]struct{} // job_name -> set of tag names
	jalert map[string]map[string]struct{} // job_name -> set of emails
	talert map[string]map[string]struct{} // tag_name -> set of emails
	users  map[string]*model.User
	audit  map[string][]model.JobAuditEvent
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		jobs:   make(map[string]*model.Job),
		tasks:  make(map[uuid.UUID]*model.TaskInstance),
		tags:   make(map[string]map[string]struct{}),
		jalert: make(map[string]map[string]struct{}),
		talert: make(map[string]map[string]struct{}),
		users:  make(map[string]*model.User),
		audit:  make(map[string][]model.JobAuditEvent),
	}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(ctx, &tx{s: s})
}

func (s *Store) Close() error { return nil }

type tx struct{ s *Store }

func (t *tx) Jobs() store.JobStore     { return &jobStore{s: t.s} }
func (t *tx) Tasks() store.TaskStore   { return &taskStore{s: t.s} }
func (t *tx) Tags() store.TagStore     { return &tagStore{s: t.s} }
func (t *tx) Alerts() store.AlertStore { return &alertStore{s: t.s} }
func (t *tx) Users() store.UserStore   { return &userStore{s: t.s} }

// --- jobs ---

type jobStore struct{ s *Store }

func (j *jobStore) Create(ctx context.Context, job *model.Job) error {
	if _, ok := j.s.jobs[job.Name]; ok {
		return store.ErrDuplicate
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	cp := *job
	j.s.jobs[job.Name] = &cp
	return nil
}

func (j *jobStore) Update(ctx context.Context, job *model.Job) error {
	if _, ok := j.s.jobs[job.Name]; !ok {
		return store.ErrNotFound
	}
	cp := *job
	j.s.jobs[job.Name] = &cp
	return nil
}

func (j *jobStore) DeleteCascade(ctx context.Context, name string) error {
	if _, ok := j.s.jobs[name]; !ok {
		return store.ErrNotFound
	}
	delete(j.s.jobs, name)
	delete(j.s.tags, name)
	delete(j.s.jalert, name)
	for id, t := range j.s.tasks {
		if t.JobName == name {
			delete(j.s.tasks, id)
		}
	}
	return nil
}

func (j *jobStore) Get(ctx context.Context, name string) (*model.Job, error) {
	job, ok := j.s.jobs[name]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (j *jobStore) List(ctx context.Context, activeOnly bool) ([]model.Job, error) {
	var out []model.Job
	for _, job := range j.s.jobs {
		if activeOnly && !job.Active {
			continue
		}
		out = append(out, *job)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out, nil
}

// ClaimActiveJobsForTick returns every active job plus every still-inactive
// job with a block_till set, so the dispatch pass's unblock step
// (scheduler.dispatchOne step 1) gets a chance to run once block_till has
// elapsed — a job blocked via BlockJobTill is active=false until that step
// flips it, so it must still be claimed here or it could never unblock.
func (j *jobStore) ClaimActiveJobsForTick(ctx context.Context) ([]model.Job, error) {
	var out []model.Job
	for _, job := range j.s.jobs {
		if job.Active || job.BlockTill != nil {
			out = append(out, *job)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID.String() < out[b].ID.String() })
	return out, nil
}

func (j *jobStore) AppendAudit(ctx context.Context, event model.JobAuditEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	j.s.audit[event.JobName] = append(j.s.audit[event.JobName], event)
	return nil
}

func (j *jobStore) ListAudit(ctx context.Context, jobName string, limit int) ([]model.JobAuditEvent, error) {
	events := j.s.audit[jobName]
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	out := make([]model.JobAuditEvent, len(events))
	copy(out, events)
	return out, nil
}

// --- tasks ---

type taskStore struct{ s *Store }

func (t *taskStore) Create(ctx context.Context, task *model.TaskInstance) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	cp := *task
	t.s.tasks[task.ID] = &cp
	return nil
}

func (t *taskStore) Update(ctx context.Context, task *model.TaskInstance) error {
	if _, ok := t.s.tasks[task.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *task
	t.s.tasks[task.ID] = &cp
	return nil
}

func (t *taskStore) ListOpen(ctx context.Context) ([]model.TaskInstance, error) {
	var out []model.TaskInstance
	for _, task := range t.s.tasks {
		if !task.State.IsTerminal() {
			out = append(out, *task)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID.String() < out[b].ID.String() })
	return out, nil
}

func (t *taskStore) ListForJob(ctx context.Context, jobName string, limit int) ([]model.TaskInstance, error) {
	var out []model.TaskInstance
	for _, task := range t.s.tasks {
		if task.JobName == jobName {
			out = append(out, *task)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ExecutionDate.After(out[b].ExecutionDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *taskStore) FindByDispatchKey(ctx context.Context, jobID uuid.UUID, executionDate time.Time) (*model.TaskInstance, error) {
	for _, task := range t.s.tasks {
		if task.JobID == jobID && task.ExecutionDate.Equal(executionDate) {
			cp := *task
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *taskStore) DeleteForJob(ctx context.Context, jobName string) error {
	for id, task := range t.s.tasks {
		if task.JobName == jobName {
			delete(t.s.tasks, id)
		}
	}
	return nil
}

// --- tags ---

type tagStore struct{ s *Store }

func (t *tagStore) Add(ctx context.Context, tag model.Tag) error {
	if t.s.tags[tag.JobName] == nil {
		t.s.tags[tag.JobName] = make(map[string]struct{})
	}
	t.s.tags[tag.JobName][tag.Name] = struct{}{}
	return nil
}

func (t *tagStore) Remove(ctx context.Context, tag model.Tag) error {
	delete(t.s.tags[tag.JobName], tag.Name)
	return nil
}

func (t *tagStore) ListForJob(ctx context.Context, jobName string) ([]model.Tag, error) {
	var out []model.Tag
	for name := range t.s.tags[jobName] {
		out = append(out, model.Tag{Name: name, JobName: jobName})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out, nil
}

func (t *tagStore) ReplaceForJob(ctx context.Context, jobName string, tags []string) error {
	set := make(map[string]struct{}, len(tags))
	for _, name := range tags {
		set[name] = struct{}{}
	}
	t.s.tags[jobName] = set
	return nil
}

// --- alerts ---

type alertStore struct{ s *Store }

func (a *alertStore) SubscribeJob(ctx context.Context, alert model.JobAlert) error {
	if a.s.jalert[alert.JobName] == nil {
		a.s.jalert[alert.JobName] = make(map[string]struct{})
	}
	a.s.jalert[alert.JobName][alert.Email] = struct{}{}
	return nil
}

func (a *alertStore) UnsubscribeJob(ctx context.Context, alert model.JobAlert) error {
	delete(a.s.jalert[alert.JobName], alert.Email)
	return nil
}

func (a *alertStore) SubscribeTag(ctx context.Context, alert model.TagAlert) error {
	if a.s.talert[alert.TagName] == nil {
		a.s.talert[alert.TagName] = make(map[string]struct{})
	}
	a.s.talert[alert.TagName][alert.Email] = struct{}{}
	return nil
}

func (a *alertStore) UnsubscribeTag(ctx context.Context, alert model.TagAlert) error {
	delete(a.s.talert[alert.TagName], alert.Email)
	return nil
}

func (a *alertStore) ListJobSubscribers(ctx context.Context, jobName string) ([]string, error) {
	return setToSortedSlice(a.s.jalert[jobName]), nil
}

func (a *alertStore) ListTagSubscribers(ctx context.Context, tagName string) ([]string, error) {
	return setToSortedSlice(a.s.talert[tagName]), nil
}

func (a *alertStore) ReplaceJobSubscribers(ctx context.Context, jobName string, emails []string) error {
	set := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		set[e] = struct{}{}
	}
	a.s.jalert[jobName] = set
	return nil
}

func (a *alertStore) ReplaceTagSubscribers(ctx context.Context, tagName string, emails []string) error {
	set := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		set[e] = struct{}{}
	}
	a.s.talert[tagName] = set
	return nil
}

func (a *alertStore) ListRecipients(ctx context.Context, jobName string) ([]string, error) {
	set := make(map[string]struct{})
	for e := range a.s.jalert[jobName] {
		set[e] = struct{}{}
	}
	for tagName := range a.s.tags[jobName] {
		for e := range a.s.talert[tagName] {
			set[e] = struct{}{}
		}
	}
	return setToSortedSlice(set), nil
}

func setToSortedSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for e := range set {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// --- users ---

type userStore struct{ s *Store }

func (u *userStore) Create(ctx context.Context, user *model.User) error {
	if _, ok := u.s.users[user.Email]; ok {
		return store.ErrDuplicateEmail
	}
	cp := *user
	u.s.users[user.Email] = &cp
	return nil
}

func (u *userStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	user, ok := u.s.users[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *user
	return &cp, nil
}
