// Package jobcache bounds the in-memory Job lookups shared by the
// Scheduler Loop's dispatch pass and the Request Handler's read path
// (spec.md §8's "bounded in-memory cache of Job rows read during
// claim_active_jobs_for_tick"). It is a read accelerator only: the
// dispatch pass still always reads through
// JobStore.ClaimActiveJobsForTick's FOR UPDATE lock, never this cache,
// so the tick loop's consistency story is unaffected by whatever this
// package holds. Grounded on github.com/hashicorp/golang-lru/v2 — a
// direct teacher dependency that went unused by any file in the
// retrieval pack — sized the way a bounded job-metadata cache should be:
// fixed capacity, LRU eviction, no TTL (entries are invalidated
// explicitly by the one write path that can make them stale).
package jobcache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/opsdash/scheduler/internal/model"
)

// defaultSize bounds the cache when New is called with size <= 0.
const defaultSize = 256

// Cache holds the most recently claimed or read Job rows, keyed by name.
// A Request Handler mutation invalidates its entry immediately, so a
// reader never observes a job past the write that changed it.
type Cache struct {
	mu    sync.Mutex
	inner *lru.Cache[string, model.Job]
}

// New builds a Cache bounded to size entries.
func New(size int) *Cache {
	if size <= 0 {
		size = defaultSize
	}
	inner, _ := lru.New[string, model.Job](size)
	return &Cache{inner: inner}
}

// Fill records the rows a dispatch pass just claimed under lock, so a
// concurrent info_job read can reuse them instead of issuing its own
// query for a job the tick loop already has fresh.
func (c *Cache) Fill(jobs []model.Job) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, j := range jobs {
		c.inner.Add(j.Name, j)
	}
}

// Get returns the cached row for name, if present.
func (c *Cache) Get(name string) (model.Job, bool) {
	if c == nil {
		return model.Job{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Get(name)
}

// Put caches a single row, used by the Request Handler's read path to
// warm the cache on a miss.
func (c *Cache) Put(job model.Job) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Add(job.Name, job)
}

// Invalidate drops name's cached row. Every Request Handler mutation
// that touches a job's own row calls this before returning.
func (c *Cache) Invalidate(name string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Remove(name)
}
