package jobcache

import (
	"testing"

	"github.com/opsdash/scheduler/internal/model"
)

func TestFillThenGet(t *testing.T) {
	c := New(4)
	c.Fill([]model.Job{{Name: "a"}, {Name: "b"}})

	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a to be cached")
	}
	if _, ok := c.Get("missing"); ok {
		t.Fatal("expected miss for uncached name")
	}
}

func TestInvalidateRemovesEntry(t *testing.T) {
	c := New(4)
	c.Put(model.Job{Name: "a", Status: model.StatusSuccess})

	c.Invalidate("a")

	if _, ok := c.Get("a"); ok {
		t.Fatal("expected a to be evicted after Invalidate")
	}
}

func TestPutOverwritesStaleRow(t *testing.T) {
	c := New(4)
	c.Put(model.Job{Name: "a", Status: model.StatusUnknown})
	c.Put(model.Job{Name: "a", Status: model.StatusFail})

	got, ok := c.Get("a")
	if !ok {
		t.Fatal("expected a to be cached")
	}
	if got.Status != model.StatusFail {
		t.Fatalf("expected latest Put to win, got status %v", got.Status)
	}
}

func TestEvictionBoundsSize(t *testing.T) {
	c := New(2)
	c.Put(model.Job{Name: "a"})
	c.Put(model.Job{Name: "b"})
	c.Put(model.Job{Name: "c"})

	_, aOK := c.Get("a")
	_, bOK := c.Get("b")
	_, cOK := c.Get("c")
	if aOK && bOK && cOK {
		t.Fatal("expected size-2 cache to evict at least one of three entries")
	}
}

func TestNilCacheIsSafe(t *testing.T) {
	var c *Cache
	c.Fill([]model.Job{{Name: "a"}})
	c.Put(model.Job{Name: "a"})
	c.Invalidate("a")
	if _, ok := c.Get("a"); ok {
		t.Fatal("nil cache must never report a hit")
	}
}
