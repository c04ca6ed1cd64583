package lease

import (
	"context"
	"testing"
	"time"
)

func TestAcquire_SecondCallerBlockedWithinTTL(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	res, err := s.Acquire(ctx, SchedulerKey, "instance-1", 20*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != Acquired {
		t.Fatalf("expected Acquired, got %v", res)
	}

	res, err = s.Acquire(ctx, SchedulerKey, "instance-2", 20*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != AlreadyHeld {
		t.Fatalf("expected AlreadyHeld for second instance, got %v", res)
	}
}

func TestAcquire_AvailableAfterRelease(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	if _, err := s.Acquire(ctx, SchedulerKey, "instance-1", 20*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Release(ctx, SchedulerKey, "instance-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := s.Acquire(ctx, SchedulerKey, "instance-2", 20*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != Acquired {
		t.Fatalf("expected Acquired after release, got %v", res)
	}
}

func TestAcquire_AvailableAfterTTLExpiry(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	if _, err := s.Acquire(ctx, SchedulerKey, "instance-1", 10*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	res, err := s.Acquire(ctx, SchedulerKey, "instance-3", 20*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != Acquired {
		t.Fatalf("expected Acquired after TTL expiry, got %v", res)
	}
}

func TestRenew_FailsForWrongToken(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	if _, err := s.Acquire(ctx, SchedulerKey, "instance-1", 20*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := s.Renew(ctx, SchedulerKey, "instance-2", 20*time.Second); err != ErrNotHeld {
		t.Fatalf("expected ErrNotHeld, got %v", err)
	}
}

func TestRelease_NoopForWrongToken(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	if _, err := s.Acquire(ctx, SchedulerKey, "instance-1", 20*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Release(ctx, SchedulerKey, "instance-2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Still held by instance-1.
	res, err := s.Acquire(ctx, SchedulerKey, "instance-3", 20*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != AlreadyHeld {
		t.Fatalf("expected still AlreadyHeld, got %v", res)
	}
}
