package cronexpr

import (
	"testing"
	"time"
)

func mustLocal(t *testing.T, zone, layout, value string) LocalTs {
	t.Helper()
	loc, err := time.LoadLocation(zone)
	if err != nil {
		t.Fatalf("load location %s: %v", zone, err)
	}
	parsed, err := time.ParseInLocation(layout, value, loc)
	if err != nil {
		t.Fatalf("parse %s: %v", value, err)
	}
	return LocalTs{Zone: zone, Value: parsed}
}

func TestExpandPreset_Daily(t *testing.T) {
	start := mustLocal(t, "America/New_York", "2006-01-02 15:04", "2024-01-01 09:30")

	expr, err := ExpandPreset(PresetDaily, start)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if expr != "30 9 * * *" {
		t.Errorf("expected %q, got %q", "30 9 * * *", expr)
	}
}

func TestExpandPreset_Weekly_UsesISOWeekday(t *testing.T) {
	// 2024-01-01 is a Monday.
	start := mustLocal(t, "UTC", "2006-01-02 15:04", "2024-01-01 09:30")

	expr, err := ExpandPreset(PresetWeekly, start)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if expr != "30 9 * * 1" {
		t.Errorf("expected %q, got %q", "30 9 * * 1", expr)
	}
}

func TestExpandWeekdayList_Rejects_OutOfRange(t *testing.T) {
	start := mustLocal(t, "UTC", "2006-01-02 15:04", "2024-01-01 09:30")

	_, err := ExpandWeekdayList([]int{1, 8}, start)
	if err == nil {
		t.Fatal("expected error for weekday out of range")
	}
}

func TestExpandWeekdayList_ComposesCSV(t *testing.T) {
	start := mustLocal(t, "UTC", "2006-01-02 15:04", "2024-01-01 09:30")

	expr, err := ExpandWeekdayList([]int{1, 3, 5}, start)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if expr != "30 9 * * 1,3,5" {
		t.Errorf("expected %q, got %q", "30 9 * * 1,3,5", expr)
	}
}

func TestResolve_CrontabOverridesPreset(t *testing.T) {
	start := mustLocal(t, "UTC", "2006-01-02 15:04", "2024-01-01 09:30")

	expr, err := Resolve("0 5 * * *", PresetDaily, nil, start)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if expr != "0 5 * * *" {
		t.Errorf("explicit crontab should override preset, got %q", expr)
	}
}

func TestResolve_InvalidCrontab(t *testing.T) {
	start := mustLocal(t, "UTC", "2006-01-02 15:04", "2024-01-01 09:30")

	if _, err := Resolve("not a cron", "", nil, start); err == nil {
		t.Fatal("expected InvalidSchedule error")
	}
}

func TestNextFire_StrictlyAfter(t *testing.T) {
	start := mustLocal(t, "America/New_York", "2006-01-02 15:04", "2024-01-01 09:30")

	next, err := NextFire("30 9 * * *", start)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !next.After(start) {
		t.Fatalf("expected next fire strictly after start, got %v", next.Value)
	}
	if next.Value.Day() != 2 {
		t.Errorf("expected next day's 09:30, got %v", next.Value)
	}
}

func TestNextFire_PresetRejectedUntilExpanded(t *testing.T) {
	start := mustLocal(t, "UTC", "2006-01-02 15:04", "2024-01-01 09:30")

	expanded, err := ExpandPreset(PresetDaily, start)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t0 := mustLocal(t, "UTC", "2006-01-02 15:04", "2024-03-15 12:00")
	a, err := NextFire(PresetDaily, t0)
	if err == nil {
		t.Fatalf("presets are not valid crontabs on their own; expected error, got %v", a)
	}

	b, err := NextFire(expanded, t0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Value.Hour() != 9 || b.Value.Minute() != 30 {
		t.Errorf("expected 09:30 fire, got %v", b.Value)
	}
}
