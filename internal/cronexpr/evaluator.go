// Package cronexpr computes next-fire instants from a crontab string (or
// preset alias) and a local timestamp. It is grounded on
// github.com/adhocore/gronx, the cron parser/evaluator the teacher
// (itsddvn-goclaw) already depends on for its JSON-backed cron jobs
// (internal/cron/service.go computeNextRun/validateSchedule); this package
// generalizes that usage into the richer schedule surface spec.md §4.1 and
// §6 describe (presets, weekday lists, explicit overrides).
package cronexpr

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adhocore/gronx"
)

// ErrInvalidSchedule is returned by ExpandPreset, ExpandWeekdayList,
// Resolve and NextFire for anything
// the 5-field standard (or the weekday-list extension) rejects.
type ErrInvalidSchedule struct {
	Expr   string
	Reason string
}

func (e *ErrInvalidSchedule) Error() string {
	return fmt.Sprintf("invalid schedule %q: %s", e.Expr, e.Reason)
}

// Preset aliases accepted in addition to raw 5-field crontabs.
const (
	PresetHourly      = "@hourly"
	PresetDaily       = "@daily"
	PresetWeekly      = "@weekly"
	PresetWeekdayDaily = "@weekdaydaily"
)

var gx = gronx.New()

// ValidCrontab reports whether expr is a well-formed 5-field crontab.
// Preset aliases are not valid raw crontabs; callers should expand them
// first via ExpandPreset.
func ValidCrontab(expr string) bool {
	return len(strings.Fields(expr)) == 5 && gx.IsValid(expr)
}

// ExpandPreset turns a preset alias into a concrete 5-field crontab using
// the job's start time, per spec.md §4.1:
//
//	minute, hour  := start.Minute(), start.Hour()
//	weekday       := isoWeekday(start)   // Monday=1 ... Sunday=7
func ExpandPreset(preset string, start LocalTs) (string, error) {
	m := start.Value.Minute()
	h := start.Value.Hour()
	wd := isoWeekday(start.Value)

	switch preset {
	case PresetHourly:
		return fmt.Sprintf("%d * * * *", m), nil
	case PresetDaily:
		return fmt.Sprintf("%d %d * * *", m, h), nil
	case PresetWeekly:
		return fmt.Sprintf("%d %d * * %d", m, h, wd), nil
	case PresetWeekdayDaily:
		return fmt.Sprintf("%d %d * * 1-5", m, h), nil
	default:
		return "", &ErrInvalidSchedule{Expr: preset, Reason: "unknown preset"}
	}
}

// isoWeekday maps Go's Sunday=0..Saturday=6 to the spec's Monday=1..Sunday=7.
func isoWeekday(t time.Time) int {
	switch t.Weekday() {
	case time.Sunday:
		return 7
	default:
		return int(t.Weekday())
	}
}

// ExpandWeekdayList composes the "other" schedule surface from spec.md §6:
// a comma-separated list of 1-7 integers becomes "{m} {h} * * {csv}".
// Returns ErrInvalidSchedule if any value falls outside 1-7.
func ExpandWeekdayList(weekdays []int, start LocalTs) (string, error) {
	if len(weekdays) == 0 {
		return "", &ErrInvalidSchedule{Reason: "weekday_to_run must not be empty"}
	}
	parts := make([]string, 0, len(weekdays))
	for _, d := range weekdays {
		if d < 1 || d > 7 {
			return "", &ErrInvalidSchedule{Reason: fmt.Sprintf("weekday %d out of range 1-7", d)}
		}
		parts = append(parts, strconv.Itoa(d))
	}
	m := start.Value.Minute()
	h := start.Value.Hour()
	return fmt.Sprintf("%d %d * * %s", m, h, strings.Join(parts, ",")), nil
}

// Resolve picks the effective crontab for a job's schedule inputs, applying
// the override rule from spec.md §6: a non-empty scheduleIntervalCrontab
// always wins over a preset or weekday list.
func Resolve(scheduleIntervalCrontab, preset string, weekdayToRun []int, start LocalTs) (string, error) {
	if strings.TrimSpace(scheduleIntervalCrontab) != "" {
		if !ValidCrontab(scheduleIntervalCrontab) {
			return "", &ErrInvalidSchedule{Expr: scheduleIntervalCrontab, Reason: "not a valid 5-field crontab"}
		}
		return scheduleIntervalCrontab, nil
	}
	if len(weekdayToRun) > 0 {
		return ExpandWeekdayList(weekdayToRun, start)
	}
	if preset != "" {
		return ExpandPreset(preset, start)
	}
	return "", &ErrInvalidSchedule{Reason: "no schedule_interval, weekday_to_run or preset supplied"}
}

// NextFire returns the first fire time of expr strictly after after, ties
// breaking upward (spec.md §4.1: "next_fire is strictly greater than its
// argument; ties break upward").
func NextFire(expr string, after LocalTs) (LocalTs, error) {
	if !ValidCrontab(expr) {
		return LocalTs{}, &ErrInvalidSchedule{Expr: expr, Reason: "not a valid 5-field crontab"}
	}
	loc := after.Value.Location()
	next, err := gronx.NextTickAfter(expr, after.Value, false)
	if err != nil {
		return LocalTs{}, fmt.Errorf("next fire for %q: %w", expr, err)
	}
	next = next.In(loc)
	if !next.After(after.Value) {
		// gronx.NextTickAfter with inclRefTime=false already guarantees a
		// strictly-later tick; this is a defensive nudge for any exact-tie
		// edge case so the invariant always holds.
		next, err = gronx.NextTickAfter(expr, next, false)
		if err != nil {
			return LocalTs{}, fmt.Errorf("next fire for %q: %w", expr, err)
		}
		next = next.In(loc)
	}
	return LocalTs{Zone: after.Zone, Value: next}, nil
}
