package cronexpr

import "time"

// LocalTs is a wall-clock timestamp expressed in a job's configured IANA
// zone. The zone travels with the value so arithmetic never silently
// crosses zones — the teacher's JSON-file cron store only ever dealt in
// naive epoch-millis, which is exactly the confusion spec.md §9 calls out.
type LocalTs struct {
	Zone  string
	Value time.Time
}

// NewLocalTs builds a LocalTs, loading the zone and reinterpreting value's
// wall-clock fields (not its instant) in that zone. value must already be a
// naive "local digits with an arbitrary Location attached" timestamp — job
// input fields like start_dt, which spec.md §3 stores "in the job's local
// zone (no zone attached)". Never feed this a genuine instant (e.g. a clock
// reading); use LocalNow for that instead, since re-labeling an instant's
// digits into a different zone shifts it by the zone offset.
func NewLocalTs(zone string, value time.Time) (LocalTs, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return LocalTs{}, err
	}
	wall := time.Date(value.Year(), value.Month(), value.Day(),
		value.Hour(), value.Minute(), value.Second(), value.Nanosecond(), loc)
	return LocalTs{Zone: zone, Value: wall}, nil
}

// LocalNow converts instant — a genuine absolute instant, such as a UTC
// clock reading — into the wall-clock time it represents in zone, via
// value.In(loc). This is the operation the scheduler's due-check,
// end_dt-deactivation and daily-reset steps need: "what time is it right
// now, in the job's zone", not a digit relabeling.
func LocalNow(zone string, instant time.Time) (LocalTs, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return LocalTs{}, err
	}
	return LocalTs{Zone: zone, Value: instant.In(loc)}, nil
}

// UtcTs is an absolute instant. Only the scheduler's due-check converts a
// LocalTs into a UtcTs (spec.md §6: "Any conversion to UTC happens only at
// the scheduler's due-check").
type UtcTs struct {
	Value time.Time
}

// ToUTC converts a LocalTs to the UtcTs of the same instant.
func (t LocalTs) ToUTC() UtcTs {
	return UtcTs{Value: t.Value.UTC()}
}

// Before reports whether t occurs before other (same zone assumed).
func (t LocalTs) Before(other LocalTs) bool {
	return t.Value.Before(other.Value)
}

// After reports whether t occurs after other.
func (t LocalTs) After(other LocalTs) bool {
	return t.Value.After(other.Value)
}

func (t UtcTs) Before(other UtcTs) bool { return t.Value.Before(other.Value) }
func (t UtcTs) After(other UtcTs) bool  { return t.Value.After(other.Value) }

// TodayAt returns a LocalTs for today's date (in ref's zone) at the
// time-of-day carried by timeOfDay, per spec.md's reset_status_at rule.
func TodayAt(ref LocalTs, timeOfDay time.Time) LocalTs {
	loc := ref.Value.Location()
	v := time.Date(ref.Value.Year(), ref.Value.Month(), ref.Value.Day(),
		timeOfDay.Hour(), timeOfDay.Minute(), timeOfDay.Second(), 0, loc)
	return LocalTs{Zone: ref.Zone, Value: v}
}
