package schedule

import (
	"strconv"
	"strings"
	"time"
)

func computeInitialNextRun(sc Schedule) int64 {
	now := time.Now()
	switch sc.Kind {
	case ScheduleOnce:
		return now.Add(sc.Delay).UnixNano()
	default:
		return nextRunAfter(sc, now)
	}
}

// nextRunAfter computes the next run time strictly after from, per the
// schedule kind (spec §4.10).
func nextRunAfter(sc Schedule, from time.Time) int64 {
	switch sc.Kind {
	case ScheduleOnce:
		return from.Add(sc.Delay).UnixNano()
	case ScheduleInterval:
		interval := sc.Interval
		if interval <= 0 {
			interval = time.Minute
		}
		return from.Add(interval).UnixNano()
	case ScheduleDaily:
		next := time.Date(from.Year(), from.Month(), from.Day(), sc.Hour, sc.Minute, 0, 0, from.Location())
		if !next.After(from) {
			next = next.AddDate(0, 0, 1)
		}
		return next.UnixNano()
	case ScheduleWeekly:
		next := time.Date(from.Year(), from.Month(), from.Day(), sc.Hour, sc.Minute, 0, 0, from.Location())
		for next.Weekday() != sc.Weekday || !next.After(from) {
			next = next.AddDate(0, 0, 1)
		}
		return next.UnixNano()
	case ScheduleCron:
		return nextCronRun(sc.CronFields, from).UnixNano()
	default:
		return from.Add(time.Minute).UnixNano()
	}
}

// nextCronRun implements a minimal 5-field ("min hour dom month dow")
// cron matcher supporting "*" and comma-separated integer lists — not a
// full cron grammar (step/range syntax is out of scope here), but
// enough to drive a housekeeping schedule. It scans minute-by-minute
// up to 366 days ahead.
func nextCronRun(fields string, from time.Time) time.Time {
	parts := strings.Fields(fields)
	if len(parts) != 5 {
		return from.Add(time.Hour)
	}
	minuteSet := parseCronField(parts[0], 0, 59)
	hourSet := parseCronField(parts[1], 0, 23)
	domSet := parseCronField(parts[2], 1, 31)
	monthSet := parseCronField(parts[3], 1, 12)
	dowSet := parseCronField(parts[4], 0, 6)

	t := from.Truncate(time.Minute).Add(time.Minute)
	limit := from.AddDate(1, 0, 0)
	for t.Before(limit) {
		if minuteSet[t.Minute()] && hourSet[t.Hour()] && domSet[t.Day()] &&
			monthSet[int(t.Month())] && dowSet[int(t.Weekday())] {
			return t
		}
		t = t.Add(time.Minute)
	}
	return from.Add(24 * time.Hour)
}

func parseCronField(field string, min, max int) map[int]bool {
	set := make(map[int]bool)
	if field == "*" {
		for i := min; i <= max; i++ {
			set[i] = true
		}
		return set
	}
	for _, tok := range strings.Split(field, ",") {
		if v, err := strconv.Atoi(tok); err == nil {
			set[v] = true
		}
	}
	return set
}
