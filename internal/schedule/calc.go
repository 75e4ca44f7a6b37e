// Package schedule holds the pure occurrence arithmetic for routines. All
// functions are zone-aware and side-effect free; the scheduler owns
// persistence and timers.
package schedule

import (
	"fmt"
	"time"

	"github.com/rotinalab/rotinabot/internal/domain"
)

// FirstOccurrence computes the first firing instant strictly after now for a
// recurring routine, or the configured instant for a single-date routine
// (which may be in the past; the scheduler decides what to do with stale
// one-shots).
func FirstOccurrence(r *domain.Routine, now time.Time) (time.Time, error) {
	hour, minute, err := r.ClockTime()
	if err != nil {
		return time.Time{}, err
	}
	loc := r.Location()
	now = now.In(loc)

	switch r.Kind {
	case domain.KindSingleDate:
		day, err := time.ParseInLocation(domain.DateLayout, r.Date, loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: bad date %q", domain.ErrInvalidScheduleSpec, r.Date)
		}
		return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc), nil

	case domain.KindEveryDay:
		at := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, loc)
		if !at.After(now) {
			at = at.AddDate(0, 0, 1)
		}
		return at, nil

	case domain.KindWeekdaySet, domain.KindWeekly, domain.KindBiweekly:
		if len(r.Weekdays) == 0 {
			return time.Time{}, fmt.Errorf("%w: empty weekday set", domain.ErrInvalidScheduleSpec)
		}
		// Today counts if the clock time is still ahead.
		if r.HasWeekday(now.Weekday()) {
			at := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, loc)
			if at.After(now) {
				return at, nil
			}
		}
		for i := 1; i <= 7; i++ {
			day := now.AddDate(0, 0, i)
			if r.HasWeekday(day.Weekday()) {
				return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc), nil
			}
		}
		return time.Time{}, fmt.Errorf("%w: unreachable weekday set", domain.ErrInvalidScheduleSpec)

	case domain.KindDayOfMonth, domain.KindMonthly:
		if r.DayOfMonth < 1 || r.DayOfMonth > 31 {
			return time.Time{}, fmt.Errorf("%w: day of month %d", domain.ErrInvalidScheduleSpec, r.DayOfMonth)
		}
		at := monthOccurrence(now.Year(), now.Month(), r.DayOfMonth, hour, minute, loc)
		if !at.After(now) {
			next := now.AddDate(0, 1, -now.Day()+1) // first day of next month
			at = monthOccurrence(next.Year(), next.Month(), r.DayOfMonth, hour, minute, loc)
		}
		return at, nil

	case domain.KindYearly:
		at := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, loc)
		if !at.After(now) {
			at = at.AddDate(1, 0, 0)
		}
		return at, nil

	default:
		return time.Time{}, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidScheduleSpec, r.Kind)
	}
}

// NextOccurrence advances from the previous firing instant. The result is
// re-normalized to the routine's configured time of day, so an offset base
// (a persisted follow-up check instant, a clamped month day) cannot drift
// the series off its configured minute.
func NextOccurrence(r *domain.Routine, last time.Time) time.Time {
	loc := r.Location()
	last = last.In(loc)

	hour, minute, err := r.ClockTime()
	if err != nil {
		hour, minute = last.Hour(), last.Minute()
	}
	base := time.Date(last.Year(), last.Month(), last.Day(), hour, minute, 0, 0, loc)

	switch r.Kind {
	case domain.KindEveryDay:
		return base.AddDate(0, 0, 1)

	case domain.KindWeekdaySet, domain.KindWeekly:
		for i := 1; i <= 7; i++ {
			day := base.AddDate(0, 0, i)
			if r.HasWeekday(day.Weekday()) {
				return day
			}
		}
		return base.AddDate(0, 0, 7)

	case domain.KindBiweekly:
		return base.AddDate(0, 0, 14)

	case domain.KindDayOfMonth, domain.KindMonthly:
		next := base.AddDate(0, 1, -base.Day()+1)
		return monthOccurrence(next.Year(), next.Month(), r.DayOfMonth, hour, minute, loc)

	case domain.KindYearly:
		return base.AddDate(1, 0, 0)

	default:
		// Single-date routines have no next occurrence; callers never ask.
		return base
	}
}

// monthOccurrence places day-of-month within the given month, clamping to the
// last day when the month is shorter (day 31 in April lands on the 30th).
func monthOccurrence(year int, month time.Month, day, hour, minute int, loc *time.Location) time.Time {
	if last := daysIn(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, hour, minute, 0, 0, loc)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
