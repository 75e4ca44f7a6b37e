package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rotinalab/rotinabot/internal/domain"
)

const tzSaoPaulo = "America/Sao_Paulo"

func loc(t *testing.T) *time.Location {
	t.Helper()
	l, err := time.LoadLocation(tzSaoPaulo)
	require.NoError(t, err)
	return l
}

func TestFirstOccurrenceWeekdaySetSameDay(t *testing.T) {
	l := loc(t)
	r := &domain.Routine{
		Kind:      domain.KindWeekdaySet,
		Weekdays:  []time.Weekday{time.Monday, time.Wednesday},
		TimeOfDay: "09:00",
		Timezone:  tzSaoPaulo,
	}

	// Monday 08:00, before the configured time: fires today.
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, l)
	at, err := FirstOccurrence(r, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, l), at)
}

func TestFirstOccurrenceWeekdaySetNextDay(t *testing.T) {
	l := loc(t)
	r := &domain.Routine{
		Kind:      domain.KindWeekdaySet,
		Weekdays:  []time.Weekday{time.Monday, time.Wednesday},
		TimeOfDay: "09:00",
		Timezone:  tzSaoPaulo,
	}

	// Monday 10:00, past the configured time: next eligible day is Wednesday.
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, l)
	at, err := FirstOccurrence(r, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 4, 9, 0, 0, 0, l), at)
}

func TestFirstOccurrenceDayOfMonthRollsToNextMonth(t *testing.T) {
	l := loc(t)
	r := &domain.Routine{
		Kind:       domain.KindDayOfMonth,
		DayOfMonth: 10,
		TimeOfDay:  "09:00",
		Timezone:   tzSaoPaulo,
	}

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, l)
	at, err := FirstOccurrence(r, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 4, 10, 9, 0, 0, 0, l), at)
}

func TestFirstOccurrenceDayOfMonthClamps(t *testing.T) {
	l := loc(t)
	r := &domain.Routine{
		Kind:       domain.KindDayOfMonth,
		DayOfMonth: 31,
		TimeOfDay:  "09:00",
		Timezone:   tzSaoPaulo,
	}

	// April has 30 days.
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, l)
	at, err := FirstOccurrence(r, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 4, 30, 9, 0, 0, 0, l), at)
}

func TestFirstOccurrenceEveryDay(t *testing.T) {
	l := loc(t)
	r := &domain.Routine{
		Kind:      domain.KindEveryDay,
		TimeOfDay: "07:30",
		Timezone:  tzSaoPaulo,
	}

	now := time.Date(2026, 3, 2, 7, 30, 0, 0, l)
	at, err := FirstOccurrence(r, now)
	require.NoError(t, err)
	// Exactly at the configured minute counts as past; tomorrow it is.
	assert.Equal(t, time.Date(2026, 3, 3, 7, 30, 0, 0, l), at)
}

func TestFirstOccurrenceSingleDate(t *testing.T) {
	l := loc(t)
	r := &domain.Routine{
		Kind:      domain.KindSingleDate,
		Date:      "2026-05-20",
		TimeOfDay: "14:00",
		Timezone:  tzSaoPaulo,
	}

	now := time.Date(2026, 3, 2, 8, 0, 0, 0, l)
	at, err := FirstOccurrence(r, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 5, 20, 14, 0, 0, 0, l), at)

	// Past dates come back unchanged; the scheduler decides what to do.
	past := &domain.Routine{Kind: domain.KindSingleDate, Date: "2020-01-01", TimeOfDay: "08:00", Timezone: tzSaoPaulo}
	at, err = FirstOccurrence(past, now)
	require.NoError(t, err)
	assert.True(t, at.Before(now))
}

func TestFirstOccurrenceInvalidSpecs(t *testing.T) {
	l := loc(t)
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, l)

	cases := map[string]*domain.Routine{
		"bad time":      {Kind: domain.KindEveryDay, TimeOfDay: "25:99", Timezone: tzSaoPaulo},
		"bad date":      {Kind: domain.KindSingleDate, Date: "tomorrow", TimeOfDay: "08:00", Timezone: tzSaoPaulo},
		"empty set":     {Kind: domain.KindWeekdaySet, TimeOfDay: "08:00", Timezone: tzSaoPaulo},
		"bad month day": {Kind: domain.KindDayOfMonth, DayOfMonth: 40, TimeOfDay: "08:00", Timezone: tzSaoPaulo},
		"unknown kind":  {Kind: "hourly", TimeOfDay: "08:00", Timezone: tzSaoPaulo},
	}
	for name, r := range cases {
		_, err := FirstOccurrence(r, now)
		assert.ErrorIs(t, err, domain.ErrInvalidScheduleSpec, name)
	}
}

func TestNextOccurrenceBiweekly(t *testing.T) {
	l := loc(t)
	r := &domain.Routine{
		Kind:      domain.KindBiweekly,
		Weekdays:  []time.Weekday{time.Friday},
		TimeOfDay: "18:00",
		Timezone:  tzSaoPaulo,
	}

	last := time.Date(2026, 3, 6, 18, 0, 0, 0, l)
	assert.Equal(t, time.Date(2026, 3, 20, 18, 0, 0, 0, l), NextOccurrence(r, last))
}

func TestNextOccurrenceMonthlyClampAndRecover(t *testing.T) {
	l := loc(t)
	r := &domain.Routine{
		Kind:       domain.KindDayOfMonth,
		DayOfMonth: 31,
		TimeOfDay:  "09:00",
		Timezone:   tzSaoPaulo,
	}

	// January 31 advances to February's last day, then back to March 31.
	jan := time.Date(2026, 1, 31, 9, 0, 0, 0, l)
	feb := NextOccurrence(r, jan)
	assert.Equal(t, time.Date(2026, 2, 28, 9, 0, 0, 0, l), feb)
	assert.Equal(t, time.Date(2026, 3, 31, 9, 0, 0, 0, l), NextOccurrence(r, feb))
}

func TestNextOccurrenceRenormalizesToTimeOfDay(t *testing.T) {
	l := loc(t)
	// The base instant carries a +10m offset, as left behind by a persisted
	// completion-check instant. The series must return to the configured
	// minute, not inherit the offset.
	last := time.Date(2026, 3, 2, 9, 10, 0, 0, l)

	daily := &domain.Routine{Kind: domain.KindEveryDay, TimeOfDay: "09:00", Timezone: tzSaoPaulo}
	assert.Equal(t, time.Date(2026, 3, 3, 9, 0, 0, 0, l), NextOccurrence(daily, last))

	weekly := &domain.Routine{
		Kind: domain.KindWeekdaySet, Weekdays: []time.Weekday{time.Monday},
		TimeOfDay: "09:00", Timezone: tzSaoPaulo,
	}
	assert.Equal(t, time.Date(2026, 3, 9, 9, 0, 0, 0, l), NextOccurrence(weekly, last))

	monthly := &domain.Routine{Kind: domain.KindDayOfMonth, DayOfMonth: 2, TimeOfDay: "09:00", Timezone: tzSaoPaulo}
	assert.Equal(t, time.Date(2026, 4, 2, 9, 0, 0, 0, l), NextOccurrence(monthly, last))
}

func TestNextOccurrenceYearly(t *testing.T) {
	l := loc(t)
	r := &domain.Routine{Kind: domain.KindYearly, TimeOfDay: "10:00", Timezone: tzSaoPaulo}

	last := time.Date(2026, 6, 15, 10, 0, 0, 0, l)
	assert.Equal(t, time.Date(2027, 6, 15, 10, 0, 0, 0, l), NextOccurrence(r, last))
}

func TestRecurringSequencesStrictlyIncrease(t *testing.T) {
	l := loc(t)
	routines := []*domain.Routine{
		{Kind: domain.KindEveryDay, TimeOfDay: "08:00", Timezone: tzSaoPaulo},
		{Kind: domain.KindWeekdaySet, Weekdays: []time.Weekday{time.Tuesday, time.Saturday}, TimeOfDay: "08:00", Timezone: tzSaoPaulo},
		{Kind: domain.KindBiweekly, Weekdays: []time.Weekday{time.Monday}, TimeOfDay: "08:00", Timezone: tzSaoPaulo},
		{Kind: domain.KindDayOfMonth, DayOfMonth: 29, TimeOfDay: "08:00", Timezone: tzSaoPaulo},
		{Kind: domain.KindYearly, TimeOfDay: "08:00", Timezone: tzSaoPaulo},
	}

	now := time.Date(2026, 1, 10, 12, 0, 0, 0, l)
	for _, r := range routines {
		at, err := FirstOccurrence(r, now)
		require.NoError(t, err)
		assert.True(t, at.After(now), "first occurrence must be in the future for %s", r.Kind)

		for i := 0; i < 30; i++ {
			next := NextOccurrence(r, at)
			assert.True(t, next.After(at), "%s occurrence %d did not advance", r.Kind, i)
			at = next
		}
	}
}
