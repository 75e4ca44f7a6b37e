package domain

import (
	"errors"
	"strings"
	"time"
)

// ErrInvalidScheduleSpec marks a malformed schedule definition. It is the
// only scheduling error surfaced to the routine's creator; everything else is
// recovered internally.
var ErrInvalidScheduleSpec = errors.New("invalid schedule spec")

// TimestampLayout is the persisted timestamp format. Occurrence instants are
// stored as local wall-clock strings paired with the routine's timezone, so
// every comparison with "now" converts through that zone first.
const TimestampLayout = "2006-01-02 15:04:05"

// DateLayout is the calendar-date format used by single-date routines.
const DateLayout = "2006-01-02"

// CompletionCooldown is how long a recurring task stays marked as completed
// before the flag resets, so the next occurrence is not born pre-completed.
const CompletionCooldown = 30 * time.Minute

type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
)

type ScheduleKind string

const (
	KindSingleDate ScheduleKind = "single_date"
	KindEveryDay   ScheduleKind = "every_day"
	KindWeekdaySet ScheduleKind = "weekday_set"
	KindDayOfMonth ScheduleKind = "day_of_month"
	KindWeekly     ScheduleKind = "weekly"
	KindBiweekly   ScheduleKind = "biweekly"
	KindMonthly    ScheduleKind = "monthly"
	KindYearly     ScheduleKind = "yearly"
)

// Routine is the unit of scheduling: a declarative description of when to
// notify, what to say, and whether the notification opens a completion
// conversation.
type Routine struct {
	ID        string
	OwnerID   int64 // chat to notify
	Message   string
	TimeOfDay string // "HH:MM" in the routine's timezone
	Kind      ScheduleKind

	// Exactly one selector is populated, depending on Kind.
	Date       string         // single_date: "YYYY-MM-DD"
	Weekdays   []time.Weekday // weekday_set, weekly, biweekly
	DayOfMonth int            // day_of_month, monthly: 1-31

	Timezone string
	IsTask   bool
	Status   Status

	Completed        bool
	LastCompletionAt *time.Time

	// NextOccurrenceAt is the single field re-armed on every cycle and the
	// source of truth for restart reconciliation. For tasks it also carries
	// pending follow-up check instants.
	NextOccurrenceAt *time.Time

	CreatedAt time.Time
}

func (r *Routine) IsRecurring() bool {
	return r.Kind != KindSingleDate
}

// Location resolves the routine's IANA timezone. Creation validates the zone,
// so a failed lookup here only happens for hand-edited records; those fall
// back to UTC.
func (r *Routine) Location() *time.Location {
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ClockTime parses TimeOfDay into hour and minute.
func (r *Routine) ClockTime() (hour, minute int, err error) {
	t, err := time.Parse("15:04", r.TimeOfDay)
	if err != nil {
		return 0, 0, ErrInvalidScheduleSpec
	}
	return t.Hour(), t.Minute(), nil
}

func (r *Routine) HasWeekday(d time.Weekday) bool {
	for _, wd := range r.Weekdays {
		if wd == d {
			return true
		}
	}
	return false
}

var weekdayNames = map[string]time.Weekday{
	"domingo": time.Sunday,
	"segunda": time.Monday,
	"terça":   time.Tuesday,
	"terca":   time.Tuesday,
	"quarta":  time.Wednesday,
	"quinta":  time.Thursday,
	"sexta":   time.Friday,
	"sábado":  time.Saturday,
	"sabado":  time.Saturday,
}

// ParseWeekday maps a Portuguese weekday name ("segunda", "terça-feira") to
// its index. Accent-stripped spellings are accepted because extracted fields
// often arrive sanitized.
func ParseWeekday(name string) (time.Weekday, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.TrimSuffix(name, "-feira")
	wd, ok := weekdayNames[name]
	return wd, ok
}

// WeekdayName returns the Portuguese name for a weekday index.
func WeekdayName(d time.Weekday) string {
	switch d {
	case time.Sunday:
		return "domingo"
	case time.Monday:
		return "segunda"
	case time.Tuesday:
		return "terça"
	case time.Wednesday:
		return "quarta"
	case time.Thursday:
		return "quinta"
	case time.Friday:
		return "sexta"
	default:
		return "sábado"
	}
}
