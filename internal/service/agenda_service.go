package service

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"

	"github.com/rotinalab/rotinabot/internal/clients/caldav"
	"github.com/rotinalab/rotinabot/internal/domain"
	"github.com/rotinalab/rotinabot/internal/storage"
)

// AgendaService renders upcoming occurrences as text, exports them as an
// iCalendar document, and optionally publishes them to a CalDAV server.
type AgendaService struct {
	storage *storage.Storage
	caldav  *caldav.Client
}

func NewAgendaService(st *storage.Storage, cd *caldav.Client) *AgendaService {
	return &AgendaService{storage: st, caldav: cd}
}

// DailyText renders the routines that fire on the given day for one chat.
// Empty when nothing is planned.
func (s *AgendaService) DailyText(chatID int64, day time.Time) (string, error) {
	routines, err := s.storage.ListRoutinesByOwner(chatID)
	if err != nil {
		return "", fmt.Errorf("list routines: %w", err)
	}

	var lines []string
	for _, r := range routines {
		if r.Status != domain.StatusActive || r.NextOccurrenceAt == nil {
			continue
		}
		at := r.NextOccurrenceAt.In(r.Location())
		sameDay := at.Year() == day.Year() && at.YearDay() == day.YearDay()
		if !sameDay {
			continue
		}
		icon := "🔔"
		if r.IsTask {
			icon = "📌"
		}
		lines = append(lines, fmt.Sprintf("%s <b>%s</b> — %s", icon, at.Format("15:04"), r.Message))
	}
	if len(lines) == 0 {
		return "", nil
	}

	sort.Strings(lines)
	return "☀️ <b>Bom dia! Agenda de hoje:</b>\n\n" + strings.Join(lines, "\n"), nil
}

// WeeklyText renders the owner's routines grouped by weekday.
func (s *AgendaService) WeeklyText(chatID int64) (string, error) {
	routines, err := s.storage.ListRoutinesByOwner(chatID)
	if err != nil {
		return "", fmt.Errorf("list routines: %w", err)
	}

	byDay := make(map[time.Weekday][]string)
	var rest []string
	for _, r := range routines {
		if r.Status != domain.StatusActive {
			continue
		}
		entry := fmt.Sprintf("  %s — %s", r.TimeOfDay, r.Message)
		switch r.Kind {
		case domain.KindEveryDay:
			for d := time.Sunday; d <= time.Saturday; d++ {
				byDay[d] = append(byDay[d], entry)
			}
		case domain.KindWeekdaySet, domain.KindWeekly, domain.KindBiweekly:
			for _, d := range r.Weekdays {
				byDay[d] = append(byDay[d], entry)
			}
		default:
			rest = append(rest, fmt.Sprintf("  %s às %s — %s", describeSchedule(r), r.TimeOfDay, r.Message))
		}
	}

	if len(byDay) == 0 && len(rest) == 0 {
		return "📭 Nenhuma rotina ativa nesta semana.", nil
	}

	var b strings.Builder
	b.WriteString("🗓 <b>Agenda da semana:</b>\n")
	for d := time.Monday; ; d = (d + 1) % 7 {
		if entries := byDay[d]; len(entries) > 0 {
			sort.Strings(entries)
			b.WriteString(fmt.Sprintf("\n<b>%s</b>\n%s\n", capitalize(domain.WeekdayName(d)), strings.Join(entries, "\n")))
		}
		if d == time.Sunday {
			break
		}
	}
	if len(rest) > 0 {
		b.WriteString("\n<b>Outras</b>\n" + strings.Join(rest, "\n") + "\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// BuildICS exports the owner's active routines as an iCalendar document with
// RRULE recurrence, suitable for import into any calendar app.
func (s *AgendaService) BuildICS(chatID int64) ([]byte, error) {
	routines, err := s.storage.ListRoutinesByOwner(chatID)
	if err != nil {
		return nil, fmt.Errorf("list routines: %w", err)
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//rotinabot//agenda//PT")

	for _, r := range routines {
		if r.Status != domain.StatusActive || r.NextOccurrenceAt == nil {
			continue
		}
		event, err := routineEvent(r)
		if err != nil {
			return nil, fmt.Errorf("routine %s: %w", r.ID, err)
		}
		cal.Children = append(cal.Children, event.Component)
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("encode calendar: %w", err)
	}
	return buf.Bytes(), nil
}

// PublishCalDAV uploads the owner's upcoming occurrences to the configured
// CalDAV calendar.
func (s *AgendaService) PublishCalDAV(ctx context.Context, chatID int64) (int, error) {
	if s.caldav == nil || !s.caldav.IsConfigured() {
		return 0, fmt.Errorf("caldav is not configured")
	}

	routines, err := s.storage.ListRoutinesByOwner(chatID)
	if err != nil {
		return 0, fmt.Errorf("list routines: %w", err)
	}

	published := 0
	for _, r := range routines {
		if r.Status != domain.StatusActive || r.NextOccurrenceAt == nil {
			continue
		}
		rule, err := rruleFor(r)
		if err != nil {
			return published, fmt.Errorf("routine %s: %w", r.ID, err)
		}
		ev := &caldav.Event{
			UID:       r.ID + "@rotinabot",
			Summary:   r.Message,
			StartTime: r.NextOccurrenceAt.UTC(),
			EndTime:   r.NextOccurrenceAt.Add(15 * time.Minute).UTC(),
			RRule:     rule,
		}
		if err := s.caldav.CreateEvent(ctx, ev); err != nil {
			return published, fmt.Errorf("publish routine %s: %w", r.ID, err)
		}
		published++
	}
	return published, nil
}

func capitalize(s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return s
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func routineEvent(r *domain.Routine) (*ical.Event, error) {
	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, r.ID+"@rotinabot")
	event.Props.SetText(ical.PropSummary, r.Message)
	event.Props.SetDateTime(ical.PropDateTimeStart, r.NextOccurrenceAt.UTC())
	event.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())

	rule, err := rruleFor(r)
	if err != nil {
		return nil, err
	}
	if rule != "" {
		// Raw property: SetText would escape the commas inside BYDAY.
		event.Props.Set(&ical.Prop{Name: ical.PropRecurrenceRule, Value: rule})
	}
	return event, nil
}

// rruleFor translates a recurring routine into an RRULE string. The options
// go through rrule.NewRRule for validation before being serialized.
func rruleFor(r *domain.Routine) (string, error) {
	opt := rrule.ROption{Dtstart: time.Time{}}

	switch r.Kind {
	case domain.KindSingleDate:
		return "", nil
	case domain.KindEveryDay:
		opt.Freq = rrule.DAILY
	case domain.KindWeekdaySet, domain.KindWeekly:
		opt.Freq = rrule.WEEKLY
		opt.Byweekday = rruleWeekdays(r.Weekdays)
	case domain.KindBiweekly:
		opt.Freq = rrule.WEEKLY
		opt.Interval = 2
		opt.Byweekday = rruleWeekdays(r.Weekdays)
	case domain.KindDayOfMonth, domain.KindMonthly:
		opt.Freq = rrule.MONTHLY
		opt.Bymonthday = []int{r.DayOfMonth}
	case domain.KindYearly:
		opt.Freq = rrule.YEARLY
	default:
		return "", fmt.Errorf("%w: kind %q", domain.ErrInvalidScheduleSpec, r.Kind)
	}

	if _, err := rrule.NewRRule(opt); err != nil {
		return "", fmt.Errorf("build rrule: %w", err)
	}
	return opt.RRuleString(), nil
}

func rruleWeekdays(days []time.Weekday) []rrule.Weekday {
	table := map[time.Weekday]rrule.Weekday{
		time.Monday:    rrule.MO,
		time.Tuesday:   rrule.TU,
		time.Wednesday: rrule.WE,
		time.Thursday:  rrule.TH,
		time.Friday:    rrule.FR,
		time.Saturday:  rrule.SA,
		time.Sunday:    rrule.SU,
	}
	out := make([]rrule.Weekday, 0, len(days))
	for _, d := range days {
		out = append(out, table[d])
	}
	return out
}
