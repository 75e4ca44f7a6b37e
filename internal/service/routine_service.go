package service

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rotinalab/rotinabot/internal/domain"
	"github.com/rotinalab/rotinabot/internal/schedule"
	"github.com/rotinalab/rotinabot/internal/storage"
)

var timeOfDayRe = regexp.MustCompile(`^\d{2}:\d{2}$`)

// Armer is the scheduler surface the service needs: arm on create, tear down
// on delete.
type Armer interface {
	Arm(r *domain.Routine) error
	Cancel(id string)
}

// Extractor turns free text into structured routine fields. The Groq client
// implements it; tests use a stub.
type Extractor interface {
	ExtractRoutine(ctx context.Context, text string, now time.Time) (*Extraction, error)
}

// Extraction mirrors the fields the language model returns.
type Extraction struct {
	DayOrDate  string `json:"dia"`
	Time       string `json:"horario"`
	Message    string `json:"mensagem"`
	Type       string `json:"tipo"`      // "unica" or "repetitiva"
	Repetition string `json:"repeticao"` // diariamente, semanalmente, ...
	IsTask     bool   `json:"tarefa"`
}

type RoutineService struct {
	storage   *storage.Storage
	armer     Armer
	extractor Extractor
	defaultTZ string
}

func NewRoutineService(st *storage.Storage, armer Armer, extractor Extractor, defaultTZ string) *RoutineService {
	return &RoutineService{storage: st, armer: armer, extractor: extractor, defaultTZ: defaultTZ}
}

type CreateParams struct {
	OwnerID    int64
	Message    string
	TimeOfDay  string
	Kind       domain.ScheduleKind
	Date       string
	Weekdays   []time.Weekday
	DayOfMonth int
	Timezone   string
	IsTask     bool
}

// Create validates the schedule, persists the routine, and arms its timer.
// Validation failures wrap ErrInvalidScheduleSpec so callers can answer the
// creator; anything past validation is an internal error.
func (s *RoutineService) Create(p CreateParams) (*domain.Routine, error) {
	if strings.TrimSpace(p.Message) == "" {
		return nil, fmt.Errorf("%w: empty message", domain.ErrInvalidScheduleSpec)
	}
	if !timeOfDayRe.MatchString(p.TimeOfDay) {
		return nil, fmt.Errorf("%w: time of day %q", domain.ErrInvalidScheduleSpec, p.TimeOfDay)
	}

	tz := p.Timezone
	if tz == "" {
		tz = s.defaultTZ
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return nil, fmt.Errorf("%w: timezone %q", domain.ErrInvalidScheduleSpec, tz)
	}

	r := &domain.Routine{
		ID:         uuid.NewString(),
		OwnerID:    p.OwnerID,
		Message:    strings.TrimSpace(p.Message),
		TimeOfDay:  p.TimeOfDay,
		Kind:       p.Kind,
		Date:       p.Date,
		Weekdays:   p.Weekdays,
		DayOfMonth: p.DayOfMonth,
		Timezone:   tz,
		IsTask:     p.IsTask,
		Status:     domain.StatusActive,
	}

	if err := validateSelector(r); err != nil {
		return nil, err
	}

	now := time.Now()
	first, err := schedule.FirstOccurrence(r, now)
	if err != nil {
		return nil, err
	}
	if r.Kind == domain.KindSingleDate && !first.After(now) {
		return nil, fmt.Errorf("%w: date %s %s is in the past", domain.ErrInvalidScheduleSpec, r.Date, r.TimeOfDay)
	}
	local := first.In(r.Location())
	r.NextOccurrenceAt = &local

	if err := s.storage.CreateRoutine(r); err != nil {
		return nil, fmt.Errorf("create routine: %w", err)
	}
	if err := s.armer.Arm(r); err != nil {
		return nil, fmt.Errorf("arm routine: %w", err)
	}
	return r, nil
}

func validateSelector(r *domain.Routine) error {
	switch r.Kind {
	case domain.KindSingleDate:
		if _, err := time.Parse(domain.DateLayout, r.Date); err != nil {
			return fmt.Errorf("%w: date %q", domain.ErrInvalidScheduleSpec, r.Date)
		}
	case domain.KindEveryDay, domain.KindYearly:
		// No selector.
	case domain.KindWeekdaySet, domain.KindWeekly, domain.KindBiweekly:
		if len(r.Weekdays) == 0 {
			return fmt.Errorf("%w: weekday set required for %s", domain.ErrInvalidScheduleSpec, r.Kind)
		}
	case domain.KindDayOfMonth, domain.KindMonthly:
		if r.DayOfMonth < 1 || r.DayOfMonth > 31 {
			return fmt.Errorf("%w: day of month %d", domain.ErrInvalidScheduleSpec, r.DayOfMonth)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidScheduleSpec, r.Kind)
	}
	return nil
}

// CreateFromText runs the extractor over free text and maps its fields onto
// CreateParams.
func (s *RoutineService) CreateFromText(ctx context.Context, ownerID int64, text string) (*domain.Routine, error) {
	if s.extractor == nil {
		return nil, fmt.Errorf("no extractor configured")
	}

	ex, err := s.extractor.ExtractRoutine(ctx, text, time.Now())
	if err != nil {
		return nil, fmt.Errorf("extract routine: %w", err)
	}

	p := CreateParams{
		OwnerID:   ownerID,
		Message:   ex.Message,
		TimeOfDay: ex.Time,
		IsTask:    ex.IsTask,
	}

	if ex.Type == "unica" {
		p.Kind = domain.KindSingleDate
		p.Date = ex.DayOrDate
		return s.Create(p)
	}

	switch {
	case strings.Contains(ex.Repetition, "diariamente"):
		p.Kind = domain.KindEveryDay
	case strings.Contains(ex.Repetition, "2 semanas"):
		p.Kind = domain.KindBiweekly
		p.Weekdays = parseWeekdayList(ex.DayOrDate)
	case strings.Contains(ex.Repetition, "semanalmente"):
		p.Kind = domain.KindWeekly
		p.Weekdays = parseWeekdayList(ex.DayOrDate)
	case strings.Contains(ex.Repetition, "mensalmente"):
		p.Kind = domain.KindDayOfMonth
		p.DayOfMonth, _ = strconv.Atoi(strings.TrimSpace(ex.DayOrDate))
	case strings.Contains(ex.Repetition, "anualmente"):
		p.Kind = domain.KindYearly
	default:
		return nil, fmt.Errorf("%w: repetition %q", domain.ErrInvalidScheduleSpec, ex.Repetition)
	}

	return s.Create(p)
}

func parseWeekdayList(v string) []time.Weekday {
	var days []time.Weekday
	for _, part := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ';' }) {
		if wd, ok := domain.ParseWeekday(part); ok {
			days = append(days, wd)
		}
	}
	return days
}

func (s *RoutineService) List(ownerID int64) ([]*domain.Routine, error) {
	return s.storage.ListRoutinesByOwner(ownerID)
}

func (s *RoutineService) Get(id string) (*domain.Routine, error) {
	return s.storage.GetRoutine(id)
}

// Delete removes a routine owned by the given chat and stops its timers.
func (s *RoutineService) Delete(id string, ownerID int64) error {
	r, err := s.storage.GetRoutine(id)
	if err != nil {
		return fmt.Errorf("load routine: %w", err)
	}
	if r == nil || r.OwnerID != ownerID {
		return fmt.Errorf("routine not found")
	}

	s.armer.Cancel(id)
	if err := s.storage.DeleteRoutine(id); err != nil {
		return fmt.Errorf("delete routine: %w", err)
	}
	return nil
}

// FormatList renders the owner's routines for Telegram.
func (s *RoutineService) FormatList(routines []*domain.Routine) string {
	if len(routines) == 0 {
		return "📭 Você ainda não tem rotinas cadastradas."
	}

	var b strings.Builder
	b.WriteString("📋 <b>Suas rotinas:</b>\n\n")
	for i, r := range routines {
		icon := "🔔"
		if r.IsTask {
			icon = "📌"
		}
		b.WriteString(fmt.Sprintf("%d. %s <b>%s</b>\n", i+1, icon, r.Message))
		b.WriteString(fmt.Sprintf("   %s às %s", describeSchedule(r), r.TimeOfDay))
		if r.Status == domain.StatusSuspended {
			b.WriteString(" (suspensa)")
		}
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func describeSchedule(r *domain.Routine) string {
	switch r.Kind {
	case domain.KindSingleDate:
		return "em " + r.Date
	case domain.KindEveryDay:
		return "todos os dias"
	case domain.KindWeekdaySet, domain.KindWeekly:
		names := make([]string, len(r.Weekdays))
		for i, d := range r.Weekdays {
			names[i] = domain.WeekdayName(d)
		}
		return "toda " + strings.Join(names, ", ")
	case domain.KindBiweekly:
		names := make([]string, len(r.Weekdays))
		for i, d := range r.Weekdays {
			names[i] = domain.WeekdayName(d)
		}
		return "a cada 2 semanas na " + strings.Join(names, ", ")
	case domain.KindDayOfMonth, domain.KindMonthly:
		return fmt.Sprintf("todo dia %d", r.DayOfMonth)
	case domain.KindYearly:
		return "anualmente"
	default:
		return string(r.Kind)
	}
}
