// Package scheduler arms one in-process timer per routine and drives the
// fire/re-arm cycle. Follow-up check timers for unanswered tasks live in a
// separate table so a routine can have both pending at once.
package scheduler

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rotinalab/rotinabot/internal/domain"
	"github.com/rotinalab/rotinabot/internal/schedule"
)

// followUpDelay is how long after a task notification the automatic
// completion check goes out.
const followUpDelay = 10 * time.Minute

type Store interface {
	GetRoutine(id string) (*domain.Routine, error)
	ListActiveRoutines() ([]*domain.Routine, error)
	UpdateNextOccurrence(id string, at *time.Time) error
	DeleteRoutine(id string) error
}

type Sender interface {
	SendText(chatID int64, text string) error
	SendTyping(chatID int64)
	SendTaskPrompt(chatID int64, text string) error
}

// Prompts is the task tracker's surface: it learns about fired task
// notifications and re-opens prompts when a check timer lands.
type Prompts interface {
	TaskNotified(r *domain.Routine)
	RefreshPrompt(r *domain.Routine)
}

type Scheduler struct {
	store   Store
	sender  Sender
	prompts Prompts
	log     *slog.Logger

	now func() time.Time

	mu     sync.Mutex
	timers map[string]*time.Timer // main occurrence timers, by routine id
	checks map[string]*time.Timer // follow-up check timers, by routine id
}

func New(store Store, log *slog.Logger) *Scheduler {
	return &Scheduler{
		store:  store,
		log:    log,
		now:    time.Now,
		timers: make(map[string]*time.Timer),
		checks: make(map[string]*time.Timer),
	}
}

// SetSender binds the messaging transport after construction; the bot needs
// the scheduler and the scheduler needs the bot.
func (s *Scheduler) SetSender(sender Sender) {
	s.sender = sender
}

func (s *Scheduler) SetPrompts(p Prompts) {
	s.prompts = p
}

// Arm resolves the routine's next firing instant and installs its timer,
// replacing any previous one. Calling it twice for the same routine leaves a
// single live timer.
func (s *Scheduler) Arm(r *domain.Routine) error {
	if r.Status != domain.StatusActive {
		return nil
	}

	at, ok, err := s.resolveOccurrence(r)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	s.armAt(r.ID, at)
	return nil
}

// resolveOccurrence picks the instant to arm: the stored next occurrence when
// it is still in the future, otherwise the stored instant advanced through
// the recurrence until it clears now. The advance keeps the stored phase, so
// a biweekly routine stays on its two-week grid across downtime. Without a
// stored instant the first occurrence is computed fresh; stale one-shots are
// dropped with ok=false.
func (s *Scheduler) resolveOccurrence(r *domain.Routine) (time.Time, bool, error) {
	now := s.now()

	if r.NextOccurrenceAt != nil && r.NextOccurrenceAt.After(now) {
		return *r.NextOccurrenceAt, true, nil
	}

	var at time.Time
	if r.NextOccurrenceAt != nil {
		at = *r.NextOccurrenceAt
	} else {
		var err error
		at, err = schedule.FirstOccurrence(r, now)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("compute occurrence for %s: %w", r.ID, err)
		}
	}

	if !at.After(now) {
		if !r.IsRecurring() {
			s.log.Warn("dropping stale one-shot routine", "routine", r.ID, "at", at)
			return time.Time{}, false, nil
		}
		for !at.After(now) {
			at = schedule.NextOccurrence(r, at)
		}
	}

	local := at.In(r.Location())
	if err := s.store.UpdateNextOccurrence(r.ID, &local); err != nil {
		s.log.Error("persist next occurrence", "routine", r.ID, "error", err)
	}
	return at, true, nil
}

func (s *Scheduler) armAt(id string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[id]; ok {
		t.Stop()
	}
	d := time.Until(at)
	if d < 0 {
		d = 0
	}
	s.timers[id] = time.AfterFunc(d, func() { s.fire(id) })
	s.log.Info("routine armed", "routine", id, "at", at)
}

// Cancel stops the routine's main timer and any pending follow-up check.
func (s *Scheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
	if t, ok := s.checks[id]; ok {
		t.Stop()
		delete(s.checks, id)
	}
}

// CancelRoutine is Cancel under the name the task tracker's interface uses.
func (s *Scheduler) CancelRoutine(id string) {
	s.Cancel(id)
}

// CancelFollowUp stops only the pending check timer, leaving the main
// occurrence timer armed.
func (s *Scheduler) CancelFollowUp(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.checks[id]; ok {
		t.Stop()
		delete(s.checks, id)
	}
}

// fire handles a main occurrence: reload state, notify, advance.
func (s *Scheduler) fire(id string) {
	r, err := s.store.GetRoutine(id)
	if err != nil {
		s.log.Error("load routine on fire", "routine", id, "error", err)
		return
	}
	if r == nil || r.Status != domain.StatusActive {
		return
	}

	s.dispatch(r)

	fired := s.now()
	if r.NextOccurrenceAt != nil {
		fired = *r.NextOccurrenceAt
	}

	if r.IsRecurring() {
		next := schedule.NextOccurrence(r, fired)
		now := s.now()
		for !next.After(now) {
			next = schedule.NextOccurrence(r, next)
		}
		local := next.In(r.Location())
		if err := s.store.UpdateNextOccurrence(r.ID, &local); err != nil {
			s.log.Error("persist next occurrence", "routine", r.ID, "error", err)
		}
		s.armAt(r.ID, next)
	} else if !r.IsTask {
		// A plain one-shot reminder is spent once delivered.
		if err := s.store.DeleteRoutine(r.ID); err != nil {
			s.log.Error("delete spent routine", "routine", r.ID, "error", err)
		}
	} else {
		if err := s.store.UpdateNextOccurrence(r.ID, nil); err != nil {
			s.log.Error("clear next occurrence", "routine", r.ID, "error", err)
		}
	}

	if r.IsTask && !r.Completed {
		if s.prompts != nil {
			s.prompts.TaskNotified(r)
		}
		s.ScheduleFollowUp(r, followUpDelay)
	}
}

// ScheduleFollowUp persists the check instant and arms an independent check
// timer. The handler validates current state, so a completed or suspended
// task makes the check a no-op.
func (s *Scheduler) ScheduleFollowUp(r *domain.Routine, delay time.Duration) {
	checkAt := s.now().Add(delay).In(r.Location())
	if err := s.store.UpdateNextOccurrence(r.ID, &checkAt); err != nil {
		s.log.Error("persist follow-up instant", "routine", r.ID, "error", err)
	}
	s.armCheckAt(r.ID, checkAt)
}

func (s *Scheduler) armCheckAt(id string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.checks[id]; ok {
		t.Stop()
	}
	d := time.Until(at)
	if d < 0 {
		d = 0
	}
	s.checks[id] = time.AfterFunc(d, func() { s.fireFollowUp(id) })
	s.log.Info("follow-up check armed", "routine", id, "at", at)
}

func (s *Scheduler) fireFollowUp(id string) {
	r, err := s.store.GetRoutine(id)
	if err != nil {
		s.log.Error("load routine on follow-up", "routine", id, "error", err)
		return
	}
	if r == nil || r.Status != domain.StatusActive || r.Completed {
		return
	}

	if s.sender != nil {
		s.sender.SendTyping(r.OwnerID)
		text := fmt.Sprintf("⏰ Você já concluiu a tarefa <b>%s</b>?\n\nResponda <b>sim</b>, <b>depois</b> ou <b>não vou fazer</b>.", r.Message)
		if err := s.sender.SendTaskPrompt(r.OwnerID, text); err != nil {
			s.log.Error("send follow-up check", "routine", r.ID, "error", err)
		}
	}

	if s.prompts != nil {
		s.prompts.RefreshPrompt(r)
	}
}

// dispatch renders and sends the occurrence notification.
func (s *Scheduler) dispatch(r *domain.Routine) {
	if s.sender == nil {
		s.log.Warn("no sender bound, skipping notification", "routine", r.ID)
		return
	}

	s.sender.SendTyping(r.OwnerID)

	if r.IsTask {
		text := fmt.Sprintf(
			"🔔 <b>Tarefa:</b> %s\n\nQuando terminar, responda <b>sim</b>. Para adiar, responda <b>depois</b>. Para desistir, responda <b>não vou fazer</b>.",
			r.Message,
		)
		if err := s.sender.SendTaskPrompt(r.OwnerID, text); err != nil {
			s.log.Error("send task notification", "routine", r.ID, "error", err)
		}
		return
	}

	text := fmt.Sprintf("🔔 <b>Lembrete:</b> %s", r.Message)
	if err := s.sender.SendText(r.OwnerID, text); err != nil {
		s.log.Error("send reminder", "routine", r.ID, "error", err)
	}
}
