// Package tasks implements the per-user completion conversation for task
// routines: confirm, postpone with escalation, or abandon.
package tasks

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rotinalab/rotinabot/internal/domain"
)

type Store interface {
	GetRoutine(id string) (*domain.Routine, error)
	UpdateStatus(id string, status domain.Status) error
	UpdateNextOccurrence(id string, at *time.Time) error
	SetCompleted(id string, completed bool, at *time.Time) error
}

type Sender interface {
	SendText(chatID int64, text string) error
	SendTyping(chatID int64)
}

// CheckScheduler is the scheduler surface the tracker drives: postponements
// reschedule the follow-up check, suspension tears the routine's timers down.
type CheckScheduler interface {
	ScheduleFollowUp(r *domain.Routine, delay time.Duration)
	CancelFollowUp(id string)
	CancelRoutine(id string)
}

type notifiedTask struct {
	routineID string
	message   string
}

// Tracker holds the open prompt per user. One prompt per chat; a new task
// notification supersedes whatever question was pending.
type Tracker struct {
	store  Store
	sender Sender
	checks CheckScheduler
	log    *slog.Logger

	now   func() time.Time
	after func(d time.Duration, f func())

	mu           sync.Mutex
	prompts      map[int64]*domain.ActivePrompt
	lastNotified map[int64]notifiedTask
}

func New(store Store, log *slog.Logger) *Tracker {
	return &Tracker{
		store:        store,
		log:          log,
		now:          time.Now,
		after:        func(d time.Duration, f func()) { time.AfterFunc(d, f) },
		prompts:      make(map[int64]*domain.ActivePrompt),
		lastNotified: make(map[int64]notifiedTask),
	}
}

func (t *Tracker) SetSender(sender Sender) {
	t.sender = sender
}

func (t *Tracker) SetCheckScheduler(cs CheckScheduler) {
	t.checks = cs
}

// TaskNotified records a freshly fired task notification. Any previous prompt
// for the chat is superseded and its pending follow-up check cancelled.
func (t *Tracker) TaskNotified(r *domain.Routine) {
	t.mu.Lock()
	prev := t.prompts[r.OwnerID]
	t.prompts[r.OwnerID] = &domain.ActivePrompt{
		RoutineID: r.ID,
		Message:   r.Message,
		State:     domain.PromptAwaitingFirst,
	}
	t.lastNotified[r.OwnerID] = notifiedTask{routineID: r.ID, message: r.Message}
	t.mu.Unlock()

	if prev != nil && prev.RoutineID != r.ID && t.checks != nil {
		t.checks.CancelFollowUp(prev.RoutineID)
	}
}

// RefreshPrompt re-opens the completion question after a follow-up check or a
// restart, without resetting escalation when the same task is already open.
func (t *Tracker) RefreshPrompt(r *domain.Routine) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cur, ok := t.prompts[r.OwnerID]; ok && cur.RoutineID == r.ID {
		return
	}
	t.prompts[r.OwnerID] = &domain.ActivePrompt{
		RoutineID: r.ID,
		Message:   r.Message,
		State:     domain.PromptAwaitingFirst,
	}
	t.lastNotified[r.OwnerID] = notifiedTask{routineID: r.ID, message: r.Message}
}

// HandleReply consumes a text reply when a completion conversation is open
// for the chat. It returns false when the text is not for the tracker, so the
// bot falls through to command handling.
func (t *Tracker) HandleReply(chatID int64, text string) bool {
	kind := classifyReply(text)

	t.mu.Lock()
	prompt := t.prompts[chatID]
	last, hasLast := t.lastNotified[chatID]
	t.mu.Unlock()

	if prompt == nil {
		// Late affirmative after the prompt closed still completes the
		// most recently notified task.
		if kind == replyYes && hasLast {
			t.complete(chatID, last.routineID, last.message)
			return true
		}
		return false
	}

	switch kind {
	case replyYes:
		t.complete(chatID, prompt.RoutineID, prompt.Message)
	case replyLater:
		t.postpone(chatID, prompt)
	case replyDecline:
		t.suspend(chatID, prompt)
	default:
		t.reprompt(chatID, prompt)
	}
	return true
}

func (t *Tracker) complete(chatID int64, routineID, message string) {
	r, err := t.store.GetRoutine(routineID)
	if err != nil {
		t.log.Error("load routine on completion", "routine", routineID, "error", err)
		return
	}
	if r == nil {
		t.closePrompt(chatID, routineID)
		return
	}

	now := t.now().In(r.Location())
	if r.IsRecurring() {
		if err := t.store.SetCompleted(r.ID, true, &now); err != nil {
			t.log.Error("mark completed", "routine", r.ID, "error", err)
		}
		// The flag resets after the cooldown so the next occurrence is not
		// born already answered.
		id := r.ID
		t.after(domain.CompletionCooldown, func() {
			if err := t.store.SetCompleted(id, false, nil); err != nil {
				t.log.Error("reset completion", "routine", id, "error", err)
			}
		})
	} else {
		if err := t.store.SetCompleted(r.ID, true, &now); err != nil {
			t.log.Error("mark completed", "routine", r.ID, "error", err)
		}
		if err := t.store.UpdateStatus(r.ID, domain.StatusInactive); err != nil {
			t.log.Error("deactivate routine", "routine", r.ID, "error", err)
		}
	}

	if t.checks != nil {
		t.checks.CancelFollowUp(r.ID)
	}
	t.closePrompt(chatID, routineID)

	t.send(chatID, fmt.Sprintf("✅ <b>Tarefa concluída!</b>\n\n<i>%s</i>\n\nMuito bem! 🎉", message))
}

func (t *Tracker) postpone(chatID int64, prompt *domain.ActivePrompt) {
	r, err := t.store.GetRoutine(prompt.RoutineID)
	if err != nil || r == nil {
		t.log.Error("load routine on postpone", "routine", prompt.RoutineID, "error", err)
		t.closePrompt(chatID, prompt.RoutineID)
		return
	}

	delay := 10 * time.Minute
	label := "10 minutos"
	if prompt.State == domain.PromptAwaitingFollowUp {
		delay = time.Hour
		label = "1 hora"
	}

	if t.checks != nil {
		t.checks.ScheduleFollowUp(r, delay)
	}

	t.mu.Lock()
	if cur, ok := t.prompts[chatID]; ok && cur.RoutineID == prompt.RoutineID {
		cur.State = domain.PromptAwaitingFollowUp
	}
	t.mu.Unlock()

	t.send(chatID, fmt.Sprintf("🔄 <b>Entendido!</b>\n\nVou te lembrar de novo em %s:\n<i>%s</i>", label, prompt.Message))
}

func (t *Tracker) suspend(chatID int64, prompt *domain.ActivePrompt) {
	if err := t.store.UpdateStatus(prompt.RoutineID, domain.StatusSuspended); err != nil {
		t.log.Error("suspend routine", "routine", prompt.RoutineID, "error", err)
	}
	if err := t.store.UpdateNextOccurrence(prompt.RoutineID, nil); err != nil {
		t.log.Error("clear next occurrence", "routine", prompt.RoutineID, "error", err)
	}
	if t.checks != nil {
		t.checks.CancelRoutine(prompt.RoutineID)
	}
	t.closePrompt(chatID, prompt.RoutineID)

	t.send(chatID, fmt.Sprintf("🗑 <b>Tudo bem.</b>\n\nA tarefa foi suspensa e não vai mais te incomodar:\n<i>%s</i>", prompt.Message))
}

func (t *Tracker) reprompt(chatID int64, prompt *domain.ActivePrompt) {
	t.send(chatID, fmt.Sprintf(
		"❓ <b>Resposta inválida!</b>\n\nSobre a tarefa <i>%s</i>, responda:\n• <b>sim</b> — já concluí\n• <b>depois</b> — me lembre mais tarde\n• <b>não vou fazer</b> — desisti dessa tarefa",
		prompt.Message,
	))
}

func (t *Tracker) closePrompt(chatID int64, routineID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.prompts[chatID]; ok && cur.RoutineID == routineID {
		delete(t.prompts, chatID)
	}
	if last, ok := t.lastNotified[chatID]; ok && last.routineID == routineID {
		delete(t.lastNotified, chatID)
	}
}

func (t *Tracker) send(chatID int64, text string) {
	if t.sender == nil {
		return
	}
	t.sender.SendTyping(chatID)
	if err := t.sender.SendText(chatID, text); err != nil {
		t.log.Error("send tracker reply", "chat", chatID, "error", err)
	}
}
