package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type SweepStore interface {
	DeleteSuspendedRoutines() (int64, error)
	DeleteSpentSingleRoutines() (int64, error)
	ResetStaleCompletions(before time.Time) (int64, error)
}

// AgendaFormatter renders the morning agenda text for a chat. An empty
// string means nothing is planned and no message goes out.
type AgendaFormatter interface {
	DailyText(chatID int64, day time.Time) (string, error)
}

// Housekeeping runs the daily cron jobs: garbage collection of resolved
// routines and the morning agenda message.
type Housekeeping struct {
	cron    *cron.Cron
	store   SweepStore
	agenda  AgendaFormatter
	sender  Sender
	chatIDs []int64
	loc     *time.Location
	log     *slog.Logger
}

func NewHousekeeping(store SweepStore, agenda AgendaFormatter, sender Sender, chatIDs []int64, loc *time.Location, log *slog.Logger) *Housekeeping {
	return &Housekeeping{
		cron:    cron.New(cron.WithLocation(loc)),
		store:   store,
		agenda:  agenda,
		sender:  sender,
		chatIDs: chatIDs,
		loc:     loc,
		log:     log,
	}
}

// Start registers the jobs and blocks until the context is cancelled.
// morningTime is "HH:MM" in the configured location.
func (h *Housekeeping) Start(ctx context.Context, morningTime string) error {
	if _, err := h.cron.AddFunc("0 4 * * *", h.sweep); err != nil {
		return fmt.Errorf("add gc sweep: %w", err)
	}

	if spec, err := morningSpec(morningTime); err != nil {
		h.log.Warn("invalid morning time, agenda disabled", "value", morningTime, "error", err)
	} else if _, err := h.cron.AddFunc(spec, h.morningAgenda); err != nil {
		return fmt.Errorf("add morning agenda: %w", err)
	}

	h.cron.Start()
	h.log.Info("housekeeping started", "morning_time", morningTime)

	<-ctx.Done()
	<-h.cron.Stop().Done()
	return ctx.Err()
}

func (h *Housekeeping) sweep() {
	if n, err := h.store.DeleteSuspendedRoutines(); err != nil {
		h.log.Error("delete suspended routines", "error", err)
	} else if n > 0 {
		h.log.Info("suspended routines removed", "count", n)
	}

	if n, err := h.store.DeleteSpentSingleRoutines(); err != nil {
		h.log.Error("delete spent one-shot routines", "error", err)
	} else if n > 0 {
		h.log.Info("spent one-shot routines removed", "count", n)
	}

	// A completion flag older than the cooldown means the in-memory reset
	// timer was lost; clear it here so the next occurrence prompts again.
	cutoff := time.Now().In(h.loc).Add(-time.Hour)
	if n, err := h.store.ResetStaleCompletions(cutoff); err != nil {
		h.log.Error("reset stale completions", "error", err)
	} else if n > 0 {
		h.log.Info("stale completions reset", "count", n)
	}
}

func (h *Housekeeping) morningAgenda() {
	if h.sender == nil || h.agenda == nil {
		return
	}
	today := time.Now().In(h.loc)
	for _, chatID := range h.chatIDs {
		text, err := h.agenda.DailyText(chatID, today)
		if err != nil {
			h.log.Error("build morning agenda", "chat", chatID, "error", err)
			continue
		}
		if text == "" {
			continue
		}
		h.sender.SendTyping(chatID)
		if err := h.sender.SendText(chatID, text); err != nil {
			h.log.Error("send morning agenda", "chat", chatID, "error", err)
		}
	}
}

func morningSpec(hhmm string) (string, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(hhmm))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %d * * *", t.Minute(), t.Hour()), nil
}
