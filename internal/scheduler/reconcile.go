package scheduler

import (
	"github.com/rotinalab/rotinabot/internal/domain"
)

// Reconcile rebuilds the timer tables from the store after a restart. It
// deletes past-due one-shot reminders, re-opens prompts for tasks that were
// mid-check when the process died, and re-arms everything else. Per-routine
// failures are logged and skipped so one bad record never blocks the rest.
func (s *Scheduler) Reconcile() error {
	routines, err := s.store.ListActiveRoutines()
	if err != nil {
		return err
	}

	var armed, dropped, recovered int
	for _, r := range routines {
		switch {
		case !r.IsRecurring() && !r.IsTask && s.pastDue(r):
			if err := s.store.DeleteRoutine(r.ID); err != nil {
				s.log.Error("delete past-due routine", "routine", r.ID, "error", err)
				continue
			}
			dropped++

		case r.IsTask && r.Completed && s.pendingFollowUp(r):
			// Completion already answered the pending check. Drop the
			// stored check instant and re-arm the main occurrence.
			r.NextOccurrenceAt = nil
			if err := s.Arm(r); err != nil {
				s.log.Error("re-arm completed task", "routine", r.ID, "error", err)
				continue
			}
			armed++

		case r.IsTask && s.pendingFollowUp(r):
			// The stored instant is a follow-up check, not a main
			// occurrence. Re-open the prompt now and let the check timer
			// land at the persisted instant.
			if s.prompts != nil {
				s.prompts.RefreshPrompt(r)
			}
			s.armCheckAt(r.ID, *r.NextOccurrenceAt)
			if r.IsRecurring() {
				r.NextOccurrenceAt = nil
				if err := s.Arm(r); err != nil {
					s.log.Error("re-arm after follow-up recovery", "routine", r.ID, "error", err)
					continue
				}
			}
			recovered++

		default:
			if err := s.Arm(r); err != nil {
				s.log.Error("arm routine", "routine", r.ID, "error", err)
				continue
			}
			armed++
		}
	}

	s.log.Info("reconcile finished", "total", len(routines), "armed", armed, "dropped", dropped, "recovered", recovered)
	return nil
}

// pastDue reports whether a one-shot routine's stored occurrence already
// passed. A missing stored instant means it never armed; that is not past due.
func (s *Scheduler) pastDue(r *domain.Routine) bool {
	return r.NextOccurrenceAt != nil && !r.NextOccurrenceAt.After(s.now())
}

// pendingFollowUp detects a stored instant that belongs to a follow-up check
// rather than a main occurrence: checks land at +10m/+1h offsets, so their
// clock time never matches the routine's configured time of day.
func (s *Scheduler) pendingFollowUp(r *domain.Routine) bool {
	if r.NextOccurrenceAt == nil || !r.NextOccurrenceAt.After(s.now()) {
		return false
	}
	return r.NextOccurrenceAt.In(r.Location()).Format("15:04") != r.TimeOfDay
}
