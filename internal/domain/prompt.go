package domain

// PromptState tracks how far the completion conversation for a task has
// escalated.
type PromptState string

const (
	// PromptAwaitingFirst: the task notification (or its automatic check)
	// went out and no postponement happened yet. A "later" reply here
	// reschedules the check ten minutes out.
	PromptAwaitingFirst PromptState = "awaiting_first"
	// PromptAwaitingFollowUp: the user already postponed once. Further
	// "later" replies reschedule one hour out.
	PromptAwaitingFollowUp PromptState = "awaiting_follow_up"
)

// ActivePrompt is the ephemeral per-user record of an open yes/later/decline
// question. It is never persisted on its own; restarts rebuild it from the
// routine's stored fields.
type ActivePrompt struct {
	RoutineID string
	Message   string
	State     PromptState
}
