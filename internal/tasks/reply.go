package tasks

import "strings"

type replyKind int

const (
	replyUnknown replyKind = iota
	replyYes
	replyLater
	replyDecline
)

var declineTokens = []string{
	"não vou fazer",
	"nao vou fazer",
	"não farei",
	"nao farei",
	"desisti",
	"deixa",
	"cancelar",
}

// classifyReply maps free text to one of the three accepted answers.
// Affirmative wins over postpone wins over decline, matching the order users
// expect when a message contains more than one token.
func classifyReply(text string) replyKind {
	norm := strings.ToLower(strings.TrimSpace(text))

	if norm == "s" || norm == "yes" || norm == "1" || strings.Contains(norm, "sim") {
		return replyYes
	}

	if norm == "2" || strings.Contains(norm, "depois") || strings.Contains(norm, "dps") || strings.Contains(norm, "later") {
		return replyLater
	}

	for _, token := range declineTokens {
		if strings.Contains(norm, token) {
			return replyDecline
		}
	}

	return replyUnknown
}
