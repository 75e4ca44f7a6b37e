package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rotinalab/rotinabot/internal/domain"
)

// taskPromptKeyboard offers the three accepted answers to a completion
// question. The callbacks feed the same reply path as typed text.
func taskPromptKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Sim", "resp:sim"),
			tgbotapi.NewInlineKeyboardButtonData("🕐 Depois", "resp:depois"),
			tgbotapi.NewInlineKeyboardButtonData("🗑 Não vou fazer", "resp:nao"),
		),
	)
}

// routineListKeyboard lets the user pick a routine to delete.
func routineListKeyboard(routines []*domain.Routine) *tgbotapi.InlineKeyboardMarkup {
	if len(routines) == 0 {
		return nil
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, r := range routines {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				"🗑 "+truncate(r.Message, 30)+" ("+r.TimeOfDay+")",
				"delrotina:"+r.ID,
			),
		))
	}

	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &kb
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
