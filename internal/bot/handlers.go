package bot

import (
	"context"
	"errors"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rotinalab/rotinabot/internal/domain"
)

func (b *Bot) handleUpdate(update tgbotapi.Update) {
	if update.Message != nil {
		b.handleMessage(update.Message)
	} else if update.CallbackQuery != nil {
		b.handleCallback(update.CallbackQuery)
	}
}

func (b *Bot) handleMessage(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	if !b.cfg.IsAllowedChat(chatID) {
		b.log.Warn("message from disallowed chat", "chat", chatID)
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if msg.IsCommand() {
		b.handleCommand(msg)
		return
	}

	// Open completion conversations consume the reply before anything else.
	if b.tracker.HandleReply(chatID, text) {
		return
	}

	b.createFromText(chatID, text)
}

// createFromText treats free text as a routine description and runs it
// through the extractor.
func (b *Bot) createFromText(chatID int64, text string) {
	b.SendTyping(chatID)

	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()

	r, err := b.routines.CreateFromText(ctx, chatID, text)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidScheduleSpec) {
			b.SendText(chatID, "❌ Não consegui entender o agendamento. Tente algo como:\n<i>me lembre de tomar remédio todos os dias às 08:00</i>")
			return
		}
		b.log.Error("create routine from text", "chat", chatID, "error", err)
		b.SendText(chatID, "❌ Algo deu errado ao criar a rotina. Tente de novo.")
		return
	}

	kind := "Lembrete"
	if r.IsTask {
		kind = "Tarefa"
	}
	b.SendText(chatID, "✅ <b>"+kind+" criado!</b>\n\n<i>"+r.Message+"</i>\nPróxima: "+r.NextOccurrenceAt.Format("02/01 15:04"))
}

func (b *Bot) handleCallback(cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	data := cb.Data

	// Acknowledge so the button stops spinning.
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.log.Debug("callback ack", "error", err)
	}

	if !b.cfg.IsAllowedChat(chatID) {
		return
	}

	switch {
	case strings.HasPrefix(data, "resp:"):
		answer := strings.TrimPrefix(data, "resp:")
		if answer == "nao" {
			answer = "não vou fazer"
		}
		b.tracker.HandleReply(chatID, answer)

	case strings.HasPrefix(data, "delrotina:"):
		id := strings.TrimPrefix(data, "delrotina:")
		if err := b.routines.Delete(id, chatID); err != nil {
			b.log.Error("delete routine", "routine", id, "error", err)
			b.SendText(chatID, "❌ Não consegui apagar essa rotina.")
			return
		}
		b.SendText(chatID, "🗑 Rotina apagada.")
	}
}
