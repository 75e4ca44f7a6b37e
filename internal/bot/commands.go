package bot

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) handleCommand(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start", "ajuda", "help":
		b.cmdHelp(chatID)
	case "rotinas", "list":
		b.cmdList(chatID)
	case "agenda":
		b.cmdAgenda(chatID)
	case "hoje":
		b.cmdToday(chatID)
	case "ics":
		b.cmdICS(chatID)
	case "publicar":
		b.cmdPublish(chatID)
	case "apagar":
		b.cmdDelete(chatID)
	default:
		b.SendText(chatID, "🤔 Não conheço esse comando. Use /ajuda.")
	}
}

func (b *Bot) cmdHelp(chatID int64) {
	b.SendText(chatID, `👋 <b>Oi! Eu cuido das suas rotinas.</b>

Escreva o que você quer lembrar, por exemplo:
<i>me lembre de tomar remédio todos os dias às 08:00</i>
<i>tarefa: pagar o aluguel todo dia 10 às 09:00</i>

Comandos:
/rotinas — listar suas rotinas
/agenda — agenda da semana
/hoje — rotinas de hoje
/ics — exportar calendário (.ics)
/publicar — publicar no CalDAV
/apagar — apagar uma rotina

Quando uma tarefa chegar, responda <b>sim</b>, <b>depois</b> ou <b>não vou fazer</b>.`)
}

func (b *Bot) cmdList(chatID int64) {
	routines, err := b.routines.List(chatID)
	if err != nil {
		b.log.Error("list routines", "chat", chatID, "error", err)
		b.SendText(chatID, "❌ Não consegui carregar suas rotinas.")
		return
	}
	b.SendText(chatID, b.routines.FormatList(routines))
}

func (b *Bot) cmdAgenda(chatID int64) {
	text, err := b.agenda.WeeklyText(chatID)
	if err != nil {
		b.log.Error("weekly agenda", "chat", chatID, "error", err)
		b.SendText(chatID, "❌ Não consegui montar a agenda.")
		return
	}
	b.SendText(chatID, text)
}

func (b *Bot) cmdToday(chatID int64) {
	text, err := b.agenda.DailyText(chatID, time.Now().In(b.cfg.Timezone))
	if err != nil {
		b.log.Error("daily agenda", "chat", chatID, "error", err)
		b.SendText(chatID, "❌ Não consegui montar a agenda de hoje.")
		return
	}
	if text == "" {
		text = "📭 Nada agendado para hoje."
	}
	b.SendText(chatID, text)
}

func (b *Bot) cmdICS(chatID int64) {
	data, err := b.agenda.BuildICS(chatID)
	if err != nil {
		b.log.Error("build ics", "chat", chatID, "error", err)
		b.SendText(chatID, "❌ Não consegui gerar o calendário.")
		return
	}
	if err := b.sendDocument(chatID, "rotinas.ics", data); err != nil {
		b.log.Error("send ics", "chat", chatID, "error", err)
	}
}

func (b *Bot) cmdPublish(chatID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := b.agenda.PublishCalDAV(ctx, chatID)
	if err != nil {
		b.log.Error("publish caldav", "chat", chatID, "error", err)
		b.SendText(chatID, "❌ Não consegui publicar no CalDAV. Verifique a configuração.")
		return
	}
	b.SendText(chatID, fmt.Sprintf("📅 <b>Publicado!</b> %d rotinas enviadas para o calendário.", n))
}

func (b *Bot) cmdDelete(chatID int64) {
	routines, err := b.routines.List(chatID)
	if err != nil {
		b.log.Error("list routines", "chat", chatID, "error", err)
		b.SendText(chatID, "❌ Não consegui carregar suas rotinas.")
		return
	}

	kb := routineListKeyboard(routines)
	if kb == nil {
		b.SendText(chatID, "📭 Você não tem rotinas para apagar.")
		return
	}

	m := tgbotapi.NewMessage(chatID, "Qual rotina você quer apagar?")
	m.ReplyMarkup = *kb
	if _, err := b.api.Send(m); err != nil {
		b.log.Error("send delete keyboard", "chat", chatID, "error", err)
	}
}
