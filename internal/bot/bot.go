package bot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rotinalab/rotinabot/config"
	"github.com/rotinalab/rotinabot/internal/service"
	"github.com/rotinalab/rotinabot/internal/tasks"
)

type Bot struct {
	api      *tgbotapi.BotAPI
	cfg      *config.Config
	routines *service.RoutineService
	agenda   *service.AgendaService
	tracker  *tasks.Tracker
	log      *slog.Logger
	server   *http.Server
}

func New(cfg *config.Config, routines *service.RoutineService, agenda *service.AgendaService, tracker *tasks.Tracker, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log.Info("authorized", "username", api.Self.UserName)

	bot := &Bot{
		api:      api,
		cfg:      cfg,
		routines: routines,
		agenda:   agenda,
		tracker:  tracker,
		log:      log,
	}

	bot.setCommands()

	return bot, nil
}

func (b *Bot) setCommands() {
	commands := []tgbotapi.BotCommand{
		{Command: "rotinas", Description: "📋 Listar rotinas"},
		{Command: "agenda", Description: "🗓 Agenda da semana"},
		{Command: "hoje", Description: "☀️ Rotinas de hoje"},
		{Command: "ics", Description: "📅 Exportar calendário"},
		{Command: "apagar", Description: "🗑 Apagar uma rotina"},
		{Command: "ajuda", Description: "❓ Ajuda"},
	}

	cfg := tgbotapi.NewSetMyCommands(commands...)
	if _, err := b.api.Request(cfg); err != nil {
		b.log.Warn("set commands", "error", err)
	}
}

func (b *Bot) SetupWebhook() error {
	webhookURL := b.cfg.WebhookURL + "/bot"

	wh, err := tgbotapi.NewWebhook(webhookURL)
	if err != nil {
		return fmt.Errorf("create webhook: %w", err)
	}

	if _, err = b.api.Request(wh); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}

	info, err := b.api.GetWebhookInfo()
	if err != nil {
		return fmt.Errorf("get webhook info: %w", err)
	}

	if info.LastErrorDate != 0 {
		b.log.Warn("webhook last error", "message", info.LastErrorMessage)
	}

	b.log.Info("webhook set", "url", webhookURL)
	return nil
}

func (b *Bot) Start(ctx context.Context) error {
	updates := b.api.ListenForWebhook("/bot")

	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	b.SetupAPI()

	b.server = &http.Server{
		Addr:    ":" + b.cfg.ServerPort,
		Handler: nil, // use DefaultServeMux
	}

	go func() {
		b.log.Info("webhook server listening", "port", b.cfg.ServerPort)
		if err := b.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			b.log.Error("http server", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update := <-updates:
			go b.handleUpdate(update)
		}
	}
}

func (b *Bot) Stop(ctx context.Context) error {
	if b.server != nil {
		return b.server.Shutdown(ctx)
	}
	return nil
}

func (b *Bot) SendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "HTML"
	_, err := b.api.Send(msg)
	return err
}

// SendTyping shows the typing indicator. Best effort; delivery of the real
// message does not depend on it.
func (b *Bot) SendTyping(chatID int64) {
	action := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	if _, err := b.api.Request(action); err != nil {
		b.log.Debug("send typing", "chat", chatID, "error", err)
	}
}

// SendTaskPrompt sends a task notification with the answer keyboard attached.
func (b *Bot) SendTaskPrompt(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "HTML"
	msg.ReplyMarkup = taskPromptKeyboard()
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendDocument(chatID int64, name string, data []byte) error {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name, Bytes: data})
	_, err := b.api.Send(doc)
	return err
}
