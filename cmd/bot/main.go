package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotinalab/rotinabot/config"
	"github.com/rotinalab/rotinabot/internal/bot"
	"github.com/rotinalab/rotinabot/internal/clients/caldav"
	"github.com/rotinalab/rotinabot/internal/clients/groq"
	"github.com/rotinalab/rotinabot/internal/scheduler"
	"github.com/rotinalab/rotinabot/internal/service"
	"github.com/rotinalab/rotinabot/internal/storage"
	"github.com/rotinalab/rotinabot/internal/tasks"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		logger.Error("init storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	sched := scheduler.New(store, logger)
	tracker := tasks.New(store, logger)
	tracker.SetCheckScheduler(sched)
	sched.SetPrompts(tracker)

	var extractor service.Extractor
	if groqClient := groq.NewClient(cfg.GroqAPIKey, cfg.GroqModel); groqClient.IsConfigured() {
		extractor = groqClient
	} else {
		logger.Warn("groq not configured, natural-language creation disabled")
	}

	caldavClient := caldav.NewClient(cfg.CalDAVURL, cfg.CalDAVUsername, cfg.CalDAVPassword, cfg.CalDAVCalendar)

	routineSvc := service.NewRoutineService(store, sched, extractor, cfg.TimezoneName)
	agendaSvc := service.NewAgendaService(store, caldavClient)

	tgBot, err := bot.New(cfg, routineSvc, agendaSvc, tracker, logger)
	if err != nil {
		logger.Error("init bot", "error", err)
		os.Exit(1)
	}
	sched.SetSender(tgBot)
	tracker.SetSender(tgBot)

	if cfg.WebhookURL != "" {
		if err := tgBot.SetupWebhook(); err != nil {
			logger.Error("setup webhook", "error", err)
			os.Exit(1)
		}
	}

	// Timers are in-memory only; rebuild them before accepting traffic.
	if err := sched.Reconcile(); err != nil {
		logger.Error("reconcile routines", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	housekeeping := scheduler.NewHousekeeping(store, agendaSvc, tgBot, cfg.AllowedChatIDs, cfg.Timezone, logger)
	go func() {
		if err := housekeeping.Start(ctx, cfg.MorningTime); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("housekeeping", "error", err)
		}
	}()

	go func() {
		if err := tgBot.Start(ctx); err != nil {
			logger.Error("bot", "error", err)
		}
	}()

	logger.Info("rotinabot started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := tgBot.Stop(shutdownCtx); err != nil {
		logger.Error("stop bot", "error", err)
	}

	logger.Info("rotinabot stopped")
}
