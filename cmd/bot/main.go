package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kirillkom/plant-doctor/internal/adapters/telegram"
	"github.com/kirillkom/plant-doctor/internal/bootstrap"
	"github.com/kirillkom/plant-doctor/internal/config"
	"github.com/kirillkom/plant-doctor/internal/observability/logging"
)

const serviceName = "bot"

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	if cfg.TelegramToken == "" {
		logger.Error("telegram_token_missing")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Logger: logger})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	api, download, err := telegram.NewAPI(cfg.TelegramToken)
	if err != nil {
		logger.Error("telegram_init_failed", "error", err)
		app.Close()
		os.Exit(1)
	}

	bot := telegram.NewBot(api, download, app.Diagnosis, app.ChatUC, logger)
	logger.Info("bot_started", "username", api.Self.UserName)
	bot.Run(ctx, api)
}
