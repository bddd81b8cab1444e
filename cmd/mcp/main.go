package main

import (
	"context"
	"log/slog"
	"os"

	mcpadapter "github.com/kirillkom/plant-doctor/internal/adapters/mcp"
	"github.com/kirillkom/plant-doctor/internal/bootstrap"
	"github.com/kirillkom/plant-doctor/internal/config"
	"github.com/kirillkom/plant-doctor/internal/observability/logging"
)

const version = "0.1.0"

// stdout carries the MCP protocol, so logs go to stderr.
func main() {
	cfg := config.Load()
	logger := logging.NewJSONLoggerTo(os.Stderr, "mcp", cfg.LogLevel)
	slog.SetDefault(logger)

	app, err := bootstrap.New(context.Background(), cfg, bootstrap.Options{Logger: logger})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	srv := mcpadapter.NewServer(app.Diagnosis, app.ChatUC, app.Labels)
	if err := srv.ServeStdio(version); err != nil {
		logger.Error("mcp_serve_failed", "error", err)
		app.Close()
		os.Exit(1)
	}
}
