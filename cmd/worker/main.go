package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/plant-doctor/internal/adapters/worker"
	"github.com/kirillkom/plant-doctor/internal/bootstrap"
	"github.com/kirillkom/plant-doctor/internal/config"
	"github.com/kirillkom/plant-doctor/internal/observability/logging"
	"github.com/kirillkom/plant-doctor/internal/observability/metrics"
)

const serviceName = "worker"

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Observer:     workerMetrics.PipelineMetrics,
		Logger:       logger,
		RequireQueue: true,
	})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	handler := worker.NewDiagnoseHandler(app.DiagnoseUC, workerMetrics, 30*time.Second, logger)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		logger.Info("worker_subscribed", "subject", cfg.NATSDiagnoseSubject, "queue_group", cfg.NATSQueueGroup)
		return app.Queue.ServeDiagnoseRequests(groupCtx, handler.Handle)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("worker_stopped", "error", err)
		app.Close()
		os.Exit(1)
	}
}
