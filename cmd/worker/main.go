package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/formvault/formvault/internal/bootstrap"
	"github.com/formvault/formvault/internal/config"
	"github.com/formvault/formvault/internal/core/domain"
	"github.com/formvault/formvault/internal/observability/logging"
	"github.com/formvault/formvault/internal/observability/metrics"
)

const service = "formvault-worker"

func main() {
	dir := flag.String("dir", "", "catalog every PDF under this directory, write the summary workbook and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Setup(service, "info").Error("config error", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(service, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		logger.Error("bootstrap error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if *dir != "" {
		runDirectoryBatch(ctx, app, *dir)
		return
	}

	pipelineMetrics := metrics.NewPipelineMetrics(service, app.Cache)
	metricsServer := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: pipelineMetrics.Handler(),
	}
	go func() {
		logger.Info("metrics_listening", "port", cfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	var seenFallbacks atomic.Uint64
	logger.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeDocumentIngested(ctx, func(handlerCtx context.Context, event domain.IngestEvent) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, 15*time.Minute)
		defer cancel()

		pipelineMetrics.StartDocument()
		start := time.Now()
		entry, err := app.ProcessUC.Process(processCtx, event)
		pipelineMetrics.FinishDocument(service, entry.Summary.PagesAnalyzed, time.Since(start), err)
		pipelineMetrics.ObserveClassifierCalls(entry.Summary.ClassifierCalls)

		total := app.ErrorStats.Snapshot().FallbackActivations
		pipelineMetrics.ObserveFallbacks(int(total - seenFallbacks.Swap(total)))
		return err
	})
	if err != nil {
		logger.Error("worker subscribe error", "error", err)
		os.Exit(1)
	}
}

// runDirectoryBatch catalogs a directory in one shot and writes the
// summary workbook next to the other exports.
func runDirectoryBatch(ctx context.Context, app *bootstrap.App, dir string) {
	logger := logging.NewJSONLogger(service, app.Config.LogLevel)

	entries, err := app.BatchUC.ProcessDirectory(ctx, dir)
	if err != nil {
		logger.Error("batch error", "dir", dir, "error", err)
		os.Exit(1)
	}

	path, err := app.Exporter.WriteSummary(entries)
	if err != nil {
		logger.Error("summary export error", "error", err)
		os.Exit(1)
	}

	snapshot := app.Stats.Snapshot()
	logger.Info("batch_complete",
		"dir", dir,
		"documents", snapshot.Documents,
		"failed", snapshot.FailedDocuments,
		"cached", snapshot.CachedDocuments,
		"pages", snapshot.Pages,
		"classifier_calls", snapshot.ClassifierCalls,
		"summary", path,
	)
}
