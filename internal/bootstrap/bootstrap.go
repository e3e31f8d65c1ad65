package bootstrap

import (
	"context"
	"fmt"

	"github.com/formvault/formvault/internal/config"
	"github.com/formvault/formvault/internal/core/ports"
	"github.com/formvault/formvault/internal/core/usecase"
	"github.com/formvault/formvault/internal/infrastructure/cache"
	"github.com/formvault/formvault/internal/infrastructure/classifier/anthropic"
	"github.com/formvault/formvault/internal/infrastructure/classifier/keyword"
	"github.com/formvault/formvault/internal/infrastructure/export/excel"
	"github.com/formvault/formvault/internal/infrastructure/extractor/pdf"
	"github.com/formvault/formvault/internal/infrastructure/queue/nats"
	"github.com/formvault/formvault/internal/infrastructure/recovery"
	"github.com/formvault/formvault/internal/infrastructure/repository/postgres"
	"github.com/formvault/formvault/internal/infrastructure/resilience"
	"github.com/formvault/formvault/internal/infrastructure/storage/localfs"
)

// App wires every collaborator once; both binaries pull what they need
// from it.
type App struct {
	Config config.Config

	Queue      *nats.Queue
	Repo       ports.DocumentRepository
	Storage    *localfs.Storage
	Cache      *cache.Cache
	Controller *resilience.Controller
	ErrorStats *resilience.ErrorStats
	Exporter   *excel.Exporter

	IngestUC  *usecase.IngestDocumentUseCase
	ProcessUC *usecase.ProcessDocumentUseCase
	BatchUC   *usecase.CatalogBatchUseCase
	Stats     *usecase.ProcessingStats

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewCatalogRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath, cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultExecutorConfig())
	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	analysisCache := cache.New(cache.Config{
		MaxEntries:     cfg.CacheMaxEntries,
		MaxMemoryBytes: int64(cfg.CacheMaxMemoryMB) << 20,
	})

	errorStats := resilience.NewErrorStats()
	keywords := keyword.New()
	controller := resilience.NewController(resilience.Config{
		MaxRetries:         cfg.MaxRetries,
		BaseDelay:          cfg.BaseDelay.Std(),
		MaxDelay:           cfg.MaxDelay.Std(),
		RateLimitBaseDelay: cfg.RateLimitBaseDelay.Std(),
		RateLimitMaxDelay:  cfg.RateLimitMaxDelay.Std(),
		BreakerTimeout:     cfg.BreakerTimeout.Std(),
		ErrorRateThreshold: cfg.ErrorRateThreshold,
	}, errorStats, keywords, recovery.RecoverPage)
	pacer := resilience.NewPacer(cfg.RequestsPerMinute, cfg.MinRequestInterval.Std())

	classifier := anthropic.New(anthropic.Config{
		APIKey:    cfg.AnthropicAPIKey,
		Model:     cfg.AnthropicModel,
		MaxTokens: cfg.ClassifierMaxToken,
		Timeout:   cfg.ClassifierTimeout.Std(),
	})

	analyzer := usecase.NewPageAnalyzer(usecase.AnalyzerConfig{
		BatchSize:            cfg.BatchSize,
		PrecheckEnabled:      cfg.PrecheckEnabled,
		PrecheckMinHits:      cfg.PrecheckMinHits,
		MemoryThresholdBytes: cfg.MemoryThresholdBytes(),
	}, analysisCache, analysisCache, classifier, controller, pacer, keywords)

	stats := usecase.NewProcessingStats()
	processUC := usecase.NewProcessDocumentUseCase(usecase.ProcessDocumentConfig{
		IORetries: cfg.IORetries,
	}, repo, storage, analysisCache, pdf.New(), analyzer, storage.Path, stats)
	batchUC := usecase.NewCatalogBatchUseCase(usecase.BatchConfig{Workers: cfg.Workers}, processUC)
	ingestUC := usecase.NewIngestDocumentUseCase(storage, repo, queue, storage.Path)

	exporter, err := excel.New(cfg.ExportPath)
	if err != nil {
		return nil, fmt.Errorf("init exporter: %w", err)
	}

	return &App{
		Config: cfg,

		Queue:      queue,
		Repo:       repo,
		Storage:    storage,
		Cache:      analysisCache,
		Controller: controller,
		ErrorStats: errorStats,
		Exporter:   exporter,

		IngestUC:  ingestUC,
		ProcessUC: processUC,
		BatchUC:   batchUC,
		Stats:     stats,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
