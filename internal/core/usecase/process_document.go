package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/formvault/formvault/internal/core/domain"
	"github.com/formvault/formvault/internal/core/ports"
	"github.com/formvault/formvault/internal/infrastructure/resilience"
)

const defaultIORetries = 3

// DocumentID derives the stable identity of a source file: the hex
// SHA-256 over its bytes plus its modification time. The same content
// re-uploaded untouched maps to the same catalog entry.
func DocumentID(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write(data)
	fmt.Fprintf(h, "|%d", info.ModTime().UnixNano())
	return hex.EncodeToString(h.Sum(nil)), nil
}

type ProcessDocumentConfig struct {
	// IORetries bounds re-reads of a source file before the document is
	// declared unreadable.
	IORetries int
	// IORetryDelay spaces those re-reads.
	IORetryDelay time.Duration
}

func (c ProcessDocumentConfig) normalize() ProcessDocumentConfig {
	out := c
	if out.IORetries <= 0 {
		out.IORetries = defaultIORetries
	}
	if out.IORetryDelay <= 0 {
		out.IORetryDelay = 250 * time.Millisecond
	}
	return out
}

// ProcessDocumentUseCase runs one document end to end: reuse a
// persisted catalog when one exists, otherwise extract pages, analyze
// them, aggregate the result and persist it everywhere it belongs.
type ProcessDocumentUseCase struct {
	cfg         ProcessDocumentConfig
	repo        ports.DocumentRepository
	catalogs    ports.CatalogStore
	cache       ports.AnalysisCache
	extractor   ports.PageExtractor
	analyzer    *PageAnalyzer
	resolvePath func(storagePath string) string
	stats       *ProcessingStats

	sleep func(time.Duration)
	now   func() time.Time
}

func NewProcessDocumentUseCase(
	cfg ProcessDocumentConfig,
	repo ports.DocumentRepository,
	catalogs ports.CatalogStore,
	cache ports.AnalysisCache,
	extractor ports.PageExtractor,
	analyzer *PageAnalyzer,
	resolvePath func(storagePath string) string,
	stats *ProcessingStats,
) *ProcessDocumentUseCase {
	if resolvePath == nil {
		resolvePath = func(p string) string { return p }
	}
	if stats == nil {
		stats = NewProcessingStats()
	}
	return &ProcessDocumentUseCase{
		cfg:         cfg.normalize(),
		repo:        repo,
		catalogs:    catalogs,
		cache:       cache,
		extractor:   extractor,
		analyzer:    analyzer,
		resolvePath: resolvePath,
		stats:       stats,
		sleep:       time.Sleep,
		now:         time.Now,
	}
}

func (uc *ProcessDocumentUseCase) Stats() *ProcessingStats { return uc.stats }

// SetSleep replaces the IO retry sleeper. Test hook.
func (uc *ProcessDocumentUseCase) SetSleep(sleep func(time.Duration)) { uc.sleep = sleep }

// Process catalogs one ingested document. The returned entry is always
// usable; a non-nil error means the entry is an error marker rather
// than a real analysis.
func (uc *ProcessDocumentUseCase) Process(ctx context.Context, event domain.IngestEvent) (domain.DocumentCatalogEntry, error) {
	start := uc.now()
	uc.markStatus(ctx, event.DocumentID, domain.StatusProcessing, "")

	if entry, ok := uc.reuseCatalog(ctx, event); ok {
		return entry, nil
	}

	path := uc.resolvePath(event.StoragePath)
	pageCount, err := uc.pageCount(ctx, path)
	if err != nil {
		return uc.failDocument(ctx, event, start, err)
	}

	pages, extractionErrors := uc.extractPages(ctx, path, pageCount)
	analyses, report := uc.analyzer.AnalyzePages(ctx, event.DocumentID, event.Filename, pages)

	entry := domain.DocumentCatalogEntry{
		DocumentID:     event.DocumentID,
		DocumentName:   event.Filename,
		TotalPages:     pageCount,
		ProcessedAt:    uc.now(),
		Pages:          analyses,
		Classification: classifyDocument(analyses),
		Summary:        buildSummary(analyses, report, extractionErrors),
	}

	if uc.cache != nil {
		uc.cache.Store(event.DocumentID, entry)
	}
	if uc.catalogs != nil {
		if err := uc.catalogs.SaveCatalog(ctx, entry); err != nil {
			slog.Warn("catalog_save_failed", "document_id", event.DocumentID, "error", err)
		}
	}
	if uc.repo != nil {
		if err := uc.repo.SaveResult(ctx, event.DocumentID, entry); err != nil {
			slog.Warn("result_save_failed", "document_id", event.DocumentID, "error", err)
		}
	}
	uc.markStatus(ctx, event.DocumentID, domain.StatusReady, "")

	uc.stats.ObserveDocument(len(analyses), report.ClassifierCalls, uc.now().Sub(start), false)
	slog.Info("document_processed",
		"document_id", event.DocumentID,
		"filename", event.Filename,
		"pages", pageCount,
		"classifier_calls", report.ClassifierCalls,
		"cached_pages", report.CachedPages,
		"errors", entry.Summary.ErrorCount,
	)
	return entry, nil
}

// reuseCatalog serves a previously persisted catalog entry, skipping
// all analysis work for unchanged documents.
func (uc *ProcessDocumentUseCase) reuseCatalog(ctx context.Context, event domain.IngestEvent) (domain.DocumentCatalogEntry, bool) {
	if uc.catalogs == nil || !uc.catalogs.CatalogExists(ctx, event.DocumentID) {
		return domain.DocumentCatalogEntry{}, false
	}
	entry, err := uc.catalogs.LoadCatalog(ctx, event.DocumentID)
	if err != nil {
		uc.recordCacheFailure(event.DocumentID, err)
		slog.Warn("catalog_load_failed", "document_id", event.DocumentID, "error", err)
		return domain.DocumentCatalogEntry{}, false
	}
	for _, page := range entry.Pages {
		if err := page.Validate(); err != nil {
			uc.recordCacheFailure(event.DocumentID, err)
			slog.Warn("catalog_entry_invalid", "document_id", event.DocumentID, "page", page.PageNumber, "error", err)
			return domain.DocumentCatalogEntry{}, false
		}
	}
	if uc.cache != nil {
		uc.cache.Store(event.DocumentID, entry)
	}
	uc.markStatus(ctx, event.DocumentID, domain.StatusReady, "")
	uc.stats.ObserveCachedDocument(entry.TotalPages)
	slog.Info("catalog_reused", "document_id", event.DocumentID, "pages", entry.TotalPages)
	return entry, true
}

// recordCacheFailure counts a corrupt or invalid persisted catalog
// toward the error statistics; the document is re-analyzed from
// scratch.
func (uc *ProcessDocumentUseCase) recordCacheFailure(documentID string, err error) {
	if uc.analyzer == nil || uc.analyzer.controller == nil {
		return
	}
	uc.analyzer.controller.Stats().Record(resilience.CategoryCache, err.Error(), documentID)
}

func (uc *ProcessDocumentUseCase) pageCount(ctx context.Context, path string) (int, error) {
	var count int
	err := uc.withIORetries(func() error {
		var err error
		count, err = uc.extractor.PageCount(ctx, path)
		return err
	})
	if err != nil {
		return 0, domain.WrapError(domain.ErrDocumentIO, "page_count", err)
	}
	return count, nil
}

// extractPages pulls text for every page. A page whose extraction keeps
// failing is submitted with empty text; the document is not abandoned
// over one bad page.
func (uc *ProcessDocumentUseCase) extractPages(ctx context.Context, path string, pageCount int) ([]domain.PageContent, []string) {
	pages := make([]domain.PageContent, 0, pageCount)
	var errs []string
	for n := 1; n <= pageCount; n++ {
		var text string
		err := uc.withIORetries(func() error {
			var err error
			text, err = uc.extractor.PageText(ctx, path, n)
			return err
		})
		if err != nil {
			errs = append(errs, fmt.Sprintf("page %d text extraction: %v", n, err))
			text = ""
		}
		pages = append(pages, domain.PageContent{PageNumber: n, Text: text})
	}
	return pages, errs
}

func (uc *ProcessDocumentUseCase) withIORetries(fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < uc.cfg.IORetries; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if attempt < uc.cfg.IORetries-1 {
			uc.sleep(uc.cfg.IORetryDelay * time.Duration(attempt+1))
		}
	}
	return lastErr
}

// failDocument produces the error-marked entry for an unreadable
// document so batch output stays complete.
func (uc *ProcessDocumentUseCase) failDocument(ctx context.Context, event domain.IngestEvent, start time.Time, cause error) (domain.DocumentCatalogEntry, error) {
	slog.Error("document_failed", "document_id", event.DocumentID, "filename", event.Filename, "error", cause)
	uc.markStatus(ctx, event.DocumentID, domain.StatusFailed, cause.Error())
	uc.stats.ObserveDocument(0, 0, uc.now().Sub(start), true)
	entry := domain.DocumentCatalogEntry{
		DocumentID:   event.DocumentID,
		DocumentName: event.Filename,
		ProcessedAt:  uc.now(),
		Summary: domain.ProcessingSummary{
			ErrorCount:        1,
			Errors:            []string{cause.Error()},
			NeedsManualReview: true,
		},
	}
	return entry, cause
}

func (uc *ProcessDocumentUseCase) markStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) {
	if uc.repo == nil {
		return
	}
	if err := uc.repo.UpdateStatus(ctx, id, status, errMessage); err != nil {
		slog.Warn("status_update_failed", "document_id", id, "status", string(status), "error", err)
	}
}
