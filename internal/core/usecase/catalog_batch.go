package usecase

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/formvault/formvault/internal/core/domain"
)

type BatchConfig struct {
	// Workers is the size of the document worker pool.
	Workers int
}

func (c BatchConfig) normalize() BatchConfig {
	out := c
	if out.Workers <= 0 {
		out.Workers = 4
	}
	return out
}

// CatalogBatchUseCase fans a set of documents out over a worker pool.
// One document failing, or even panicking, never takes down the run:
// every submitted document comes back as a catalog entry, error-marked
// when necessary.
type CatalogBatchUseCase struct {
	cfg     BatchConfig
	process *ProcessDocumentUseCase
}

func NewCatalogBatchUseCase(cfg BatchConfig, process *ProcessDocumentUseCase) *CatalogBatchUseCase {
	return &CatalogBatchUseCase{cfg: cfg.normalize(), process: process}
}

// ProcessDirectory catalogs every PDF under dir. Files hashing to a
// document already seen in this run are skipped as duplicates.
func (uc *CatalogBatchUseCase) ProcessDirectory(ctx context.Context, dir string) ([]domain.DocumentCatalogEntry, error) {
	var events []domain.IngestEvent
	var failed []domain.DocumentCatalogEntry
	seen := make(map[string]string)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".pdf") {
			return nil
		}
		id, idErr := DocumentID(path)
		if idErr != nil {
			failed = append(failed, uc.unreadableEntry(path, idErr))
			return nil
		}
		if prior, dup := seen[id]; dup {
			slog.Info("duplicate_document_skipped", "path", path, "same_as", prior)
			return nil
		}
		seen[id] = path
		events = append(events, domain.IngestEvent{
			DocumentID:  id,
			StoragePath: path,
			Filename:    filepath.Base(path),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}

	entries := append(failed, uc.ProcessAll(ctx, events)...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].DocumentName < entries[j].DocumentName })
	return entries, nil
}

// ProcessAll runs the worker pool over the given events and returns one
// entry per event.
func (uc *CatalogBatchUseCase) ProcessAll(ctx context.Context, events []domain.IngestEvent) []domain.DocumentCatalogEntry {
	if len(events) == 0 {
		return nil
	}

	jobs := make(chan domain.IngestEvent)
	results := make(chan domain.DocumentCatalogEntry, len(events))

	var wg sync.WaitGroup
	for w := 0; w < uc.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for event := range jobs {
				results <- uc.processOne(ctx, event)
			}
		}()
	}

	for _, event := range events {
		jobs <- event
	}
	close(jobs)
	wg.Wait()
	close(results)

	entries := make([]domain.DocumentCatalogEntry, 0, len(events))
	for entry := range results {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].DocumentName < entries[j].DocumentName })
	return entries
}

// processOne contains a single document's failure modes, panics
// included, inside its own entry.
func (uc *CatalogBatchUseCase) processOne(ctx context.Context, event domain.IngestEvent) (entry domain.DocumentCatalogEntry) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("document_panic", "document_id", event.DocumentID, "filename", event.Filename, "panic", r)
			entry = domain.DocumentCatalogEntry{
				DocumentID:   event.DocumentID,
				DocumentName: event.Filename,
				ProcessedAt:  time.Now(),
				Summary: domain.ProcessingSummary{
					ErrorCount:        1,
					Errors:            []string{fmt.Sprintf("panic: %v", r)},
					NeedsManualReview: true,
				},
			}
		}
	}()

	entry, err := uc.process.Process(ctx, event)
	if err != nil {
		slog.Warn("document_errored", "document_id", event.DocumentID, "filename", event.Filename, "error", err)
	}
	return entry
}

func (uc *CatalogBatchUseCase) unreadableEntry(path string, cause error) domain.DocumentCatalogEntry {
	slog.Error("document_unreadable", "path", path, "error", cause)
	if os.IsNotExist(cause) {
		cause = fmt.Errorf("%w: %v", domain.ErrDocumentNotFound, cause)
	}
	return domain.DocumentCatalogEntry{
		DocumentName: filepath.Base(path),
		ProcessedAt:  time.Now(),
		Summary: domain.ProcessingSummary{
			ErrorCount:        1,
			Errors:            []string{cause.Error()},
			NeedsManualReview: true,
		},
	}
}
