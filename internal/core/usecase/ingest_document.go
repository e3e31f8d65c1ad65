package usecase

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/formvault/formvault/internal/core/domain"
	"github.com/formvault/formvault/internal/core/ports"
)

// IngestDocumentUseCase is the API-side half of the pipeline: persist
// the upload, register the document row and hand the rest to the worker
// over the queue.
type IngestDocumentUseCase struct {
	storage     ports.ObjectStorage
	repo        ports.DocumentRepository
	queue       ports.MessageQueue
	resolvePath func(key string) string
}

func NewIngestDocumentUseCase(
	storage ports.ObjectStorage,
	repo ports.DocumentRepository,
	queue ports.MessageQueue,
	resolvePath func(key string) string,
) *IngestDocumentUseCase {
	if resolvePath == nil {
		resolvePath = func(p string) string { return p }
	}
	return &IngestDocumentUseCase{
		storage:     storage,
		repo:        repo,
		queue:       queue,
		resolvePath: resolvePath,
	}
}

func (uc *IngestDocumentUseCase) Upload(ctx context.Context, filename string, body io.Reader) (*domain.Document, error) {
	if filepath.Ext(filename) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", fmt.Errorf("filename %q has no extension", filename))
	}

	key := uuid.NewString() + filepath.Ext(filename)
	if err := uc.storage.Save(ctx, key, body); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	// Identity comes from the stored bytes, so re-uploads of the same
	// content land on the same catalog entry.
	id, err := DocumentID(uc.resolvePath(key))
	if err != nil {
		return nil, domain.WrapError(domain.ErrDocumentIO, "upload", err)
	}

	now := time.Now().UTC()
	doc := &domain.Document{
		ID:          id,
		Filename:    filename,
		StoragePath: key,
		Status:      domain.StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := uc.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("register document: %w", err)
	}

	event := domain.IngestEvent{DocumentID: id, StoragePath: key, Filename: filename}
	if err := uc.queue.PublishDocumentIngested(ctx, event); err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "publish_ingest", err)
	}
	return doc, nil
}
