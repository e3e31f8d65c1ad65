package ports

import (
	"context"
	"io"

	"github.com/formvault/formvault/internal/core/domain"
)

// DocumentRepository persists and reads per-document pipeline state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SaveResult(ctx context.Context, id string, entry domain.DocumentCatalogEntry) error
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// CatalogStore persists finished catalog entries as JSON files so a
// later run can skip regeneration.
type CatalogStore interface {
	SaveCatalog(ctx context.Context, entry domain.DocumentCatalogEntry) error
	LoadCatalog(ctx context.Context, documentID string) (domain.DocumentCatalogEntry, error)
	CatalogExists(ctx context.Context, documentID string) bool
}

// MessageQueue publishes/consumes document ingestion events.
type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, event domain.IngestEvent) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, domain.IngestEvent) error) error
}

// PageClassifier is the external page-understanding collaborator. It
// returns raw response text; parsing and repair happen above it. Errors
// are *domain.ClassifierError.
type PageClassifier interface {
	ClassifyPages(ctx context.Context, req domain.ClassifyRequest) (string, error)
}

// PageExtractor discovers page count and extracts per-page text from a
// stored source document.
type PageExtractor interface {
	PageCount(ctx context.Context, storagePath string) (int, error)
	PageText(ctx context.Context, storagePath string, pageNumber int) (string, error)
}

// AnalysisCache is the bounded in-memory store of catalog entries.
type AnalysisCache interface {
	Store(id string, entry domain.DocumentCatalogEntry) bool
	Get(id string) (domain.DocumentCatalogEntry, bool)
	GetPage(id string, pageNumber int) (domain.PageAnalysis, bool)
	Remove(id string) bool
	Len() int
	MemoryUsageBytes() int64
}
