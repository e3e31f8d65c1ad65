// Package postgres tracks per-document pipeline state: status, error,
// and the classification summary once cataloging finishes.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/formvault/formvault/internal/core/domain"
)

type CatalogRepository struct {
	db *sql.DB
}

func NewCatalogRepository(db *sql.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *CatalogRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS catalog_documents (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	total_pages INTEGER NOT NULL DEFAULT 0,
	primary_type TEXT,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	summary JSONB,
	status TEXT NOT NULL,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_catalog_documents_status ON catalog_documents(status);
CREATE INDEX IF NOT EXISTS idx_catalog_documents_created_at ON catalog_documents(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *CatalogRepository) Create(ctx context.Context, doc *domain.Document) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO catalog_documents (
	id, filename, storage_path, total_pages, primary_type, confidence, status, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO NOTHING
`,
		doc.ID, doc.Filename, doc.StoragePath, doc.TotalPages, string(doc.PrimaryType),
		doc.Confidence, string(doc.Status), doc.Error, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *CatalogRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, filename, storage_path, total_pages, primary_type, confidence, status, error_message, created_at, updated_at
FROM catalog_documents
WHERE id = $1
`, id)

	var doc domain.Document
	var status, primaryType string

	err := row.Scan(
		&doc.ID, &doc.Filename, &doc.StoragePath, &doc.TotalPages, &primaryType,
		&doc.Confidence, &status, &doc.Error, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", err)
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}

	doc.Status = domain.DocumentStatus(status)
	doc.PrimaryType = domain.PageType(primaryType)
	return &doc, nil
}

func (r *CatalogRepository) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE catalog_documents
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	return requireRowAffected(res, id)
}

// SaveResult records the classification outcome of a finished document.
// The full page list lives in the persisted catalog file; the row keeps
// only what listings and review queries need.
func (r *CatalogRepository) SaveResult(ctx context.Context, id string, entry domain.DocumentCatalogEntry) error {
	summaryJSON, err := json.Marshal(entry.Summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
UPDATE catalog_documents
SET total_pages = $2, primary_type = $3, confidence = $4, summary = $5, updated_at = $6
WHERE id = $1
`, id, entry.TotalPages, string(entry.Classification.PrimaryType), documentConfidence(entry), summaryJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return requireRowAffected(res, id)
}

func requireRowAffected(res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, "update document", fmt.Errorf("no row for %s", id))
	}
	return nil
}

// documentConfidence averages page confidences; zero when no pages.
func documentConfidence(entry domain.DocumentCatalogEntry) float64 {
	if len(entry.Pages) == 0 {
		return 0
	}
	total := 0.0
	for _, page := range entry.Pages {
		total += page.ConfidenceScore
	}
	return total / float64(len(entry.Pages))
}
