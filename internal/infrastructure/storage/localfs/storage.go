// Package localfs stores source documents and persisted catalog files
// on the local filesystem.
package localfs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/formvault/formvault/internal/core/domain"
)

type Storage struct {
	basePath    string
	catalogPath string
}

func New(basePath, catalogPath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/storage"
	}
	if catalogPath == "" {
		catalogPath = "./data/catalogs"
	}
	for _, dir := range []string{basePath, catalogPath} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	return &Storage{basePath: basePath, catalogPath: catalogPath}, nil
}

func (s *Storage) Save(_ context.Context, key string, data io.Reader) error {
	path := filepath.Join(s.basePath, key)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, data); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

func (s *Storage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path := filepath.Join(s.basePath, key)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

// Path resolves a storage key to an absolute-ish filesystem path for
// collaborators that need file access (the PDF reader).
func (s *Storage) Path(key string) string {
	return filepath.Join(s.basePath, key)
}

// SaveCatalog writes the catalog entry as a JSON file keyed by document
// id. Writes go through a temp file plus rename so a crashed run never
// leaves a half-written catalog that a later run would trust.
func (s *Storage) SaveCatalog(_ context.Context, entry domain.DocumentCatalogEntry) error {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal catalog: %w", err)
	}

	final := s.catalogFile(entry.DocumentID)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("finalize catalog: %w", err)
	}
	return nil
}

func (s *Storage) LoadCatalog(_ context.Context, documentID string) (domain.DocumentCatalogEntry, error) {
	data, err := os.ReadFile(s.catalogFile(documentID))
	if err != nil {
		if os.IsNotExist(err) {
			return domain.DocumentCatalogEntry{}, domain.ErrDocumentNotFound
		}
		return domain.DocumentCatalogEntry{}, fmt.Errorf("read catalog: %w", err)
	}
	var entry domain.DocumentCatalogEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return domain.DocumentCatalogEntry{}, fmt.Errorf("decode catalog: %w", err)
	}
	return entry, nil
}

func (s *Storage) CatalogExists(_ context.Context, documentID string) bool {
	_, err := os.Stat(s.catalogFile(documentID))
	return err == nil
}

func (s *Storage) catalogFile(documentID string) string {
	return filepath.Join(s.catalogPath, documentID+".json")
}
