// Package pdf discovers page counts and extracts per-page plain text
// from stored PDF documents.
package pdf

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/formvault/formvault/internal/core/domain"
)

type Extractor struct{}

func New() *Extractor { return &Extractor{} }

func (e *Extractor) PageCount(_ context.Context, storagePath string) (int, error) {
	f, reader, err := pdf.Open(storagePath)
	if err != nil {
		return 0, domain.WrapError(domain.ErrDocumentIO, "open pdf", err)
	}
	defer f.Close()
	return reader.NumPage(), nil
}

// PageText extracts the text layer of a 1-based page. An empty result
// is not an error: scanned pages simply have no text layer, and the
// caller marks them for the ocr extraction method.
func (e *Extractor) PageText(_ context.Context, storagePath string, pageNumber int) (string, error) {
	f, reader, err := pdf.Open(storagePath)
	if err != nil {
		return "", domain.WrapError(domain.ErrDocumentIO, "open pdf", err)
	}
	defer f.Close()

	if pageNumber < 1 || pageNumber > reader.NumPage() {
		return "", fmt.Errorf("page %d out of range 1..%d: %w", pageNumber, reader.NumPage(), domain.ErrInvalidInput)
	}

	page := reader.Page(pageNumber)
	if page.V.IsNull() {
		return "", nil
	}
	texts := page.Content().Text
	var b strings.Builder
	for _, t := range texts {
		b.WriteString(t.S)
	}
	return strings.TrimSpace(b.String()), nil
}
