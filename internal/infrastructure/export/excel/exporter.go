// Package excel writes batch-run summary workbooks: one row per
// document with its classification outcome, for whoever reviews runs
// without touching the JSON catalogs.
package excel

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/formvault/formvault/internal/core/domain"
)

const sheetName = "Summary"

var headers = []string{
	"Document ID", "Document Name", "Pages", "Primary Type",
	"Avg Confidence", "Latest Form Page", "Manual Review", "Errors",
}

type Exporter struct {
	dir string
	now func() time.Time
}

func New(dir string) (*Exporter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir %s: %w", dir, err)
	}
	return &Exporter{dir: dir, now: time.Now}, nil
}

// WriteSummary produces a timestamped workbook for one batch run and
// returns its path.
func (e *Exporter) WriteSummary(entries []domain.DocumentCatalogEntry) (string, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return "", fmt.Errorf("rename sheet: %w", err)
	}
	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return "", err
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return "", fmt.Errorf("write header %s: %w", header, err)
		}
	}

	for i, entry := range entries {
		row := i + 2
		values := []any{
			entry.DocumentID,
			entry.DocumentName,
			entry.TotalPages,
			string(entry.Classification.PrimaryType),
			averageConfidence(entry.Pages),
			entry.Classification.LatestFormPage,
			entry.Summary.NeedsManualReview,
			strings.Join(entry.Summary.Errors, "; "),
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return "", err
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return "", fmt.Errorf("write row %d: %w", row, err)
			}
		}
	}

	if err := f.SetColWidth(sheetName, "A", "B", 40); err != nil {
		return "", err
	}
	if err := f.SetColWidth(sheetName, "H", "H", 60); err != nil {
		return "", err
	}

	path := filepath.Join(e.dir, fmt.Sprintf("catalog_summary_%s.xlsx", e.now().Format("20060102_150405")))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save workbook %s: %w", path, err)
	}
	return path, nil
}

func averageConfidence(pages []domain.PageAnalysis) float64 {
	if len(pages) == 0 {
		return 0
	}
	var sum float64
	for _, page := range pages {
		sum += page.ConfidenceScore
	}
	return sum / float64(len(pages))
}
