package usecase

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/formvault/formvault/internal/core/domain"
)

func formPage(number int, subtype string, values map[string]any) domain.PageAnalysis {
	return domain.PageAnalysis{
		PageNumber:      number,
		PageType:        domain.PageTypeGovernmentForm,
		PageSubtype:     subtype,
		ConfidenceScore: 0.9,
		ExtractedValues: values,
	}
}

func TestClassifyDocumentPrimaryTypeAndFormCounts(t *testing.T) {
	pages := []domain.PageAnalysis{
		formPage(1, "sf50", nil),
		formPage(2, "sf50", nil),
		{PageNumber: 3, PageType: domain.PageTypeIdentityDocument, ConfidenceScore: 0.8},
		{PageNumber: 4, PageType: domain.PageTypeOther, ConfidenceScore: 0.2},
		{PageNumber: 5, PageType: domain.PageTypeOther, ConfidenceScore: 0.2},
		{PageNumber: 6, PageType: domain.PageTypeOther, ConfidenceScore: 0.2},
	}

	classification := classifyDocument(pages)

	if classification.PrimaryType != domain.PageTypeGovernmentForm {
		t.Fatalf("primary type = %s, want government_form despite more 'other' pages", classification.PrimaryType)
	}
	if classification.FormCounts["sf50"] != 2 {
		t.Fatalf("form counts = %v", classification.FormCounts)
	}
	if classification.LatestFormPage != 2 {
		t.Fatalf("latest form page = %d, want 2", classification.LatestFormPage)
	}
}

func TestLatestFormPagePrefersExtractedDate(t *testing.T) {
	pages := []domain.PageAnalysis{
		formPage(1, "sf50", map[string]any{"effective_date": "2025-11-30"}),
		formPage(7, "sf50", map[string]any{"effective_date": "2023-01-15"}),
		formPage(9, "sf50", nil),
	}
	if got := latestFormPage(pages); got != 1 {
		t.Fatalf("latest form page = %d, want 1 (newest effective date)", got)
	}
}

func TestLatestFormPageFallsBackToPosition(t *testing.T) {
	pages := []domain.PageAnalysis{
		formPage(2, "", nil),
		formPage(8, "", map[string]any{"effective_date": "not a date"}),
		{PageNumber: 9, PageType: domain.PageTypeOther},
	}
	if got := latestFormPage(pages); got != 8 {
		t.Fatalf("latest form page = %d, want 8", got)
	}
}

func TestBuildSummaryBucketsAndReviewFlag(t *testing.T) {
	pages := []domain.PageAnalysis{
		{PageNumber: 1, ConfidenceScore: 0.95},
		{PageNumber: 2, ConfidenceScore: 0.6},
		{PageNumber: 3, ConfidenceScore: 0.2},
		{PageNumber: 4, ConfidenceScore: 0.1},
		{PageNumber: 5, ConfidenceScore: 0.3},
	}

	summary := buildSummary(pages, AnalysisReport{ClassifierCalls: 2}, nil)

	if summary.ConfidenceBuckets["high"] != 1 || summary.ConfidenceBuckets["medium"] != 1 || summary.ConfidenceBuckets["low"] != 3 {
		t.Fatalf("buckets = %v", summary.ConfidenceBuckets)
	}
	if !summary.NeedsManualReview {
		t.Fatal("majority-low-confidence document should be flagged for review")
	}

	clean := buildSummary(pages[:2], AnalysisReport{ClassifierCalls: 1}, nil)
	if clean.NeedsManualReview {
		t.Fatal("clean summary should not be flagged")
	}
	if clean.ClassifierCalls != 1 || clean.PagesAnalyzed != 2 {
		t.Fatalf("summary = %+v", clean)
	}
}

func TestProcessDirectoryDeduplicatesByContentHash(t *testing.T) {
	dir := t.TempDir()
	original := filepath.Join(dir, "original.pdf")
	duplicate := filepath.Join(dir, "duplicate.pdf")
	for _, path := range []string{original, duplicate} {
		if err := os.WriteFile(path, []byte("%PDF-1.4 same bytes"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	mtime := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, path := range []string{original, duplicate} {
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatalf("chtimes %s: %v", path, err)
		}
	}

	extractor := &fakeExtractor{
		counts: map[string]int{original: 1, duplicate: 1},
		texts: map[string]map[int]string{
			original:  {1: "form text"},
			duplicate: {1: "form text"},
		},
	}
	p := newPipeline(t, extractor, echoClassifier())
	batch := NewCatalogBatchUseCase(BatchConfig{Workers: 2}, p.uc)

	entries, err := batch.ProcessDirectory(context.Background(), dir)
	if err != nil {
		t.Fatalf("process directory: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected identical files to collapse to 1 entry, got %d", len(entries))
	}
}
