package domain

import "time"

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

// Document is the persisted row tracking one source file through the
// pipeline. The full analysis lives in the catalog entry, not here.
type Document struct {
	ID          string         `json:"id"`
	Filename    string         `json:"filename"`
	StoragePath string         `json:"storage_path"`
	TotalPages  int            `json:"total_pages,omitempty"`
	PrimaryType PageType       `json:"primary_type,omitempty"`
	Confidence  float64        `json:"confidence,omitempty"`
	Status      DocumentStatus `json:"status"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

type DocumentClassification struct {
	PrimaryType    PageType       `json:"primary_type"`
	FormCounts     map[string]int `json:"form_counts,omitempty"`
	LatestFormPage int            `json:"latest_form_page,omitempty"`
}

type ProcessingSummary struct {
	PagesAnalyzed     int            `json:"pages_analyzed"`
	ClassifierCalls   int            `json:"classifier_calls"`
	ErrorCount        int            `json:"error_count"`
	Errors            []string       `json:"errors,omitempty"`
	ConfidenceBuckets map[string]int `json:"confidence_buckets,omitempty"`
	NeedsManualReview bool           `json:"needs_manual_review"`
}

// DocumentCatalogEntry is the unit the analysis cache stores: the full
// per-page analysis of one document, keyed by its content hash. Entries
// are values; they are replaced wholesale on re-analysis, never mutated
// in place.
type DocumentCatalogEntry struct {
	DocumentID     string                 `json:"document_id"`
	DocumentName   string                 `json:"document_name"`
	TotalPages     int                    `json:"total_pages"`
	ProcessedAt    time.Time              `json:"processing_timestamp"`
	Pages          []PageAnalysis         `json:"pages"`
	Classification DocumentClassification `json:"document_classification"`
	Summary        ProcessingSummary      `json:"processing_summary"`
}

// Page returns the analysis for a 1-based page number, if present.
func (e DocumentCatalogEntry) Page(pageNumber int) (PageAnalysis, bool) {
	for _, page := range e.Pages {
		if page.PageNumber == pageNumber {
			return page, true
		}
	}
	return PageAnalysis{}, false
}
