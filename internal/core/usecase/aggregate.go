package usecase

import (
	"time"

	"github.com/formvault/formvault/internal/core/domain"
)

// typePriority breaks frequency ties: forms outrank identity papers,
// identity papers outrank employment records, and "other" never wins
// while anything specific is present.
var typePriority = []domain.PageType{
	domain.PageTypeGovernmentForm,
	domain.PageTypeIdentityDocument,
	domain.PageTypeEmploymentRecord,
	domain.PageTypeOther,
}

func classifyDocument(pages []domain.PageAnalysis) domain.DocumentClassification {
	counts := make(map[domain.PageType]int, len(pages))
	formCounts := make(map[string]int)
	for _, page := range pages {
		counts[page.PageType]++
		if page.PageType == domain.PageTypeGovernmentForm {
			subtype := page.PageSubtype
			if subtype == "" {
				subtype = "unspecified"
			}
			formCounts[subtype]++
		}
	}

	primary := domain.PageTypeOther
	best := 0
	for _, pageType := range typePriority {
		if pageType == domain.PageTypeOther {
			continue
		}
		if counts[pageType] > best {
			primary, best = pageType, counts[pageType]
		}
	}

	classification := domain.DocumentClassification{
		PrimaryType:    primary,
		LatestFormPage: latestFormPage(pages),
	}
	if len(formCounts) > 0 {
		classification.FormCounts = formCounts
	}
	return classification
}

var formDateLayouts = []string{"2006-01-02", "01/02/2006", "01-02-2006"}

// latestFormPage picks the most recent government form. An extracted
// effective date wins when parseable; page position decides otherwise,
// later pages presumed newer.
func latestFormPage(pages []domain.PageAnalysis) int {
	bestPage := 0
	var bestDate time.Time
	bestHasDate := false
	for _, page := range pages {
		if page.PageType != domain.PageTypeGovernmentForm {
			continue
		}
		date, hasDate := extractedFormDate(page)
		switch {
		case hasDate && (!bestHasDate || date.After(bestDate)):
			bestPage, bestDate, bestHasDate = page.PageNumber, date, true
		case !hasDate && !bestHasDate && page.PageNumber > bestPage:
			bestPage = page.PageNumber
		}
	}
	return bestPage
}

func extractedFormDate(page domain.PageAnalysis) (time.Time, bool) {
	raw, ok := page.ExtractedValues["effective_date"].(string)
	if !ok || raw == "" {
		return time.Time{}, false
	}
	for _, layout := range formDateLayouts {
		if date, err := time.Parse(layout, raw); err == nil {
			return date, true
		}
	}
	return time.Time{}, false
}

func buildSummary(pages []domain.PageAnalysis, report AnalysisReport, extractionErrors []string) domain.ProcessingSummary {
	buckets := map[string]int{"high": 0, "medium": 0, "low": 0}
	for _, page := range pages {
		switch {
		case page.ConfidenceScore >= 0.8:
			buckets["high"]++
		case page.ConfidenceScore >= 0.5:
			buckets["medium"]++
		default:
			buckets["low"]++
		}
	}

	errs := make([]string, 0, len(extractionErrors)+len(report.Errors))
	errs = append(errs, extractionErrors...)
	errs = append(errs, report.Errors...)

	return domain.ProcessingSummary{
		PagesAnalyzed:     len(pages),
		ClassifierCalls:   report.ClassifierCalls,
		ErrorCount:        len(errs),
		Errors:            errs,
		ConfidenceBuckets: buckets,
		NeedsManualReview: len(errs) > 0 || buckets["low"] > len(pages)/2,
	}
}
