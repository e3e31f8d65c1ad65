package recovery

import (
	"strings"

	"github.com/formvault/formvault/internal/core/domain"
)

// Sanitize turns a recovered record into a valid PageAnalysis. Enum
// fields are coerced to a member or defaulted, confidences clamped to
// [0,1], and the page number overridden with the orchestrator's own
// sequence position: the model may misnumber or omit pages in a batch,
// so its numbering is never trusted.
func Sanitize(record PageRecord, pageNumber int) domain.PageAnalysis {
	analysis := domain.PageAnalysis{
		PageNumber:      pageNumber,
		PageTitle:       strings.TrimSpace(record.PageTitle),
		PageType:        coercePageType(record.PageType),
		PageSubtype:     strings.TrimSpace(record.PageSubtype),
		ConfidenceScore: domain.ClampConfidence(record.ConfidenceScore),
		ExtractedValues: record.ExtractedValues,
		Metadata: domain.PageMetadata{
			HasHandwriting:   record.PageMetadata.HasHandwriting,
			HasSignatures:    record.PageMetadata.HasSignatures,
			ImageQuality:     coerceImageQuality(record.PageMetadata.ImageQuality),
			ExtractionMethod: coerceExtractionMethod(record.PageMetadata.ExtractionMethod),
		},
	}
	if analysis.PageTitle == "" {
		analysis.PageTitle = "untitled page"
	}
	for _, region := range record.TextRegions {
		analysis.TextRegions = append(analysis.TextRegions, domain.TextRegion{
			RegionID:   region.RegionID,
			Text:       region.Text,
			Confidence: domain.ClampConfidence(region.Confidence),
		})
	}
	return analysis
}

// RecoverPage salvages a single page analysis from malformed raw
// output. Used as the second rung of the fallback chain.
func RecoverPage(raw string, pageNumber int) (domain.PageAnalysis, bool) {
	records, ok := ParseBatch(raw)
	if !ok {
		return domain.PageAnalysis{}, false
	}
	// Prefer the record the model numbered like ours; settle for the
	// first one otherwise.
	for _, record := range records {
		if record.PageNumber == pageNumber {
			return Sanitize(record, pageNumber), true
		}
	}
	return Sanitize(records[0], pageNumber), true
}

func coercePageType(raw string) domain.PageType {
	if parsed, err := domain.ParsePageType(strings.ToLower(strings.TrimSpace(raw))); err == nil {
		return parsed
	}
	return domain.PageTypeOther
}

func coerceImageQuality(raw string) domain.ImageQuality {
	if parsed, err := domain.ParseImageQuality(strings.ToLower(strings.TrimSpace(raw))); err == nil {
		return parsed
	}
	return domain.ImageQualityMedium
}

func coerceExtractionMethod(raw string) domain.ExtractionMethod {
	if parsed, err := domain.ParseExtractionMethod(strings.ToLower(strings.TrimSpace(raw))); err == nil {
		return parsed
	}
	return domain.ExtractionText
}
