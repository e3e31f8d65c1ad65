package cache

import "github.com/formvault/formvault/internal/core/domain"

// estimateEntrySize approximates an entry's footprint by summing the
// byte lengths of its strings, each biased by perObjectOverhead. It is
// an accounting figure, not an exact measurement; both sides of the
// memory bound use the same estimator so the bound stays consistent.
func estimateEntrySize(entry domain.DocumentCatalogEntry) int64 {
	size := int64(perObjectOverhead)
	size += int64(len(entry.DocumentID) + len(entry.DocumentName))
	for _, page := range entry.Pages {
		size += estimatePageSize(page)
	}
	size += int64(perObjectOverhead)
	for form := range entry.Classification.FormCounts {
		size += int64(len(form)) + perObjectOverhead
	}
	for _, msg := range entry.Summary.Errors {
		size += int64(len(msg)) + perObjectOverhead
	}
	return size
}

func estimatePageSize(page domain.PageAnalysis) int64 {
	size := int64(perObjectOverhead)
	size += int64(len(page.PageTitle) + len(page.PageSubtype))
	for key, value := range page.ExtractedValues {
		size += int64(len(key)) + estimateValueSize(value)
	}
	for _, region := range page.TextRegions {
		size += int64(len(region.RegionID)+len(region.Text)) + perObjectOverhead
	}
	return size
}

func estimateValueSize(value any) int64 {
	switch v := value.(type) {
	case string:
		return int64(len(v)) + perObjectOverhead
	case map[string]any:
		size := int64(perObjectOverhead)
		for key, nested := range v {
			size += int64(len(key)) + estimateValueSize(nested)
		}
		return size
	case []any:
		size := int64(perObjectOverhead)
		for _, item := range v {
			size += estimateValueSize(item)
		}
		return size
	default:
		return perObjectOverhead
	}
}
