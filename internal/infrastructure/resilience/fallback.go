package resilience

import (
	"log/slog"

	"github.com/formvault/formvault/internal/core/domain"
)

// FallbackAnalysis walks the fallback chain for one page and always
// returns a usable analysis. Priority order is fixed: keyword
// classification, partial-response recovery (parsing failures only,
// when raw output exists), then the error stub. The stub cannot fail,
// so the orchestrator never sees "no result" for a page it attempted.
func (c *Controller) FallbackAnalysis(pageNumber int, text string, cause error, raw string) domain.PageAnalysis {
	c.stats.RecordFallback()

	if c.keyword != nil {
		if analysis, ok := c.keyword.ClassifyPage(pageNumber, text); ok {
			slog.Info("fallback_keyword", "page", pageNumber, "page_type", string(analysis.PageType))
			return analysis
		}
	}

	if raw != "" && domain.IsKind(cause, domain.ErrResponseParse) && c.recover != nil {
		analysis, ok := c.recover(raw, pageNumber)
		c.stats.RecordRecovery(ok)
		if ok {
			slog.Info("fallback_recovered", "page", pageNumber)
			return analysis
		}
	}

	return c.errorStub(pageNumber, cause)
}

func (c *Controller) errorStub(pageNumber int, cause error) domain.PageAnalysis {
	message := "classifier unavailable"
	if cause != nil {
		message = cause.Error()
	}
	slog.Warn("fallback_error_stub", "page", pageNumber, "error", message)
	return domain.PageAnalysis{
		PageNumber:      pageNumber,
		PageTitle:       "unclassified page",
		PageType:        domain.PageTypeOther,
		ConfidenceScore: 0,
		ExtractedValues: map[string]any{
			"error":           message,
			"fallback_reason": "error_stub",
		},
		Metadata: domain.PageMetadata{
			ImageQuality:     domain.ImageQualityMedium,
			ExtractionMethod: domain.ExtractionText,
		},
	}
}
