package anthropic

import (
	"fmt"
	"strings"

	"github.com/formvault/formvault/internal/core/domain"
)

// maxPageSnippet bounds how much of a page's text goes into the prompt.
const maxPageSnippet = 6000

func systemPrompt(variant domain.PromptVariant) string {
	base := `You are a document page classifier for personnel record archives.
For every page you receive, return one object with keys:
page_number (integer), page_title (string), page_type (one of "government_form", "identity_document", "employment_record", "other"),
page_subtype (short tag), confidence_score (number 0 to 1),
extracted_values (object of notable fields such as form_number, effective_date, names),
text_regions (array of {region_id, text, confidence}),
page_metadata (object with has_handwriting, has_signatures, image_quality one of "high"/"medium"/"low", extraction_method one of "text"/"ocr"/"hybrid").
Return strict JSON only. No markdown, no commentary.`

	if variant == domain.PromptSinglePage {
		return base + `
Respond with a JSON object {"pages": [<the one page object>]}.`
	}
	return base + `
Respond with a JSON object {"pages": [...]} containing one object per input page, in input order.`
}

func buildUserPrompt(req domain.ClassifyRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Document: %s\nPages in this request: %d\n\n", req.DocumentName, len(req.Pages))
	for _, page := range req.Pages {
		snippet := page.Text
		if len(snippet) > maxPageSnippet {
			snippet = snippet[:maxPageSnippet]
		}
		fmt.Fprintf(&b, "=== PAGE %d ===\n%s\n\n", page.PageNumber, snippet)
	}
	return b.String()
}
