// Package keyword is the cheap text-only classifier used as the first
// fallback when the external classifier is unavailable, and as the
// pre-check that decides whether a page is worth a paid call at all.
package keyword

import (
	"strings"

	"github.com/formvault/formvault/internal/core/domain"
)

// maxConfidence caps every keyword-derived score to signal reduced
// trust relative to the real classifier.
const maxConfidence = 0.8

// DefaultPrecheckMinHits is the minimum weak-keyword hit count for a
// page to be considered worth the expensive path. Carried over from the
// upstream tuning; override via config rather than here.
const DefaultPrecheckMinHits = 3

type phraseSet struct {
	pageType domain.PageType
	subtype  string
	phrases  []string
}

// vocabulary is scanned in order; the set with the most phrase hits
// wins.
var vocabulary = []phraseSet{
	{
		pageType: domain.PageTypeGovernmentForm,
		subtype:  "standard_form",
		phrases: []string{
			"standard form", "omb no", "form approved", "u.s. office of personnel",
			"notification of personnel action", "request for personnel action",
			"agency use", "effective date", "authority", "civil service",
		},
	},
	{
		pageType: domain.PageTypeIdentityDocument,
		subtype:  "identification",
		phrases: []string{
			"date of birth", "place of birth", "passport", "driver license",
			"social security number", "identification card", "nationality",
		},
	},
	{
		pageType: domain.PageTypeEmploymentRecord,
		subtype:  "employment_history",
		phrases: []string{
			"employment history", "position title", "salary", "grade or level",
			"appointment", "duty station", "work schedule", "employer",
		},
	},
}

type Classifier struct{}

func New() *Classifier { return &Classifier{} }

// ClassifyPage scans the page text against the fixed vocabulary and
// returns a coarse analysis. Reports false when nothing matched, which
// pushes the fallback chain to the next rung.
func (c *Classifier) ClassifyPage(pageNumber int, text string) (domain.PageAnalysis, bool) {
	set, hits := bestMatch(text)
	if hits == 0 {
		return domain.PageAnalysis{}, false
	}

	confidence := 0.4 + 0.1*float64(hits)
	if confidence > maxConfidence {
		confidence = maxConfidence
	}
	analysis, err := domain.NewPageAnalysis(pageNumber, strings.ReplaceAll(set.subtype, "_", " "), string(set.pageType))
	if err != nil {
		return domain.PageAnalysis{}, false
	}
	analysis.PageSubtype = set.subtype
	analysis.ConfidenceScore = confidence
	analysis.ExtractedValues = map[string]any{
		"fallback_reason": "keyword_classification",
		"keyword_hits":    hits,
	}
	return analysis, true
}

// HitCount returns the strongest phrase-set hit count for the text. The
// orchestrator's pre-check compares it against the configured minimum.
func (c *Classifier) HitCount(text string) int {
	_, hits := bestMatch(text)
	return hits
}

func bestMatch(text string) (phraseSet, int) {
	lowered := strings.ToLower(text)
	var best phraseSet
	bestHits := 0
	for _, set := range vocabulary {
		hits := 0
		for _, phrase := range set.phrases {
			if strings.Contains(lowered, phrase) {
				hits++
			}
		}
		if hits > bestHits {
			best = set
			bestHits = hits
		}
	}
	return best, bestHits
}
