package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/formvault/formvault/internal/core/domain"
	"github.com/formvault/formvault/internal/infrastructure/classifier/keyword"
	"github.com/formvault/formvault/internal/infrastructure/recovery"
	"github.com/formvault/formvault/internal/infrastructure/resilience"
)

type fakeClassifier struct {
	mu       sync.Mutex
	fn       func(req domain.ClassifyRequest) (string, error)
	requests []domain.ClassifyRequest
}

func (f *fakeClassifier) ClassifyPages(_ context.Context, req domain.ClassifyRequest) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.fn(req)
}

func (f *fakeClassifier) recorded() []domain.ClassifyRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ClassifyRequest(nil), f.requests...)
}

type fakePageCache struct {
	pages map[string]map[int]domain.PageAnalysis
}

func (f *fakePageCache) Store(string, domain.DocumentCatalogEntry) bool { return true }
func (f *fakePageCache) Get(string) (domain.DocumentCatalogEntry, bool) {
	return domain.DocumentCatalogEntry{}, false
}
func (f *fakePageCache) GetPage(id string, pageNumber int) (domain.PageAnalysis, bool) {
	analysis, ok := f.pages[id][pageNumber]
	return analysis, ok
}
func (f *fakePageCache) Remove(string) bool    { return false }
func (f *fakePageCache) Len() int              { return len(f.pages) }
func (f *fakePageCache) MemoryUsageBytes() int64 { return 0 }

func quietController(t *testing.T) *resilience.Controller {
	t.Helper()
	controller := resilience.NewController(resilience.Config{
		MaxRetries: 1,
		BaseDelay:  time.Millisecond,
	}, resilience.NewErrorStats(), nil, recovery.RecoverPage)
	controller.SetSleep(func(context.Context, time.Duration) error { return nil })
	return controller
}

func batchJSON(pages ...domain.PageAnalysis) string {
	var sb strings.Builder
	sb.WriteString(`{"pages": [`)
	for i, p := range pages {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, `{"page_number": %d, "page_title": %q, "page_type": %q, "confidence_score": %v}`,
			p.PageNumber, p.PageTitle, string(p.PageType), p.ConfidenceScore)
	}
	sb.WriteString(`]}`)
	return sb.String()
}

func contentPages(numbers ...int) []domain.PageContent {
	pages := make([]domain.PageContent, 0, len(numbers))
	for _, n := range numbers {
		pages = append(pages, domain.PageContent{PageNumber: n, Text: fmt.Sprintf("application for benefits form page %d", n)})
	}
	return pages
}

func TestAnalyzePagesReassemblesShuffledResponse(t *testing.T) {
	classifier := &fakeClassifier{fn: func(req domain.ClassifyRequest) (string, error) {
		return batchJSON(
			domain.PageAnalysis{PageNumber: 3, PageTitle: "Third", PageType: domain.PageTypeOther, ConfidenceScore: 0.9},
			domain.PageAnalysis{PageNumber: 1, PageTitle: "First", PageType: domain.PageTypeGovernmentForm, ConfidenceScore: 0.95},
			domain.PageAnalysis{PageNumber: 2, PageTitle: "Second", PageType: domain.PageTypeIdentityDocument, ConfidenceScore: 0.85},
		), nil
	}}
	analyzer := NewPageAnalyzer(AnalyzerConfig{BatchSize: 3}, nil, nil, classifier, quietController(t), nil, nil)

	analyses, report := analyzer.AnalyzePages(context.Background(), "doc-1", "doc.pdf", contentPages(1, 2, 3))

	if len(analyses) != 3 {
		t.Fatalf("expected 3 analyses, got %d", len(analyses))
	}
	wantTitles := []string{"First", "Second", "Third"}
	for i, analysis := range analyses {
		if analysis.PageNumber != i+1 {
			t.Fatalf("position %d holds page %d", i, analysis.PageNumber)
		}
		if analysis.PageTitle != wantTitles[i] {
			t.Fatalf("page %d title = %q, want %q", i+1, analysis.PageTitle, wantTitles[i])
		}
	}
	if report.ClassifierCalls != 1 {
		t.Fatalf("classifier calls = %d, want 1", report.ClassifierCalls)
	}
}

func TestAnalyzePagesBatchFailureIsContained(t *testing.T) {
	classifier := &fakeClassifier{}
	classifier.fn = func(req domain.ClassifyRequest) (string, error) {
		if req.Pages[0].PageNumber >= 4 {
			return "", errors.New("backend exploded")
		}
		analyses := make([]domain.PageAnalysis, 0, len(req.Pages))
		for _, p := range req.Pages {
			analyses = append(analyses, domain.PageAnalysis{
				PageNumber: p.PageNumber, PageTitle: fmt.Sprintf("Page %d", p.PageNumber),
				PageType: domain.PageTypeGovernmentForm, ConfidenceScore: 0.9,
			})
		}
		return batchJSON(analyses...), nil
	}
	analyzer := NewPageAnalyzer(AnalyzerConfig{BatchSize: 3}, nil, nil, classifier, quietController(t), nil, nil)

	analyses, report := analyzer.AnalyzePages(context.Background(), "doc-1", "doc.pdf", contentPages(1, 2, 3, 4, 5, 6))

	if len(analyses) != 6 {
		t.Fatalf("expected 6 analyses, got %d", len(analyses))
	}
	for _, analysis := range analyses[:3] {
		if analysis.PageType != domain.PageTypeGovernmentForm {
			t.Fatalf("page %d lost its real classification", analysis.PageNumber)
		}
	}
	for _, analysis := range analyses[3:] {
		if analysis.PageType != domain.PageTypeOther {
			t.Fatalf("page %d should carry a fallback analysis, got type %s", analysis.PageNumber, analysis.PageType)
		}
		if analysis.ExtractedValues["fallback_reason"] != "error_stub" {
			t.Fatalf("page %d missing error stub marker: %v", analysis.PageNumber, analysis.ExtractedValues)
		}
	}
	if len(report.Errors) == 0 {
		t.Fatal("expected batch failure to be reported")
	}
}

func TestAnalyzePagesServesCachedPages(t *testing.T) {
	cache := &fakePageCache{pages: map[string]map[int]domain.PageAnalysis{
		"doc-1": {2: {PageNumber: 2, PageTitle: "Cached", PageType: domain.PageTypeIdentityDocument, ConfidenceScore: 0.99}},
	}}
	classifier := &fakeClassifier{fn: func(req domain.ClassifyRequest) (string, error) {
		analyses := make([]domain.PageAnalysis, 0, len(req.Pages))
		for _, p := range req.Pages {
			analyses = append(analyses, domain.PageAnalysis{PageNumber: p.PageNumber, PageTitle: "Fresh", PageType: domain.PageTypeOther, ConfidenceScore: 0.7})
		}
		return batchJSON(analyses...), nil
	}}
	analyzer := NewPageAnalyzer(AnalyzerConfig{BatchSize: 3}, cache, nil, classifier, quietController(t), nil, nil)

	analyses, report := analyzer.AnalyzePages(context.Background(), "doc-1", "doc.pdf", contentPages(1, 2, 3))

	if report.CachedPages != 1 {
		t.Fatalf("cached pages = %d, want 1", report.CachedPages)
	}
	if analyses[1].PageTitle != "Cached" {
		t.Fatalf("page 2 was re-analyzed: %q", analyses[1].PageTitle)
	}
	for _, req := range classifier.recorded() {
		for _, p := range req.Pages {
			if p.PageNumber == 2 {
				t.Fatal("cached page 2 was sent to the classifier")
			}
		}
	}
}

func TestAnalyzePagesPrecheckSkipsSparseText(t *testing.T) {
	classifier := &fakeClassifier{fn: func(req domain.ClassifyRequest) (string, error) {
		t.Fatal("classifier should not be called for prechecked pages")
		return "", nil
	}}
	analyzer := NewPageAnalyzer(AnalyzerConfig{
		BatchSize:       3,
		PrecheckEnabled: true,
		PrecheckMinHits: 3,
	}, nil, nil, classifier, quietController(t), nil, keyword.New())

	pages := []domain.PageContent{{PageNumber: 1, Text: "lorem ipsum dolor sit amet"}}
	analyses, report := analyzer.AnalyzePages(context.Background(), "doc-1", "doc.pdf", pages)

	if len(analyses) != 1 {
		t.Fatalf("expected 1 analysis, got %d", len(analyses))
	}
	if report.ClassifierCalls != 0 {
		t.Fatalf("classifier calls = %d, want 0", report.ClassifierCalls)
	}
	if analyses[0].ExtractedValues["analysis_mode"] != "simplified" {
		t.Fatalf("missing simplified marker: %v", analyses[0].ExtractedValues)
	}
}

func TestAnalyzePagesBreakerOpenSkipsClassifier(t *testing.T) {
	classifier := &fakeClassifier{fn: func(req domain.ClassifyRequest) (string, error) {
		t.Fatal("classifier should not be called while the breaker is open")
		return "", nil
	}}
	controller := quietController(t)
	controller.Breaker().Activate()
	analyzer := NewPageAnalyzer(AnalyzerConfig{BatchSize: 3}, nil, nil, classifier, controller, nil, nil)

	analyses, report := analyzer.AnalyzePages(context.Background(), "doc-1", "doc.pdf", contentPages(1, 2))

	if len(analyses) != 2 {
		t.Fatalf("expected 2 analyses, got %d", len(analyses))
	}
	if report.ClassifierCalls != 0 {
		t.Fatalf("classifier calls = %d, want 0", report.ClassifierCalls)
	}
}

func TestAnalyzePagesGarbageResponsesRaiseErrorRate(t *testing.T) {
	classifier := &fakeClassifier{fn: func(req domain.ClassifyRequest) (string, error) {
		return "utter garbage, no json at all", nil
	}}
	controller := quietController(t)
	analyzer := NewPageAnalyzer(AnalyzerConfig{BatchSize: 3}, nil, nil, classifier, controller, nil, nil)

	analyses, report := analyzer.AnalyzePages(context.Background(), "doc-1", "doc.pdf", contentPages(1, 2, 3, 4, 5, 6))

	if len(analyses) != 6 {
		t.Fatalf("expected 6 analyses, got %d", len(analyses))
	}
	snapshot := controller.Stats().Snapshot()
	if got := snapshot.Counts[resilience.CategoryParsing]; got != 6 {
		t.Fatalf("parsing errors recorded = %d, want 6", got)
	}
	if rate := controller.Stats().RatePerMinute(10 * time.Minute); rate <= 0.5 {
		t.Fatalf("error rate = %v, want > 0.5", rate)
	}
	if controller.Breaker().Open() {
		t.Fatal("breaker opened on successful transport")
	}
	if !controller.ShouldUseFallback() {
		t.Fatal("proactive fallback guard did not trip on parse failures")
	}
	// Once the guard trips, remaining pages skip the classifier.
	if report.ClassifierCalls != 6 {
		t.Fatalf("classifier calls = %d, want 6", report.ClassifierCalls)
	}
}
