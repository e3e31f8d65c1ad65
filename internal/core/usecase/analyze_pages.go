package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/formvault/formvault/internal/core/domain"
	"github.com/formvault/formvault/internal/core/ports"
	"github.com/formvault/formvault/internal/infrastructure/recovery"
	"github.com/formvault/formvault/internal/infrastructure/resilience"
)

// Precheck is the cheap text-only classifier consulted before spending
// an external call on a page.
type Precheck interface {
	HitCount(text string) int
	ClassifyPage(pageNumber int, text string) (domain.PageAnalysis, bool)
}

type AnalyzerConfig struct {
	// BatchSize is how many pages share one classifier call.
	BatchSize int
	// PrecheckEnabled routes pages with fewer than PrecheckMinHits
	// vocabulary hits to a simplified analysis without calling out.
	PrecheckEnabled bool
	PrecheckMinHits int
	// MemoryThresholdBytes triggers cache pressure relief before each
	// batch. Zero disables the check.
	MemoryThresholdBytes int64
}

func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		BatchSize:            3,
		PrecheckEnabled:      false,
		PrecheckMinHits:      3,
		MemoryThresholdBytes: 200 << 20,
	}
}

func (c AnalyzerConfig) normalize() AnalyzerConfig {
	out := c
	if out.BatchSize <= 0 {
		out.BatchSize = 3
	}
	if out.PrecheckMinHits <= 0 {
		out.PrecheckMinHits = 3
	}
	return out
}

// AnalysisReport carries the side facts of one AnalyzePages run that
// the catalog summary needs.
type AnalysisReport struct {
	ClassifierCalls int
	CachedPages     int
	Errors          []string
}

// PageAnalyzer turns a document's pages into analyses. Cached pages are
// served without external calls, prechecked boilerplate gets a
// simplified stub, and the rest goes to the classifier in batches with
// the full retry, pacing and fallback treatment around every call.
type PageAnalyzer struct {
	cfg        AnalyzerConfig
	cache      ports.AnalysisCache
	pressure   resilience.PressureCache
	classifier ports.PageClassifier
	controller *resilience.Controller
	pacer      *resilience.Pacer
	precheck   Precheck
}

func NewPageAnalyzer(
	cfg AnalyzerConfig,
	cache ports.AnalysisCache,
	pressure resilience.PressureCache,
	classifier ports.PageClassifier,
	controller *resilience.Controller,
	pacer *resilience.Pacer,
	precheck Precheck,
) *PageAnalyzer {
	return &PageAnalyzer{
		cfg:        cfg.normalize(),
		cache:      cache,
		pressure:   pressure,
		classifier: classifier,
		controller: controller,
		pacer:      pacer,
		precheck:   precheck,
	}
}

// AnalyzePages produces exactly one analysis per input page, in
// ascending page order, regardless of what the classifier returns or
// fails to return.
func (a *PageAnalyzer) AnalyzePages(ctx context.Context, documentID, documentName string, pages []domain.PageContent) ([]domain.PageAnalysis, AnalysisReport) {
	var report AnalysisReport
	byPage := make(map[int]domain.PageAnalysis, len(pages))
	var pending []domain.PageContent

	for _, page := range pages {
		if a.cache != nil {
			if analysis, ok := a.cache.GetPage(documentID, page.PageNumber); ok {
				byPage[page.PageNumber] = analysis
				report.CachedPages++
				continue
			}
		}
		if a.cfg.PrecheckEnabled && a.precheck != nil && a.precheck.HitCount(page.Text) < a.cfg.PrecheckMinHits {
			byPage[page.PageNumber] = a.simplifiedAnalysis(page)
			continue
		}
		pending = append(pending, page)
	}

	for start := 0; start < len(pending); start += a.cfg.BatchSize {
		end := start + a.cfg.BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		if a.cfg.MemoryThresholdBytes > 0 && a.pressure != nil {
			a.controller.RelieveMemoryPressure(a.pressure, a.cfg.MemoryThresholdBytes)
		}

		for _, analysis := range a.analyzeBatch(ctx, documentName, batch, &report) {
			byPage[analysis.PageNumber] = analysis
		}
	}

	ordered := make([]domain.PageAnalysis, 0, len(byPage))
	for _, analysis := range byPage {
		ordered = append(ordered, analysis)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].PageNumber < ordered[j].PageNumber })
	return ordered, report
}

// analyzeBatch attempts one shared call for the batch. On any batch
// level failure it degrades to per-page sequential analysis for these
// pages only; later batches are unaffected.
func (a *PageAnalyzer) analyzeBatch(ctx context.Context, documentName string, batch []domain.PageContent, report *AnalysisReport) []domain.PageAnalysis {
	if a.controller.ShouldUseFallback() {
		out := make([]domain.PageAnalysis, 0, len(batch))
		for _, page := range batch {
			out = append(out, a.controller.FallbackAnalysis(page.PageNumber, page.Text, domain.ErrTemporary, ""))
		}
		return out
	}

	raw, err := a.callClassifier(ctx, documentName, batch, domain.PromptBatch, report)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("batch starting at page %d: %v", batch[0].PageNumber, err))
		slog.Warn("batch_call_failed", "document", documentName, "first_page", batch[0].PageNumber, "error", err)
		return a.analyzeSequential(ctx, documentName, batch, report)
	}

	records, ok := recovery.ParseBatch(raw)
	if !ok {
		parseErr := domain.WrapError(domain.ErrResponseParse, "classify_batch", fmt.Errorf("unusable response for batch starting at page %d", batch[0].PageNumber))
		a.controller.RecordParseFailure("classify_batch", parseErr)
		report.Errors = append(report.Errors, parseErr.Error())
		slog.Warn("batch_parse_failed", "document", documentName, "first_page", batch[0].PageNumber)
		return a.analyzeSequential(ctx, documentName, batch, report)
	}

	return a.mergeBatch(batch, records, raw, report)
}

// mergeBatch pairs classifier records with the requested pages. A
// record claiming a matching page number wins; otherwise records are
// taken positionally. Pages left without a record take the fallback
// chain with the raw batch output available for salvage.
func (a *PageAnalyzer) mergeBatch(batch []domain.PageContent, records []recovery.PageRecord, raw string, report *AnalysisReport) []domain.PageAnalysis {
	used := make([]bool, len(records))
	byNumber := make(map[int]int, len(records))
	for i, record := range records {
		if record.PageNumber > 0 {
			if _, dup := byNumber[record.PageNumber]; !dup {
				byNumber[record.PageNumber] = i
			}
		}
	}

	out := make([]domain.PageAnalysis, 0, len(batch))
	next := 0
	for _, page := range batch {
		if i, ok := byNumber[page.PageNumber]; ok {
			used[i] = true
			out = append(out, recovery.Sanitize(records[i], page.PageNumber))
			continue
		}
		// No record claimed this number. Take the next unclaimed
		// record in response order, if any remain.
		for next < len(records) && (used[next] || records[next].PageNumber > 0 && hasPage(batch, records[next].PageNumber)) {
			next++
		}
		if next < len(records) {
			used[next] = true
			out = append(out, recovery.Sanitize(records[next], page.PageNumber))
			continue
		}
		cause := domain.WrapError(domain.ErrResponseParse, "classify_batch", fmt.Errorf("no record for page %d", page.PageNumber))
		a.controller.RecordParseFailure("classify_batch", cause)
		report.Errors = append(report.Errors, cause.Error())
		out = append(out, a.controller.FallbackAnalysis(page.PageNumber, page.Text, cause, raw))
	}
	return out
}

func hasPage(batch []domain.PageContent, pageNumber int) bool {
	for _, page := range batch {
		if page.PageNumber == pageNumber {
			return true
		}
	}
	return false
}

// analyzeSequential classifies each page of a failed batch on its own.
// Every page still ends with an analysis: a single-page call when the
// classifier cooperates, the fallback chain when it does not.
func (a *PageAnalyzer) analyzeSequential(ctx context.Context, documentName string, batch []domain.PageContent, report *AnalysisReport) []domain.PageAnalysis {
	out := make([]domain.PageAnalysis, 0, len(batch))
	for _, page := range batch {
		if a.controller.ShouldUseFallback() {
			out = append(out, a.controller.FallbackAnalysis(page.PageNumber, page.Text, domain.ErrTemporary, ""))
			continue
		}

		raw, err := a.callClassifier(ctx, documentName, []domain.PageContent{page}, domain.PromptSinglePage, report)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("page %d: %v", page.PageNumber, err))
			out = append(out, a.controller.FallbackAnalysis(page.PageNumber, page.Text, err, ""))
			continue
		}

		records, ok := recovery.ParseBatch(raw)
		if ok && len(records) > 0 {
			out = append(out, recovery.Sanitize(records[0], page.PageNumber))
			continue
		}
		cause := domain.WrapError(domain.ErrResponseParse, "classify_page", fmt.Errorf("unusable response for page %d", page.PageNumber))
		a.controller.RecordParseFailure("classify_page", cause)
		report.Errors = append(report.Errors, cause.Error())
		out = append(out, a.controller.FallbackAnalysis(page.PageNumber, page.Text, cause, raw))
	}
	return out
}

func (a *PageAnalyzer) callClassifier(ctx context.Context, documentName string, pages []domain.PageContent, variant domain.PromptVariant, report *AnalysisReport) (string, error) {
	operation := "classify_batch"
	if variant == domain.PromptSinglePage {
		operation = "classify_page"
	}
	req := domain.ClassifyRequest{DocumentName: documentName, Pages: pages, Variant: variant}
	return a.controller.Call(ctx, operation, func(ctx context.Context) (string, error) {
		if a.pacer != nil {
			if err := a.pacer.Wait(ctx); err != nil {
				return "", err
			}
		}
		report.ClassifierCalls++
		return a.classifier.ClassifyPages(ctx, req)
	})
}

// simplifiedAnalysis covers pages the precheck deems not worth an
// external call. The keyword classifier still gets a chance to name a
// coarse type before the generic stub.
func (a *PageAnalyzer) simplifiedAnalysis(page domain.PageContent) domain.PageAnalysis {
	if analysis, ok := a.precheck.ClassifyPage(page.PageNumber, page.Text); ok {
		analysis.ExtractedValues["analysis_mode"] = "simplified"
		return analysis
	}
	return domain.PageAnalysis{
		PageNumber:      page.PageNumber,
		PageTitle:       "untitled page",
		PageType:        domain.PageTypeOther,
		ConfidenceScore: 0.3,
		ExtractedValues: map[string]any{"analysis_mode": "simplified"},
		Metadata: domain.PageMetadata{
			ImageQuality:     domain.ImageQualityMedium,
			ExtractionMethod: domain.ExtractionText,
		},
	}
}
