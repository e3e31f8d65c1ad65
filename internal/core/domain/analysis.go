package domain

import "fmt"

type PageType string

const (
	PageTypeGovernmentForm   PageType = "government_form"
	PageTypeIdentityDocument PageType = "identity_document"
	PageTypeEmploymentRecord PageType = "employment_record"
	PageTypeOther            PageType = "other"
)

func ParsePageType(raw string) (PageType, error) {
	switch PageType(raw) {
	case PageTypeGovernmentForm, PageTypeIdentityDocument, PageTypeEmploymentRecord, PageTypeOther:
		return PageType(raw), nil
	default:
		return "", fmt.Errorf("unknown page type %q: %w", raw, ErrInvalidInput)
	}
}

type ImageQuality string

const (
	ImageQualityHigh   ImageQuality = "high"
	ImageQualityMedium ImageQuality = "medium"
	ImageQualityLow    ImageQuality = "low"
)

func ParseImageQuality(raw string) (ImageQuality, error) {
	switch ImageQuality(raw) {
	case ImageQualityHigh, ImageQualityMedium, ImageQualityLow:
		return ImageQuality(raw), nil
	default:
		return "", fmt.Errorf("unknown image quality %q: %w", raw, ErrInvalidInput)
	}
}

type ExtractionMethod string

const (
	ExtractionText   ExtractionMethod = "text"
	ExtractionOCR    ExtractionMethod = "ocr"
	ExtractionHybrid ExtractionMethod = "hybrid"
)

func ParseExtractionMethod(raw string) (ExtractionMethod, error) {
	switch ExtractionMethod(raw) {
	case ExtractionText, ExtractionOCR, ExtractionHybrid:
		return ExtractionMethod(raw), nil
	default:
		return "", fmt.Errorf("unknown extraction method %q: %w", raw, ErrInvalidInput)
	}
}

type TextRegion struct {
	RegionID   string  `json:"region_id"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

type PageMetadata struct {
	HasHandwriting   bool             `json:"has_handwriting"`
	HasSignatures    bool             `json:"has_signatures"`
	ImageQuality     ImageQuality     `json:"image_quality"`
	ExtractionMethod ExtractionMethod `json:"extraction_method"`
}

// PageAnalysis is one classified page. ExtractedValues carries the
// model-defined open schema: string keys mapping to scalars or nested
// string-keyed maps of scalars, nothing deeper or fancier.
type PageAnalysis struct {
	PageNumber      int            `json:"page_number"`
	PageTitle       string         `json:"page_title"`
	PageType        PageType       `json:"page_type"`
	PageSubtype     string         `json:"page_subtype,omitempty"`
	ConfidenceScore float64        `json:"confidence_score"`
	ExtractedValues map[string]any `json:"extracted_values,omitempty"`
	TextRegions     []TextRegion   `json:"text_regions,omitempty"`
	Metadata        PageMetadata   `json:"page_metadata"`
}

func NewPageAnalysis(pageNumber int, title string, pageType string) (PageAnalysis, error) {
	if pageNumber < 1 {
		return PageAnalysis{}, fmt.Errorf("page number %d out of range: %w", pageNumber, ErrInvalidInput)
	}
	parsed, err := ParsePageType(pageType)
	if err != nil {
		return PageAnalysis{}, err
	}
	return PageAnalysis{
		PageNumber: pageNumber,
		PageTitle:  title,
		PageType:   parsed,
		Metadata: PageMetadata{
			ImageQuality:     ImageQualityMedium,
			ExtractionMethod: ExtractionText,
		},
	}, nil
}

func (p PageAnalysis) Validate() error {
	if p.PageNumber < 1 {
		return fmt.Errorf("page number %d out of range: %w", p.PageNumber, ErrInvalidInput)
	}
	if _, err := ParsePageType(string(p.PageType)); err != nil {
		return err
	}
	if p.ConfidenceScore < 0 || p.ConfidenceScore > 1 {
		return fmt.Errorf("confidence %v out of range: %w", p.ConfidenceScore, ErrInvalidInput)
	}
	for _, region := range p.TextRegions {
		if region.Confidence < 0 || region.Confidence > 1 {
			return fmt.Errorf("region %s confidence %v out of range: %w", region.RegionID, region.Confidence, ErrInvalidInput)
		}
	}
	return nil
}

func ClampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
