package domain

type PromptVariant string

const (
	PromptBatch      PromptVariant = "batch"
	PromptSinglePage PromptVariant = "single_page"
)

// PageContent is the raw material submitted to the classifier for one
// page. Image is optional; text-only pages leave it nil.
type PageContent struct {
	PageNumber int
	Text       string
	Image      []byte
}

type ClassifyRequest struct {
	DocumentName string
	Pages        []PageContent
	Variant      PromptVariant
}

// IngestEvent is the queue payload announcing a stored document ready
// for cataloging.
type IngestEvent struct {
	DocumentID  string `json:"document_id"`
	StoragePath string `json:"storage_path"`
	Filename    string `json:"filename"`
}
