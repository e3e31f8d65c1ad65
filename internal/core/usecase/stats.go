package usecase

import (
	"sync"
	"time"
)

// ProcessingStats accumulates run-wide counters across documents. It
// carries its own lock so workers can report concurrently without
// touching any other shared state.
type ProcessingStats struct {
	mu sync.Mutex

	documents       int
	failedDocuments int
	pages           int
	cachedDocuments int
	classifierCalls int
	elapsed         time.Duration
}

func NewProcessingStats() *ProcessingStats {
	return &ProcessingStats{}
}

func (s *ProcessingStats) ObserveDocument(pages, classifierCalls int, elapsed time.Duration, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents++
	if failed {
		s.failedDocuments++
	}
	s.pages += pages
	s.classifierCalls += classifierCalls
	s.elapsed += elapsed
}

// ObserveCachedDocument records a document served from a persisted
// catalog without any analysis work.
func (s *ProcessingStats) ObserveCachedDocument(pages int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents++
	s.cachedDocuments++
	s.pages += pages
}

type StatsSnapshot struct {
	Documents       int           `json:"documents"`
	FailedDocuments int           `json:"failed_documents"`
	CachedDocuments int           `json:"cached_documents"`
	Pages           int           `json:"pages"`
	ClassifierCalls int           `json:"classifier_calls"`
	Elapsed         time.Duration `json:"elapsed_ns"`
}

func (s *ProcessingStats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsSnapshot{
		Documents:       s.documents,
		FailedDocuments: s.failedDocuments,
		CachedDocuments: s.cachedDocuments,
		Pages:           s.pages,
		ClassifierCalls: s.classifierCalls,
		Elapsed:         s.elapsed,
	}
}
