package resilience

import (
	"sync"
	"time"
)

type ErrorCategory string

const (
	CategoryAPI     ErrorCategory = "api"
	CategoryMemory  ErrorCategory = "memory"
	CategoryParsing ErrorCategory = "parsing"
	CategoryCache   ErrorCategory = "cache"
)

// historyLimit bounds the retained error records; the sliding rate is
// computed from this window, so a burst beyond it underestimates the
// rate rather than growing memory.
const historyLimit = 100

type errorRecord struct {
	at       time.Time
	category ErrorCategory
	message  string
	context  string
}

// ErrorStats tracks per-category failure counters, a bounded history of
// recent errors and recovery outcomes. Shared across workers; all
// methods are safe for concurrent use.
type ErrorStats struct {
	mu                sync.Mutex
	counts            map[ErrorCategory]uint64
	history           []errorRecord
	recoveryAttempts  uint64
	recoverySuccesses uint64
	fallbacks         uint64
	clock             func() time.Time
}

func NewErrorStats() *ErrorStats {
	return &ErrorStats{
		counts: make(map[ErrorCategory]uint64),
		clock:  time.Now,
	}
}

// SetClock replaces the time source. Test hook.
func (s *ErrorStats) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

func (s *ErrorStats) Record(category ErrorCategory, message, context string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counts[category]++
	s.history = append(s.history, errorRecord{
		at:       s.clock(),
		category: category,
		message:  message,
		context:  context,
	})
	if len(s.history) > historyLimit {
		s.history = s.history[len(s.history)-historyLimit:]
	}
}

func (s *ErrorStats) RecordFallback() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallbacks++
}

func (s *ErrorStats) RecordRecovery(success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recoveryAttempts++
	if success {
		s.recoverySuccesses++
	}
}

// RatePerMinute returns errors observed inside the window divided by
// the window length in minutes.
func (s *ErrorStats) RatePerMinute(window time.Duration) float64 {
	if window <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.clock().Add(-window)
	recent := 0
	for _, record := range s.history {
		if record.at.After(cutoff) {
			recent++
		}
	}
	return float64(recent) / window.Minutes()
}

type ErrorRecordSnapshot struct {
	At       time.Time     `json:"timestamp"`
	Category ErrorCategory `json:"category"`
	Message  string        `json:"message"`
	Context  string        `json:"context,omitempty"`
}

type ErrorStatistics struct {
	Counts              map[ErrorCategory]uint64 `json:"counts"`
	Recent              []ErrorRecordSnapshot    `json:"recent,omitempty"`
	RecoveryAttempts    uint64                   `json:"recovery_attempts"`
	RecoverySuccesses   uint64                   `json:"recovery_successes"`
	RecoverySuccessRate float64                  `json:"recovery_success_rate"`
	FallbackActivations uint64                   `json:"fallback_activations"`
}

func (s *ErrorStats) Snapshot() ErrorStatistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := ErrorStatistics{
		Counts:              make(map[ErrorCategory]uint64, len(s.counts)),
		RecoveryAttempts:    s.recoveryAttempts,
		RecoverySuccesses:   s.recoverySuccesses,
		FallbackActivations: s.fallbacks,
	}
	for category, count := range s.counts {
		out.Counts[category] = count
	}
	for _, record := range s.history {
		out.Recent = append(out.Recent, ErrorRecordSnapshot{
			At:       record.at,
			Category: record.category,
			Message:  record.message,
			Context:  record.context,
		})
	}
	if s.recoveryAttempts > 0 {
		out.RecoverySuccessRate = float64(s.recoverySuccesses) / float64(s.recoveryAttempts)
	}
	return out
}
