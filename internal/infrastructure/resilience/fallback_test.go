package resilience

import (
	"errors"
	"testing"

	"github.com/formvault/formvault/internal/core/domain"
)

type fixedKeyword struct {
	analysis domain.PageAnalysis
	ok       bool
}

func (f fixedKeyword) ClassifyPage(pageNumber int, _ string) (domain.PageAnalysis, bool) {
	out := f.analysis
	out.PageNumber = pageNumber
	return out, f.ok
}

func TestFallbackChainPrefersKeyword(t *testing.T) {
	kw := fixedKeyword{analysis: domain.PageAnalysis{PageType: domain.PageTypeGovernmentForm, ConfidenceScore: 0.6}, ok: true}
	recoverCalled := false
	c := NewController(Config{}, NewErrorStats(), kw, func(string, int) (domain.PageAnalysis, bool) {
		recoverCalled = true
		return domain.PageAnalysis{}, false
	})

	analysis := c.FallbackAnalysis(4, "some form text", domain.ErrResponseParse, `{"pages": [`)
	if analysis.PageType != domain.PageTypeGovernmentForm {
		t.Fatalf("keyword rung skipped, got type %s", analysis.PageType)
	}
	if analysis.PageNumber != 4 {
		t.Fatalf("page number = %d", analysis.PageNumber)
	}
	if recoverCalled {
		t.Fatal("recovery should not run when the keyword rung succeeds")
	}
	if c.Stats().Snapshot().FallbackActivations != 1 {
		t.Fatal("fallback activation not recorded")
	}
}

func TestFallbackChainRecoveryOnParseFailure(t *testing.T) {
	recovered := domain.PageAnalysis{PageTitle: "Salvaged", PageType: domain.PageTypeIdentityDocument}
	c := NewController(Config{}, NewErrorStats(), fixedKeyword{}, func(raw string, pageNumber int) (domain.PageAnalysis, bool) {
		out := recovered
		out.PageNumber = pageNumber
		return out, true
	})

	cause := domain.WrapError(domain.ErrResponseParse, "classify_batch", errors.New("bad json"))
	analysis := c.FallbackAnalysis(2, "text", cause, `{"pages": [{"page_number": 2`)
	if analysis.PageTitle != "Salvaged" {
		t.Fatalf("recovery rung skipped: %+v", analysis)
	}
	snap := c.Stats().Snapshot()
	if snap.RecoveryAttempts != 1 || snap.RecoverySuccesses != 1 {
		t.Fatalf("recovery counters = %d/%d", snap.RecoverySuccesses, snap.RecoveryAttempts)
	}
}

func TestFallbackChainSkipsRecoveryForNonParseErrors(t *testing.T) {
	c := NewController(Config{}, NewErrorStats(), fixedKeyword{}, func(string, int) (domain.PageAnalysis, bool) {
		t.Fatal("recovery must only run on parse failures")
		return domain.PageAnalysis{}, false
	})

	analysis := c.FallbackAnalysis(7, "text", errors.New("network down"), "partial output")
	if analysis.ExtractedValues["fallback_reason"] != "error_stub" {
		t.Fatalf("expected the error stub, got %+v", analysis)
	}
	if analysis.PageNumber != 7 || analysis.ConfidenceScore != 0 {
		t.Fatalf("stub fields wrong: %+v", analysis)
	}
}

func TestFallbackChainErrorStubNeverFails(t *testing.T) {
	c := NewController(Config{}, NewErrorStats(), nil, nil)
	analysis := c.FallbackAnalysis(1, "", nil, "")
	if analysis.PageType != domain.PageTypeOther {
		t.Fatalf("stub type = %s", analysis.PageType)
	}
	if err := analysis.Validate(); err != nil {
		t.Fatalf("stub must validate: %v", err)
	}
}
