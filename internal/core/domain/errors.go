package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrTemporary        = errors.New("temporary failure")

	// ErrDocumentIO marks a source file that could not be read after the
	// configured retries. It is the only failure that is fatal for a
	// document; everything else degrades into a usable result.
	ErrDocumentIO = errors.New("document io failure")

	// ErrResponseParse marks classifier output that could not be parsed
	// even after recovery.
	ErrResponseParse = errors.New("response parse failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

type ClassifierErrorKind string

const (
	ClassifierErrRateLimit     ClassifierErrorKind = "rate_limit"
	ClassifierErrTimeout       ClassifierErrorKind = "timeout"
	ClassifierErrAuth          ClassifierErrorKind = "auth"
	ClassifierErrContentFilter ClassifierErrorKind = "content_filter"
	ClassifierErrNetwork       ClassifierErrorKind = "network"
	ClassifierErrUnknown       ClassifierErrorKind = "unknown"
)

// ClassifierError is the failure shape of the external classifier
// collaborator. The pipeline depends on the kind, never on the transport
// or model behind it.
type ClassifierError struct {
	Kind    ClassifierErrorKind
	Message string
}

func (e *ClassifierError) Error() string {
	if e == nil {
		return "classifier error"
	}
	return fmt.Sprintf("classifier %s: %s", e.Kind, e.Message)
}

func NewClassifierError(kind ClassifierErrorKind, message string) *ClassifierError {
	return &ClassifierError{Kind: kind, Message: message}
}

// ClassifierErrorKindOf extracts the kind from an error chain, falling
// back to unknown for anything that is not a ClassifierError.
func ClassifierErrorKindOf(err error) ClassifierErrorKind {
	var cerr *ClassifierError
	if errors.As(err, &cerr) {
		return cerr.Kind
	}
	return ClassifierErrUnknown
}

// IsRateLimited reports whether an error looks like provider throttling,
// either via its typed kind or rate-limit-flavored message text.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var cerr *ClassifierError
	if errors.As(err, &cerr) && cerr.Kind == ClassifierErrRateLimit {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"rate limit", "rate_limit", "too many requests", "429", "overloaded"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
