package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidStyle        = errors.New("invalid style")
	ErrInvalidUpload       = errors.New("invalid upload")
	ErrInvalidTransition   = errors.New("invalid job status transition")
	ErrAlreadyRefunded     = errors.New("job already refunded")
)

// FailureKind classifies why a generation attempt failed. The set is closed.
type FailureKind string

const (
	KindInvalidConfiguration FailureKind = "invalid_configuration"
	KindTimeout              FailureKind = "timeout"
	KindRateLimited          FailureKind = "rate_limited"
	KindUnauthorized         FailureKind = "unauthorized"
	KindUpstreamUnavailable  FailureKind = "upstream_unavailable"
	KindNoImageReturned      FailureKind = "no_image_returned"
	KindInvalidArtifact      FailureKind = "invalid_artifact"
	KindDownloadFailed       FailureKind = "download_failed"
	KindMissingReference     FailureKind = "missing_reference"
)

// Label renders the kind for human-readable messages.
func (k FailureKind) Label() string {
	return strings.ReplaceAll(string(k), "_", " ")
}

// GenerationError is the normalized failure raised by providers, the
// materializer and the orchestrator.
type GenerationError struct {
	Kind       FailureKind
	Message    string
	Provider   string
	HTTPStatus int
	Cause      error
}

func (e *GenerationError) Error() string {
	var b strings.Builder
	if e.Provider != "" {
		b.WriteString(e.Provider)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Label())
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.HTTPStatus != 0 {
		fmt.Fprintf(&b, " (status %d)", e.HTTPStatus)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *GenerationError) Unwrap() error {
	return e.Cause
}

// NewGenerationError builds a GenerationError with a formatted message.
func NewGenerationError(kind FailureKind, format string, args ...any) *GenerationError {
	return &GenerationError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithProvider tags the error with the provider id.
func (e *GenerationError) WithProvider(provider string) *GenerationError {
	e.Provider = provider
	return e
}

// WithCause attaches the underlying error.
func (e *GenerationError) WithCause(cause error) *GenerationError {
	e.Cause = cause
	return e
}

// WithHTTPStatus records the upstream status code.
func (e *GenerationError) WithHTTPStatus(status int) *GenerationError {
	e.HTTPStatus = status
	return e
}

// KindOf extracts the failure kind from err, or "" when err is not a
// GenerationError.
func KindOf(err error) FailureKind {
	var gerr *GenerationError
	if errors.As(err, &gerr) {
		return gerr.Kind
	}
	return ""
}
