package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"rx-reader/internal/domain"
)

type ErrorKind string

const (
	ErrorAPI     ErrorKind = "api"
	ErrorSize    ErrorKind = "size"
	ErrorFormat  ErrorKind = "format"
	ErrorGeneral ErrorKind = "general"
)

const (
	MessageAPI     = "The AI service is busy right now. Please try again later."
	MessageSize    = "The image is too large. Please try with a smaller image."
	MessageFormat  = "Unsupported image format. Please use a JPG, PNG or PDF file."
	MessageGeneral = "We couldn't analyze your prescription. Please try again."
)

// AnalysisError is a classified failure. Only Kind and Message may cross the
// process boundary; Err keeps the original error for server-side logs.
type AnalysisError struct {
	Kind    ErrorKind
	Message string
	Reason  string
	Err     error
}

func (e *AnalysisError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Kind, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Kind, e.Reason, e.Err)
}

func (e *AnalysisError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(kind ErrorKind, reason string, err error) *AnalysisError {
	return &AnalysisError{Kind: kind, Message: defaultMessage(kind), Reason: reason, Err: err}
}

func defaultMessage(kind ErrorKind) string {
	switch kind {
	case ErrorAPI:
		return MessageAPI
	case ErrorSize:
		return MessageSize
	case ErrorFormat:
		return MessageFormat
	default:
		return MessageGeneral
	}
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

type errorTyper interface {
	ErrorType() string
}

type timeouter interface {
	Timeout() bool
}

var (
	quotaSignals  = []string{"insufficient_quota", "quota", "exceeded", "rate limit", "rate_limit", "resource_exhausted", "resource exhausted"}
	keySignals    = []string{"invalid_api_key", "api key", "api_key", "apikey", "unauthorized", "permission denied"}
	sizeSignals   = []string{"413", "too large", "payload"}
	formatSignals = []string{"unsupported image", "unsupported format", "invalid image", "corrupt", "image format", "could not process image"}
)

// Classify maps any failure to one of the four user-facing categories.
// Rules are applied in priority order: quota, credentials, size, format.
func Classify(err error) *AnalysisError {
	if err == nil {
		return nil
	}
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae
	}

	var status httpStatusCoder
	hasStatus := errors.As(err, &status)
	var typed errorTyper
	errType := ""
	if errors.As(err, &typed) {
		errType = strings.ToLower(typed.ErrorType())
	}
	text := strings.ToLower(err.Error())
	signal := func(words []string) bool {
		return containsAny(errType, words) || containsAny(text, words)
	}

	switch {
	case isTimeout(err):
		return newError(ErrorAPI, "timeout", err)
	case signal(quotaSignals) || (hasStatus && status.HTTPStatusCode() == http.StatusTooManyRequests):
		return newError(ErrorAPI, "quota_exceeded", err)
	case signal(keySignals) || errors.Is(err, domain.ErrAPIKeyMissing) ||
		(hasStatus && (status.HTTPStatusCode() == http.StatusUnauthorized || status.HTTPStatusCode() == http.StatusForbidden)):
		return newError(ErrorAPI, "invalid_credentials", err)
	case signal(sizeSignals) || (hasStatus && status.HTTPStatusCode() == http.StatusRequestEntityTooLarge):
		return newError(ErrorSize, "payload_too_large", err)
	case signal(formatSignals) || errors.Is(err, domain.ErrUnsupportedImage) || errors.Is(err, domain.ErrCorruptImage):
		return newError(ErrorFormat, "unsupported_image", err)
	default:
		return newError(ErrorGeneral, "unclassified", err)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var t timeouter
	return errors.As(err, &t) && t.Timeout()
}

func containsAny(s string, words []string) bool {
	if s == "" {
		return false
	}
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
