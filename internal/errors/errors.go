// Package errors defines the classified error types used across the search
// and resolution pipeline. Classification drives retry and degradation
// decisions: source errors shrink search breadth, provider errors decide
// whether the next provider in the preference order is tried.
package errors

import (
	"errors"
	"fmt"
)

// Error type constants.
const (
	ErrorTypeSourceUnavailable   = "SOURCE_UNAVAILABLE"
	ErrorTypeSourceTimeout       = "SOURCE_TIMEOUT"
	ErrorTypeSourceMalformed     = "SOURCE_MALFORMED_RESPONSE"
	ErrorTypeProviderAuth        = "PROVIDER_AUTH"
	ErrorTypeProviderRateLimited = "PROVIDER_RATE_LIMITED"
	ErrorTypeProviderUnavailable = "PROVIDER_UNAVAILABLE"
	ErrorTypeCacheCompute        = "CACHE_COMPUTE"
)

// PipelineError is an error with a classification and an optional cause.
type PipelineError struct {
	Type    string
	Subject string // source or provider name
	Message string
	Cause   error
}

func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s [%s]: %s (caused by: %v)", e.Type, e.Subject, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Type, e.Subject, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

func newError(errorType, subject, message string, cause error) *PipelineError {
	return &PipelineError{Type: errorType, Subject: subject, Message: message, Cause: cause}
}

// NewSourceUnavailableError reports a source backend that could not be reached
// or answered with a non-success status.
func NewSourceUnavailableError(source string, cause error) *PipelineError {
	return newError(ErrorTypeSourceUnavailable, source, "source unavailable", cause)
}

// NewSourceTimeoutError reports a source call that exceeded its timeout.
func NewSourceTimeoutError(source string, cause error) *PipelineError {
	return newError(ErrorTypeSourceTimeout, source, "source timed out", cause)
}

// NewSourceMalformedError reports a source response that could not be decoded.
func NewSourceMalformedError(source string, cause error) *PipelineError {
	return newError(ErrorTypeSourceMalformed, source, "malformed source response", cause)
}

// NewProviderAuthError reports rejected credentials. Never retried.
func NewProviderAuthError(provider, message string) *PipelineError {
	return newError(ErrorTypeProviderAuth, provider, message, nil)
}

// NewProviderRateLimitedError reports a provider throttling response.
func NewProviderRateLimitedError(provider string, cause error) *PipelineError {
	return newError(ErrorTypeProviderRateLimited, provider, "rate limited", cause)
}

// NewProviderUnavailableError reports a provider outage or server error.
func NewProviderUnavailableError(provider string, cause error) *PipelineError {
	return newError(ErrorTypeProviderUnavailable, provider, "provider unavailable", cause)
}

// NewCacheComputeError wraps a failure inside a shared cache computation.
func NewCacheComputeError(key string, cause error) *PipelineError {
	return newError(ErrorTypeCacheCompute, key, "computation failed", cause)
}

// TypeOf returns the classification of err, or "" when err carries none.
func TypeOf(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Type
	}
	return ""
}

// IsAuthError reports whether err is a provider credential rejection.
func IsAuthError(err error) bool {
	return TypeOf(err) == ErrorTypeProviderAuth
}

// IsRetryable reports whether a provider call may be retried with backoff.
// Auth errors are terminal for the session; everything transient is retried.
func IsRetryable(err error) bool {
	switch TypeOf(err) {
	case ErrorTypeProviderRateLimited, ErrorTypeProviderUnavailable:
		return true
	}
	return false
}
