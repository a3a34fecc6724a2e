// Package httputil provides HTTP client construction with shared pooling
// settings for all outbound source and provider calls.
package httputil

import (
	"net/http"
	"time"
)

const (
	defaultTimeout = 30 * time.Second

	maxIdleConns        = 20
	maxIdleConnsPerHost = 4
	idleConnTimeout     = 30 * time.Second
)

// NewHTTPClient creates an HTTP client with the given total request timeout.
// Per-call deadlines are still layered on top through request contexts.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        maxIdleConns,
			MaxIdleConnsPerHost: maxIdleConnsPerHost,
			IdleConnTimeout:     idleConnTimeout,
		},
	}
}

// NewDefaultHTTPClient creates an HTTP client with the default timeout.
func NewDefaultHTTPClient() *http.Client {
	return NewHTTPClient(defaultTimeout)
}
