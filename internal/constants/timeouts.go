package constants

import "time"

// Layered timeouts. Each layer is strictly shorter than the one above it so a
// slow backend can never starve the aggregate call.
const (
	// DefaultSourceTimeout bounds a single indexer query.
	DefaultSourceTimeout = 8 * time.Second

	// DefaultProviderTimeout bounds a single debrid API call chain.
	DefaultProviderTimeout = 20 * time.Second

	// DefaultSearchDeadline bounds a whole search or resolve request.
	DefaultSearchDeadline = 30 * time.Second

	// HTTPClientTimeout is the hard cap on any outbound HTTP request.
	HTTPClientTimeout = 30 * time.Second
)

// Cache TTLs.
const (
	DefaultPositiveTTL            = 30 * time.Minute
	DefaultNegativeFailedTTL      = 1 * time.Minute
	DefaultNegativeUnavailableTTL = 15 * time.Minute
	DefaultSearchTTL              = 10 * time.Minute
	DefaultCacheSweepInterval     = 5 * time.Minute
)

// Cleanup job defaults.
const (
	DefaultMagnetMaxAge    = 24 * time.Hour
	DefaultCleanupInterval = 1 * time.Hour
)

// Provider retry policy.
const (
	ProviderRetryBaseDelay = 500 * time.Millisecond
	ProviderRetryMaxJitter = 250 * time.Millisecond
)
