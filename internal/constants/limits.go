package constants

// Concurrency and capacity limits.
const (
	// MaxConcurrentSources caps how many indexer queries run at once.
	MaxConcurrentSources = 10

	// DefaultCacheCapacity is the entry cap of the resolution cache.
	DefaultCacheCapacity = 4096

	// ProviderRetryAttempts caps retries on transient provider errors.
	ProviderRetryAttempts = 3

	// MaxHashLookups caps per-result hash fetches for sources that do not
	// return info hashes inline (YGG).
	MaxHashLookups = 30

	// SeederSaturation is the seeder count above which extra seeders add
	// no score.
	SeederSaturation = 200
)

// Provider rate limits, requests per second with burst.
const (
	AllDebridRateLimit  = 4
	AllDebridRateBurst  = 8
	RealDebridRateLimit = 4
	RealDebridRateBurst = 8
	TorBoxRateLimit     = 2
	TorBoxRateBurst     = 4
)
