package debrid

import (
	"context"

	"github.com/avast/retry-go"
	"github.com/rs/zerolog/log"

	"github.com/amaumene/gocomet/internal/constants"
	apperrors "github.com/amaumene/gocomet/internal/errors"
)

// withRetry runs a provider call with exponential backoff and jitter.
// Only rate-limit and outage errors are retried; auth errors and anything
// unclassified fail immediately.
func withRetry(ctx context.Context, provider string, fn func() error) error {
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(constants.ProviderRetryAttempts),
		retry.Delay(constants.ProviderRetryBaseDelay),
		retry.MaxJitter(constants.ProviderRetryMaxJitter),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.LastErrorOnly(true),
		retry.RetryIf(apperrors.IsRetryable),
		retry.OnRetry(func(attempt uint, err error) {
			log.Warn().Str("provider", provider).Uint("attempt", attempt).Err(err).
				Msg("retrying provider call")
		}),
	)
}
