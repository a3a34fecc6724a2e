package debrid

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/amaumene/gocomet/internal/constants"
	"github.com/amaumene/gocomet/internal/database"
	apperrors "github.com/amaumene/gocomet/internal/errors"
	"github.com/amaumene/gocomet/internal/models"
	"github.com/amaumene/gocomet/pkg/alldebrid"
)

const (
	allDebridName    = "alldebrid"
	allDebridLinkTTL = 6 * time.Hour
)

// AllDebrid implements Provider over the AllDebrid v4 API.
type AllDebrid struct {
	apiKey  string
	client  *alldebrid.Client
	limiter *rate.Limiter
	db      database.Database
}

// NewAllDebrid creates the AllDebrid provider. An empty baseURL selects the
// public API.
func NewAllDebrid(apiKey, baseURL string) *AllDebrid {
	return &AllDebrid{
		apiKey:  apiKey,
		client:  alldebrid.NewClient(baseURL),
		limiter: rate.NewLimiter(rate.Limit(constants.AllDebridRateLimit), constants.AllDebridRateBurst),
	}
}

func (a *AllDebrid) Name() string { return allDebridName }

// SetDatabase wires the store used to record added magnets for cleanup.
func (a *AllDebrid) SetDatabase(db database.Database) { a.db = db }

// CheckAvailability checks which hashes are cached. Hashes missing from the
// response are reported Unknown rather than Unavailable: AllDebrid omits
// magnets it has never seen, which says nothing about cacheability.
func (a *AllDebrid) CheckAvailability(ctx context.Context, infoHashes ...string) (map[string]Availability, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var statuses []alldebrid.MagnetStatus
	err := withRetry(ctx, allDebridName, func() error {
		var callErr error
		statuses, callErr = a.client.CheckMagnets(ctx, a.apiKey, infoHashes)
		return a.classify(callErr)
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]Availability, len(infoHashes))
	for _, h := range infoHashes {
		out[h] = AvailabilityUnknown
	}
	for _, status := range statuses {
		if status.Ready() {
			out[status.Hash] = AvailabilityReady
		} else {
			out[status.Hash] = AvailabilityUnavailable
		}
	}
	return out, nil
}

// AddAndResolve uploads the magnet and, when it is already cached, unlocks a
// direct link to the selected file. A magnet that is not cached yet yields a
// Queued result.
func (a *AllDebrid) AddAndResolve(ctx context.Context, infoHash string, selector FileSelector) (models.ResolutionResult, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return models.ResolutionResult{}, err
	}

	var uploaded *alldebrid.UploadedMagnet
	err := withRetry(ctx, allDebridName, func() error {
		var callErr error
		uploaded, callErr = a.client.UploadMagnet(ctx, a.apiKey, MagnetURL(infoHash, infoHash))
		return a.classify(callErr)
	})
	if err != nil {
		return models.ResolutionResult{}, err
	}

	a.recordMagnet(infoHash, uploaded)

	if !uploaded.Ready {
		log.Debug().Str("provider", allDebridName).Str("hash", infoHash).
			Msg("magnet not cached, queued for download")
		return models.ResolutionResult{Status: models.StatusQueued, Provider: allDebridName}, nil
	}

	files, err := a.client.GetMagnetFiles(ctx, a.apiKey, uploaded.ID)
	if err != nil {
		return models.ResolutionResult{}, a.classify(err)
	}

	candidates := make([]File, len(files))
	for i, f := range files {
		candidates[i] = File{Name: f.Filename, Size: f.Size, Link: f.Link}
	}
	selected, ok := selector(candidates)
	if !ok {
		return models.ResolutionResult{Status: models.StatusUnavailable, Provider: allDebridName}, nil
	}

	link, err := a.client.UnlockLink(ctx, a.apiKey, selected.Link)
	if err != nil {
		return models.ResolutionResult{}, a.classify(err)
	}

	return models.ResolutionResult{
		Status:      models.StatusReady,
		Provider:    allDebridName,
		PlayableURL: link,
		FileName:    selected.Name,
		ExpiresAt:   time.Now().Add(allDebridLinkTTL),
	}, nil
}

// DeleteMagnet removes a magnet from the account.
func (a *AllDebrid) DeleteMagnet(ctx context.Context, providerMagnetID string) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	return a.classify(a.client.DeleteMagnet(ctx, a.apiKey, providerMagnetID))
}

func (a *AllDebrid) recordMagnet(infoHash string, uploaded *alldebrid.UploadedMagnet) {
	if a.db == nil {
		return
	}
	magnet := &database.Magnet{
		ID:               fmt.Sprintf("ad_%s_%d", infoHash, uploaded.ID),
		InfoHash:         infoHash,
		Name:             uploaded.Name,
		Provider:         allDebridName,
		ProviderMagnetID: strconv.FormatInt(uploaded.ID, 10),
	}
	if err := a.db.StoreMagnet(magnet); err != nil {
		log.Warn().Str("provider", allDebridName).Err(err).Msg("failed to record magnet")
	}
}

// classify maps client errors into the provider error taxonomy.
func (a *AllDebrid) classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *alldebrid.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.IsAuthError():
			return apperrors.NewProviderAuthError(allDebridName, apiErr.Message)
		case apiErr.Code == "RATE_LIMITED" || apiErr.Code == "MAGNET_TOO_MANY_ACTIVE":
			return apperrors.NewProviderRateLimitedError(allDebridName, err)
		}
	}
	return apperrors.NewProviderUnavailableError(allDebridName, err)
}
