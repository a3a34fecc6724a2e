package debrid

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/amaumene/gocomet/internal/constants"
	"github.com/amaumene/gocomet/internal/database"
	apperrors "github.com/amaumene/gocomet/internal/errors"
	"github.com/amaumene/gocomet/internal/models"
	"github.com/amaumene/gocomet/pkg/httputil"
)

const (
	realDebridName           = "realdebrid"
	realDebridDefaultBaseURL = "https://api.real-debrid.com/rest/1.0"
	realDebridLinkTTL        = 6 * time.Hour
)

// RealDebrid implements Provider over the Real-Debrid REST API.
type RealDebrid struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	db         database.Database
}

// NewRealDebrid creates the Real-Debrid provider. An empty baseURL selects
// the public API.
func NewRealDebrid(apiKey, baseURL string) *RealDebrid {
	if baseURL == "" {
		baseURL = realDebridDefaultBaseURL
	}
	return &RealDebrid{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: httputil.NewHTTPClient(60 * time.Second),
		limiter:    rate.NewLimiter(rate.Limit(constants.RealDebridRateLimit), constants.RealDebridRateBurst),
	}
}

func (r *RealDebrid) Name() string { return realDebridName }

// SetDatabase wires the store used to record added magnets for cleanup.
func (r *RealDebrid) SetDatabase(db database.Database) { r.db = db }

type rdTorrentInfo struct {
	ID       string   `json:"id"`
	Status   string   `json:"status"`
	Links    []string `json:"links"`
	Files    []struct {
		ID       int    `json:"id"`
		Path     string `json:"path"`
		Bytes    int64  `json:"bytes"`
		Selected int    `json:"selected"`
	} `json:"files"`
}

// CheckAvailability queries instant availability for the given hashes. A hash
// with at least one cached file set is Ready; hashes the service knows
// nothing about come back empty and are reported Unavailable.
func (r *RealDebrid) CheckAvailability(ctx context.Context, infoHashes ...string) (map[string]Availability, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var raw map[string]json.RawMessage
	endpoint := "/torrents/instantAvailability/" + strings.Join(infoHashes, "/")
	err := withRetry(ctx, realDebridName, func() error {
		return r.getJSON(ctx, endpoint, &raw)
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]Availability, len(infoHashes))
	for _, h := range infoHashes {
		out[h] = AvailabilityUnavailable
		entry, ok := raw[h]
		if !ok {
			continue
		}
		var detail struct {
			RD []map[string]interface{} `json:"rd"`
		}
		if json.Unmarshal(entry, &detail) == nil && len(detail.RD) > 0 {
			out[h] = AvailabilityReady
		}
	}
	return out, nil
}

// AddAndResolve adds the magnet, selects the wanted file and unrestricts its
// link. A torrent still downloading server-side yields a Queued result.
func (r *RealDebrid) AddAndResolve(ctx context.Context, infoHash string, selector FileSelector) (models.ResolutionResult, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return models.ResolutionResult{}, err
	}

	var added struct {
		ID string `json:"id"`
	}
	err := withRetry(ctx, realDebridName, func() error {
		return r.postForm(ctx, "/torrents/addMagnet",
			url.Values{"magnet": {MagnetURL(infoHash, infoHash)}}, &added)
	})
	if err != nil {
		return models.ResolutionResult{}, err
	}

	r.recordMagnet(infoHash, added.ID)

	var info rdTorrentInfo
	if err := r.getJSON(ctx, "/torrents/info/"+added.ID, &info); err != nil {
		return models.ResolutionResult{}, err
	}

	files := make([]File, len(info.Files))
	for i, f := range info.Files {
		files[i] = File{Name: f.Path, Size: f.Bytes, Link: strconv.Itoa(f.ID)}
	}
	selected, ok := selector(files)
	if !ok {
		return models.ResolutionResult{Status: models.StatusUnavailable, Provider: realDebridName}, nil
	}

	err = r.postForm(ctx, "/torrents/selectFiles/"+added.ID,
		url.Values{"files": {selected.Link}}, nil)
	if err != nil {
		return models.ResolutionResult{}, err
	}

	if err := r.getJSON(ctx, "/torrents/info/"+added.ID, &info); err != nil {
		return models.ResolutionResult{}, err
	}
	if info.Status != "downloaded" || len(info.Links) == 0 {
		log.Debug().Str("provider", realDebridName).Str("hash", infoHash).
			Str("status", info.Status).Msg("torrent not cached, queued")
		return models.ResolutionResult{Status: models.StatusQueued, Provider: realDebridName}, nil
	}

	var unrestricted struct {
		Download string `json:"download"`
		Filename string `json:"filename"`
	}
	err = withRetry(ctx, realDebridName, func() error {
		return r.postForm(ctx, "/unrestrict/link",
			url.Values{"link": {info.Links[0]}}, &unrestricted)
	})
	if err != nil {
		return models.ResolutionResult{}, err
	}
	if unrestricted.Download == "" {
		return models.ResolutionResult{}, apperrors.NewProviderUnavailableError(realDebridName,
			fmt.Errorf("unrestrict returned no link"))
	}

	return models.ResolutionResult{
		Status:      models.StatusReady,
		Provider:    realDebridName,
		PlayableURL: unrestricted.Download,
		FileName:    selected.Name,
		ExpiresAt:   time.Now().Add(realDebridLinkTTL),
	}, nil
}

// DeleteMagnet removes a torrent from the account.
func (r *RealDebrid) DeleteMagnet(ctx context.Context, providerMagnetID string) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		r.baseURL+"/torrents/delete/"+providerMagnetID, nil)
	if err != nil {
		return err
	}
	return r.do(req, nil)
}

func (r *RealDebrid) recordMagnet(infoHash, torrentID string) {
	if r.db == nil {
		return
	}
	magnet := &database.Magnet{
		ID:               fmt.Sprintf("rd_%s_%s", infoHash, torrentID),
		InfoHash:         infoHash,
		Provider:         realDebridName,
		ProviderMagnetID: torrentID,
	}
	if err := r.db.StoreMagnet(magnet); err != nil {
		log.Warn().Str("provider", realDebridName).Err(err).Msg("failed to record magnet")
	}
}

func (r *RealDebrid) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+endpoint, nil)
	if err != nil {
		return err
	}
	return r.do(req, out)
}

func (r *RealDebrid) postForm(ctx context.Context, endpoint string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r.do(req, out)
}

func (r *RealDebrid) do(req *http.Request, out interface{}) error {
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return apperrors.NewProviderUnavailableError(realDebridName, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return apperrors.NewProviderAuthError(realDebridName,
			fmt.Sprintf("authentication rejected with status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests:
		return apperrors.NewProviderRateLimitedError(realDebridName,
			fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= http.StatusInternalServerError:
		return apperrors.NewProviderUnavailableError(realDebridName,
			fmt.Errorf("status %d", resp.StatusCode))
	}

	if out == nil {
		return nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.NewProviderUnavailableError(realDebridName, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperrors.NewProviderUnavailableError(realDebridName,
			fmt.Errorf("malformed response: %w", err))
	}
	return nil
}
