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
	torBoxName           = "torbox"
	torBoxDefaultBaseURL = "https://api.torbox.app/v1/api"
	torBoxLinkTTL        = 3 * time.Hour
)

// TorBox implements Provider over the TorBox API.
type TorBox struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	db         database.Database
}

// NewTorBox creates the TorBox provider. An empty baseURL selects the public
// API.
func NewTorBox(apiKey, baseURL string) *TorBox {
	if baseURL == "" {
		baseURL = torBoxDefaultBaseURL
	}
	return &TorBox{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: httputil.NewHTTPClient(60 * time.Second),
		limiter:    rate.NewLimiter(rate.Limit(constants.TorBoxRateLimit), constants.TorBoxRateBurst),
	}
}

func (t *TorBox) Name() string { return torBoxName }

// SetDatabase wires the store used to record added magnets for cleanup.
func (t *TorBox) SetDatabase(db database.Database) { t.db = db }

type torBoxEnvelope struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Detail  string          `json:"detail"`
	Data    json.RawMessage `json:"data"`
}

// CheckAvailability checks the TorBox instant cache for the given hashes.
func (t *TorBox) CheckAvailability(ctx context.Context, infoHashes ...string) (map[string]Availability, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := "/torrents/checkcached?format=object&hash=" + strings.Join(infoHashes, ",")
	var cached map[string]json.RawMessage
	err := withRetry(ctx, torBoxName, func() error {
		return t.call(ctx, http.MethodGet, endpoint, nil, &cached)
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]Availability, len(infoHashes))
	for _, h := range infoHashes {
		if _, ok := cached[h]; ok {
			out[h] = AvailabilityReady
		} else {
			out[h] = AvailabilityUnavailable
		}
	}
	return out, nil
}

// AddAndResolve creates the torrent on the account and requests a download
// link for the selected file.
func (t *TorBox) AddAndResolve(ctx context.Context, infoHash string, selector FileSelector) (models.ResolutionResult, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return models.ResolutionResult{}, err
	}

	var created struct {
		TorrentID int64 `json:"torrent_id"`
	}
	form := url.Values{"magnet": {MagnetURL(infoHash, infoHash)}}
	err := withRetry(ctx, torBoxName, func() error {
		return t.call(ctx, http.MethodPost, "/torrents/createtorrent", form, &created)
	})
	if err != nil {
		return models.ResolutionResult{}, err
	}

	t.recordMagnet(infoHash, created.TorrentID)

	var torrents []struct {
		ID           int64  `json:"id"`
		DownloadDone bool   `json:"download_finished"`
		Files        []struct {
			ID        int64  `json:"id"`
			ShortName string `json:"short_name"`
			Size      int64  `json:"size"`
		} `json:"files"`
	}
	listEndpoint := "/torrents/mylist?id=" + strconv.FormatInt(created.TorrentID, 10)
	if err := t.call(ctx, http.MethodGet, listEndpoint, nil, &torrents); err != nil {
		return models.ResolutionResult{}, err
	}

	if len(torrents) == 0 || !torrents[0].DownloadDone {
		log.Debug().Str("provider", torBoxName).Str("hash", infoHash).
			Msg("torrent not cached, queued")
		return models.ResolutionResult{Status: models.StatusQueued, Provider: torBoxName}, nil
	}

	files := make([]File, len(torrents[0].Files))
	for i, f := range torrents[0].Files {
		files[i] = File{Name: f.ShortName, Size: f.Size, Link: strconv.FormatInt(f.ID, 10)}
	}
	selected, ok := selector(files)
	if !ok {
		return models.ResolutionResult{Status: models.StatusUnavailable, Provider: torBoxName}, nil
	}

	var link string
	dlEndpoint := fmt.Sprintf("/torrents/requestdl?token=%s&torrent_id=%d&file_id=%s",
		url.QueryEscape(t.apiKey), created.TorrentID, selected.Link)
	err = withRetry(ctx, torBoxName, func() error {
		return t.call(ctx, http.MethodGet, dlEndpoint, nil, &link)
	})
	if err != nil {
		return models.ResolutionResult{}, err
	}
	if link == "" {
		return models.ResolutionResult{}, apperrors.NewProviderUnavailableError(torBoxName,
			fmt.Errorf("requestdl returned no link"))
	}

	return models.ResolutionResult{
		Status:      models.StatusReady,
		Provider:    torBoxName,
		PlayableURL: link,
		FileName:    selected.Name,
		ExpiresAt:   time.Now().Add(torBoxLinkTTL),
	}, nil
}

// DeleteMagnet removes a torrent from the account.
func (t *TorBox) DeleteMagnet(ctx context.Context, providerMagnetID string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	form := url.Values{"torrent_id": {providerMagnetID}, "operation": {"delete"}}
	return t.call(ctx, http.MethodPost, "/torrents/controltorrent", form, nil)
}

func (t *TorBox) recordMagnet(infoHash string, torrentID int64) {
	if t.db == nil {
		return
	}
	magnet := &database.Magnet{
		ID:               fmt.Sprintf("tb_%s_%d", infoHash, torrentID),
		InfoHash:         infoHash,
		Provider:         torBoxName,
		ProviderMagnetID: strconv.FormatInt(torrentID, 10),
	}
	if err := t.db.StoreMagnet(magnet); err != nil {
		log.Warn().Str("provider", torBoxName).Err(err).Msg("failed to record magnet")
	}
}

// call performs a request and unwraps the TorBox response envelope into out.
func (t *TorBox) call(ctx context.Context, method, endpoint string, form url.Values, out interface{}) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return apperrors.NewProviderUnavailableError(torBoxName, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return apperrors.NewProviderAuthError(torBoxName,
			fmt.Sprintf("authentication rejected with status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests:
		return apperrors.NewProviderRateLimitedError(torBoxName,
			fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= http.StatusInternalServerError:
		return apperrors.NewProviderUnavailableError(torBoxName,
			fmt.Errorf("status %d", resp.StatusCode))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.NewProviderUnavailableError(torBoxName, err)
	}

	var envelope torBoxEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return apperrors.NewProviderUnavailableError(torBoxName,
			fmt.Errorf("malformed response: %w", err))
	}
	if !envelope.Success {
		return apperrors.NewProviderUnavailableError(torBoxName,
			fmt.Errorf("%s: %s", envelope.Error, envelope.Detail))
	}
	if out == nil || envelope.Data == nil {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return apperrors.NewProviderUnavailableError(torBoxName,
			fmt.Errorf("malformed data: %w", err))
	}
	return nil
}
