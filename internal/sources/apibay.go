package sources

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/amaumene/gocomet/internal/constants"
	"github.com/amaumene/gocomet/internal/models"
	"github.com/amaumene/gocomet/pkg/httputil"
)

const (
	apibayName            = "apibay"
	apibayDefaultBaseURL  = "https://apibay.org"
	apibayVideoCategory   = "video"
	apibayNoResultsRowID  = "0"
)

// ApiBay queries the apibay.org JSON API.
type ApiBay struct {
	baseURL    string
	httpClient *http.Client
}

// ApiBayTorrent is one row of the apibay response. Numeric fields arrive as
// strings.
type ApiBayTorrent struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	InfoHash string `json:"info_hash"`
	Seeders  string `json:"seeders"`
	Leechers string `json:"leechers"`
	Size     string `json:"size"`
	Category string `json:"category"`
}

// NewApiBay creates the apibay adapter. An empty baseURL selects the public
// endpoint.
func NewApiBay(baseURL string) *ApiBay {
	if baseURL == "" {
		baseURL = apibayDefaultBaseURL
	}
	return &ApiBay{
		baseURL:    baseURL,
		httpClient: httputil.NewHTTPClient(constants.HTTPClientTimeout),
	}
}

func (a *ApiBay) Name() string { return apibayName }

// Search queries apibay. The API signals an empty result set with a single
// sentinel row whose id is "0".
func (a *ApiBay) Search(ctx context.Context, query models.SearchQuery) ([]models.RawResult, error) {
	apiURL := a.baseURL + "/q.php?q=" + url.QueryEscape(buildQuery(query)) + "&cat=" + apibayVideoCategory

	var torrents []ApiBayTorrent
	if err := fetchJSON(ctx, a.httpClient, apibayName, apiURL, &torrents); err != nil {
		return nil, err
	}

	if len(torrents) == 1 && torrents[0].ID == apibayNoResultsRowID {
		return nil, nil
	}

	log.Debug().Str("source", apibayName).Int("torrents", len(torrents)).Msg("search completed")

	results := make([]models.RawResult, len(torrents))
	for i := range torrents {
		results[i] = models.RawResult{Source: apibayName, Payload: torrents[i]}
	}
	return results, nil
}

// Extract maps one apibay row to a candidate. Rows with an unusable hash are
// dropped.
func (a *ApiBay) Extract(raw models.RawResult) []models.Candidate {
	torrent, ok := raw.Payload.(ApiBayTorrent)
	if !ok {
		return nil
	}

	hash := NormalizeInfoHash(torrent.InfoHash)
	if hash == "" {
		return nil
	}

	seeders, _ := strconv.Atoi(torrent.Seeders)
	size, _ := strconv.ParseInt(torrent.Size, 10, 64)

	return []models.Candidate{{
		InfoHash:    hash,
		DisplayName: torrent.Name,
		SizeBytes:   size,
		Seeders:     seeders,
		SourceName:  apibayName,
		Raw:         &raw,
	}}
}
