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
	torrentsCSVName           = "torrentscsv"
	torrentsCSVDefaultBaseURL = "https://torrents-csv.com"
	torrentsCSVPageSize       = 100
)

// TorrentsCSV queries the torrents-csv.com search service.
type TorrentsCSV struct {
	baseURL    string
	httpClient *http.Client
}

// TorrentsCSVTorrent is one entry of the torrents-csv response.
type TorrentsCSVTorrent struct {
	RowID     int64  `json:"rowid"`
	InfoHash  string `json:"infohash"`
	Name      string `json:"name"`
	SizeBytes int64  `json:"size_bytes"`
	Seeders   int    `json:"seeders"`
	Leechers  int    `json:"leechers"`
}

type torrentsCSVResponse struct {
	Torrents []TorrentsCSVTorrent `json:"torrents"`
	Next     int64                `json:"next"`
}

// NewTorrentsCSV creates the torrents-csv adapter.
func NewTorrentsCSV(baseURL string) *TorrentsCSV {
	if baseURL == "" {
		baseURL = torrentsCSVDefaultBaseURL
	}
	return &TorrentsCSV{
		baseURL:    baseURL,
		httpClient: httputil.NewHTTPClient(constants.HTTPClientTimeout),
	}
}

func (t *TorrentsCSV) Name() string { return torrentsCSVName }

func (t *TorrentsCSV) Search(ctx context.Context, query models.SearchQuery) ([]models.RawResult, error) {
	apiURL := t.baseURL + "/service/search?q=" + url.QueryEscape(buildQuery(query)) +
		"&size=" + strconv.Itoa(torrentsCSVPageSize)

	var resp torrentsCSVResponse
	if err := fetchJSON(ctx, t.httpClient, torrentsCSVName, apiURL, &resp); err != nil {
		return nil, err
	}

	log.Debug().Str("source", torrentsCSVName).Int("torrents", len(resp.Torrents)).Msg("search completed")

	results := make([]models.RawResult, len(resp.Torrents))
	for i := range resp.Torrents {
		results[i] = models.RawResult{Source: torrentsCSVName, Payload: resp.Torrents[i]}
	}
	return results, nil
}

func (t *TorrentsCSV) Extract(raw models.RawResult) []models.Candidate {
	torrent, ok := raw.Payload.(TorrentsCSVTorrent)
	if !ok {
		return nil
	}

	hash := NormalizeInfoHash(torrent.InfoHash)
	if hash == "" {
		return nil
	}

	return []models.Candidate{{
		InfoHash:    hash,
		DisplayName: torrent.Name,
		SizeBytes:   torrent.SizeBytes,
		Seeders:     torrent.Seeders,
		SourceName:  torrentsCSVName,
		Raw:         &raw,
	}}
}

