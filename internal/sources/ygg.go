package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"

	"github.com/amaumene/gocomet/internal/constants"
	"github.com/amaumene/gocomet/internal/models"
	"github.com/amaumene/gocomet/pkg/httputil"
)

const (
	yggName           = "ygg"
	yggDefaultBaseURL = "https://yggapi.eu"
	yggPerPage        = 100

	yggMovieCategories  = "&category_id=2178&category_id=2181&category_id=2183"
	yggSeriesCategories = "&category_id=2179&category_id=2181&category_id=2182&category_id=2184"
)

// YGG queries the YGG API. Search results do not always carry the info hash
// inline; missing hashes are fetched per torrent id, capped to keep the call
// bounded.
type YGG struct {
	baseURL    string
	httpClient *http.Client
}

// YGGTorrent is one entry of the YGG search response.
type YGGTorrent struct {
	ID       int    `json:"id"`
	Title    string `json:"title"`
	Size     int64  `json:"size"`
	Seeders  int    `json:"seeders"`
	Leechers int    `json:"leechers"`
	Hash     string `json:"hash,omitempty"`
}

type yggTorrentDetail struct {
	ID   int    `json:"id"`
	Hash string `json:"hash"`
}

// NewYGG creates the YGG adapter.
func NewYGG(baseURL string) *YGG {
	if baseURL == "" {
		baseURL = yggDefaultBaseURL
	}
	return &YGG{
		baseURL:    baseURL,
		httpClient: httputil.NewHTTPClient(constants.HTTPClientTimeout),
	}
}

func (y *YGG) Name() string { return yggName }

func (y *YGG) Search(ctx context.Context, query models.SearchQuery) ([]models.RawResult, error) {
	categories := ""
	switch query.MediaType {
	case models.MediaTypeMovie:
		categories = yggMovieCategories
	case models.MediaTypeSeries:
		categories = yggSeriesCategories
	}

	apiURL := fmt.Sprintf("%s/torrents?q=%s&page=1&per_page=%d%s",
		y.baseURL, url.QueryEscape(buildQuery(query)), yggPerPage, categories)

	var torrents []YGGTorrent
	if err := fetchJSON(ctx, y.httpClient, yggName, apiURL, &torrents); err != nil {
		return nil, err
	}

	resolved := y.resolveHashes(ctx, torrents)

	log.Debug().Str("source", yggName).
		Int("torrents", len(torrents)).
		Int("with_hash", resolved).
		Msg("search completed")

	results := make([]models.RawResult, len(torrents))
	for i := range torrents {
		results[i] = models.RawResult{Source: yggName, Payload: torrents[i]}
	}
	return results, nil
}

// resolveHashes fills in missing info hashes via the per-torrent detail
// endpoint, up to MaxHashLookups. Torrents past the cap keep an empty hash and
// fall out at extraction. Returns the count of torrents carrying a hash.
func (y *YGG) resolveHashes(ctx context.Context, torrents []YGGTorrent) int {
	resolved := 0
	lookups := 0
	for i := range torrents {
		if torrents[i].Hash != "" {
			resolved++
			continue
		}
		if lookups >= constants.MaxHashLookups {
			continue
		}
		lookups++

		var detail yggTorrentDetail
		detailURL := fmt.Sprintf("%s/torrent/%d", y.baseURL, torrents[i].ID)
		if err := fetchJSON(ctx, y.httpClient, yggName, detailURL, &detail); err != nil {
			if ctx.Err() != nil {
				return resolved
			}
			log.Debug().Str("source", yggName).Int("id", torrents[i].ID).Err(err).
				Msg("hash lookup failed")
			continue
		}
		torrents[i].Hash = detail.Hash
		resolved++
	}
	return resolved
}

func (y *YGG) Extract(raw models.RawResult) []models.Candidate {
	torrent, ok := raw.Payload.(YGGTorrent)
	if !ok {
		return nil
	}

	hash := NormalizeInfoHash(torrent.Hash)
	if hash == "" {
		return nil
	}

	return []models.Candidate{{
		InfoHash:    hash,
		DisplayName: torrent.Title,
		SizeBytes:   torrent.Size,
		Seeders:     torrent.Seeders,
		SourceName:  yggName,
		Raw:         &raw,
	}}
}
