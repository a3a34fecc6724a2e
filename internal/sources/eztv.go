package sources

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/amaumene/gocomet/internal/constants"
	"github.com/amaumene/gocomet/internal/models"
	"github.com/amaumene/gocomet/pkg/httputil"
)

const (
	eztvName           = "eztv"
	eztvDefaultBaseURL = "https://eztvx.to"
)

// EZTV queries the EZTV API. The backend only serves series and is looked up
// by IMDB id, so queries without a content id return nothing.
type EZTV struct {
	baseURL    string
	httpClient *http.Client
}

// EZTVTorrent is one entry of the EZTV response.
type EZTVTorrent struct {
	ID        int    `json:"id"`
	Hash      string `json:"hash"`
	Filename  string `json:"filename"`
	MagnetURL string `json:"magnet_url"`
	Title     string `json:"title"`
	Season    string `json:"season"`
	Episode   string `json:"episode"`
	Seeds     int    `json:"seeds"`
	Peers     int    `json:"peers"`
	SizeBytes string `json:"size_bytes"`
}

type eztvResponse struct {
	TorrentsCount int           `json:"torrents_count"`
	Torrents      []EZTVTorrent `json:"torrents"`
}

// NewEZTV creates the EZTV adapter.
func NewEZTV(baseURL string) *EZTV {
	if baseURL == "" {
		baseURL = eztvDefaultBaseURL
	}
	return &EZTV{
		baseURL:    baseURL,
		httpClient: httputil.NewHTTPClient(constants.HTTPClientTimeout),
	}
}

func (e *EZTV) Name() string { return eztvName }

func (e *EZTV) Search(ctx context.Context, query models.SearchQuery) ([]models.RawResult, error) {
	if query.MediaType != models.MediaTypeSeries || query.ContentID == "" {
		return nil, nil
	}

	imdbID := strings.TrimPrefix(query.ContentID, "tt")
	apiURL := e.baseURL + "/api/get-torrents?imdb_id=" + imdbID + "&limit=100"

	var resp eztvResponse
	if err := fetchJSON(ctx, e.httpClient, eztvName, apiURL, &resp); err != nil {
		return nil, err
	}

	// The API returns the whole show; keep only the requested episode or
	// season so downstream ranking is not polluted by other episodes.
	matched := make([]models.RawResult, 0, len(resp.Torrents))
	for _, torrent := range resp.Torrents {
		if !e.matchesQuery(torrent, query) {
			continue
		}
		matched = append(matched, models.RawResult{Source: eztvName, Payload: torrent})
	}

	log.Debug().Str("source", eztvName).
		Int("torrents", len(resp.Torrents)).
		Int("matched", len(matched)).
		Msg("search completed")

	return matched, nil
}

func (e *EZTV) matchesQuery(torrent EZTVTorrent, query models.SearchQuery) bool {
	season, _ := strconv.Atoi(torrent.Season)
	episode, _ := strconv.Atoi(torrent.Episode)

	if query.Season > 0 && season != query.Season {
		return false
	}
	if query.Episode > 0 && episode != query.Episode {
		return false
	}
	return true
}

func (e *EZTV) Extract(raw models.RawResult) []models.Candidate {
	torrent, ok := raw.Payload.(EZTVTorrent)
	if !ok {
		return nil
	}

	hash := NormalizeInfoHash(torrent.Hash)
	if hash == "" {
		hash = HashFromMagnet(torrent.MagnetURL)
	}
	if hash == "" {
		return nil
	}

	size, _ := strconv.ParseInt(torrent.SizeBytes, 10, 64)
	name := torrent.Filename
	if name == "" {
		name = torrent.Title
	}

	return []models.Candidate{{
		InfoHash:    hash,
		DisplayName: name,
		SizeBytes:   size,
		Seeders:     torrent.Seeds,
		SourceName:  eztvName,
		Raw:         &raw,
	}}
}
