// Package sources contains the indexer source contract and its concrete
// adapters. Each adapter owns its backend's wire format end to end: the rest
// of the pipeline sees raw results only through the adapter's Extract.
package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"

	apperrors "github.com/amaumene/gocomet/internal/errors"
	"github.com/amaumene/gocomet/internal/models"
)

// Source is one indexer backend. Search issues the outbound query; Extract
// maps one of this source's raw results to zero or more candidates. A raw
// result with no recoverable info hash extracts to nothing.
type Source interface {
	Name() string
	Search(ctx context.Context, query models.SearchQuery) ([]models.RawResult, error)
	Extract(raw models.RawResult) []models.Candidate
}

var infoHashRegex = regexp.MustCompile(`(?i)\b([a-f0-9]{40})\b`)

// NormalizeInfoHash validates and lowercases a 40-char hex info hash. Returns
// "" when the input is not a usable hash.
func NormalizeInfoHash(hash string) string {
	hash = strings.TrimSpace(strings.ToLower(hash))
	if !infoHashRegex.MatchString(hash) || len(hash) != 40 {
		return ""
	}
	return hash
}

// HashFromMagnet pulls the info hash out of a magnet URI.
func HashFromMagnet(magnet string) string {
	idx := strings.Index(strings.ToLower(magnet), "btih:")
	if idx < 0 {
		return ""
	}
	rest := magnet[idx+len("btih:"):]
	if m := infoHashRegex.FindString(rest); m != "" {
		return strings.ToLower(m)
	}
	return ""
}

// buildQuery builds the text query sent to keyword-search backends:
// "title year" for movies, "title sNN" or "title sNNeNN" for series.
func buildQuery(q models.SearchQuery) string {
	title := strings.TrimSpace(q.Title)
	switch q.MediaType {
	case models.MediaTypeMovie:
		if q.Year > 0 {
			return fmt.Sprintf("%s %d", title, q.Year)
		}
		return title
	case models.MediaTypeSeries:
		if q.Season > 0 && q.Episode > 0 {
			return fmt.Sprintf("%s s%02de%02d", title, q.Season, q.Episode)
		}
		if q.Season > 0 {
			return fmt.Sprintf("%s s%02d", title, q.Season)
		}
	}
	return title
}

// fetchJSON performs a GET and decodes the JSON body into out, classifying
// failures into the source error taxonomy.
func fetchJSON(ctx context.Context, client *http.Client, source, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return apperrors.NewSourceUnavailableError(source, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return classifyTransportError(source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperrors.NewSourceUnavailableError(source,
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return classifyTransportError(source, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperrors.NewSourceMalformedError(source, err)
	}
	return nil
}

func classifyTransportError(source string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewSourceTimeoutError(source, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperrors.NewSourceTimeoutError(source, err)
	}
	return apperrors.NewSourceUnavailableError(source, err)
}
