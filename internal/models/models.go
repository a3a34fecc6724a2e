// Package models defines the data types shared across the search and
// resolution pipeline.
package models

import (
	"fmt"
	"time"
)

// Media types for search queries.
const (
	MediaTypeMovie  = "movie"
	MediaTypeSeries = "series"
)

// SearchQuery describes one caller request. It is constructed once and never
// mutated by the pipeline.
type SearchQuery struct {
	Title     string
	Year      int
	Season    int
	Episode   int
	ContentID string // e.g. IMDB id ("tt1234567")
	MediaType string
}

// Key returns a stable cache key for the query.
func (q SearchQuery) Key() string {
	return fmt.Sprintf("search:%s:%s:%d:%d:%d:%s",
		q.MediaType, q.Title, q.Year, q.Season, q.Episode, q.ContentID)
}

// RawResult is a single hit from one source before normalization. Payload is
// owned by the adapter that produced it; nothing outside that adapter inspects
// it.
type RawResult struct {
	Source  string
	Payload interface{}
}

// QualityTags holds the quality signals parsed from a release name. An empty
// field means no pattern matched; the parser never guesses a default.
type QualityTags struct {
	Resolution   string
	Codec        string
	HDR          string
	ReleaseGroup string
}

// Candidate is the canonical unit after normalization. InfoHash (lowercase
// hex) is the identity key: two candidates with the same hash are the same
// content regardless of which source reported them.
type Candidate struct {
	InfoHash    string
	DisplayName string
	SizeBytes   int64
	Seeders     int
	SourceName  string
	Quality     QualityTags
	Raw         *RawResult
}

// RankedCandidate is a Candidate with its computed score and rank position.
// Availability is filled only when the caller asked for a provider cache
// annotation; it is never part of the cached search response.
type RankedCandidate struct {
	Candidate
	Score        float64
	Rank         int
	Availability string `json:"availability,omitempty"`
}

// ResolutionStatus is the outcome class of a debrid resolution attempt.
type ResolutionStatus string

const (
	StatusReady       ResolutionStatus = "ready"
	StatusQueued      ResolutionStatus = "queued"
	StatusUnavailable ResolutionStatus = "unavailable"
	StatusFailed      ResolutionStatus = "failed"
)

// ResolutionKey identifies one account's attempt to resolve one piece of
// content through one provider.
type ResolutionKey struct {
	InfoHash           string
	Provider           string
	AccountFingerprint string
}

func (k ResolutionKey) String() string {
	return fmt.Sprintf("resolve:%s:%s:%s", k.Provider, k.AccountFingerprint, k.InfoHash)
}

// ResolutionResult is the outcome of a resolution attempt. A Ready result
// always carries a playable URL and a future expiry; Failed and Unavailable
// never carry a URL.
type ResolutionResult struct {
	Status      ResolutionStatus `json:"status"`
	Provider    string           `json:"provider,omitempty"`
	PlayableURL string           `json:"playableUrl,omitempty"`
	FileName    string           `json:"fileName,omitempty"`
	ExpiresAt   time.Time        `json:"expiresAt,omitempty"`
}

// SourceStatus reports how one source fared during a search fan-out.
type SourceStatus struct {
	Name    string        `json:"name"`
	Results int           `json:"results"`
	Error   string        `json:"error,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

// SearchResponse is the aggregate outcome of one search. Dropped counts raw
// results discarded for lack of a recoverable info hash.
type SearchResponse struct {
	Candidates []RankedCandidate `json:"candidates"`
	Sources    []SourceStatus    `json:"sources"`
	Dropped    int               `json:"dropped"`
}
