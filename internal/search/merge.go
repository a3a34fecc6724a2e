// Package search contains the aggregation pipeline: the fan-out orchestrator,
// the normalizer/deduplicator and the ranker.
package search

import (
	"regexp"
	"strings"

	"github.com/cehbz/torrentname"
	"github.com/rs/zerolog/log"

	"github.com/amaumene/gocomet/internal/config"
	"github.com/amaumene/gocomet/internal/models"
	"github.com/amaumene/gocomet/internal/sources"
)

// Quality tag patterns applied to the winning representative's display name.
// Fixed order: resolution and codec come from the release-name parser, then
// HDR, then release group. First match per category wins; no match leaves the
// tag empty.
var (
	hdrRegex   = regexp.MustCompile(`(?i)\b(dolby[. ]?vision|dv|hdr10\+|hdr10|hdr)\b`)
	groupRegex = regexp.MustCompile(`-([A-Za-z0-9]+)(?:\s*\[[^\]]*\])?$`)
)

// Merger normalizes raw results from many sources into a set of candidates
// unique per info hash.
type Merger struct {
	adapters map[string]sources.Source
	order    []string
	trust    map[string]int
	tiebreak []string
}

// NewMerger builds a merger over the given adapters. srcs order is the
// deterministic iteration order backing the first-encountered tie-break;
// tiebreak is the configured policy order for duplicate groups.
func NewMerger(srcs []sources.Source, trust map[string]int, tiebreak []string) *Merger {
	adapters := make(map[string]sources.Source, len(srcs))
	order := make([]string, 0, len(srcs))
	for _, s := range srcs {
		adapters[s.Name()] = s
		order = append(order, s.Name())
	}
	if len(tiebreak) == 0 {
		tiebreak = []string{config.TiebreakSeeders, config.TiebreakTrust, config.TiebreakFirst}
	}
	return &Merger{adapters: adapters, order: order, trust: trust, tiebreak: tiebreak}
}

type mergeEntry struct {
	candidate models.Candidate
	firstSeen int
}

// Merge extracts candidates from every raw result and deduplicates them by
// info hash. The second return value counts raw results dropped for lack of a
// recoverable hash.
func (m *Merger) Merge(raw map[string][]models.RawResult) ([]models.Candidate, int) {
	groups := make(map[string]*mergeEntry)
	var hashes []string
	dropped := 0
	seen := 0

	for _, name := range m.order {
		adapter, ok := m.adapters[name]
		if !ok {
			continue
		}
		for _, r := range raw[name] {
			extracted := adapter.Extract(r)
			if len(extracted) == 0 {
				dropped++
				continue
			}
			for _, candidate := range extracted {
				seen++
				entry, exists := groups[candidate.InfoHash]
				if !exists {
					groups[candidate.InfoHash] = &mergeEntry{candidate: candidate, firstSeen: seen}
					hashes = append(hashes, candidate.InfoHash)
					continue
				}
				if m.wins(candidate, seen, entry) {
					entry.candidate = candidate
					entry.firstSeen = seen
				}
			}
		}
	}

	merged := make([]models.Candidate, 0, len(hashes))
	for _, hash := range hashes {
		winner := groups[hash].candidate
		winner.Quality = parseQuality(winner.DisplayName)
		merged = append(merged, winner)
	}

	if dropped > 0 {
		log.Debug().Int("dropped", dropped).Msg("raw results without recoverable info hash")
	}

	return merged, dropped
}

// wins reports whether challenger should replace the incumbent
// representative, applying the configured tie-break policies in order.
func (m *Merger) wins(challenger models.Candidate, challengerSeen int, incumbent *mergeEntry) bool {
	for _, policy := range m.tiebreak {
		switch policy {
		case config.TiebreakSeeders:
			if challenger.Seeders != incumbent.candidate.Seeders {
				return challenger.Seeders > incumbent.candidate.Seeders
			}
		case config.TiebreakTrust:
			ct, it := m.trust[challenger.SourceName], m.trust[incumbent.candidate.SourceName]
			if ct != it {
				return ct > it
			}
		case config.TiebreakFirst:
			return challengerSeen < incumbent.firstSeen
		}
	}
	return false
}

func parseQuality(displayName string) models.QualityTags {
	var tags models.QualityTags

	if parsed := torrentname.Parse(displayName); parsed != nil {
		tags.Resolution = normalizeResolution(parsed.Resolution)
		tags.Codec = strings.ToLower(parsed.Codec)
	}

	if match := hdrRegex.FindString(displayName); match != "" {
		tags.HDR = normalizeHDR(match)
	}
	if match := groupRegex.FindStringSubmatch(displayName); len(match) > 1 {
		tags.ReleaseGroup = match[1]
	}

	return tags
}

func normalizeResolution(resolution string) string {
	resolution = strings.ToLower(resolution)
	if resolution == "4k" {
		return "2160p"
	}
	return resolution
}

func normalizeHDR(match string) string {
	switch strings.ToLower(strings.NewReplacer(".", "", " ", "").Replace(match)) {
	case "dolbyvision", "dv":
		return "DV"
	case "hdr10+":
		return "HDR10+"
	case "hdr10":
		return "HDR10"
	default:
		return "HDR"
	}
}
