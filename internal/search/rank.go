package search

import (
	"math"
	"sort"
	"strings"

	"github.com/amaumene/gocomet/internal/config"
	"github.com/amaumene/gocomet/internal/models"
)

// Plausible size ranges per media type; candidates far outside are penalized.
const (
	minMovieBytes   = int64(700) << 20  // 700 MiB
	maxMovieBytes   = int64(80) << 30   // 80 GiB
	minEpisodeBytes = int64(100) << 20  // 100 MiB
	maxEpisodeBytes = int64(10) << 30   // 10 GiB
)

// Ranker scores and orders candidates. It is a pure function of its inputs:
// the same candidate set and query always produce the same ordering,
// regardless of source arrival order.
type Ranker struct {
	cfg config.RankingConfig
	// resolution tag -> preference index, lower is better
	resolutionRank map[string]int
}

// NewRanker builds a ranker from the configured weights.
func NewRanker(cfg config.RankingConfig) *Ranker {
	resolutionRank := make(map[string]int, len(cfg.ResolutionOrder))
	for i, r := range cfg.ResolutionOrder {
		resolutionRank[strings.ToLower(r)] = i
	}
	return &Ranker{cfg: cfg, resolutionRank: resolutionRank}
}

// Rank scores every candidate and returns them ordered best first. No
// candidate is discarded; filtering is the caller's concern.
func (r *Ranker) Rank(candidates []models.Candidate, query models.SearchQuery) []models.RankedCandidate {
	ranked := make([]models.RankedCandidate, len(candidates))
	for i, c := range candidates {
		ranked[i] = models.RankedCandidate{Candidate: c, Score: r.score(c, query)}
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if ranked[i].Seeders != ranked[j].Seeders {
			return ranked[i].Seeders > ranked[j].Seeders
		}
		return ranked[i].InfoHash < ranked[j].InfoHash
	})

	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

func (r *Ranker) score(c models.Candidate, query models.SearchQuery) float64 {
	score := r.cfg.SeedersWeight * r.seederScore(c.Seeders)
	score += r.cfg.ResolutionWeight * r.resolutionScore(c.Quality.Resolution)

	if c.Quality.Codec != "" {
		score += r.cfg.CodecBonus
	}
	if c.Quality.HDR != "" {
		score += r.cfg.HDRBonus
	}

	score -= r.cfg.SizePenalty * sizePenalty(c.SizeBytes, query.MediaType)
	return score
}

// seederScore is log-scaled with diminishing returns: seeders beyond the
// saturation threshold add nothing.
func (r *Ranker) seederScore(seeders int) float64 {
	if seeders <= 0 {
		return 0
	}
	saturation := r.cfg.SeederSaturation
	if saturation <= 0 {
		saturation = 1
	}
	if seeders > saturation {
		seeders = saturation
	}
	return math.Log1p(float64(seeders)) / math.Log1p(float64(saturation))
}

// resolutionScore maps the preference index into [0, 1]; an unknown or absent
// resolution scores zero.
func (r *Ranker) resolutionScore(resolution string) float64 {
	if resolution == "" {
		return 0
	}
	idx, ok := r.resolutionRank[strings.ToLower(resolution)]
	if !ok {
		return 0
	}
	return float64(len(r.resolutionRank)-idx) / float64(len(r.resolutionRank))
}

// sizePenalty returns how many orders of magnitude the size lies outside the
// plausible range for the media type. Unknown sizes are not penalized.
func sizePenalty(sizeBytes int64, mediaType string) float64 {
	if sizeBytes <= 0 {
		return 0
	}

	minSize, maxSize := minMovieBytes, maxMovieBytes
	if mediaType == models.MediaTypeSeries {
		minSize, maxSize = minEpisodeBytes, maxEpisodeBytes
	}

	switch {
	case sizeBytes < minSize:
		return math.Log10(float64(minSize) / float64(sizeBytes))
	case sizeBytes > maxSize:
		return math.Log10(float64(sizeBytes) / float64(maxSize))
	}
	return 0
}

// FilterMinSeeders is a post-ranking filter; it never affects scoring.
func FilterMinSeeders(ranked []models.RankedCandidate, minSeeders int) []models.RankedCandidate {
	if minSeeders <= 0 {
		return ranked
	}
	out := make([]models.RankedCandidate, 0, len(ranked))
	for _, c := range ranked {
		if c.Seeders >= minSeeders {
			out = append(out, c)
		}
	}
	return out
}

// FilterResolutions keeps only candidates whose resolution tag is in allowed.
// Candidates without a resolution tag are kept.
func FilterResolutions(ranked []models.RankedCandidate, allowed []string) []models.RankedCandidate {
	if len(allowed) == 0 {
		return ranked
	}
	allowedSet := make(map[string]bool, len(allowed))
	for _, r := range allowed {
		allowedSet[strings.ToLower(r)] = true
	}
	out := make([]models.RankedCandidate, 0, len(ranked))
	for _, c := range ranked {
		if c.Quality.Resolution == "" || allowedSet[strings.ToLower(c.Quality.Resolution)] {
			out = append(out, c)
		}
	}
	return out
}
