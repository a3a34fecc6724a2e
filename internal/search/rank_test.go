package search

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaumene/gocomet/internal/config"
	"github.com/amaumene/gocomet/internal/models"
)

func testRankingConfig() config.RankingConfig {
	return config.RankingConfig{
		SeedersWeight:    40,
		ResolutionWeight: 30,
		CodecBonus:       5,
		HDRBonus:         5,
		SizePenalty:      20,
		ResolutionOrder:  []string{"2160p", "1080p", "720p", "480p"},
		SeederSaturation: 200,
	}
}

func movieQuery() models.SearchQuery {
	return models.SearchQuery{Title: "Movie", MediaType: models.MediaTypeMovie}
}

func TestRankOrdering(t *testing.T) {
	r := NewRanker(testRankingConfig())

	candidates := []models.Candidate{
		{InfoHash: hashA, DisplayName: "Low", Seeders: 2, Quality: models.QualityTags{Resolution: "480p"}},
		{InfoHash: hashB, DisplayName: "High", Seeders: 150, Quality: models.QualityTags{Resolution: "1080p", Codec: "x265"}},
	}

	ranked := r.Rank(candidates, movieQuery())
	require.Len(t, ranked, 2)
	assert.Equal(t, "High", ranked[0].DisplayName)
	assert.Equal(t, 1, ranked[0].Rank)
	assert.Equal(t, 2, ranked[1].Rank)
	assert.Greater(t, ranked[0].Score, ranked[1].Score)
}

func TestRankDeterministic(t *testing.T) {
	r := NewRanker(testRankingConfig())
	rng := rand.New(rand.NewSource(99))

	base := []models.Candidate{
		{InfoHash: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", Seeders: 10, Quality: models.QualityTags{Resolution: "720p"}},
		{InfoHash: "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", Seeders: 10, Quality: models.QualityTags{Resolution: "720p"}},
		{InfoHash: "cccccccccccccccccccccccccccccccccccccccc", Seeders: 80, Quality: models.QualityTags{Resolution: "1080p"}},
		{InfoHash: "dddddddddddddddddddddddddddddddddddddddd", Seeders: 80, Quality: models.QualityTags{Resolution: "1080p"}},
	}

	reference := r.Rank(append([]models.Candidate(nil), base...), movieQuery())

	for trial := 0; trial < 20; trial++ {
		shuffled := append([]models.Candidate(nil), base...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		got := r.Rank(shuffled, movieQuery())
		require.Len(t, got, len(reference))
		for i := range got {
			assert.Equal(t, reference[i].InfoHash, got[i].InfoHash, "ordering must not depend on input order")
		}
	}
}

func TestRankTiesBrokenByHash(t *testing.T) {
	r := NewRanker(testRankingConfig())

	candidates := []models.Candidate{
		{InfoHash: "ffffffffffffffffffffffffffffffffffffffff", Seeders: 10},
		{InfoHash: "0000000000000000000000000000000000000000", Seeders: 10},
	}

	ranked := r.Rank(candidates, movieQuery())
	assert.Equal(t, "0000000000000000000000000000000000000000", ranked[0].InfoHash)
}

func TestRankResolutionPreference(t *testing.T) {
	r := NewRanker(testRankingConfig())

	candidates := []models.Candidate{
		{InfoHash: hashA, Seeders: 50, Quality: models.QualityTags{Resolution: "720p"}},
		{InfoHash: hashB, Seeders: 50, Quality: models.QualityTags{Resolution: "2160p"}},
	}

	ranked := r.Rank(candidates, movieQuery())
	assert.Equal(t, "2160p", ranked[0].Quality.Resolution)
}

func TestRankSeederSaturation(t *testing.T) {
	r := NewRanker(testRankingConfig())

	at := r.seederScore(200)
	beyond := r.seederScore(20000)
	assert.Equal(t, at, beyond, "seeders beyond saturation add nothing")
	assert.Equal(t, 1.0, at)
	assert.Equal(t, 0.0, r.seederScore(0))
}

func TestRankSizePenalty(t *testing.T) {
	// 10 MiB is two orders of magnitude under the movie floor; it must rank
	// below a plausible release with the same seeders.
	r := NewRanker(testRankingConfig())

	candidates := []models.Candidate{
		{InfoHash: hashA, Seeders: 50, SizeBytes: 10 << 20},
		{InfoHash: hashB, Seeders: 50, SizeBytes: 4 << 30},
	}

	ranked := r.Rank(candidates, movieQuery())
	assert.Equal(t, hashB, ranked[0].InfoHash)

	assert.Zero(t, sizePenalty(0, models.MediaTypeMovie), "unknown size is not penalized")
	assert.Zero(t, sizePenalty(4<<30, models.MediaTypeMovie))
	assert.Positive(t, sizePenalty(200<<30, models.MediaTypeMovie))

	// Episode range is tighter.
	assert.Zero(t, sizePenalty(500<<20, models.MediaTypeSeries))
	assert.Positive(t, sizePenalty(50<<30, models.MediaTypeSeries))
}

func TestFilterMinSeeders(t *testing.T) {
	ranked := []models.RankedCandidate{
		{Candidate: models.Candidate{InfoHash: hashA, Seeders: 1}},
		{Candidate: models.Candidate{InfoHash: hashB, Seeders: 30}},
	}

	filtered := FilterMinSeeders(ranked, 10)
	require.Len(t, filtered, 1)
	assert.Equal(t, hashB, filtered[0].InfoHash)

	assert.Len(t, FilterMinSeeders(ranked, 0), 2)
}

func TestFilterResolutions(t *testing.T) {
	ranked := []models.RankedCandidate{
		{Candidate: models.Candidate{InfoHash: hashA, Quality: models.QualityTags{Resolution: "720p"}}},
		{Candidate: models.Candidate{InfoHash: hashB, Quality: models.QualityTags{Resolution: "1080p"}}},
		{Candidate: models.Candidate{InfoHash: "1111111111111111111111111111111111111111"}},
	}

	filtered := FilterResolutions(ranked, []string{"1080p"})
	require.Len(t, filtered, 2)
	assert.Equal(t, hashB, filtered[0].InfoHash)
	assert.Empty(t, filtered[1].Quality.Resolution, "untagged candidates are kept")
}
