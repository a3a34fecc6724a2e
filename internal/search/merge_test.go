package search

import (
	"context"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaumene/gocomet/internal/config"
	"github.com/amaumene/gocomet/internal/models"
	"github.com/amaumene/gocomet/internal/sources"
)

// fakeSource feeds canned candidates through the merger. A raw result whose
// payload is nil extracts to nothing, like a row without a recoverable hash.
type fakeSource struct {
	name    string
	results []models.RawResult
	err     error
	delay   time.Duration
	calls   int32
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Search(ctx context.Context, query models.SearchQuery) ([]models.RawResult, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.results, nil
}

func (f *fakeSource) Extract(raw models.RawResult) []models.Candidate {
	if raw.Payload == nil {
		return nil
	}
	c := raw.Payload.(models.Candidate)
	c.SourceName = f.name
	return []models.Candidate{c}
}

func asSources(fakes ...*fakeSource) []sources.Source {
	out := make([]sources.Source, len(fakes))
	for i, f := range fakes {
		out[i] = f
	}
	return out
}

func rawFor(c models.Candidate) models.RawResult {
	return models.RawResult{Source: c.SourceName, Payload: c}
}

const hashA = "deadbeefdeadbeefdeadbeefdeadbeefdeadbeef"
const hashB = "cafebabecafebabecafebabecafebabecafebabe"

func TestMergeDedupBySeeders(t *testing.T) {
	a := &fakeSource{name: "alpha"}
	b := &fakeSource{name: "beta"}
	m := NewMerger(asSources(a, b), nil, nil)

	raw := map[string][]models.RawResult{
		"alpha": {rawFor(models.Candidate{InfoHash: hashA, DisplayName: "Movie.2023.720p.x264-GRP", Seeders: 50})},
		"beta":  {rawFor(models.Candidate{InfoHash: hashA, DisplayName: "Movie.2023.1080p.x265-GRP", Seeders: 120})},
	}

	merged, dropped := m.Merge(raw)
	require.Len(t, merged, 1)
	assert.Equal(t, 0, dropped)
	assert.Equal(t, "beta", merged[0].SourceName)
	assert.Equal(t, 120, merged[0].Seeders)
	assert.Equal(t, "1080p", merged[0].Quality.Resolution)
}

func TestMergeTrustTiebreak(t *testing.T) {
	a := &fakeSource{name: "alpha"}
	b := &fakeSource{name: "beta"}
	trust := map[string]int{"alpha": 1, "beta": 5}
	m := NewMerger(asSources(a, b), trust, []string{config.TiebreakTrust, config.TiebreakFirst})

	raw := map[string][]models.RawResult{
		"alpha": {rawFor(models.Candidate{InfoHash: hashA, DisplayName: "Movie.A", Seeders: 500})},
		"beta":  {rawFor(models.Candidate{InfoHash: hashA, DisplayName: "Movie.B", Seeders: 10})},
	}

	merged, _ := m.Merge(raw)
	require.Len(t, merged, 1)
	assert.Equal(t, "beta", merged[0].SourceName, "trust outranks seeders under this policy")
}

func TestMergeFirstEncounteredTiebreak(t *testing.T) {
	a := &fakeSource{name: "alpha"}
	b := &fakeSource{name: "beta"}
	m := NewMerger(asSources(a, b), nil, nil)

	// Equal seeders and equal trust fall through to first encountered, which
	// follows the configured source order.
	raw := map[string][]models.RawResult{
		"alpha": {rawFor(models.Candidate{InfoHash: hashA, DisplayName: "Movie.First", Seeders: 42})},
		"beta":  {rawFor(models.Candidate{InfoHash: hashA, DisplayName: "Movie.Second", Seeders: 42})},
	}

	merged, _ := m.Merge(raw)
	require.Len(t, merged, 1)
	assert.Equal(t, "alpha", merged[0].SourceName)
}

func TestMergeDropsUnusableResults(t *testing.T) {
	a := &fakeSource{name: "alpha"}
	m := NewMerger(asSources(a), nil, nil)

	raw := map[string][]models.RawResult{
		"alpha": {
			rawFor(models.Candidate{InfoHash: hashA, DisplayName: "Good", Seeders: 1}),
			{Source: "alpha", Payload: nil},
			{Source: "alpha", Payload: nil},
		},
	}

	merged, dropped := m.Merge(raw)
	assert.Len(t, merged, 1)
	assert.Equal(t, 2, dropped)
}

func TestMergeUniqueHashesSurvive(t *testing.T) {
	a := &fakeSource{name: "alpha"}
	m := NewMerger(asSources(a), nil, nil)

	raw := map[string][]models.RawResult{
		"alpha": {
			rawFor(models.Candidate{InfoHash: hashA, DisplayName: "One", Seeders: 1}),
			rawFor(models.Candidate{InfoHash: hashB, DisplayName: "Two", Seeders: 2}),
		},
	}

	merged, _ := m.Merge(raw)
	assert.Len(t, merged, 2)
}

// Shuffling the duplicates never changes the winner when the seeders policy
// decides.
func TestMergeWinnerIndependentOfOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 50; trial++ {
		dupes := []models.Candidate{
			{InfoHash: hashA, DisplayName: "Low", Seeders: 3},
			{InfoHash: hashA, DisplayName: "Mid", Seeders: 77},
			{InfoHash: hashA, DisplayName: "High", Seeders: 900},
		}
		rng.Shuffle(len(dupes), func(i, j int) { dupes[i], dupes[j] = dupes[j], dupes[i] })

		a := &fakeSource{name: "alpha"}
		m := NewMerger(asSources(a), nil, nil)
		raw := map[string][]models.RawResult{"alpha": {rawFor(dupes[0]), rawFor(dupes[1]), rawFor(dupes[2])}}

		merged, _ := m.Merge(raw)
		require.Len(t, merged, 1)
		assert.Equal(t, 900, merged[0].Seeders)
	}
}

func TestParseQuality(t *testing.T) {
	tests := []struct {
		name       string
		display    string
		resolution string
		hdr        string
		group      string
	}{
		{"full release name", "Movie.2023.2160p.HDR10.x265-SPARKS", "2160p", "HDR10", "SPARKS"},
		{"dolby vision", "Show.S01E02.1080p.Dolby.Vision.WEB-DL-EVO", "1080p", "DV", "EVO"},
		{"plain hdr", "Movie.2023.1080p.HDR.BluRay", "1080p", "HDR", ""},
		{"no tags", "Some Random Upload", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tags := parseQuality(tt.display)
			assert.Equal(t, tt.resolution, tags.Resolution)
			assert.Equal(t, tt.hdr, tags.HDR)
			assert.Equal(t, tt.group, tags.ReleaseGroup)
		})
	}
}
