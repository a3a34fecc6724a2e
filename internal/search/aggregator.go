package search

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/amaumene/gocomet/internal/cache"
	"github.com/amaumene/gocomet/internal/config"
	"github.com/amaumene/gocomet/internal/constants"
	"github.com/amaumene/gocomet/internal/database"
	"github.com/amaumene/gocomet/internal/debrid"
	apperrors "github.com/amaumene/gocomet/internal/errors"
	"github.com/amaumene/gocomet/internal/models"
	"github.com/amaumene/gocomet/internal/sources"
	"github.com/amaumene/gocomet/internal/telemetry"
)

// ResolveRequest asks for a playable link for one info hash. Providers is the
// preference order; empty means the configured order. Season and episode
// select the file inside a multi-file torrent.
type ResolveRequest struct {
	InfoHash  string
	Providers []string
	Season    int
	Episode   int
}

// Aggregator coordinates the pipeline: fan-out to sources, normalization,
// ranking, and debrid resolution through the cache.
type Aggregator struct {
	cfg          *config.Config
	sources      []sources.Source
	sourceCfg    map[string]config.SourceConfig
	merger       *Merger
	ranker       *Ranker
	providers    []debrid.Provider
	byName       map[string]debrid.Provider
	fingerprints map[string]string
	cache        *cache.Cache
	db           database.Database
	metrics      *telemetry.Metrics
}

// NewAggregator wires the pipeline. srcs and providers are in configured
// order; that order is the default provider preference and the deterministic
// source iteration order for dedup.
func NewAggregator(
	cfg *config.Config,
	srcs []sources.Source,
	providers []debrid.Provider,
	resolutionCache *cache.Cache,
	db database.Database,
	metrics *telemetry.Metrics,
) *Aggregator {
	sourceCfg := make(map[string]config.SourceConfig, len(cfg.Sources))
	for _, sc := range cfg.Sources {
		sourceCfg[sc.Name] = sc
	}

	byName := make(map[string]debrid.Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	fingerprints := make(map[string]string, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		fingerprints[pc.Name] = debrid.AccountFingerprint(pc.APIKey)
	}

	return &Aggregator{
		cfg:          cfg,
		sources:      srcs,
		sourceCfg:    sourceCfg,
		merger:       NewMerger(srcs, cfg.TrustPriorities(), cfg.DedupTiebreak),
		ranker:       NewRanker(cfg.Ranking),
		providers:    providers,
		byName:       byName,
		fingerprints: fingerprints,
		cache:        resolutionCache,
		db:           db,
		metrics:      metrics,
	}
}

// Search fans the query out to every configured source, merges and ranks
// whatever arrived before the deadline. A source that errors or times out is
// skipped, never fatal; no results at all is an empty response, not an error.
func (a *Aggregator) Search(ctx context.Context, query models.SearchQuery) (*models.SearchResponse, error) {
	a.metrics.SearchesTotal.Inc()
	start := time.Now()
	defer func() {
		a.metrics.SearchDuration.Observe(time.Since(start).Seconds())
	}()

	runCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && a.cfg.SearchDeadline > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, a.cfg.SearchDeadline)
		defer cancel()
	}

	value, err := a.cache.GetOrCompute(query.Key(), func() (interface{}, time.Duration, error) {
		response := a.searchUncached(runCtx, query)
		if len(response.Candidates) == 0 {
			// An empty set usually means the sources were down or slow.
			// Don't pin it; let the next identical query retry them.
			return response, 0, nil
		}
		return response, a.cfg.Cache.SearchTTL, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*models.SearchResponse), nil
}

func (a *Aggregator) searchUncached(ctx context.Context, query models.SearchQuery) *models.SearchResponse {
	raw := make(map[string][]models.RawResult)
	statuses := make([]models.SourceStatus, len(a.sources))

	sem := semaphore.NewWeighted(constants.MaxConcurrentSources)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i, src := range a.sources {
		wg.Add(1)
		go func(idx int, s sources.Source) {
			defer wg.Done()
			name := s.Name()

			if err := sem.Acquire(ctx, 1); err != nil {
				mu.Lock()
				statuses[idx] = models.SourceStatus{Name: name, Error: "deadline exceeded"}
				mu.Unlock()
				return
			}
			defer sem.Release(1)

			srcCtx, cancel := context.WithTimeout(ctx, a.sourceTimeout(name))
			defer cancel()

			started := time.Now()
			results, err := s.Search(srcCtx, query)
			elapsed := time.Since(started)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errType := apperrors.TypeOf(err)
				a.metrics.SourceErrors.WithLabelValues(name, errType).Inc()
				statuses[idx] = models.SourceStatus{Name: name, Error: err.Error(), Elapsed: elapsed}
				log.Warn().Str("source", name).Err(err).Msg("source skipped")
				return
			}
			raw[name] = results
			statuses[idx] = models.SourceStatus{Name: name, Results: len(results), Elapsed: elapsed}
			a.metrics.SourceResults.WithLabelValues(name).Add(float64(len(results)))
		}(i, src)
	}
	wg.Wait()

	candidates, dropped := a.merger.Merge(raw)
	a.metrics.DroppedResults.Add(float64(dropped))
	ranked := a.ranker.Rank(candidates, query)

	log.Info().Str("title", query.Title).
		Int("candidates", len(ranked)).
		Int("dropped", dropped).
		Msg("search completed")

	return &models.SearchResponse{Candidates: ranked, Sources: statuses, Dropped: dropped}
}

// AnnotateAvailability marks every candidate with the named provider's cache
// status, using one bulk availability call. Best effort: a provider failure
// leaves the candidates unmarked rather than failing the search.
func (a *Aggregator) AnnotateAvailability(ctx context.Context, candidates []models.RankedCandidate, providerName string) {
	provider, ok := a.byName[providerName]
	if !ok || len(candidates) == 0 {
		return
	}

	hashes := make([]string, len(candidates))
	for i := range candidates {
		hashes[i] = candidates[i].InfoHash
	}

	callCtx, cancel := context.WithTimeout(ctx, a.cfg.ProviderTimeout)
	defer cancel()

	availability, err := provider.CheckAvailability(callCtx, hashes...)
	if err != nil {
		log.Warn().Str("provider", providerName).Err(err).Msg("availability annotation skipped")
		return
	}
	for i := range candidates {
		candidates[i].Availability = availability[candidates[i].InfoHash].String()
	}
}

func (a *Aggregator) sourceTimeout(name string) time.Duration {
	if sc, ok := a.sourceCfg[name]; ok && sc.Timeout > 0 {
		return sc.Timeout
	}
	return constants.DefaultSourceTimeout
}

// Resolve walks the provider preference order and returns the first Ready
// result. Unavailable and transient failures never block the next provider;
// the aggregate is Unavailable only when every provider said so.
func (a *Aggregator) Resolve(ctx context.Context, req ResolveRequest) (models.ResolutionResult, error) {
	infoHash := sources.NormalizeInfoHash(req.InfoHash)
	if infoHash == "" {
		return models.ResolutionResult{}, fmt.Errorf("invalid info hash %q", req.InfoHash)
	}

	runCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && a.cfg.SearchDeadline > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, a.cfg.SearchDeadline)
		defer cancel()
	}

	order := req.Providers
	if len(order) == 0 {
		for _, p := range a.providers {
			order = append(order, p.Name())
		}
	}

	selector := debrid.SelectorFor(req.Season, req.Episode)
	queued := 0
	failed := 0
	attempted := 0

	for _, name := range order {
		provider, ok := a.byName[name]
		if !ok {
			log.Debug().Str("provider", name).Msg("unknown provider in preference order")
			continue
		}
		if runCtx.Err() != nil {
			failed++
			break
		}
		attempted++

		key := models.ResolutionKey{
			InfoHash:           infoHash,
			Provider:           name,
			AccountFingerprint: a.fingerprints[name],
		}
		result := a.resolveVia(runCtx, provider, key, selector)
		a.metrics.ResolutionsTotal.WithLabelValues(name, string(result.Status)).Inc()

		switch result.Status {
		case models.StatusReady:
			return result, nil
		case models.StatusQueued:
			queued++
		case models.StatusFailed:
			failed++
		}
	}

	// A deadline that fires before the first attempt counts as a failure,
	// not a configuration mistake.
	if attempted == 0 && failed == 0 {
		return models.ResolutionResult{}, fmt.Errorf("no configured provider matches %v", order)
	}
	switch {
	case queued > 0:
		return models.ResolutionResult{Status: models.StatusQueued}, nil
	case failed > 0:
		return models.ResolutionResult{Status: models.StatusFailed}, nil
	}
	return models.ResolutionResult{Status: models.StatusUnavailable}, nil
}

// resolveVia resolves through one provider, memoized in the resolution cache.
// Concurrent callers for the same key share one upstream call; outcomes are
// cached with status-dependent TTLs.
func (a *Aggregator) resolveVia(ctx context.Context, provider debrid.Provider, key models.ResolutionKey, selector debrid.FileSelector) models.ResolutionResult {
	cacheKey := key.String()

	if v, ok := a.cache.Get(cacheKey); ok {
		a.metrics.CacheHits.Inc()
		return v.(models.ResolutionResult)
	}
	a.metrics.CacheMisses.Inc()

	value, err := a.cache.GetOrCompute(cacheKey, func() (interface{}, time.Duration, error) {
		result := a.resolveUncached(ctx, provider, key, selector)
		if ctx.Err() != nil {
			// Abandoned mid-flight; report without caching so the next
			// caller retries fresh.
			return nil, 0, ctx.Err()
		}
		return result, a.ttlFor(result), nil
	})
	if err != nil {
		return models.ResolutionResult{Status: models.StatusFailed, Provider: provider.Name()}
	}
	return value.(models.ResolutionResult)
}

func (a *Aggregator) resolveUncached(ctx context.Context, provider debrid.Provider, key models.ResolutionKey, selector debrid.FileSelector) models.ResolutionResult {
	name := provider.Name()

	// Links persisted from a previous run short-circuit the provider.
	if a.db != nil {
		if rec, err := a.db.GetResolution(key.String()); err == nil && rec != nil {
			return models.ResolutionResult{
				Status:      models.StatusReady,
				Provider:    rec.Provider,
				PlayableURL: rec.PlayableURL,
				FileName:    rec.FileName,
				ExpiresAt:   rec.ExpiresAt,
			}
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, a.cfg.ProviderTimeout)
	defer cancel()

	availability, err := provider.CheckAvailability(callCtx, key.InfoHash)
	if err != nil {
		log.Warn().Str("provider", name).Err(err).Msg("availability check failed")
		return models.ResolutionResult{Status: models.StatusFailed, Provider: name}
	}

	if availability[key.InfoHash] == debrid.AvailabilityUnavailable {
		return models.ResolutionResult{Status: models.StatusUnavailable, Provider: name}
	}

	result, err := provider.AddAndResolve(callCtx, key.InfoHash, selector)
	if err != nil {
		if apperrors.IsAuthError(err) {
			log.Error().Str("provider", name).Err(err).Msg("provider credentials rejected")
		} else {
			log.Warn().Str("provider", name).Err(err).Msg("resolution failed")
		}
		return models.ResolutionResult{Status: models.StatusFailed, Provider: name}
	}

	if result.Status == models.StatusReady && a.db != nil {
		record := &database.Resolution{
			Key:         key.String(),
			PlayableURL: result.PlayableURL,
			FileName:    result.FileName,
			Provider:    result.Provider,
			ExpiresAt:   result.ExpiresAt,
		}
		if err := a.db.StoreResolution(record); err != nil {
			log.Warn().Str("provider", name).Err(err).Msg("failed to persist resolution")
		}
	}
	return result
}

// ttlFor maps a resolution outcome to its cache TTL: long for Ready, short
// for transient failures, longer for confirmed unavailability. A Ready result
// never outlives its link.
func (a *Aggregator) ttlFor(result models.ResolutionResult) time.Duration {
	switch result.Status {
	case models.StatusReady:
		ttl := a.cfg.Cache.PositiveTTL
		if until := time.Until(result.ExpiresAt); until > 0 && until < ttl {
			ttl = until
		}
		return ttl
	case models.StatusUnavailable:
		return a.cfg.Cache.NegativeUnavailableTTL
	default:
		return a.cfg.Cache.NegativeFailedTTL
	}
}
