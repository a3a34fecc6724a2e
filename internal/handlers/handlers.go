// Package handlers implements the HTTP API on top of the search pipeline.
package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/amaumene/gocomet/internal/config"
	"github.com/amaumene/gocomet/internal/models"
	"github.com/amaumene/gocomet/internal/search"
)

// Handler handles HTTP requests for the search and resolution API.
type Handler struct {
	aggregator *search.Aggregator
	config     *config.Config
	registry   *prometheus.Registry
}

// New creates a new Handler around the aggregation pipeline.
func New(aggregator *search.Aggregator, cfg *config.Config, registry *prometheus.Registry) *Handler {
	return &Handler{
		aggregator: aggregator,
		config:     cfg,
		registry:   registry,
	}
}

// RegisterRoutes registers all HTTP routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	api.GET("/search", h.handleSearch)
	api.GET("/resolve/:infohash", h.handleResolve)
}

func (h *Handler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleSearch runs a fan-out search. Required: title. Optional: year,
// season, episode, type (movie|series), id (external content ID such as an
// IMDb ID), min_seeders, resolutions (comma separated filter), check (a
// provider name; annotates each candidate with that provider's cache status).
func (h *Handler) handleSearch(c *gin.Context) {
	title := strings.TrimSpace(c.Query("title"))
	if title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}

	query := models.SearchQuery{
		Title:     title,
		Year:      intQuery(c, "year"),
		Season:    intQuery(c, "season"),
		Episode:   intQuery(c, "episode"),
		ContentID: c.Query("id"),
		MediaType: models.MediaTypeMovie,
	}
	if c.Query("type") == string(models.MediaTypeSeries) || query.Season > 0 {
		query.MediaType = models.MediaTypeSeries
	}

	response, err := h.aggregator.Search(c.Request.Context(), query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	candidates := response.Candidates
	if min := intQuery(c, "min_seeders"); min > 0 {
		candidates = search.FilterMinSeeders(candidates, min)
	}
	if resolutions := c.Query("resolutions"); resolutions != "" {
		candidates = search.FilterResolutions(candidates, strings.Split(resolutions, ","))
	}
	if providerName := c.Query("check"); providerName != "" {
		// Copy before annotating; the cached response is shared between
		// requests and availability is a point-in-time answer.
		annotated := make([]models.RankedCandidate, len(candidates))
		copy(annotated, candidates)
		h.aggregator.AnnotateAvailability(c.Request.Context(), annotated, providerName)
		candidates = annotated
	}

	c.JSON(http.StatusOK, models.SearchResponse{
		Candidates: candidates,
		Sources:    response.Sources,
		Dropped:    response.Dropped,
	})
}

// handleResolve turns an info hash into a playable link. Optional:
// providers (comma separated preference order), season, episode.
func (h *Handler) handleResolve(c *gin.Context) {
	req := search.ResolveRequest{
		InfoHash: c.Param("infohash"),
		Season:   intQuery(c, "season"),
		Episode:  intQuery(c, "episode"),
	}
	if providers := c.Query("providers"); providers != "" {
		for _, name := range strings.Split(providers, ",") {
			if name = strings.TrimSpace(name); name != "" {
				req.Providers = append(req.Providers, name)
			}
		}
	}

	result, err := h.aggregator.Resolve(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status := http.StatusOK
	if result.Status != models.StatusReady {
		// 202 tells the caller to retry later, 404 that no provider has it.
		switch result.Status {
		case models.StatusQueued:
			status = http.StatusAccepted
		case models.StatusUnavailable:
			status = http.StatusNotFound
		default:
			status = http.StatusBadGateway
		}
	}
	c.JSON(status, result)
}

func intQuery(c *gin.Context, key string) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return v
}
