package api

import (
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mr1hm/go-shelter-alerts/internal/catalog"
	"github.com/mr1hm/go-shelter-alerts/internal/metrics"
	"github.com/mr1hm/go-shelter-alerts/internal/models"
	"github.com/mr1hm/go-shelter-alerts/internal/repository"
	"github.com/mr1hm/go-shelter-alerts/internal/store"
	"github.com/mr1hm/go-shelter-alerts/internal/stream"
)

type Options struct {
	Production    bool          // synthetic alerts require ?test=true
	CitiesGeoPath string        // served as-is at /api/cities-geo when set
	StreamRefresh time.Duration // websocket snapshot resend interval, default 5s
}

const defaultStreamRefresh = 5 * time.Second

type Handler struct {
	store       *store.Store
	catalog     *catalog.Catalog
	repo        repository.EpisodeRepository // nil when the journal is disabled
	broadcaster *stream.Broadcaster
	metrics     *metrics.Metrics
	opts        Options
}

func NewHandler(st *store.Store, cat *catalog.Catalog, repo repository.EpisodeRepository, broadcaster *stream.Broadcaster, mtr *metrics.Metrics, opts Options) *Handler {
	if mtr == nil {
		mtr = metrics.NewMetricsForTesting()
	}
	if opts.StreamRefresh <= 0 {
		opts.StreamRefresh = defaultStreamRefresh
	}
	return &Handler{
		store:       st,
		catalog:     cat,
		repo:        repo,
		broadcaster: broadcaster,
		metrics:     mtr,
		opts:        opts,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/api/alerts", h.getAlerts)
	r.GET("/api/alerts/ws", h.streamAlerts)
	r.GET("/api/areas", h.getAreas)
	r.GET("/api/cities-geo", h.getCitiesGeo)
	r.GET("/api/test-alert", h.createTestAlert)
	r.GET("/api/clear-test-alerts", h.clearTestAlerts)
	r.GET("/api/episodes", h.getEpisodes)
	r.GET("/health", h.health)
}

func (h *Handler) getAlerts(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.Snapshot())
}

func (h *Handler) getAreas(c *gin.Context) {
	c.JSON(http.StatusOK, h.catalog.Areas())
}

func (h *Handler) getCitiesGeo(c *gin.Context) {
	if h.opts.CitiesGeoPath == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "cities geo data not configured"})
		return
	}
	if _, err := os.Stat(h.opts.CitiesGeoPath); err != nil {
		slog.Error("cities geo file unavailable", "path", h.opts.CitiesGeoPath, "error", err)
		c.JSON(http.StatusNotFound, gin.H{"error": "cities geo data not found"})
		return
	}
	c.File(h.opts.CitiesGeoPath)
}

func (h *Handler) createTestAlert(c *gin.Context) {
	if h.opts.Production && c.Query("test") != "true" {
		c.JSON(http.StatusForbidden, gin.H{
			"error": "test alerts only available in development mode or with ?test=true",
		})
		return
	}

	areas := requestedAreas(c)
	if len(areas) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "area name required, use ?area=<name>"})
		return
	}

	queryMigun, _ := strconv.Atoi(c.Query("migun_time"))

	alerts := make([]models.AlertRecord, 0, len(areas))
	for _, area := range areas {
		alerts = append(alerts, h.store.Upsert(area, h.testMigunTime(area, queryMigun)))
	}

	if len(alerts) == 1 {
		c.JSON(http.StatusOK, gin.H{"success": true, "alert": alerts[0]})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "alerts": alerts})
}

// testMigunTime prefers the catalog, then the caller's value, then the default.
func (h *Handler) testMigunTime(area string, queryMigun int) int {
	if t, ok := h.catalog.Lookup(area); ok {
		return t
	}
	if queryMigun > 0 {
		return queryMigun
	}
	return models.DefaultMigunTime
}

func requestedAreas(c *gin.Context) []string {
	var areas []string
	seen := make(map[string]struct{})
	add := func(a string) {
		a = strings.TrimSpace(a)
		if a == "" {
			return
		}
		if _, ok := seen[a]; ok {
			return
		}
		seen[a] = struct{}{}
		areas = append(areas, a)
	}

	add(c.Query("area"))
	if list := c.Query("areas"); list != "" {
		for _, a := range strings.Split(list, ",") {
			add(a)
		}
	}
	return areas
}

func (h *Handler) clearTestAlerts(c *gin.Context) {
	h.store.Clear()
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "test alerts cleared"})
}

func (h *Handler) getEpisodes(c *gin.Context) {
	if h.repo == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "episode journal disabled"})
		return
	}

	filter := repository.Filter{
		Limit: 50, // Default to 50 episodes if limit param not supplied
	}
	if l := c.Query("limit"); l != "" {
		if lim, err := strconv.Atoi(l); err == nil && lim > 0 && lim <= 500 {
			filter.Limit = lim
		}
	}
	if o := c.Query("offset"); o != "" {
		if off, err := strconv.Atoi(o); err == nil && off >= 0 {
			filter.Offset = off
		}
	}
	if a := c.Query("area"); a != "" {
		filter.Area = a
	}
	if s := c.Query("since"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			filter.Since = &t
		}
	}
	filter.OpenOnly = c.Query("open") == "true"

	episodes, err := h.repo.ListEpisodes(c.Request.Context(), filter)
	if err != nil {
		slog.Error("failed to list episodes", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to fetch episodes",
		})
		return
	}
	if episodes == nil {
		episodes = []models.Episode{}
	}

	c.JSON(http.StatusOK, gin.H{"episodes": episodes})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
