package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/jstittsworth/matchup-engine/internal/matchup"
	"github.com/jstittsworth/matchup-engine/internal/services"
	"github.com/jstittsworth/matchup-engine/pkg/config"
	"github.com/jstittsworth/matchup-engine/pkg/utils"
)

const reportCacheRetries = 3

// ReportCache is the slice of the cache service the report path needs;
// tests substitute a mock.
type ReportCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	SetWithRetry(ctx context.Context, key string, value interface{}, expiration time.Duration, maxRetries int) error
}

type ExportHandler struct {
	store         *services.DatasetStore
	matchups      *MatchupHandler
	reportService *services.ReportService
	cache         ReportCache
	config        *config.Config
}

func NewExportHandler(store *services.DatasetStore, matchups *MatchupHandler, reportService *services.ReportService, cache ReportCache, cfg *config.Config) *ExportHandler {
	return &ExportHandler{
		store:         store,
		matchups:      matchups,
		reportService: reportService,
		cache:         cache,
		config:        cfg,
	}
}

// GetReport returns the targets/fades report for a dataset scored with
// the server's default knobs. ?size= bounds both slices. Reports are
// cached by dataset, config hash, and size.
func (h *ExportHandler) GetReport(c *gin.Context) {
	ds, err := h.store.Get(c.Param("id"))
	if err != nil {
		utils.SendNotFound(c, "Dataset not found")
		return
	}

	size := h.config.ReportSize
	if raw := c.Query("size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			utils.SendValidationError(c, "Invalid size", "size must be a positive integer")
			return
		}
		size = parsed
	}

	cfg := h.config.ScoringDefaults()
	ctx := c.Request.Context()
	cacheKey := services.ReportCacheKey(ds.ID, cfg, size)

	var cached services.MatchupReport
	if err := h.cache.Get(ctx, cacheKey, &cached); err == nil {
		utils.SendSuccess(c, cached)
		return
	} else if !errors.Is(err, services.ErrCacheMiss) {
		logrus.Warnf("Report cache lookup failed: %v", err)
	}

	run, err := h.matchups.scoreCached(ctx, ds, cfg)
	if err != nil {
		utils.SendInternalError(c, err.Error())
		return
	}

	report := h.reportService.BuildReport(run.Results, size)
	if err := h.cache.SetWithRetry(ctx, cacheKey, report, h.config.ScoreCacheExpiration, reportCacheRetries); err != nil {
		logrus.Warnf("Failed to cache report: %v", err)
	}

	utils.SendSuccess(c, report)
}

// ExportCSV streams the ranked table as a CSV download.
func (h *ExportHandler) ExportCSV(c *gin.Context) {
	results, ok := h.scoreWithDefaults(c)
	if !ok {
		return
	}

	data, err := h.reportService.ExportCSV(results)
	if err != nil {
		utils.SendInternalError(c, "Failed to render csv")
		return
	}

	filename := fmt.Sprintf("matchup_rankings_%s.csv", c.Param("id"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv", data)
}

func (h *ExportHandler) scoreWithDefaults(c *gin.Context) ([]matchup.ScoredResult, bool) {
	ds, err := h.store.Get(c.Param("id"))
	if err != nil {
		utils.SendNotFound(c, "Dataset not found")
		return nil, false
	}

	run, err := h.matchups.scoreCached(c.Request.Context(), ds, h.config.ScoringDefaults())
	if err != nil {
		utils.SendInternalError(c, err.Error())
		return nil, false
	}
	return run.Results, true
}
