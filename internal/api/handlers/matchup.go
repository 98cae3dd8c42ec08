package handlers

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/jstittsworth/matchup-engine/internal/matchup"
	"github.com/jstittsworth/matchup-engine/internal/services"
	"github.com/jstittsworth/matchup-engine/pkg/config"
	"github.com/jstittsworth/matchup-engine/pkg/metrics"
	"github.com/jstittsworth/matchup-engine/pkg/utils"
)

// ScoreCache is the slice of the cache service scoring needs; tests
// substitute a mock.
type ScoreCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

type MatchupHandler struct {
	store  *services.DatasetStore
	cache  ScoreCache
	config *config.Config
}

func NewMatchupHandler(store *services.DatasetStore, cache ScoreCache, cfg *config.Config) *MatchupHandler {
	return &MatchupHandler{
		store:  store,
		cache:  cache,
		config: cfg,
	}
}

// ConfigOverrides are the per-request scoring knobs. Unset fields keep
// the server defaults, so the request only names what it changes.
type ConfigOverrides struct {
	MinBaseYPRR                *float64 `json:"min_base_yprr"`
	EdgeClamp                  *float64 `json:"edge_clamp"`
	MaxPenalty                 *float64 `json:"max_penalty"`
	PenaltyExponent            *float64 `json:"penalty_exponent"`
	FullConfidenceThreshold    *float64 `json:"full_confidence_threshold"`
	ZeroConfidenceThreshold    *float64 `json:"zero_confidence_threshold"`
	RouteShareMode             *string  `json:"route_share_mode"`
	RouteShareReference        *float64 `json:"route_share_reference"`
	ReferencePercentile        *float64 `json:"reference_percentile"`
	QualifiedMinimumRouteShare *float64 `json:"qualified_minimum_route_share"`
}

// Apply folds the overrides into a base configuration.
func (o *ConfigOverrides) Apply(cfg *matchup.Config) {
	if o == nil {
		return
	}
	if o.MinBaseYPRR != nil {
		cfg.MinBaseYPRR = *o.MinBaseYPRR
	}
	if o.EdgeClamp != nil {
		cfg.EdgeClamp = *o.EdgeClamp
	}
	if o.MaxPenalty != nil {
		cfg.MaxPenalty = *o.MaxPenalty
	}
	if o.PenaltyExponent != nil {
		cfg.PenaltyExponent = *o.PenaltyExponent
	}
	if o.FullConfidenceThreshold != nil {
		cfg.FullConfidenceThreshold = *o.FullConfidenceThreshold
	}
	if o.ZeroConfidenceThreshold != nil {
		cfg.ZeroConfidenceThreshold = *o.ZeroConfidenceThreshold
	}
	if o.RouteShareMode != nil {
		cfg.RouteShareMode = matchup.RouteShareMode(*o.RouteShareMode)
	}
	if o.RouteShareReference != nil {
		cfg.RouteShareReference = *o.RouteShareReference
	}
	if o.ReferencePercentile != nil {
		cfg.ReferencePercentile = *o.ReferencePercentile
	}
	if o.QualifiedMinimumRouteShare != nil {
		cfg.QualifiedMinimumRouteShare = *o.QualifiedMinimumRouteShare
	}
}

// ScoringRun is the scoring response payload.
type ScoringRun struct {
	DatasetID string                 `json:"dataset_id,omitempty"`
	Config    matchup.Config         `json:"config"`
	Results   []matchup.ScoredResult `json:"results"`
	Cached    bool                   `json:"cached"`
}

// ScoreDataset runs the model on a stored dataset. Results are cached
// by dataset and config hash since scoring is deterministic.
func (h *MatchupHandler) ScoreDataset(c *gin.Context) {
	ds, err := h.store.Get(c.Param("id"))
	if err != nil {
		utils.SendNotFound(c, "Dataset not found")
		return
	}

	var req struct {
		Config *ConfigOverrides `json:"config"`
	}
	// An empty body means "score with the defaults".
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		utils.SendValidationError(c, "Invalid request body", err.Error())
		return
	}

	cfg := h.config.ScoringDefaults()
	req.Config.Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		metrics.RecordScoringError()
		utils.SendValidationError(c, "Invalid scoring config", err.Error())
		return
	}

	run, err := h.scoreCached(c.Request.Context(), ds, cfg)
	if err != nil {
		// Config was already validated, so this path is unexpected.
		utils.SendInternalError(c, err.Error())
		return
	}

	utils.SendSuccess(c, run)
}

// scoreCached runs the model on a stored dataset through the scoring
// cache. The report and export paths share it, so a rescoring of the
// same dataset with the same knobs is only ever paid once per TTL.
func (h *MatchupHandler) scoreCached(ctx context.Context, ds *services.Dataset, cfg matchup.Config) (*ScoringRun, error) {
	cacheKey := services.ScoringCacheKey(ds.ID, cfg)

	var cached ScoringRun
	if err := h.cache.Get(ctx, cacheKey, &cached); err == nil {
		cached.Cached = true
		return &cached, nil
	} else if !errors.Is(err, services.ErrCacheMiss) {
		logrus.Warnf("Scoring cache lookup failed: %v", err)
	}

	run, err := h.runScoring(ds.ID, ds.Receivers, ds.Defenses, cfg)
	if err != nil {
		return nil, err
	}

	if err := h.cache.Set(ctx, cacheKey, run, h.config.ScoreCacheExpiration); err != nil {
		logrus.Warnf("Failed to cache scoring run: %v", err)
	}

	return run, nil
}

// ScoreInline runs the model on tables supplied in the request body,
// the pure-function contract over HTTP. Nothing is stored or cached.
func (h *MatchupHandler) ScoreInline(c *gin.Context) {
	var req struct {
		Receivers []matchup.ReceiverSplit  `json:"receivers" binding:"required"`
		Defenses  []matchup.DefenseProfile `json:"defenses" binding:"required"`
		Config    *ConfigOverrides         `json:"config"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendValidationError(c, "Invalid request body", err.Error())
		return
	}

	defenses := make(map[string]matchup.DefenseProfile, len(req.Defenses))
	for _, d := range req.Defenses {
		defenses[d.Team] = d
	}

	cfg := h.config.ScoringDefaults()
	req.Config.Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		metrics.RecordScoringError()
		utils.SendValidationError(c, "Invalid scoring config", err.Error())
		return
	}

	run, err := h.runScoring("", req.Receivers, defenses, cfg)
	if err != nil {
		utils.SendInternalError(c, err.Error())
		return
	}

	utils.SendSuccess(c, run)
}

func (h *MatchupHandler) runScoring(datasetID string, receivers []matchup.ReceiverSplit, defenses map[string]matchup.DefenseProfile, cfg matchup.Config) (*ScoringRun, error) {
	start := time.Now()
	results, err := matchup.Score(receivers, defenses, cfg)
	if err != nil {
		metrics.RecordScoringError()
		return nil, err
	}
	eligible := len(matchup.Eligible(receivers, defenses, cfg))
	metrics.RecordScoringRun(len(receivers), eligible, len(results), time.Since(start))

	logrus.WithFields(logrus.Fields{
		"dataset_id": datasetID,
		"input":      len(receivers),
		"ranked":     len(results),
	}).Debug("Scoring run complete")

	return &ScoringRun{
		DatasetID: datasetID,
		Config:    cfg,
		Results:   results,
	}, nil
}
