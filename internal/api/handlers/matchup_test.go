package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jstittsworth/matchup-engine/internal/matchup"
	"github.com/jstittsworth/matchup-engine/internal/services"
	"github.com/jstittsworth/matchup-engine/pkg/config"
	"github.com/jstittsworth/matchup-engine/pkg/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
	logrus.SetLevel(logrus.PanicLevel)
}

func testServerConfig() *config.Config {
	return &config.Config{
		ReportSize:              10,
		EdgeClamp:               0.25,
		MaxPenalty:              0.8,
		PenaltyExponent:         2,
		FullConfidenceThreshold: 0.5,
		ZeroConfidenceThreshold: 0.05,
		RouteShareMode:          "fixed",
		RouteShareReference:     100,
		ScoreCacheExpiration:    time.Hour,
	}
}

// MockCacheService for testing
type MockCacheService struct {
	mock.Mock
}

func (m *MockCacheService) Get(ctx context.Context, key string, dest interface{}) error {
	args := m.Called(ctx, key, dest)
	return args.Error(0)
}

func (m *MockCacheService) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	args := m.Called(ctx, key, value, expiration)
	return args.Error(0)
}

func (m *MockCacheService) SetWithRetry(ctx context.Context, key string, value interface{}, expiration time.Duration, maxRetries int) error {
	args := m.Called(ctx, key, value, expiration, maxRetries)
	return args.Error(0)
}

// missCache always misses and accepts every write.
func missCache() *MockCacheService {
	cache := &MockCacheService{}
	cache.On("Get", mock.Anything, mock.Anything, mock.Anything).Return(services.ErrCacheMiss)
	cache.On("Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	cache.On("SetWithRetry", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	return cache
}

func newTestRouter(t *testing.T) (*gin.Engine, *services.DatasetStore) {
	router, store, _ := newTestRouterWithCache(t, missCache())
	return router, store
}

func newTestRouterWithCache(t *testing.T, cache *MockCacheService) (*gin.Engine, *services.DatasetStore, *MockCacheService) {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	store := services.NewDatasetStore(time.Hour, logger)
	cfg := testServerConfig()

	matchupHandler := NewMatchupHandler(store, cache, cfg)
	datasetHandler := NewDatasetHandler(store, nil)
	exportHandler := NewExportHandler(store, matchupHandler, services.NewReportService(cfg.ReportSize), cache, cfg)

	router := gin.New()
	v1 := router.Group("/api/v1")
	v1.POST("/datasets", datasetHandler.UploadDataset)
	v1.GET("/datasets/:id", datasetHandler.GetDataset)
	v1.DELETE("/datasets/:id", datasetHandler.DeleteDataset)
	v1.POST("/datasets/:id/score", matchupHandler.ScoreDataset)
	v1.POST("/score", matchupHandler.ScoreInline)
	v1.GET("/datasets/:id/report", exportHandler.GetReport)
	v1.GET("/datasets/:id/export", exportHandler.ExportCSV)

	return router, store, cache
}

func seedDataset(store *services.DatasetStore) *services.Dataset {
	receivers := []matchup.ReceiverSplit{
		{Player: "A.J. Brown", Team: "PHI", Opponent: "DAL", BaseYPRR: 2.0, RoutesPlayed: 80,
			VsMan: fptr(2.4), VsZone: fptr(1.8)},
		{Player: "Malik Nabers", Team: "NYG", Opponent: "DAL", BaseYPRR: 2.2, RoutesPlayed: 90,
			VsMan: fptr(1.7), VsZone: fptr(2.3)},
	}
	defenses := map[string]matchup.DefenseProfile{
		"DAL": {Team: "DAL", ManPct: 0.6, ZonePct: 0.4, OneHighPct: 0.3, TwoHighPct: 0.3, ZeroHighPct: 0.4, BlitzPct: 0.2},
	}
	return store.Put(receivers, defenses, nil)
}

func fptr(v float64) *float64 {
	return &v
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder, data interface{}) utils.Response {
	t.Helper()

	var resp utils.Response
	raw := struct {
		Success  bool            `json:"success"`
		Data     json.RawMessage `json:"data"`
		Error    *utils.AppError `json:"error"`
		Warnings []string        `json:"warnings"`
	}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	resp.Success = raw.Success
	resp.Error = raw.Error
	resp.Warnings = raw.Warnings
	if data != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return resp
}

func TestScoreInline(t *testing.T) {
	router, _ := newTestRouter(t)

	body := gin.H{
		"receivers": []gin.H{
			{"player": "A.J. Brown", "team": "PHI", "opponent": "DAL", "base_yprr": 2.0, "routes_played": 80,
				"yprr_man": 2.4, "yprr_zone": 1.8},
		},
		"defenses": []gin.H{
			{"team": "DAL", "man_pct": 0.6, "zone_pct": 0.4, "one_high_pct": 0.3, "two_high_pct": 0.3, "zero_high_pct": 0.4, "blitz_pct": 0.2},
		},
	}

	rec := doJSON(t, router, http.MethodPost, "/api/v1/score", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var run ScoringRun
	resp := decodeResponse(t, rec, &run)
	assert.True(t, resp.Success)
	require.Len(t, run.Results, 1)
	assert.Equal(t, 1, run.Results[0].Rank)
	assert.InDelta(t, 2.04, run.Results[0].AdjustedYPRR, 1e-9)
}

func TestScoreInlineRejectsBadConfig(t *testing.T) {
	router, _ := newTestRouter(t)

	body := gin.H{
		"receivers": []gin.H{{"player": "x", "team": "PHI", "opponent": "DAL", "base_yprr": 2.0, "routes_played": 80}},
		"defenses":  []gin.H{{"team": "DAL"}},
		"config":    gin.H{"max_penalty": 1.5},
	}

	rec := doJSON(t, router, http.MethodPost, "/api/v1/score", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decodeResponse(t, rec, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, utils.ErrCodeValidation, resp.Error.Code)
}

func TestScoreDataset(t *testing.T) {
	router, store := newTestRouter(t)
	ds := seedDataset(store)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/datasets/"+ds.ID+"/score",
		gin.H{"config": gin.H{"max_penalty": 0.5}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var run ScoringRun
	decodeResponse(t, rec, &run)
	assert.Equal(t, ds.ID, run.DatasetID)
	assert.False(t, run.Cached)
	assert.InDelta(t, 0.5, run.Config.MaxPenalty, 1e-9, "override applied on top of defaults")
	require.Len(t, run.Results, 2)
	assert.Equal(t, 1, run.Results[0].Rank)
	assert.Equal(t, 2, run.Results[1].Rank)
}

func TestScoreDatasetEmptyBodyUsesDefaults(t *testing.T) {
	router, store := newTestRouter(t)
	ds := seedDataset(store)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/datasets/"+ds.ID+"/score", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var run ScoringRun
	decodeResponse(t, rec, &run)
	assert.InDelta(t, 0.8, run.Config.MaxPenalty, 1e-9)
}

func TestScoreDatasetNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/datasets/unknown/score", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetDataset(t *testing.T) {
	router, store := newTestRouter(t)
	ds := seedDataset(store)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/datasets/"+ds.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var summary services.DatasetSummary
	decodeResponse(t, rec, &summary)
	assert.Equal(t, ds.ID, summary.ID)
	assert.Equal(t, 2, summary.ReceiverCount)
	assert.Equal(t, 1, summary.DefenseCount)
}

func TestUploadDataset(t *testing.T) {
	router, _ := newTestRouter(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	receivers, err := mw.CreateFormFile("receivers", "receivers.csv")
	require.NoError(t, err)
	receivers.Write([]byte("player,team,base_yprr,routes_played,yprr_man,yprr_zone\nA.J. Brown,PHI,2.0,80,2.4,1.8\n"))

	defenses, err := mw.CreateFormFile("defenses", "defenses.csv")
	require.NoError(t, err)
	defenses.Write([]byte("team,man_pct,zone_pct,one_high_pct,two_high_pct,zero_high_pct,blitz_pct\nDAL,60,40,30,30,40,20\n"))

	matchups, err := mw.CreateFormFile("matchups", "matchups.csv")
	require.NoError(t, err)
	matchups.Write([]byte("team,opponent\nPHI,DAL\n"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/datasets", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var summary services.DatasetSummary
	resp := decodeResponse(t, rec, &summary)
	assert.True(t, resp.Success)
	assert.Empty(t, resp.Warnings)
	assert.Equal(t, 1, summary.ReceiverCount)
}

func TestUploadDatasetWarnsOnMissingDefense(t *testing.T) {
	router, _ := newTestRouter(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	receivers, _ := mw.CreateFormFile("receivers", "receivers.csv")
	receivers.Write([]byte("player,team,opponent,base_yprr,routes_played\nA.J. Brown,PHI,ARI,2.0,80\n"))

	defenses, _ := mw.CreateFormFile("defenses", "defenses.csv")
	defenses.Write([]byte("team,man_pct,zone_pct,one_high_pct,two_high_pct,zero_high_pct,blitz_pct\nDAL,60,40,30,30,40,20\n"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/datasets", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeResponse(t, rec, nil)
	require.Len(t, resp.Warnings, 1)
	assert.Contains(t, resp.Warnings[0], "ARI")
}

func TestUploadDatasetMissingFile(t *testing.T) {
	router, _ := newTestRouter(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	receivers, _ := mw.CreateFormFile("receivers", "receivers.csv")
	receivers.Write([]byte("player,team,base_yprr,routes_played\nA,PHI,2.0,80\n"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/datasets", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetReport(t *testing.T) {
	router, store := newTestRouter(t)
	ds := seedDataset(store)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/datasets/"+ds.ID+"/report?size=1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report services.MatchupReport
	decodeResponse(t, rec, &report)
	assert.Len(t, report.Rankings, 2)
	assert.Len(t, report.Targets, 1)
	assert.Len(t, report.Fades, 1)
	assert.Equal(t, "A.J. Brown", report.Targets[0].Player)
	assert.Equal(t, "Malik Nabers", report.Fades[0].Player)
}

func TestExportCSV(t *testing.T) {
	router, store := newTestRouter(t)
	ds := seedDataset(store)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/datasets/"+ds.ID+"/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, rec.Body.String(), "A.J. Brown")
}

func TestDeleteDataset(t *testing.T) {
	router, store := newTestRouter(t)
	ds := seedDataset(store)

	rec := doJSON(t, router, http.MethodDelete, "/api/v1/datasets/"+ds.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/datasets/"+ds.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetReportWritesThroughCaches(t *testing.T) {
	cache := missCache()
	router, store, _ := newTestRouterWithCache(t, cache)
	ds := seedDataset(store)
	cfg := testServerConfig().ScoringDefaults()

	rec := doJSON(t, router, http.MethodGet, "/api/v1/datasets/"+ds.ID+"/report?size=1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The scoring run and the built report are cached under their own keys.
	cache.AssertCalled(t, "Set", mock.Anything, services.ScoringCacheKey(ds.ID, cfg), mock.Anything, mock.Anything)
	cache.AssertCalled(t, "SetWithRetry", mock.Anything, services.ReportCacheKey(ds.ID, cfg, 1), mock.Anything, mock.Anything, mock.Anything)
}

func TestGetReportServedFromCache(t *testing.T) {
	cached := services.MatchupReport{Rankings: []matchup.ScoredResult{{Player: "from cache", Rank: 1}}}
	cache := &MockCacheService{}
	cache.On("Get", mock.Anything, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		*(args.Get(2).(*services.MatchupReport)) = cached
	}).Return(nil)

	router, store, _ := newTestRouterWithCache(t, cache)
	ds := seedDataset(store)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/datasets/"+ds.ID+"/report", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report services.MatchupReport
	decodeResponse(t, rec, &report)
	require.Len(t, report.Rankings, 1)
	assert.Equal(t, "from cache", report.Rankings[0].Player)
	cache.AssertNotCalled(t, "SetWithRetry", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGetDatasetRepeatsWarnings(t *testing.T) {
	router, store := newTestRouter(t)
	ds := store.Put(
		[]matchup.ReceiverSplit{{Player: "wr", Team: "PHI", Opponent: "ARI", BaseYPRR: 2.0, RoutesPlayed: 80}},
		map[string]matchup.DefenseProfile{"DAL": {Team: "DAL"}},
		[]string{"ARI"},
	)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/datasets/"+ds.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec, nil)
	require.Len(t, resp.Warnings, 1)
	assert.Contains(t, resp.Warnings[0], "ARI")
}
