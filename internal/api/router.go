package api

import (
	"github.com/gin-gonic/gin"

	"github.com/jstittsworth/matchup-engine/internal/api/handlers"
	"github.com/jstittsworth/matchup-engine/internal/providers"
	"github.com/jstittsworth/matchup-engine/internal/services"
	"github.com/jstittsworth/matchup-engine/pkg/config"
)

// SetupRoutes configures all API routes on the given router group
func SetupRoutes(group *gin.RouterGroup, store *services.DatasetStore, cache *services.CacheService, reportService *services.ReportService, provider *providers.NflverseClient, cfg *config.Config) {
	// Initialize handlers
	datasetHandler := handlers.NewDatasetHandler(store, provider)
	matchupHandler := handlers.NewMatchupHandler(store, cache, cfg)
	exportHandler := handlers.NewExportHandler(store, matchupHandler, reportService, cache, cfg)

	// Dataset endpoints
	group.POST("/datasets", datasetHandler.UploadDataset)
	group.POST("/datasets/fetch", datasetHandler.FetchDataset)
	group.GET("/datasets/:id", datasetHandler.GetDataset)
	group.DELETE("/datasets/:id", datasetHandler.DeleteDataset)

	// Scoring endpoints
	group.POST("/datasets/:id/score", matchupHandler.ScoreDataset)
	group.POST("/score", matchupHandler.ScoreInline)

	// Report endpoints
	group.GET("/datasets/:id/report", exportHandler.GetReport)
	group.GET("/datasets/:id/export", exportHandler.ExportCSV)
}
