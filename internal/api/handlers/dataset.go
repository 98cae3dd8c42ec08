package handlers

import (
	"fmt"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/jstittsworth/matchup-engine/internal/ingest"
	"github.com/jstittsworth/matchup-engine/internal/matchup"
	"github.com/jstittsworth/matchup-engine/internal/providers"
	"github.com/jstittsworth/matchup-engine/internal/services"
	"github.com/jstittsworth/matchup-engine/pkg/utils"
)

type DatasetHandler struct {
	store    *services.DatasetStore
	provider *providers.NflverseClient
}

func NewDatasetHandler(store *services.DatasetStore, provider *providers.NflverseClient) *DatasetHandler {
	return &DatasetHandler{
		store:    store,
		provider: provider,
	}
}

// UploadDataset accepts a multipart upload of the receiver, defense,
// and (optionally) matchup CSVs and stores them as one dataset.
func (h *DatasetHandler) UploadDataset(c *gin.Context) {
	receivers, err := readUpload(c, "receivers", ingest.ReadReceiverSplits)
	if err != nil {
		utils.SendValidationError(c, "Invalid receivers file", err.Error())
		return
	}

	defenses, err := readUpload(c, "defenses", ingest.ReadDefenseProfiles)
	if err != nil {
		utils.SendValidationError(c, "Invalid defenses file", err.Error())
		return
	}

	// The schedule file is optional: receiver rows may already carry
	// opponents.
	if _, err := c.FormFile("matchups"); err == nil {
		schedule, err := readUpload(c, "matchups", ingest.ReadMatchups)
		if err != nil {
			utils.SendValidationError(c, "Invalid matchups file", err.Error())
			return
		}
		receivers = ingest.MergeOpponents(receivers, schedule)
	}

	h.storeAndRespond(c, receivers, defenses)
}

// FetchDataset assembles a dataset from the configured remote CSV
// sources instead of an upload.
func (h *DatasetHandler) FetchDataset(c *gin.Context) {
	ctx := c.Request.Context()

	receivers, err := h.provider.FetchReceiverSplits(ctx)
	if err != nil {
		utils.SendUpstreamError(c, "Failed to fetch receiver data", err.Error())
		return
	}

	defenses, err := h.provider.FetchDefenseProfiles(ctx)
	if err != nil {
		utils.SendUpstreamError(c, "Failed to fetch defense data", err.Error())
		return
	}

	schedule, err := h.provider.FetchMatchups(ctx)
	if err != nil {
		utils.SendUpstreamError(c, "Failed to fetch matchup schedule", err.Error())
		return
	}
	receivers = ingest.MergeOpponents(receivers, schedule)

	h.storeAndRespond(c, receivers, defenses)
}

// GetDataset returns a dataset summary, repeating any load-time
// warnings so clients that fetch by handle still see them.
func (h *DatasetHandler) GetDataset(c *gin.Context) {
	ds, err := h.store.Get(c.Param("id"))
	if err != nil {
		utils.SendNotFound(c, "Dataset not found")
		return
	}
	utils.SendSuccessWithWarnings(c, ds.Summary(), missingDefenseWarnings(ds.MissingDefenses))
}

// DeleteDataset drops a dataset before its TTL.
func (h *DatasetHandler) DeleteDataset(c *gin.Context) {
	h.store.Delete(c.Param("id"))
	utils.SendSuccess(c, gin.H{"deleted": true})
}

func (h *DatasetHandler) storeAndRespond(c *gin.Context, receivers []matchup.ReceiverSplit, defenses map[string]matchup.DefenseProfile) {
	if len(receivers) == 0 {
		utils.SendValidationError(c, "No receiver rows", "the receiver table parsed to zero usable rows")
		return
	}

	missing := ingest.MissingDefenses(receivers, defenses)
	ds := h.store.Put(receivers, defenses, missing)

	if len(missing) > 0 {
		logrus.Warnf("Dataset %s missing defense data for %v", ds.ID, missing)
	}

	utils.SendCreated(c, ds.Summary(), missingDefenseWarnings(missing))
}

func missingDefenseWarnings(missing []string) []string {
	if len(missing) == 0 {
		return nil
	}
	return []string{fmt.Sprintf("missing defense data for: %v", missing)}
}

func readUpload[T any](c *gin.Context, field string, decode func(r io.Reader) (T, error)) (T, error) {
	var zero T

	fileHeader, err := c.FormFile(field)
	if err != nil {
		return zero, fmt.Errorf("missing %s file: %w", field, err)
	}

	file, err := fileHeader.Open()
	if err != nil {
		return zero, fmt.Errorf("open %s file: %w", field, err)
	}
	defer file.Close()

	return decode(file)
}
