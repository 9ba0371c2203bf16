package http

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/02loveslollipop/eco-monitor/internal/ingest"
	"github.com/02loveslollipop/eco-monitor/internal/saveecobot"
)

const maxImportBytes = 32 << 20

// handleSync fetches the SaveEcoBot feed and reconciles every station
// GET /api/saveecobot/sync
func (s *Server) handleSync(c *gin.Context) {
	// A dropped client must not abort a run half way through.
	ctx := context.WithoutCancel(c.Request.Context())

	res, err := s.syncer.Run(ctx)
	switch {
	case errors.Is(err, ingest.ErrRunInProgress):
		respondError(c, http.StatusConflict, err.Error())
		return
	case errors.Is(err, saveecobot.ErrFeedUnavailable):
		respondError(c, http.StatusBadGateway, err.Error())
		return
	case err != nil:
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "SaveEcoBot data synchronized successfully",
		"results": res,
	})
}

// handleImportSaveEcoBot reconciles one pushed feed record or an array of them
// POST /api/measurements/import/saveecobot
func (s *Server) handleImportSaveEcoBot(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImportBytes))
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	var records []saveecobot.StationRecord
	trimmed := bytes.TrimSpace(body)
	switch {
	case len(trimmed) == 0:
		respondValidation(c, errors.New("request body is empty"))
		return
	case trimmed[0] == '[':
		records, err = saveecobot.DecodeRecords(trimmed)
	default:
		var rec saveecobot.StationRecord
		rec, err = saveecobot.DecodeRecord(trimmed)
		records = []saveecobot.StationRecord{rec}
	}
	if err != nil {
		respondValidation(c, err)
		return
	}
	for _, rec := range records {
		if rec.ID == "" {
			respondValidation(c, errors.New("id is required"))
			return
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second)
	defer cancel()

	res := s.syncer.Process(ctx, records)
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "SaveEcoBot data imported successfully",
		"results": res,
	})
}

// handleSyncStatus summarises stored data and the syncer state
// GET /api/saveecobot/status
func (s *Server) handleSyncStatus(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	summary, err := s.store.Status(ctx, s.now().UTC().Add(-24*time.Hour))
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    summary,
		"sync": gin.H{
			"state":    s.syncer.State(),
			"last_run": s.syncer.LastResult(),
		},
	})
}
