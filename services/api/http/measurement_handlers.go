package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/02loveslollipop/eco-monitor/internal/models"
	"github.com/02loveslollipop/eco-monitor/internal/normalize"
	"github.com/02loveslollipop/eco-monitor/internal/reconcile"
	"github.com/02loveslollipop/eco-monitor/internal/thresholds"
)

// handleListMeasurements returns measurements newest first
// GET /api/measurements?station_id&start_date&end_date&pollutant&page&limit
func (s *Server) handleListMeasurements(c *gin.Context) {
	p, err := s.parsePage(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	since, until, err := parseDateRange(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	filter := models.MeasurementFilter{
		StationID: c.Query("station_id"),
		Since:     since,
		Until:     until,
		Limit:     p.Limit,
		Offset:    p.offset(),
	}
	if v := c.Query("pollutant"); v != "" {
		kind, err := models.ParsePollutant(v)
		if err != nil {
			respondError(c, http.StatusBadRequest, err.Error())
			return
		}
		filter.Pollutant = kind
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	measurements, total, err := s.store.ListMeasurements(ctx, filter)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"data":       measurements,
		"pagination": p.meta(total),
	})
}

// handleLatestMeasurements returns the newest measurement per station
// GET /api/measurements/latest
func (s *Server) handleLatestMeasurements(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	latest, err := s.store.LatestMeasurements(ctx)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": latest})
}

// handleCreateMeasurement stores a user-submitted measurement and reports
// any threshold exceedances alongside it
// POST /api/measurements
func (s *Server) handleCreateMeasurement(c *gin.Context) {
	var in normalize.SubmittedMeasurement
	if err := c.ShouldBindJSON(&in); err != nil {
		respondValidation(c, err)
		return
	}
	now := s.now().UTC()
	m, err := normalize.Submitted(in, now)
	if err != nil {
		respondValidation(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	station, err := s.store.FindStationByID(ctx, m.StationID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	if station == nil {
		respondError(c, http.StatusNotFound, "Station not found")
		return
	}

	if err := s.store.InsertMeasurement(ctx, m); err != nil {
		if errors.Is(err, reconcile.ErrConflict) {
			respondError(c, http.StatusConflict, "Measurement already exists for this station and time")
			return
		}
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.store.TouchLastMeasurement(ctx, m.StationID, now); err != nil {
		s.logger.Warn("touch station failed", "station_id", m.StationID, "error", err)
	}

	body := gin.H{"success": true, "data": m}
	if exc := s.table.Evaluate(m.Pollutants); len(exc) > 0 {
		body["exceedances"] = exc
		s.notify(ctx, thresholds.Report{StationID: m.StationID, MeasurementTime: m.MeasurementTime, Exceedances: exc})
	}
	c.JSON(http.StatusCreated, body)
}

func (s *Server) notify(ctx context.Context, report thresholds.Report) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, report); err != nil {
		s.logger.Warn("exceedance notification failed", "station_id", report.StationID, "error", err)
	}
}

// handleMeasurementStatistics aggregates one pollutant at one station
// GET /api/measurements/statistics/:station_id?pollutant&start_date&end_date
func (s *Server) handleMeasurementStatistics(c *gin.Context) {
	v := c.Query("pollutant")
	if v == "" {
		respondError(c, http.StatusBadRequest, "pollutant is required")
		return
	}
	kind, err := models.ParsePollutant(v)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	since, until, err := parseDateRange(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	stats, err := s.store.MeasurementStatistics(ctx, c.Param("station_id"), kind, since, until)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": stats})
}
