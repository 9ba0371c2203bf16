package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/02loveslollipop/eco-monitor/internal/models"
	"github.com/02loveslollipop/eco-monitor/internal/reconcile"
)

const defaultNearbyMeters = 10000

// handleListStations returns stations sorted by city and name
// GET /api/stations?city&status&page&limit
func (s *Server) handleListStations(c *gin.Context) {
	p, err := s.parsePage(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	filter := models.StationFilter{City: c.Query("city"), Limit: p.Limit, Offset: p.offset()}
	if v := c.Query("status"); v != "" {
		status, err := models.ParseStationStatus(v)
		if err != nil {
			respondError(c, http.StatusBadRequest, err.Error())
			return
		}
		filter.Status = status
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	stations, total, err := s.store.ListStations(ctx, filter)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"data":       stations,
		"pagination": p.meta(total),
	})
}

// handleGetStation returns one station
// GET /api/stations/:id
func (s *Server) handleGetStation(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	station, err := s.store.FindStationByID(ctx, c.Param("id"))
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	if station == nil {
		respondError(c, http.StatusNotFound, "Station not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": station})
}

// handleCreateStation registers a station by hand
// POST /api/stations
func (s *Server) handleCreateStation(c *gin.Context) {
	var req stationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}
	station, err := req.station()
	if err != nil {
		respondValidation(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	created, err := s.store.CreateStation(ctx, station)
	if errors.Is(err, reconcile.ErrConflict) {
		respondError(c, http.StatusConflict, "Station already exists")
		return
	}
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "data": created})
}

// handleUpdateStation overwrites a station
// PUT /api/stations/:id
func (s *Server) handleUpdateStation(c *gin.Context) {
	var req stationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}
	req.StationID = c.Param("id")
	station, err := req.station()
	if err != nil {
		respondValidation(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	updated, err := s.store.UpdateStation(ctx, station)
	if errors.Is(err, reconcile.ErrNotFound) {
		respondError(c, http.StatusNotFound, "Station not found")
		return
	}
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": updated})
}

// handleDeleteStation marks a station inactive
// DELETE /api/stations/:id
func (s *Server) handleDeleteStation(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	station, err := s.store.DeactivateStation(ctx, c.Param("id"))
	if errors.Is(err, reconcile.ErrNotFound) {
		respondError(c, http.StatusNotFound, "Station not found")
		return
	}
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Station marked as inactive",
		"data":    station,
	})
}

// handleNearbyStations returns stations within maxDistance meters, closest first
// GET /api/stations/nearby/:lon/:lat?maxDistance
func (s *Server) handleNearbyStations(c *gin.Context) {
	lon, errLon := strconv.ParseFloat(c.Param("lon"), 64)
	lat, errLat := strconv.ParseFloat(c.Param("lat"), 64)
	if errLon != nil || errLat != nil {
		respondError(c, http.StatusBadRequest, "longitude and latitude must be numbers")
		return
	}
	origin := models.GeoPoint{Longitude: lon, Latitude: lat}
	if err := origin.Validate(); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	maxMeters := float64(defaultNearbyMeters)
	if v := c.Query("maxDistance"); v != "" {
		d, err := strconv.ParseFloat(v, 64)
		if err != nil || d <= 0 {
			respondError(c, http.StatusBadRequest, "invalid maxDistance")
			return
		}
		maxMeters = d
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	stations, _, err := s.store.ListStations(ctx, models.StationFilter{})
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    models.Nearby(stations, origin, maxMeters),
	})
}
