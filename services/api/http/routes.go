package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.metrics))
	}

	api := s.engine.Group("/api")

	stations := api.Group("/stations")
	{
		stations.GET("", s.handleListStations)
		stations.POST("", s.handleCreateStation)
		stations.GET("/nearby/:lon/:lat", s.handleNearbyStations)
		stations.GET("/:id", s.handleGetStation)
		stations.PUT("/:id", s.handleUpdateStation)
		stations.DELETE("/:id", s.handleDeleteStation)
	}

	measurements := api.Group("/measurements")
	{
		measurements.GET("", s.handleListMeasurements)
		measurements.POST("", s.handleCreateMeasurement)
		measurements.GET("/latest", s.handleLatestMeasurements)
		measurements.GET("/statistics/:station_id", s.handleMeasurementStatistics)
		measurements.POST("/import/saveecobot", s.handleImportSaveEcoBot)
	}

	saveecobot := api.Group("/saveecobot")
	{
		saveecobot.GET("/sync", s.handleSync)
		saveecobot.GET("/status", s.handleSyncStatus)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
