package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/02loveslollipop/eco-monitor/internal/config"
	"github.com/02loveslollipop/eco-monitor/internal/ingest"
	"github.com/02loveslollipop/eco-monitor/internal/storage"
	"github.com/02loveslollipop/eco-monitor/internal/thresholds"
)

// Deps are the collaborators a Server needs besides its config.
type Deps struct {
	Store      storage.Store
	Syncer     *ingest.Syncer
	Thresholds thresholds.Table
	// Notifier and Metrics are optional.
	Notifier ingest.Notifier
	Metrics  http.Handler
	Logger   *slog.Logger
	Now      func() time.Time
}

// Server bundles router and dependencies for the REST API.
type Server struct {
	cfg      config.Config
	store    storage.Store
	syncer   *ingest.Syncer
	table    thresholds.Table
	notifier ingest.Notifier
	metrics  http.Handler
	logger   *slog.Logger
	now      func() time.Time
	engine   *gin.Engine
}

// New constructs a server with routes and middleware.
func New(cfg config.Config, deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(gin.Logger())
	engine.Use(corsMiddleware())

	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Thresholds == nil {
		deps.Thresholds = thresholds.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	server := &Server{
		cfg:      cfg,
		store:    deps.Store,
		syncer:   deps.Syncer,
		table:    deps.Thresholds,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		now:      deps.Now,
		engine:   engine,
	}
	server.registerRoutes()
	return server
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run starts the HTTP server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr(),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func respondError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"success": false, "error": msg})
}

func respondValidation(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   "Validation failed",
		"details": []string{err.Error()},
	})
}
