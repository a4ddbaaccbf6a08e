package main

import (
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/statebudgetx/budget-decoder/internal/infrastructure/config"
	"github.com/statebudgetx/budget-decoder/internal/infrastructure/logging"
	"github.com/statebudgetx/budget-decoder/internal/infrastructure/storage"
)

type APIServer struct {
	storage *storage.Storage
	logger  *slog.Logger
}

func NewAPIServer(storage *storage.Storage, logger *slog.Logger) *APIServer {
	return &APIServer{
		storage: storage,
		logger:  logger,
	}
}

// resolveRun picks the run to serve: an explicit ?run_id= or the latest
// completed run.
func (s *APIServer) resolveRun(c *gin.Context) (string, bool) {
	if runID := c.Query("run_id"); runID != "" {
		return runID, true
	}
	run, err := s.storage.LatestCompletedRun()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve run"})
		return "", false
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No completed runs"})
		return "", false
	}
	return run.RunID, true
}

func fiscalYearParam(c *gin.Context) int {
	fy, _ := strconv.Atoi(c.Query("fiscal_year"))
	return fy
}

func (s *APIServer) getRuns(c *gin.Context) {
	runs, err := s.storage.ListRuns()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch runs"})
		return
	}
	c.JSON(http.StatusOK, runs)
}

func (s *APIServer) getLatestRun(c *gin.Context) {
	run, err := s.storage.LatestCompletedRun()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch run"})
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No completed runs"})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *APIServer) getProgramVendor(c *gin.Context) {
	runID, ok := s.resolveRun(c)
	if !ok {
		return
	}

	rows, err := s.storage.ProgramVendorRows(runID, fiscalYearParam(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch program-vendor view"})
		return
	}

	// external_only=true hides internal transfers and accounting placeholders.
	if c.Query("external_only") == "true" {
		filtered := rows[:0]
		for _, r := range rows {
			if r.RecipientType == "external" && !r.IsPlaceholder {
				filtered = append(filtered, r)
			}
		}
		rows = filtered
	}

	c.JSON(http.StatusOK, rows)
}

func (s *APIServer) getProgramRollup(c *gin.Context) {
	runID, ok := s.resolveRun(c)
	if !ok {
		return
	}

	rows, err := s.storage.ProgramRollupRows(runID, fiscalYearParam(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch program rollup"})
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (s *APIServer) getUnmatched(c *gin.Context) {
	runID, ok := s.resolveRun(c)
	if !ok {
		return
	}

	rows, err := s.storage.UnmatchedProgramRows(runID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch unmatched report"})
		return
	}
	c.JSON(http.StatusOK, rows)
}

func main() {
	cfg := config.LoadOrEnv()
	logger := logging.NewLoggerWithSystem(cfg.Observability.Logging, "api")

	store, err := storage.NewStorage(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	server := NewAPIServer(store, logger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/api/health"},
	}))

	origins := cfg.API.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api := router.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "healthy"})
		})
		api.GET("/runs", server.getRuns)
		api.GET("/runs/latest", server.getLatestRun)
		api.GET("/program-vendor", server.getProgramVendor)
		api.GET("/program-rollup", server.getProgramRollup)
		api.GET("/unmatched", server.getUnmatched)
	}

	logger.Info("Starting API server", "addr", cfg.API.ListenAddr)
	if err := router.Run(cfg.API.ListenAddr); err != nil {
		logger.Error("Failed to start server", "error", err)
		os.Exit(1)
	}
}
