package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/floorplan-studio/backend/internal/api"
	"github.com/floorplan-studio/backend/internal/archive"
	"github.com/floorplan-studio/backend/internal/config"
	"github.com/floorplan-studio/backend/internal/models"
	"github.com/floorplan-studio/backend/internal/parser"
	"github.com/floorplan-studio/backend/internal/session"
	"github.com/floorplan-studio/backend/internal/storage"
	"github.com/floorplan-studio/backend/internal/upload"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Get the executable's directory for config resolution
	exePath, err := os.Executable()
	if err != nil {
		fmt.Printf("Failed to get executable path: %v\n", err)
		os.Exit(1)
	}
	exeDir := filepath.Dir(exePath)

	// Load XML configuration
	configPath := filepath.Join(exeDir, "FloorPlanStudio.config")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Ensure all data directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Printf("Failed to create directories: %v\n", err)
		os.Exit(1)
	}

	// Initialize storage
	fileStore, err := storage.NewLocalStore(cfg.GetUploadDir())
	if err != nil {
		fmt.Printf("Failed to initialize storage: %v\n", err)
		os.Exit(1)
	}

	// Build the extraction pipeline from config, including the pattern table
	pipelineCfg, err := cfg.ToPipelineConfig()
	if err != nil {
		fmt.Printf("Failed to build pipeline configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize the extraction host
	sessionMgr := session.NewManagerWithExtractor(
		parser.NewPipeline(pipelineCfg),
		cfg.ExtractionTimeout(),
	)

	// Initialize the plan archive when enabled
	var planArchive *archive.DuckStore
	if cfg.Storage.EnableArchive {
		planArchive, err = archive.NewDuckStore(cfg.Storage.ArchivePath)
		if err != nil {
			fmt.Printf("Warning: plan archive disabled: %v\n", err)
		} else {
			defer planArchive.Close()
			sessionMgr.SetCompletionHook(func(sess *models.ParseSession, result *models.ParseResult) {
				if err := planArchive.SavePlan(sess, result); err != nil {
					fmt.Printf("[Archive] failed to save plan %s: %v\n", sess.ID[:8], err)
				}
			})
		}
	}

	// Initialize upload processing manager
	uploadMgr := upload.NewManager(cfg.GetUploadDir(), fileStore)

	// Start background cleanup of stale sessions and finished upload jobs
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.Pipeline.CleanupIntervalMinutes) * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			sessionMgr.CleanupOldSessions(time.Duration(cfg.Pipeline.SessionTimeoutMinutes) * time.Minute)
			uploadMgr.CleanupOldJobs(time.Hour)
		}
	}()

	// Build handlers
	deps := &api.Dependencies{
		Store:             fileStore,
		SessionMgr:        sessionMgr,
		UploadMgr:         uploadMgr,
		Version:           Version,
		AllowFileDeletion: cfg.Security.AllowFileDeletion,
	}
	if planArchive != nil {
		deps.PlanArchive = planArchive
	}
	handlers := api.NewHandlers(deps)

	e := echo.New()
	e.HideBanner = true
	api.SetupMiddleware(e)

	// Configure middleware
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/status") ||
				strings.HasSuffix(path, "/progress") ||
				path == "/health"
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize:         1024 * 4,
		DisablePrintStack: false,
		LogLevel:          0,
	}))

	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return strings.Contains(path, "/progress") ||
				strings.Contains(path, "/upload") ||
				c.Request().Header.Get("Accept") == "text/event-stream"
		},
		ErrorMessage: "Request timeout - extraction took too long",
	}))

	// Compression, skipping SSE streams
	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Skipper: func(c echo.Context) bool {
			return c.Request().Header.Get("Accept") == "text/event-stream"
		},
	}))

	// Body limit middleware
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	// CORS configuration
	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}

	api.RegisterRoutes(e, handlers)

	// Configure server with settings from XML config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	archiveState := "disabled"
	if planArchive != nil {
		archiveState = cfg.Storage.ArchivePath
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           Floor Plan Studio Server                        ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Data Dir:  %-46s║\n", cfg.GetDataDir())
	fmt.Printf("║  Archive:   %-46s║\n", archiveState)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	e.Logger.Fatal(e.StartServer(s))
}
