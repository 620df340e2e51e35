// Package config provides XML-based configuration management for air-gapped deployment.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/floorplan-studio/backend/internal/parser"
)

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"FloorPlanStudio"`

	// Server configuration
	Server ServerConfig `xml:"Server"`

	// Storage configuration
	Storage StorageConfig `xml:"Storage"`

	// Extraction pipeline tuning
	Pipeline PipelineConfig `xml:"Pipeline"`

	// Security configuration
	Security SecurityConfig `xml:"Security"`

	// Advanced options
	Advanced AdvancedConfig `xml:"Advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port"`
	BindAddress  string `xml:"BindAddress"`
	EnableCORS   bool   `xml:"EnableCORS"`
	AllowOrigins string `xml:"AllowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds"`
	BodyLimit    string `xml:"BodyLimit"`
}

// StorageConfig contains file storage settings
type StorageConfig struct {
	DataDirectory    string `xml:"DataDirectory"`
	UploadsDirectory string `xml:"UploadsDirectory"`
	ArchivePath      string `xml:"ArchivePath"`
	MaxUploadSize    string `xml:"MaxUploadSize"`
	EnableArchive    bool   `xml:"EnableArchive"`
}

// PipelineConfig contains extraction tuning: geometric tolerances, wall
// defaults, health penalty weights and the run deadline.
type PipelineConfig struct {
	AngularToleranceDeg  float64 `xml:"AngularToleranceDegrees"`
	EndpointTolerance    float64 `xml:"EndpointTolerance"`
	MinWallLength        float64 `xml:"MinWallLength"`
	DefaultWallThickness float64 `xml:"DefaultWallThickness"`
	TargetWallThickness  float64 `xml:"TargetWallThickness"`
	DefaultWallHeight    float64 `xml:"DefaultWallHeight"`
	TimeoutSeconds       int     `xml:"TimeoutSeconds"`
	// PatternFile optionally overrides the built-in layer pattern table.
	PatternFile string           `xml:"PatternFile"`
	Penalties   parser.Penalties `xml:"Penalties"`

	CleanupIntervalMinutes int `xml:"CleanupIntervalMinutes"`
	SessionTimeoutMinutes  int `xml:"SessionTimeoutMinutes"`
}

// SecurityConfig contains security settings
type SecurityConfig struct {
	AllowFileDeletion bool   `xml:"AllowFileDeletion"`
	RequireAuth       bool   `xml:"RequireAuthentication"`
	AuthToken         string `xml:"AuthToken"`
	AllowedFileTypes  string `xml:"AllowedFileTypes"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel             string `xml:"LogLevel"`
	EnableRequestLogging bool   `xml:"EnableRequestLogging"`
	DuckDBThreads        int    `xml:"DuckDBThreads"`
	DuckDBMemoryLimit    string `xml:"DuckDBMemoryLimit"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	pipeline := parser.DefaultConfig()
	return &AppConfig{
		Server: ServerConfig{
			Port:         8089,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
			BodyLimit:    "256M",
		},
		Storage: StorageConfig{
			DataDirectory:    "./data",
			UploadsDirectory: "./data/uploads",
			ArchivePath:      "./data/plans.duckdb",
			MaxUploadSize:    "256M",
			EnableArchive:    true,
		},
		Pipeline: PipelineConfig{
			AngularToleranceDeg:    pipeline.AngularToleranceDeg,
			EndpointTolerance:      pipeline.EndpointTolerance,
			MinWallLength:          pipeline.MinWallLength,
			DefaultWallThickness:   pipeline.DefaultWallThickness,
			TargetWallThickness:    pipeline.TargetWallThickness,
			DefaultWallHeight:      pipeline.DefaultWallHeight,
			TimeoutSeconds:         30,
			Penalties:              parser.DefaultPenalties(),
			CleanupIntervalMinutes: 5,
			SessionTimeoutMinutes:  30,
		},
		Security: SecurityConfig{
			AllowFileDeletion: true,
			RequireAuth:       false,
			AuthToken:         "",
			AllowedFileTypes:  ".dxf,.dwg,.txt,.gz,.zip",
		},
		Advanced: AdvancedConfig{
			LogLevel:             "info",
			EnableRequestLogging: true,
			DuckDBThreads:        2,
			DuckDBMemoryLimit:    "256MB",
		},
	}
}

// LoadConfig loads configuration from XML file
func LoadConfig(configPath string) (*AppConfig, error) {
	// If file doesn't exist, create default
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := DefaultConfig()
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := xml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides
	config.applyEnvironmentOverrides()

	// Resolve relative paths
	config.resolvePaths(filepath.Dir(configPath))

	return config, nil
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- Floor Plan Studio Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	// PORT override
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	// DATA_DIR override
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
	}

	// PLAN_ARCHIVE_PATH override
	if archivePath := os.Getenv("PLAN_ARCHIVE_PATH"); archivePath != "" {
		c.Storage.ArchivePath = archivePath
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	if !filepath.IsAbs(c.Storage.DataDirectory) {
		c.Storage.DataDirectory = filepath.Join(configDir, c.Storage.DataDirectory)
	}
	if !filepath.IsAbs(c.Storage.UploadsDirectory) {
		c.Storage.UploadsDirectory = filepath.Join(configDir, c.Storage.UploadsDirectory)
	}
	if !filepath.IsAbs(c.Storage.ArchivePath) {
		c.Storage.ArchivePath = filepath.Join(configDir, c.Storage.ArchivePath)
	}
	if c.Pipeline.PatternFile != "" && !filepath.IsAbs(c.Pipeline.PatternFile) {
		c.Pipeline.PatternFile = filepath.Join(configDir, c.Pipeline.PatternFile)
	}
}

// GetDataDir returns the absolute data directory path
func (c *AppConfig) GetDataDir() string {
	return c.Storage.DataDirectory
}

// GetUploadDir returns the absolute uploads directory path
func (c *AppConfig) GetUploadDir() string {
	return c.Storage.UploadsDirectory
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// ExtractionTimeout returns the hard deadline for one extraction run.
func (c *AppConfig) ExtractionTimeout() time.Duration {
	if c.Pipeline.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Pipeline.TimeoutSeconds) * time.Second
}

// ToPipelineConfig builds the parser tuning from the XML pipeline section,
// loading the pattern table override when one is configured.
func (c *AppConfig) ToPipelineConfig() (parser.Config, error) {
	cfg := parser.DefaultConfig()
	cfg.AngularToleranceDeg = c.Pipeline.AngularToleranceDeg
	cfg.EndpointTolerance = c.Pipeline.EndpointTolerance
	cfg.MinWallLength = c.Pipeline.MinWallLength
	cfg.DefaultWallThickness = c.Pipeline.DefaultWallThickness
	cfg.TargetWallThickness = c.Pipeline.TargetWallThickness
	cfg.DefaultWallHeight = c.Pipeline.DefaultWallHeight
	cfg.Penalties = c.Pipeline.Penalties

	if c.Pipeline.PatternFile != "" {
		patterns, err := parser.LoadPatternTable(c.Pipeline.PatternFile)
		if err != nil {
			return cfg, fmt.Errorf("failed to load pattern table: %w", err)
		}
		cfg.Patterns = patterns
	}

	return cfg, nil
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.UploadsDirectory,
		filepath.Dir(c.Storage.ArchivePath),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
