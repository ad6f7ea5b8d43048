// Package config loads classification run configurations and reads the
// server's environment settings.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ironsheep/landcover-mcp/internal/mlc"
	"github.com/ironsheep/landcover-mcp/internal/raster"
)

// Environment variables read by the server binary.
const (
	EnvLogLevel = "LANDCOVER_MCP_LOG_LEVEL"
	EnvDBPath   = "LANDCOVER_MCP_DB"
)

const (
	defaultWorkers        = 0
	defaultLogLevel       = "info"
	maxConfigFileSize     = 1 * 1024 * 1024 // 1MB
	defaultPreviewMaxSize = raster.DefaultPreviewMaxSize
)

// RunConfig describes one offline classification run.
//
//	{
//	  "input": "scene.tif",
//	  "output": "scene_classes.png",
//	  "preview": "scene_preview.png",
//	  "band_mode": "rgb",
//	  "threshold": 20,
//	  "seeds": [{"row": 500, "col": 800, "name": "water"}]
//	}
type RunConfig struct {
	Input     string     `json:"input"`
	Output    string     `json:"output"`
	Preview   string     `json:"preview,omitempty"`
	BandMode  string     `json:"band_mode,omitempty"`
	Threshold float64    `json:"threshold"`
	Seeds     []mlc.Seed `json:"seeds"`

	Workers        *int `json:"workers,omitempty"`
	PreviewMaxSize *int `json:"preview_max_size,omitempty"`
}

// LoadRunConfig loads a RunConfig from a JSON file.
// The file must have a .json extension and be at most 1MB. Relative input
// and output paths are resolved against the config file's directory.
func LoadRunConfig(path string) (*RunConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxConfigFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &RunConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg.resolve(filepath.Dir(cleanPath))
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *RunConfig) Validate() error {
	if c.Input == "" {
		return fmt.Errorf("input is required")
	}
	if c.Output == "" {
		return fmt.Errorf("output is required")
	}
	if _, err := raster.ParseBandMode(c.BandMode); err != nil {
		return err
	}
	if !(c.Threshold > 0) {
		return fmt.Errorf("threshold must be positive, got %v", c.Threshold)
	}
	if len(c.Seeds) == 0 {
		return fmt.Errorf("at least one seed is required")
	}
	if len(c.Seeds) > mlc.MaxClasses {
		return fmt.Errorf("at most %d seeds are allowed, got %d", mlc.MaxClasses, len(c.Seeds))
	}
	for i, s := range c.Seeds {
		if s.Row < 0 || s.Col < 0 {
			return fmt.Errorf("seed %d has negative coordinates (%d, %d)", i, s.Row, s.Col)
		}
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}
	return nil
}

func (c *RunConfig) resolve(dir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	c.Input = abs(c.Input)
	c.Output = abs(c.Output)
	c.Preview = abs(c.Preview)
}

// GetBandMode returns the parsed band mode, rgb when unset.
func (c *RunConfig) GetBandMode() raster.BandMode {
	mode, err := raster.ParseBandMode(c.BandMode)
	if err != nil {
		return raster.BandModeRGB
	}
	return mode
}

// GetWorkers returns the worker count, 0 meaning all CPUs.
func (c *RunConfig) GetWorkers() int {
	if c.Workers == nil {
		return defaultWorkers
	}
	return *c.Workers
}

// GetPreviewMaxSize returns the preview size bound or the default.
func (c *RunConfig) GetPreviewMaxSize() int {
	if c.PreviewMaxSize == nil {
		return defaultPreviewMaxSize
	}
	return *c.PreviewMaxSize
}

// Env holds the settings read from the process environment.
type Env struct {
	LogLevel string
	DBPath   string
}

// FromEnv reads Env using lookup (normally os.LookupEnv).
func FromEnv(lookup func(string) (string, bool)) Env {
	env := Env{LogLevel: defaultLogLevel}
	if v, ok := lookup(EnvLogLevel); ok && strings.TrimSpace(v) != "" {
		env.LogLevel = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := lookup(EnvDBPath); ok {
		env.DBPath = strings.TrimSpace(v)
	}
	return env
}
