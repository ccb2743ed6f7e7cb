// Package config provides configuration loading and management for srtile.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"srtile/pkg/inference"
	"srtile/pkg/model"
	"srtile/pkg/tiling"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Inference parameters
	Inference struct {
		// BatchSize is the number of patches handed to the model per call.
		// Keep it low and raise PatchSize instead when memory allows.
		BatchSize int `yaml:"batchSize"`

		// PatchSize is the tile side used for images that need tiling
		PatchSize int `yaml:"patchSize"`

		// PaddingSize is the context around each tile; raise it if seams show
		PaddingSize int `yaml:"paddingSize"`

		// TilingThreshold is the longest side processed in a single pass
		TilingThreshold int `yaml:"tilingThreshold"`

		// PadMode fills pixels outside the image, "edge" or "zero"
		PadMode string `yaml:"padMode"`
	} `yaml:"inference"`

	// Model parameters
	Model struct {
		// Filter is the resampling kernel of the interpolating model
		Filter string `yaml:"filter"`

		// Scale is the upscaling factor
		Scale int `yaml:"scale"`
	} `yaml:"model"`

	// Output parameters
	Output struct {
		// Dir is the root of the results tree
		Dir string `yaml:"dir"`

		// SaveIntermediaryResults saves the patches of tiled images
		SaveIntermediaryResults bool `yaml:"saveIntermediaryResults"`

		// IntermediaryDir is relative to the run folder
		IntermediaryDir string `yaml:"intermediaryDir"`

		// Metrics computes consistency metrics for every output
		Metrics bool `yaml:"metrics"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	opts := inference.DefaultOptions()
	cfg.Inference.BatchSize = opts.BatchSize
	cfg.Inference.PatchSize = opts.PatchSize
	cfg.Inference.PaddingSize = opts.PaddingSize
	cfg.Inference.TilingThreshold = tiling.DefaultThreshold
	cfg.Inference.PadMode = opts.PadMode.String()

	cfg.Model.Filter = "catmullrom"
	cfg.Model.Scale = 2

	cfg.Output.Dir = "data/output"
	cfg.Output.SaveIntermediaryResults = false
	cfg.Output.IntermediaryDir = "intermediary_results"
	cfg.Output.Metrics = false
	cfg.Output.Verbose = true

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}

// Validate checks the values that would otherwise fail deep in the pipeline
func (c *Config) Validate() error {
	if c.Inference.BatchSize <= 0 {
		return fmt.Errorf("inference.batchSize must be positive, got %d", c.Inference.BatchSize)
	}
	if c.Inference.PatchSize <= 0 {
		return fmt.Errorf("inference.patchSize must be positive, got %d", c.Inference.PatchSize)
	}
	if c.Inference.PaddingSize < 0 {
		return fmt.Errorf("inference.paddingSize must not be negative, got %d", c.Inference.PaddingSize)
	}
	if c.Inference.TilingThreshold <= 0 {
		return fmt.Errorf("inference.tilingThreshold must be positive, got %d", c.Inference.TilingThreshold)
	}
	if _, err := tiling.ParsePadMode(c.Inference.PadMode); err != nil {
		return fmt.Errorf("inference.padMode: %w", err)
	}
	if c.Model.Scale <= 0 {
		return fmt.Errorf("model.scale must be positive, got %d", c.Model.Scale)
	}
	if _, err := model.NewInterpolator(c.Model.Filter, c.Model.Scale); err != nil {
		return fmt.Errorf("model: %w", err)
	}
	return nil
}

// Policy returns the tiling policy described by the configuration
func (c *Config) Policy() tiling.Policy {
	return tiling.Policy{Threshold: c.Inference.TilingThreshold, PatchSize: c.Inference.PatchSize}
}

// Options returns the inference options described by the configuration.
// Tiled is left unset; the policy decides it per image.
func (c *Config) Options() (inference.Options, error) {
	mode, err := tiling.ParsePadMode(c.Inference.PadMode)
	if err != nil {
		return inference.Options{}, err
	}
	return inference.Options{
		PatchSize:   c.Inference.PatchSize,
		BatchSize:   c.Inference.BatchSize,
		PaddingSize: c.Inference.PaddingSize,
		PadMode:     mode,
	}, nil
}
