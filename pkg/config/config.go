// Package config provides configuration loading and management for dicomstack.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Slice selection parameters
	Selection struct {
		// Tolerance is the absolute per-component tolerance when comparing
		// plane orientations
		Tolerance float64 `yaml:"tolerance"`

		// MinGroupSize is the minimum number of same-orientation slices
		// required to build a volume
		MinGroupSize int `yaml:"minGroupSize"`
	} `yaml:"selection"`

	// Directory scanning parameters
	Scan struct {
		// BatchSize is the number of files parsed per batch
		BatchSize int `yaml:"batchSize"`

		// Workers bounds concurrent file parsing within a batch
		Workers int `yaml:"workers"`
	} `yaml:"scan"`

	// Volume stacking parameters
	Stacking struct {
		// DefaultSpacing is the voxel depth in mm when no gap can be derived
		DefaultSpacing float64 `yaml:"defaultSpacing"`

		// SpacingTolerance is the relative gap deviation allowed before
		// spacing is reported non-uniform
		SpacingTolerance float64 `yaml:"spacingTolerance"`
	} `yaml:"stacking"`

	// Output parameters
	Output struct {
		// SavePreviews determines whether axis-aligned preview slices are written
		SavePreviews bool `yaml:"savePreviews"`

		// PreviewDir is the directory preview slices are written to
		PreviewDir string `yaml:"previewDir"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Selection.Tolerance = 1e-3
	cfg.Selection.MinGroupSize = 3

	cfg.Scan.BatchSize = 32
	cfg.Scan.Workers = runtime.NumCPU()

	cfg.Stacking.DefaultSpacing = 1.0
	cfg.Stacking.SpacingTolerance = 0.05

	cfg.Output.SavePreviews = false
	cfg.Output.PreviewDir = "previews"
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
