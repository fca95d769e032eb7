// Package config provides configuration loading and management for tilescan.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"tilescan/pkg/combine"
	"tilescan/pkg/interpolation"
	"tilescan/pkg/tiffio"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores specifies how many channels are written in parallel
		NumCores int `yaml:"numCores"`

		// NeedsRotation enables angle estimation, rotation and cropping
		NeedsRotation bool `yaml:"needsRotation"`

		// BestChannel is the channel whose reference slice drives the estimate
		BestChannel int `yaml:"bestChannel"`

		// ManualAngle, when set, replaces the estimated angle (clockwise degrees)
		ManualAngle *float64 `yaml:"manualAngle,omitempty"`

		// Interpolation is "bilinear" or "nearest"
		Interpolation string `yaml:"interpolation"`

		// ReferenceSlice is "middle" or "brightest"
		ReferenceSlice string `yaml:"referenceSlice"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// Compression is "deflate" or "none"
		Compression string `yaml:"compression"`

		// WritePreview saves a contrast-stretched projection of each group
		WritePreview bool `yaml:"writePreview"`

		// PreviewSize bounds the longer side of the preview in pixels
		PreviewSize int `yaml:"previewSize"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default processing parameters
	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default
	cfg.Processing.NeedsRotation = true
	cfg.Processing.BestChannel = 1
	cfg.Processing.Interpolation = interpolation.Bilinear.String()
	cfg.Processing.ReferenceSlice = combine.ReferenceMiddle

	// Set default output parameters
	cfg.Output.Compression = tiffio.Deflate.String()
	cfg.Output.WritePreview = false
	cfg.Output.PreviewSize = 1024
	cfg.Output.Verbose = true

	return cfg
}

// Validate checks that every value is usable
func (c *Config) Validate() error {
	if c.Processing.NumCores < 1 {
		return fmt.Errorf("numCores must be at least 1, got %d", c.Processing.NumCores)
	}
	if c.Processing.BestChannel < 1 {
		return fmt.Errorf("bestChannel must be at least 1, got %d", c.Processing.BestChannel)
	}
	if _, err := interpolation.ParseMethod(c.Processing.Interpolation); err != nil {
		return err
	}
	switch c.Processing.ReferenceSlice {
	case combine.ReferenceMiddle, combine.ReferenceBrightest:
	default:
		return fmt.Errorf("referenceSlice must be %q or %q, got %q",
			combine.ReferenceMiddle, combine.ReferenceBrightest, c.Processing.ReferenceSlice)
	}
	if _, err := tiffio.ParseCompression(c.Output.Compression); err != nil {
		return err
	}
	if c.Output.PreviewSize < 0 {
		return fmt.Errorf("previewSize must not be negative, got %d", c.Output.PreviewSize)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
