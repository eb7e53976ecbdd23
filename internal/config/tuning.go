// Package config loads the sandtable tuning file: filter thresholds, ROI,
// gradient resolution and the housekeeping intervals of the daemon.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the repository copy of the shipped defaults.
const DefaultConfigPath = "config/sandtable.defaults.json"

// maxConfigSize caps the tuning file at 1MB.
const maxConfigSize = 1 * 1024 * 1024

// ROIConfig is the region of interest in sensor pixels, half-open on the max edges.
type ROIConfig struct {
	MinX int `json:"min_x"`
	MinY int `json:"min_y"`
	MaxX int `json:"max_x"`
	MaxY int `json:"max_y"`
}

// TuningConfig is the root configuration. Every field is optional; the
// Get* accessors supply defaults for anything left out, so partial files
// are safe.
type TuningConfig struct {
	// Filter params
	ROI             *ROIConfig `json:"roi,omitempty"`
	AveragingSlots  *int       `json:"averaging_slots,omitempty"`
	MinSamples      *int       `json:"min_samples,omitempty"`
	MaxVariance     *float64   `json:"max_variance,omitempty"`
	Hysteresis      *float64   `json:"hysteresis,omitempty"`
	BigChange       *float64   `json:"big_change,omitempty"`
	FollowBigChange *bool      `json:"follow_big_change,omitempty"`
	MaxOffset       *float64   `json:"max_offset,omitempty"`
	RetainValids    *bool      `json:"retain_valids,omitempty"`
	SpatialFilter   *bool      `json:"spatial_filter,omitempty"`
	MinInitFrames   *int       `json:"min_init_frames,omitempty"`

	// Gradient params
	GradientResolution *int     `json:"gradient_resolution,omitempty"`
	MaxGradient        *float64 `json:"max_gradient,omitempty"`

	// Hand-off params
	ChannelDepth *int `json:"channel_depth,omitempty"`

	// Housekeeping
	StatsFlushInterval *string `json:"stats_flush_interval,omitempty"` // duration string like "30s"
	CalibrationPath    *string `json:"calibration_path,omitempty"`
	ProjectorWidth     *int    `json:"projector_width,omitempty"`
	ProjectorHeight    *int    `json:"projector_height,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with every field unset.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads and validates a TuningConfig from a .json file
// no larger than 1MB. Unknown keys are rejected so typos surface early.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxConfigSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxConfigSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the fields that are set. ROI bounds against the sensor
// size are checked later, once the sensor geometry is known.
func (c *TuningConfig) Validate() error {
	if c.ROI != nil {
		r := c.ROI
		if r.MinX < 0 || r.MinY < 0 || r.MinX >= r.MaxX || r.MinY >= r.MaxY {
			return fmt.Errorf("roi must satisfy 0 <= min < max on both axes, got %+v", *r)
		}
	}
	if c.AveragingSlots != nil && *c.AveragingSlots < 1 {
		return fmt.Errorf("averaging_slots must be at least 1, got %d", *c.AveragingSlots)
	}
	if c.MinSamples != nil && (*c.MinSamples < 0 || *c.MinSamples > c.GetAveragingSlots()) {
		return fmt.Errorf("min_samples must be in [0, %d], got %d", c.GetAveragingSlots(), *c.MinSamples)
	}
	if c.MaxVariance != nil && *c.MaxVariance < 0 {
		return fmt.Errorf("max_variance must be non-negative, got %f", *c.MaxVariance)
	}
	if c.Hysteresis != nil && *c.Hysteresis < 0 {
		return fmt.Errorf("hysteresis must be non-negative, got %f", *c.Hysteresis)
	}
	if c.BigChange != nil && *c.BigChange <= 0 {
		return fmt.Errorf("big_change must be positive, got %f", *c.BigChange)
	}
	if c.MaxOffset != nil && *c.MaxOffset < 0 {
		return fmt.Errorf("max_offset must be non-negative, got %f", *c.MaxOffset)
	}
	if c.GradientResolution != nil && *c.GradientResolution < 1 {
		return fmt.Errorf("gradient_resolution must be at least 1, got %d", *c.GradientResolution)
	}
	if c.MaxGradient != nil && *c.MaxGradient <= 0 {
		return fmt.Errorf("max_gradient must be positive, got %f", *c.MaxGradient)
	}
	if c.MinInitFrames != nil && *c.MinInitFrames < 0 {
		return fmt.Errorf("min_init_frames must be non-negative, got %d", *c.MinInitFrames)
	}
	if c.ChannelDepth != nil && *c.ChannelDepth < 1 {
		return fmt.Errorf("channel_depth must be at least 1, got %d", *c.ChannelDepth)
	}
	if c.StatsFlushInterval != nil && *c.StatsFlushInterval != "" {
		if _, err := time.ParseDuration(*c.StatsFlushInterval); err != nil {
			return fmt.Errorf("invalid stats_flush_interval '%s': %w", *c.StatsFlushInterval, err)
		}
	}
	if c.ProjectorWidth != nil && *c.ProjectorWidth < 1 {
		return fmt.Errorf("projector_width must be positive, got %d", *c.ProjectorWidth)
	}
	if c.ProjectorHeight != nil && *c.ProjectorHeight < 1 {
		return fmt.Errorf("projector_height must be positive, got %d", *c.ProjectorHeight)
	}
	return nil
}

func getOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

// GetROI returns the configured ROI, or nil for the full sensor frame.
func (c *TuningConfig) GetROI() *ROIConfig { return c.ROI }

func (c *TuningConfig) GetAveragingSlots() int     { return getOr(c.AveragingSlots, 15) }
func (c *TuningConfig) GetMinSamples() int         { return getOr(c.MinSamples, 0) }
func (c *TuningConfig) GetMaxVariance() float64    { return getOr(c.MaxVariance, 4) }
func (c *TuningConfig) GetHysteresis() float64     { return getOr(c.Hysteresis, 0.5) }
func (c *TuningConfig) GetBigChange() float64      { return getOr(c.BigChange, 10) }
func (c *TuningConfig) GetFollowBigChange() bool   { return getOr(c.FollowBigChange, false) }
func (c *TuningConfig) GetMaxOffset() float64      { return getOr(c.MaxOffset, 0) }
func (c *TuningConfig) GetRetainValids() bool      { return getOr(c.RetainValids, true) }
func (c *TuningConfig) GetSpatialFilter() bool     { return getOr(c.SpatialFilter, true) }
func (c *TuningConfig) GetMinInitFrames() int      { return getOr(c.MinInitFrames, 60) }
func (c *TuningConfig) GetGradientResolution() int { return getOr(c.GradientResolution, 10) }
func (c *TuningConfig) GetMaxGradient() float64    { return getOr(c.MaxGradient, 1000) }
func (c *TuningConfig) GetChannelDepth() int       { return getOr(c.ChannelDepth, 1) }
func (c *TuningConfig) GetProjectorWidth() int     { return getOr(c.ProjectorWidth, 1024) }
func (c *TuningConfig) GetProjectorHeight() int    { return getOr(c.ProjectorHeight, 768) }

// GetCalibrationPath returns where the projector calibration is stored.
func (c *TuningConfig) GetCalibrationPath() string {
	return getOr(c.CalibrationPath, "calibration/projector.json")
}

// GetStatsFlushInterval parses StatsFlushInterval, defaulting to 30s.
// A zero duration disables flushing.
func (c *TuningConfig) GetStatsFlushInterval() time.Duration {
	if c.StatsFlushInterval == nil || *c.StatsFlushInterval == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(*c.StatsFlushInterval)
	if err != nil {
		return 30 * time.Second
	}
	return d
}
