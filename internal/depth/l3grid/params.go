// Package l3grid holds the per-pixel filter state of the depth pipeline:
// running statistics, the averaging ring, the temporal and spatial
// filters and the gradient field extractor.
//
// All types here are single-owner. The acquisition loop mutates them and
// publishes immutable copies; nothing in this package is safe for
// concurrent use.
package l3grid

import (
	"fmt"

	"github.com/banshee-data/sandtable/internal/depth/l2frames"
)

// Params configures the filter chain.
type Params struct {
	// ROI restricts filtering. The zero value means the full frame.
	ROI l2frames.ROI `json:"roi"`

	AveragingSlots int `json:"averaging_slots"`
	// MinSamples is the sample count required for stability.
	// Zero selects (AveragingSlots+1)/2.
	MinSamples int `json:"min_samples"`

	MaxVariance     float64 `json:"max_variance"`
	Hysteresis      float64 `json:"hysteresis"`
	BigChange       float64 `json:"big_change"`
	FollowBigChange bool    `json:"follow_big_change"`
	// MaxOffset rejects samples at or below this depth (no reading, hands).
	MaxOffset    float64 `json:"max_offset"`
	RetainValids bool    `json:"retain_valids"`

	SpatialFilter      bool    `json:"spatial_filter"`
	GradientResolution int     `json:"gradient_resolution"`
	MaxGradient        float64 `json:"max_gradient"`

	// MinInitFrames is the number of processed frames after which the
	// image is reported stabilised.
	MinInitFrames int `json:"min_init_frames"`
}

// DefaultParams returns the tuning used by the sandbox installation.
func DefaultParams() Params {
	return Params{
		AveragingSlots:     15,
		MaxVariance:        4,
		Hysteresis:         0.5,
		BigChange:          10,
		FollowBigChange:    false,
		MaxOffset:          0,
		RetainValids:       true,
		SpatialFilter:      true,
		GradientResolution: 10,
		MaxGradient:        1000,
		MinInitFrames:      60,
	}
}

// EffectiveMinSamples resolves MinSamples.
func (p Params) EffectiveMinSamples() int {
	if p.MinSamples > 0 {
		return p.MinSamples
	}
	return (p.AveragingSlots + 1) / 2
}

// EffectiveROI resolves the zero ROI to the full w×h frame.
func (p Params) EffectiveROI(w, h int) l2frames.ROI {
	if p.ROI == (l2frames.ROI{}) {
		return l2frames.FullROI(w, h)
	}
	return p.ROI
}

// Validate checks p against a w×h sensor.
func (p Params) Validate(w, h int) error {
	if p.AveragingSlots < 1 {
		return fmt.Errorf("averaging_slots must be at least 1, got %d", p.AveragingSlots)
	}
	if p.MinSamples < 0 || p.MinSamples > p.AveragingSlots {
		return fmt.Errorf("min_samples must be in [0, %d], got %d", p.AveragingSlots, p.MinSamples)
	}
	if p.MaxVariance < 0 {
		return fmt.Errorf("max_variance must be non-negative, got %f", p.MaxVariance)
	}
	if p.Hysteresis < 0 {
		return fmt.Errorf("hysteresis must be non-negative, got %f", p.Hysteresis)
	}
	if p.BigChange <= 0 {
		return fmt.Errorf("big_change must be positive, got %f", p.BigChange)
	}
	if p.MaxOffset < 0 {
		return fmt.Errorf("max_offset must be non-negative, got %f", p.MaxOffset)
	}
	if p.GradientResolution < 1 {
		return fmt.Errorf("gradient_resolution must be at least 1, got %d", p.GradientResolution)
	}
	if p.MaxGradient <= 0 {
		return fmt.Errorf("max_gradient must be positive, got %f", p.MaxGradient)
	}
	if p.MinInitFrames < 0 {
		return fmt.Errorf("min_init_frames must be non-negative, got %d", p.MinInitFrames)
	}
	if err := p.EffectiveROI(w, h).Validate(w, h); err != nil {
		return err
	}
	return nil
}
