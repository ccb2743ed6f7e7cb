package tiling

import "srtile/internal/models"

const (
	// DefaultThreshold is the longest side, in pixels, processed in a single pass
	DefaultThreshold = 1024

	// DefaultPatchSize is the patch side used when an image is tiled
	DefaultPatchSize = 256
)

// Policy decides per image whether it is tiled and with which patch size.
// All patches of an image share the same size.
type Policy struct {
	// Threshold is the longest spatial axis processed without tiling
	Threshold int

	// PatchSize is used for every image that needs tiling
	PatchSize int
}

// DefaultPolicy tiles images longer than 1024 pixels with 256 pixel patches
func DefaultPolicy() Policy {
	return Policy{Threshold: DefaultThreshold, PatchSize: DefaultPatchSize}
}

// RequiresTiling reports whether the longer spatial axis exceeds the threshold
func (p Policy) RequiresTiling(shape models.Shape) bool {
	return shape.LongSide() > p.Threshold
}

// ChoosePatchSize returns the patch size for an image, or false when the
// image is processed in a single pass.
func (p Policy) ChoosePatchSize(shape models.Shape) (int, bool) {
	if !p.RequiresTiling(shape) {
		return 0, false
	}
	return p.PatchSize, true
}
