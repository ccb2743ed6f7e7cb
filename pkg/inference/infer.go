// Package inference runs a super-resolution model over a whole image, either
// in a single pass or by tiling it into overlapping patches.
package inference

import (
	"context"
	"fmt"

	"srtile/internal/models"
	"srtile/pkg/codec"
	"srtile/pkg/model"
	"srtile/pkg/tiling"
)

// Options controls how one image is processed
type Options struct {
	// Tiled selects the split/batch/stitch path. When false the image goes
	// through the model in one call and the remaining fields are ignored.
	Tiled bool

	// PatchSize is the side of a tile in input pixels
	PatchSize int

	// BatchSize is the number of patches handed to the model per call
	BatchSize int

	// PaddingSize is the context added around each tile, in input pixels.
	// Increase it if seams are visible.
	PaddingSize int

	// PadMode fills pixels outside the image when tiles reach past it
	PadMode tiling.PadMode

	// Observer receives progress notifications. May be nil.
	Observer tiling.Observer
}

// DefaultOptions returns single-pass options with the default tiling
// parameters filled in, ready for OptionsFor.
func DefaultOptions() Options {
	return Options{
		PatchSize:   tiling.DefaultPatchSize,
		BatchSize:   10,
		PaddingSize: 2,
		PadMode:     tiling.PadEdge,
	}
}

// OptionsFor applies the tiling policy to an image of the given shape
func OptionsFor(policy tiling.Policy, shape models.Shape, base Options) Options {
	opts := base
	opts.PatchSize, opts.Tiled = policy.ChoosePatchSize(shape)
	return opts
}

// Infer super-resolves frame with m. The result always has shape
// (scale*H, scale*W, 3).
//
// Errors are returned as soon as they are detected: a frame without exactly
// three channels or whose samples do not match its shape, a patch size that
// is not positive or too large to tile on the tiled path, a failing
// model call, or model outputs of the wrong shape. Nothing is retried.
func Infer(ctx context.Context, frame *models.Frame, m model.Model, opts Options) (*models.Frame, error) {
	if err := frame.CheckRGB(); err != nil {
		return nil, err
	}
	if err := frame.Validate(); err != nil {
		return nil, err
	}
	scale := m.Scale()
	if scale <= 0 {
		return nil, fmt.Errorf("%w: %d", models.ErrInvalidScale, scale)
	}
	if opts.Tiled && opts.PatchSize <= 0 {
		return nil, fmt.Errorf("%w: %d", models.ErrInvalidPatchSize, opts.PatchSize)
	}

	lr, err := codec.ToModelDomain(frame)
	if err != nil {
		return nil, err
	}

	target := frame.Shape.Scaled(scale)
	var sr *models.Tensor
	if opts.Tiled {
		sr, err = inferTiled(ctx, lr, m, target, opts)
	} else {
		sr, err = inferSingle(lr, m, target)
	}
	if err != nil {
		return nil, err
	}
	return codec.FromModelDomain(sr)
}

// inferTiled splits lr into patches, runs them through the model in groups
// and stitches the predictions once all groups are done.
func inferTiled(ctx context.Context, lr *models.Tensor, m model.Model, target models.Shape, opts Options) (*models.Tensor, error) {
	patches, grid, err := tiling.Split(lr, opts.PatchSize, opts.PaddingSize, opts.PadMode)
	if err != nil {
		return nil, err
	}
	obs := opts.Observer
	if obs == nil {
		obs = tiling.NopObserver{}
	}
	obs.PatchesCreated(patches, grid)

	predictions, err := tiling.RunBatches(ctx, m, patches, opts.BatchSize, obs)
	if err != nil {
		return nil, err
	}
	return tiling.Stitch(predictions, grid.Scaled(m.Scale()), target)
}

// inferSingle runs the whole image through the model as a batch of one
func inferSingle(lr *models.Tensor, m model.Model, target models.Shape) (*models.Tensor, error) {
	out, err := m.Predict([]*models.Tensor{lr})
	if err != nil {
		return nil, &models.ModelInferenceError{Group: 0, Start: 0, End: 1, Err: err}
	}
	if len(out) != 1 {
		return nil, &models.ModelInferenceError{
			Group: 0,
			Start: 0,
			End:   1,
			Err:   fmt.Errorf("model returned %d outputs for 1 input", len(out)),
		}
	}
	if out[0] == nil {
		return nil, &models.ShapeMismatchError{Index: -1, Want: target}
	}
	if out[0].Shape != target || len(out[0].Pix) != target.Len() {
		return nil, &models.ShapeMismatchError{Index: -1, Got: out[0].Shape, Want: target}
	}
	return out[0], nil
}
