package model

import (
	"fmt"
	"image"
	"sort"

	"golang.org/x/image/draw"

	"srtile/internal/models"
	"srtile/pkg/codec"
)

// filters maps the names accepted by NewInterpolator to resampling kernels
var filters = map[string]draw.Interpolator{
	"nearest":        draw.NearestNeighbor,
	"approxbilinear": draw.ApproxBiLinear,
	"bilinear":       draw.BiLinear,
	"catmullrom":     draw.CatmullRom,
}

// Filters returns the names of the available resampling kernels
func Filters() []string {
	names := make([]string, 0, len(filters))
	for name := range filters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Interpolator upsamples images with a fixed resampling kernel. It needs no
// weights and is deterministic, which makes it a baseline to compare learned
// models against and a stand-in when none is available.
type Interpolator struct {
	filter string
	kernel draw.Interpolator
	scale  int
}

// NewInterpolator creates an interpolating model for the named filter
func NewInterpolator(filter string, scale int) (*Interpolator, error) {
	if scale <= 0 {
		return nil, fmt.Errorf("%w: %d", models.ErrInvalidScale, scale)
	}
	kernel, ok := filters[filter]
	if !ok {
		return nil, fmt.Errorf("unknown filter %q (available: %v)", filter, Filters())
	}
	return &Interpolator{filter: filter, kernel: kernel, scale: scale}, nil
}

// Scale returns the upscaling factor
func (m *Interpolator) Scale() int {
	return m.scale
}

// Name returns "interp"
func (m *Interpolator) Name() string {
	return "interp"
}

// Params reports the filter and the scale factor
func (m *Interpolator) Params() map[string]any {
	return map[string]any{"filter": m.filter, "x": m.scale}
}

// Predict upsamples every tensor of the batch
func (m *Interpolator) Predict(batch []*models.Tensor) ([]*models.Tensor, error) {
	out := make([]*models.Tensor, len(batch))
	for i, t := range batch {
		src, err := codec.TensorToImage(t)
		if err != nil {
			return nil, fmt.Errorf("batch item %d: %w", i, err)
		}
		dst := image.NewRGBA64(image.Rect(0, 0, t.Width*m.scale, t.Height*m.scale))
		m.kernel.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
		out[i] = codec.TensorFromImage(dst)
	}
	return out, nil
}
