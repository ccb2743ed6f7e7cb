// Package tiling splits model-domain images into overlapping square patches,
// runs a model over them in fixed-size groups and stitches the predictions
// back into one image.
//
// A patch covers a PatchSize x PatchSize cell of the image plus Padding pixels
// of context on every side. The context is borrowed from neighbouring cells,
// or from the fill added around the image, and is discarded again when the
// predictions are stitched, which keeps the model from producing seams at cell
// boundaries.
package tiling

import (
	"fmt"
	"math"

	"srtile/internal/models"
)

// PadMode selects how pixels outside the source image are filled
type PadMode int

const (
	// PadEdge replicates the nearest edge pixel
	PadEdge PadMode = iota
	// PadZero fills with zeros
	PadZero
)

func (m PadMode) String() string {
	switch m {
	case PadEdge:
		return "edge"
	case PadZero:
		return "zero"
	default:
		return fmt.Sprintf("PadMode(%d)", int(m))
	}
}

// ParsePadMode parses "edge" or "zero"
func ParsePadMode(s string) (PadMode, error) {
	switch s {
	case "edge", "":
		return PadEdge, nil
	case "zero":
		return PadZero, nil
	}
	return 0, fmt.Errorf("unknown pad mode %q", s)
}

// Grid describes how an image was divided into patches.
type Grid struct {
	// PatchSize is the side of the core region of each patch
	PatchSize int

	// Padding is the context added on each side of the core region
	Padding int

	// Rows and Cols count the patches along each axis
	Rows int
	Cols int

	// Padded is the image shape after rounding each axis up to a multiple
	// of PatchSize, before the context border is added
	Padded models.Shape
}

// Len returns the number of patches in the grid
func (g Grid) Len() int {
	return g.Rows * g.Cols
}

// PatchSide returns the side of a patch including its context
func (g Grid) PatchSide() int {
	return g.PatchSize + 2*g.Padding
}

// PatchShape returns the shape every patch of the grid has
func (g Grid) PatchShape() models.Shape {
	side := g.PatchSide()
	return models.Shape{Height: side, Width: side, Channels: g.Padded.Channels}
}

// Position returns the grid row and column of patch i in scan order
func (g Grid) Position(i int) (row, col int) {
	return i / g.Cols, i % g.Cols
}

// Scaled returns the geometry of the model outputs for a model that
// upscales each spatial axis by factor.
func (g Grid) Scaled(factor int) Grid {
	return Grid{
		PatchSize: g.PatchSize * factor,
		Padding:   g.Padding * factor,
		Rows:      g.Rows,
		Cols:      g.Cols,
		Padded:    g.Padded.Scaled(factor),
	}
}

// NewGrid computes the grid for an image of the given shape
func NewGrid(shape models.Shape, patchSize, paddingSize int) (Grid, error) {
	if patchSize <= 0 {
		return Grid{}, fmt.Errorf("%w: %d", models.ErrInvalidPatchSize, patchSize)
	}
	if paddingSize < 0 {
		return Grid{}, fmt.Errorf("%w: %d", models.ErrInvalidPaddingSize, paddingSize)
	}
	rows := ceilDiv(shape.Height, patchSize)
	cols := ceilDiv(shape.Width, patchSize)

	// The bordered canvas and every patch must be addressable
	height, ok1 := mulInt(rows, patchSize)
	width, ok2 := mulInt(cols, patchSize)
	canvasH, ok3 := addInt(height, 2*paddingSize)
	canvasW, ok4 := addInt(width, 2*paddingSize)
	side, ok5 := addInt(patchSize, 2*paddingSize)
	area, ok6 := mulInt(canvasH, canvasW)
	_, ok7 := mulInt(area, max(shape.Channels, 1))
	patch, ok8 := mulInt(side, side)
	_, ok9 := mulInt(patch, max(shape.Channels, 1))
	if paddingSize > math.MaxInt/4 || !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6 && ok7 && ok8 && ok9) {
		return Grid{}, fmt.Errorf("%w: %d with padding %d overflows the canvas for %v",
			models.ErrInvalidPatchSize, patchSize, paddingSize, shape)
	}

	return Grid{
		PatchSize: patchSize,
		Padding:   paddingSize,
		Rows:      rows,
		Cols:      cols,
		Padded: models.Shape{
			Height:   height,
			Width:    width,
			Channels: shape.Channels,
		},
	}, nil
}

// Split divides t into overlapping patches in row-major order.
//
// The image is first extended on the bottom and right so that both axes are
// multiples of patchSize, then surrounded by a border of paddingSize pixels.
// Both extensions use mode to fill the new pixels. Each patch is the
// (patchSize + 2*paddingSize) square centred on one grid cell.
func Split(t *models.Tensor, patchSize, paddingSize int, mode PadMode) ([]*models.Tensor, Grid, error) {
	if err := t.CheckRGB(); err != nil {
		return nil, Grid{}, err
	}
	if err := t.Validate(); err != nil {
		return nil, Grid{}, err
	}
	grid, err := NewGrid(t.Shape, patchSize, paddingSize)
	if err != nil {
		return nil, Grid{}, err
	}

	canvas := padCanvas(t, grid, mode)
	side := grid.PatchSide()
	patches := make([]*models.Tensor, 0, grid.Len())
	for row := 0; row < grid.Rows; row++ {
		for col := 0; col < grid.Cols; col++ {
			y0 := row * patchSize
			x0 := col * patchSize
			patch := models.NewTensor(side, side, t.Channels)
			for y := 0; y < side; y++ {
				copy(patch.Row(y, 0, side), canvas.Row(y0+y, x0, x0+side))
			}
			patches = append(patches, patch)
		}
	}
	return patches, grid, nil
}

// padCanvas builds the bordered canvas: the image extended to grid.Padded and
// then surrounded by grid.Padding pixels on every side.
func padCanvas(t *models.Tensor, grid Grid, mode PadMode) *models.Tensor {
	pad := grid.Padding
	height := grid.Padded.Height + 2*pad
	width := grid.Padded.Width + 2*pad
	canvas := models.NewTensor(height, width, t.Channels)

	for y := 0; y < height; y++ {
		sy := y - pad
		if sy < 0 || sy >= t.Height {
			if mode == PadZero {
				continue
			}
			sy = clamp(sy, 0, t.Height-1)
		}
		dst := canvas.Row(y, 0, width)

		// core columns copy straight from the source row
		copy(dst[pad*t.Channels:], t.Row(sy, 0, t.Width))
		if mode == PadZero {
			continue
		}
		left := t.Row(sy, 0, 1)
		right := t.Row(sy, t.Width-1, t.Width)
		for x := 0; x < pad; x++ {
			copy(dst[x*t.Channels:], left)
		}
		for x := pad + t.Width; x < width; x++ {
			copy(dst[x*t.Channels:], right)
		}
	}
	return canvas
}

func ceilDiv(a, b int) int {
	if a <= 0 {
		return 0
	}
	return (a-1)/b + 1
}

// mulInt multiplies non-negative a and b, reporting false on overflow
func mulInt(a, b int) (int, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if a > math.MaxInt/b {
		return 0, false
	}
	return a * b, true
}

// addInt adds non-negative a and b, reporting false on overflow
func addInt(a, b int) (int, bool) {
	if a > math.MaxInt-b {
		return 0, false
	}
	return a + b, true
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
