package tiling

import (
	"fmt"

	"srtile/internal/models"
)

// Stitch reassembles predictions into one image.
//
// grid is the geometry of the predictions, usually Grid.Scaled applied to
// the grid returned by Split, so its Padding is the scaled context. Each
// prediction loses Padding pixels on every side and the remaining core is
// placed at its row-major position on a grid.Padded canvas. The canvas is
// then cropped from the top-left corner to target.
//
// Every prediction is checked against the grid before anything is placed.
func Stitch(predictions []*models.Tensor, grid Grid, target models.Shape) (*models.Tensor, error) {
	if err := target.CheckRGB(); err != nil {
		return nil, err
	}
	if len(predictions) != grid.Len() {
		return nil, fmt.Errorf("stitch: got %d predictions for a %dx%d grid", len(predictions), grid.Rows, grid.Cols)
	}
	if target.Height > grid.Padded.Height || target.Width > grid.Padded.Width || target.Channels != grid.Padded.Channels {
		return nil, &models.ShapeMismatchError{Index: -1, Got: grid.Padded, Want: target}
	}
	want := grid.PatchShape()
	for i, p := range predictions {
		if p == nil {
			return nil, &models.ShapeMismatchError{Index: i, Want: want}
		}
		if p.Shape != want || len(p.Pix) != want.Len() {
			return nil, &models.ShapeMismatchError{Index: i, Got: p.Shape, Want: want}
		}
	}

	canvas := models.NewTensor(grid.Padded.Height, grid.Padded.Width, grid.Padded.Channels)
	size, pad := grid.PatchSize, grid.Padding
	for i, p := range predictions {
		row, col := grid.Position(i)
		y0, x0 := row*size, col*size
		for y := 0; y < size; y++ {
			copy(canvas.Row(y0+y, x0, x0+size), p.Row(pad+y, pad, pad+size))
		}
	}

	return crop(canvas, target), nil
}

// crop returns the top-left target-sized region of t
func crop(t *models.Tensor, target models.Shape) *models.Tensor {
	if t.Shape == target {
		return t
	}
	out := models.NewTensor(target.Height, target.Width, target.Channels)
	for y := 0; y < target.Height; y++ {
		copy(out.Row(y, 0, target.Width), t.Row(y, 0, target.Width))
	}
	return out
}
