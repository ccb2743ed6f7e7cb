package inference

import (
	"context"
	"errors"
	"math"
	"testing"

	"srtile/internal/models"
	"srtile/pkg/model"
	"srtile/pkg/tiling"
)

// doublingModel upscales by pixel replication and counts its calls
type doublingModel struct {
	scale   int
	calls   int
	largest int
}

func (m *doublingModel) Scale() int { return m.scale }

func (m *doublingModel) Predict(batch []*models.Tensor) ([]*models.Tensor, error) {
	m.calls++
	m.largest = max(m.largest, len(batch))
	out := make([]*models.Tensor, len(batch))
	for i, t := range batch {
		o := models.NewTensor(t.Height*m.scale, t.Width*m.scale, t.Channels)
		for y := 0; y < o.Height; y++ {
			for x := 0; x < o.Width; x++ {
				copy(o.Row(y, x, x+1), t.Row(y/m.scale, x/m.scale, x/m.scale+1))
			}
		}
		out[i] = o
	}
	return out, nil
}

// brokenModel returns outputs of a fixed wrong size
type brokenModel struct{}

func (brokenModel) Scale() int { return 2 }
func (brokenModel) Predict(batch []*models.Tensor) ([]*models.Tensor, error) {
	out := make([]*models.Tensor, len(batch))
	for i := range batch {
		out[i] = models.NewTensor(5, 5, 3)
	}
	return out, nil
}

type zeroScaleModel struct{}

func (zeroScaleModel) Scale() int { return 0 }
func (zeroScaleModel) Predict(batch []*models.Tensor) ([]*models.Tensor, error) {
	return batch, nil
}

func testFrame(height, width int) *models.Frame {
	f := models.NewFrame(height, width, 3)
	for i := range f.Pix {
		f.Pix[i] = uint8((i * 7) % 256)
	}
	return f
}

func tiledOptions(patch, batch, pad int) Options {
	return Options{Tiled: true, PatchSize: patch, BatchSize: batch, PaddingSize: pad, PadMode: tiling.PadEdge}
}

// TestScenarioA runs a 512x512 image through 256 pixel tiles at scale 2
func TestScenarioA(t *testing.T) {
	m := &doublingModel{scale: 2}
	out, err := Infer(context.Background(), testFrame(512, 512), m, tiledOptions(256, 10, 2))
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	want := models.Shape{Height: 1024, Width: 1024, Channels: 3}
	if out.Shape != want {
		t.Errorf("Expected shape %v, got %v", want, out.Shape)
	}
	if m.calls != 1 {
		t.Errorf("Expected 4 patches in a single call, got %d calls", m.calls)
	}
}

// TestScenarioB rejects a 4-channel image before any patch is created
func TestScenarioB(t *testing.T) {
	m := &doublingModel{scale: 2}
	_, err := Infer(context.Background(), models.NewFrame(3, 3, 4), m, tiledOptions(2, 1, 1))
	if !errors.Is(err, models.ErrInvalidChannelCount) {
		t.Errorf("Expected ErrInvalidChannelCount, got %v", err)
	}
	if m.calls != 0 {
		t.Errorf("Expected no model calls, got %d", m.calls)
	}
}

// TestScenarioC checks padding and cropping of a 300x300 image
func TestScenarioC(t *testing.T) {
	m := &doublingModel{scale: 2}
	in := testFrame(300, 300)
	out, err := Infer(context.Background(), in, m, tiledOptions(256, 3, 2))
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	want := models.Shape{Height: 600, Width: 600, Channels: 3}
	if out.Shape != want {
		t.Fatalf("Expected shape %v, got %v", want, out.Shape)
	}
	if m.calls != 2 || m.largest != 3 {
		t.Errorf("Expected 2 calls with at most 3 patches, got %d calls, largest %d", m.calls, m.largest)
	}
	for y := 0; y < out.Height; y++ {
		for x := 0; x < out.Width; x++ {
			for c := 0; c < 3; c++ {
				if out.Pix[out.Offset(y, x, c)] != in.Pix[in.Offset(y/2, x/2, c)] {
					t.Fatalf("Pixel (%d, %d) channel %d differs from the replicated input", y, x, c)
				}
			}
		}
	}
}

// TestScenarioD rejects a zero patch size when tiling is requested
func TestScenarioD(t *testing.T) {
	_, err := Infer(context.Background(), testFrame(8, 8), &doublingModel{scale: 2}, tiledOptions(0, 10, 2))
	if !errors.Is(err, models.ErrInvalidPatchSize) {
		t.Errorf("Expected ErrInvalidPatchSize, got %v", err)
	}
}

// TestTargetShape checks the output shape over a range of geometries
func TestTargetShape(t *testing.T) {
	for _, scale := range []int{1, 2, 3} {
		for _, patch := range []int{4, 7, 16, 64} {
			for _, pad := range []int{0, 2, 5} {
				in := testFrame(23, 41)
				out, err := Infer(context.Background(), in, &doublingModel{scale: scale}, tiledOptions(patch, 4, pad))
				if err != nil {
					t.Fatalf("scale %d patch %d pad %d: %v", scale, patch, pad, err)
				}
				want := in.Shape.Scaled(scale)
				if out.Shape != want {
					t.Errorf("scale %d patch %d pad %d: expected %v, got %v", scale, patch, pad, want, out.Shape)
				}
			}
		}
	}
}

// TestSinglePass runs the whole image in one model call
func TestSinglePass(t *testing.T) {
	m := &doublingModel{scale: 3}
	out, err := Infer(context.Background(), testFrame(10, 12), m, Options{})
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	if out.Shape != (models.Shape{Height: 30, Width: 36, Channels: 3}) {
		t.Errorf("Expected (30, 36, 3), got %v", out.Shape)
	}
	if m.calls != 1 || m.largest != 1 {
		t.Errorf("Expected one call with a batch of one, got %d calls, largest %d", m.calls, m.largest)
	}
}

// TestTiledMatchesSinglePass compares both paths with a nearest-neighbour model
func TestTiledMatchesSinglePass(t *testing.T) {
	m, err := model.NewInterpolator("nearest", 2)
	if err != nil {
		t.Fatalf("NewInterpolator failed: %v", err)
	}
	in := testFrame(45, 70)

	single, err := Infer(context.Background(), in, m, Options{})
	if err != nil {
		t.Fatalf("single pass failed: %v", err)
	}
	tiled, err := Infer(context.Background(), in, m, tiledOptions(16, 5, 2))
	if err != nil {
		t.Fatalf("tiled pass failed: %v", err)
	}
	if single.Shape != tiled.Shape {
		t.Fatalf("Shapes differ: %v vs %v", single.Shape, tiled.Shape)
	}
	for i := range single.Pix {
		if single.Pix[i] != tiled.Pix[i] {
			t.Fatalf("Sample %d differs: single %d, tiled %d", i, single.Pix[i], tiled.Pix[i])
		}
	}
}

// TestShapeMismatch rejects model outputs of the wrong size on both paths
func TestShapeMismatch(t *testing.T) {
	var mismatch *models.ShapeMismatchError
	_, err := Infer(context.Background(), testFrame(8, 8), brokenModel{}, tiledOptions(4, 2, 1))
	if !errors.As(err, &mismatch) {
		t.Errorf("Expected ShapeMismatchError on the tiled path, got %v", err)
	}
	_, err = Infer(context.Background(), testFrame(8, 8), brokenModel{}, Options{})
	if !errors.As(err, &mismatch) {
		t.Errorf("Expected ShapeMismatchError on the single pass, got %v", err)
	}
}

// TestMalformedFrame rejects frames whose samples do not match their shape
func TestMalformedFrame(t *testing.T) {
	long := testFrame(4, 4)
	long.Pix = append(long.Pix, 1, 2, 3)
	short := testFrame(4, 4)
	short.Pix = short.Pix[:10]

	for name, frame := range map[string]*models.Frame{"long": long, "short": short} {
		for _, opts := range []Options{{}, tiledOptions(2, 2, 1)} {
			m := &doublingModel{scale: 2}
			if _, err := Infer(context.Background(), frame, m, opts); err == nil {
				t.Errorf("%s frame (tiled=%v): expected an error", name, opts.Tiled)
			}
			if m.calls != 0 {
				t.Errorf("%s frame (tiled=%v): model called %d times", name, opts.Tiled, m.calls)
			}
		}
	}
}

// TestOversizedPatch rejects patch sizes whose canvas cannot be addressed
func TestOversizedPatch(t *testing.T) {
	m := &doublingModel{scale: 2}
	_, err := Infer(context.Background(), testFrame(10, 10), m, tiledOptions(math.MaxInt, 1, 2))
	if !errors.Is(err, models.ErrInvalidPatchSize) {
		t.Errorf("Expected ErrInvalidPatchSize, got %v", err)
	}
	if m.calls != 0 {
		t.Errorf("Expected no model call, got %d", m.calls)
	}
}

// TestInvalidScale rejects models without a positive scale
func TestInvalidScale(t *testing.T) {
	_, err := Infer(context.Background(), testFrame(8, 8), zeroScaleModel{}, Options{})
	if !errors.Is(err, models.ErrInvalidScale) {
		t.Errorf("Expected ErrInvalidScale, got %v", err)
	}
}

// TestOptionsFor applies the default policy
func TestOptionsFor(t *testing.T) {
	base := DefaultOptions()
	small := OptionsFor(tiling.DefaultPolicy(), models.Shape{Height: 800, Width: 600, Channels: 3}, base)
	if small.Tiled {
		t.Error("Expected an 800x600 image to be processed in a single pass")
	}
	large := OptionsFor(tiling.DefaultPolicy(), models.Shape{Height: 800, Width: 2000, Channels: 3}, base)
	if !large.Tiled || large.PatchSize != tiling.DefaultPatchSize {
		t.Errorf("Expected tiling with patch size %d, got %+v", tiling.DefaultPatchSize, large)
	}
	if large.BatchSize != 10 || large.PaddingSize != 2 {
		t.Errorf("Expected batch 10 and padding 2, got %d and %d", large.BatchSize, large.PaddingSize)
	}
}
