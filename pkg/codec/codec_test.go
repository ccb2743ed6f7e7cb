package codec

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"srtile/internal/models"
)

// testFrame creates an RGB frame covering every sample value
func testFrame(height, width int) *models.Frame {
	f := models.NewFrame(height, width, 3)
	for i := range f.Pix {
		f.Pix[i] = uint8(i % 256)
	}
	return f
}

// TestRoundTrip verifies that the forward and reverse mappings are inverse
func TestRoundTrip(t *testing.T) {
	f := testFrame(16, 20)
	tensor, err := ToModelDomain(f)
	if err != nil {
		t.Fatalf("ToModelDomain failed: %v", err)
	}
	for i, v := range tensor.Pix {
		if v < 0 || v > 1 {
			t.Fatalf("Sample %d out of range: %v", i, v)
		}
	}

	back, err := FromModelDomain(tensor)
	if err != nil {
		t.Fatalf("FromModelDomain failed: %v", err)
	}
	if back.Shape != f.Shape {
		t.Fatalf("Expected shape %v, got %v", f.Shape, back.Shape)
	}
	for i := range f.Pix {
		if back.Pix[i] != f.Pix[i] {
			t.Fatalf("Sample %d: expected %d, got %d", i, f.Pix[i], back.Pix[i])
		}
	}
}

// TestFromModelDomainClips checks clipping of out of range predictions
func TestFromModelDomainClips(t *testing.T) {
	tensor := models.NewTensor(1, 2, 3)
	copy(tensor.Pix, []float32{-0.5, 1.7, 0.5, 0, 1, 0.998})

	f, err := FromModelDomain(tensor)
	if err != nil {
		t.Fatalf("FromModelDomain failed: %v", err)
	}
	want := []uint8{0, 255, 128, 0, 255, 254}
	for i := range want {
		if f.Pix[i] != want[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, want[i], f.Pix[i])
		}
	}

	// Applying the reverse mapping to its own output changes nothing
	again, err := ToModelDomain(f)
	if err != nil {
		t.Fatalf("ToModelDomain failed: %v", err)
	}
	f2, err := FromModelDomain(again)
	if err != nil {
		t.Fatalf("FromModelDomain failed: %v", err)
	}
	for i := range f.Pix {
		if f2.Pix[i] != f.Pix[i] {
			t.Errorf("Sample %d changed on second pass: %d -> %d", i, f.Pix[i], f2.Pix[i])
		}
	}
}

// TestInvalidChannelCount checks that both directions reject non-RGB input
func TestInvalidChannelCount(t *testing.T) {
	if _, err := ToModelDomain(models.NewFrame(3, 3, 4)); !errors.Is(err, models.ErrInvalidChannelCount) {
		t.Errorf("Expected ErrInvalidChannelCount, got %v", err)
	}
	if _, err := FromModelDomain(models.NewTensor(3, 3, 1)); !errors.Is(err, models.ErrInvalidChannelCount) {
		t.Errorf("Expected ErrInvalidChannelCount, got %v", err)
	}
}

// TestFrameFromImage checks channel detection and pixel order
func TestFrameFromImage(t *testing.T) {
	opaque := image.NewRGBA(image.Rect(0, 0, 3, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			opaque.Set(x, y, color.RGBA{R: uint8(10 * x), G: uint8(10 * y), B: 7, A: 255})
		}
	}
	f := FrameFromImage(opaque)
	if f.Shape != (models.Shape{Height: 2, Width: 3, Channels: 3}) {
		t.Fatalf("Expected shape (2, 3, 3), got %v", f.Shape)
	}
	i := f.Offset(1, 2, 0)
	if f.Pix[i] != 20 || f.Pix[i+1] != 10 || f.Pix[i+2] != 7 {
		t.Errorf("Expected (20, 10, 7) at (1, 2), got %v", f.Pix[i:i+3])
	}

	translucent := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	translucent.Set(0, 0, color.NRGBA{R: 1, G: 2, B: 3, A: 100})
	f = FrameFromImage(translucent)
	if f.Channels != 4 {
		t.Errorf("Expected 4 channels for a translucent image, got %d", f.Channels)
	}

	gray := image.NewGray(image.Rect(0, 0, 2, 2))
	if f := FrameFromImage(gray); f.Channels != 3 {
		t.Errorf("Expected 3 channels for a gray image, got %d", f.Channels)
	}
}

// TestImageConversions converts frames and tensors to images and back
func TestImageConversions(t *testing.T) {
	f := testFrame(4, 5)
	img, err := FrameToImage(f)
	if err != nil {
		t.Fatalf("FrameToImage failed: %v", err)
	}
	back := FrameFromImage(img)
	for i := range f.Pix {
		if back.Pix[i] != f.Pix[i] {
			t.Fatalf("Sample %d: expected %d, got %d", i, f.Pix[i], back.Pix[i])
		}
	}

	tensor, err := ToModelDomain(f)
	if err != nil {
		t.Fatalf("ToModelDomain failed: %v", err)
	}
	img16, err := TensorToImage(tensor)
	if err != nil {
		t.Fatalf("TensorToImage failed: %v", err)
	}
	tensor2 := TensorFromImage(img16)
	for i := range tensor.Pix {
		if d := tensor.Pix[i] - tensor2.Pix[i]; d > 1e-4 || d < -1e-4 {
			t.Fatalf("Sample %d: expected %v, got %v", i, tensor.Pix[i], tensor2.Pix[i])
		}
	}

	if _, err := FrameToImage(models.NewFrame(2, 2, 4)); !errors.Is(err, models.ErrInvalidChannelCount) {
		t.Errorf("Expected ErrInvalidChannelCount, got %v", err)
	}
}

// TestMalformedBuffers rejects pixel buffers that do not match their shape
func TestMalformedBuffers(t *testing.T) {
	long := testFrame(4, 4)
	long.Pix = append(long.Pix, 1, 2, 3)
	if _, err := ToModelDomain(long); err == nil {
		t.Error("Expected an error for a frame with extra samples")
	}
	if _, err := FrameToImage(long); err == nil {
		t.Error("Expected FrameToImage to reject a frame with extra samples")
	}

	short := testFrame(4, 4)
	short.Pix = short.Pix[:10]
	if _, err := ToModelDomain(short); err == nil {
		t.Error("Expected an error for a frame with missing samples")
	}

	tensor := models.NewTensor(4, 4, 3)
	tensor.Pix = tensor.Pix[:47]
	if _, err := FromModelDomain(tensor); err == nil {
		t.Error("Expected an error for a tensor with missing samples")
	}
	if _, err := TensorToImage(tensor); err == nil {
		t.Error("Expected TensorToImage to reject a tensor with missing samples")
	}
}

// TestFrameFromImageFormats checks that the NRGBA, RGBA and YCbCr
// conversions agree with the generic color model conversion
func TestFrameFromImageFormats(t *testing.T) {
	rect := image.Rect(0, 0, 9, 7)

	nrgba := image.NewNRGBA(rect)
	rgba := image.NewRGBA(rect)
	ycbcr := image.NewYCbCr(rect, image.YCbCrSubsampleRatio420)
	for i := range nrgba.Pix {
		nrgba.Pix[i] = uint8(i * 31)
	}
	for y := 0; y < rect.Dy(); y++ {
		for x := 0; x < rect.Dx(); x++ {
			a := uint8(255)
			if (x+y)%3 == 0 {
				a = uint8(40 * y)
			}
			v := uint8(x * 25)
			rgba.SetRGBA(x, y, color.RGBA{R: min(v, a), G: min(uint8(y*30), a), B: a / 2, A: a})
		}
	}
	for i := range ycbcr.Y {
		ycbcr.Y[i] = uint8(i * 13)
	}
	for i := range ycbcr.Cb {
		ycbcr.Cb[i] = uint8(i * 37)
		ycbcr.Cr[i] = uint8(200 - i*11)
	}

	images := map[string]image.Image{
		"nrgba":     nrgba,
		"rgba":      rgba,
		"ycbcr":     ycbcr,
		"nrgba-sub": nrgba.SubImage(image.Rect(2, 3, 8, 7)),
		"rgba-sub":  rgba.SubImage(image.Rect(1, 1, 6, 5)),
		"ycbcr-sub": ycbcr.SubImage(image.Rect(3, 1, 9, 6)),
	}
	for name, img := range images {
		got := FrameFromImage(img)

		channels := 3
		if o, ok := img.(interface{ Opaque() bool }); ok && !o.Opaque() {
			channels = 4
		}
		want := models.NewFrame(img.Bounds().Dy(), img.Bounds().Dx(), channels)
		fromImage(want, img)

		if got.Shape != want.Shape {
			t.Errorf("%s: expected shape %v, got %v", name, want.Shape, got.Shape)
			continue
		}
		for i := range want.Pix {
			if got.Pix[i] != want.Pix[i] {
				t.Errorf("%s: sample %d: expected %d, got %d", name, i, want.Pix[i], got.Pix[i])
				break
			}
		}
	}
}
