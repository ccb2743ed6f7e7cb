// Package codec converts images between the file/display domain (8-bit
// samples) and the model domain (float32 samples in [0, 1]).
package codec

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"srtile/internal/models"
)

// maxSample is the largest value of an 8-bit sample
const maxSample = 255.0

// ToModelDomain maps 8-bit samples into [0, 1]. The image is not resized.
func ToModelDomain(f *models.Frame) (*models.Tensor, error) {
	if err := f.CheckRGB(); err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	t := models.NewTensor(f.Height, f.Width, f.Channels)
	for i, v := range f.Pix {
		t.Pix[i] = float32(v) / maxSample
	}
	return t, nil
}

// FromModelDomain clips samples to [0, 1] and rounds them back to 8 bits.
// Applying it to values that are already in range reproduces them exactly,
// so FromModelDomain(ToModelDomain(f)) == f.
func FromModelDomain(t *models.Tensor) (*models.Frame, error) {
	if err := t.CheckRGB(); err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	f := models.NewFrame(t.Height, t.Width, t.Channels)
	for i, v := range t.Pix {
		f.Pix[i] = toSample(v)
	}
	return f, nil
}

// toSample clips a model-domain value and converts it to an 8-bit sample
func toSample(v float32) uint8 {
	// NaN compares false against both bounds; map it to black
	if !(v > 0) {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(math.Round(float64(v) * maxSample))
}

// FrameFromImage converts a decoded image into a frame. Opaque images yield
// three channels. Images with transparency keep their alpha channel as a
// fourth channel, which the pipeline rejects.
func FrameFromImage(img image.Image) *models.Frame {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	channels := models.RGBChannels
	if o, ok := img.(interface{ Opaque() bool }); ok && !o.Opaque() {
		channels = 4
	}

	f := models.NewFrame(height, width, channels)
	switch src := img.(type) {
	case *image.NRGBA:
		fromNRGBA(f, src)
	case *image.RGBA:
		fromRGBA(f, src)
	case *image.YCbCr:
		fromYCbCr(f, src)
	default:
		fromImage(f, img)
	}
	return f
}

// put stores one pixel, dropping alpha unless the frame has a fourth channel
func put(f *models.Frame, y, x int, r, g, b, a uint8) {
	i := f.Offset(y, x, 0)
	f.Pix[i] = r
	f.Pix[i+1] = g
	f.Pix[i+2] = b
	if f.Channels == 4 {
		f.Pix[i+3] = a
	}
}

func fromNRGBA(f *models.Frame, src *image.NRGBA) {
	b := src.Bounds()
	for y := 0; y < f.Height; y++ {
		row := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
		for x := 0; x < f.Width; x++ {
			s := row[4*x : 4*x+4]
			put(f, y, x, s[0], s[1], s[2], s[3])
		}
	}
}

// fromRGBA copies opaque pixels directly. Translucent ones are premultiplied
// and go through the NRGBA color model.
func fromRGBA(f *models.Frame, src *image.RGBA) {
	b := src.Bounds()
	for y := 0; y < f.Height; y++ {
		row := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
		for x := 0; x < f.Width; x++ {
			s := row[4*x : 4*x+4]
			if s[3] == 0xff {
				put(f, y, x, s[0], s[1], s[2], 0xff)
				continue
			}
			c := color.NRGBAModel.Convert(color.RGBA{R: s[0], G: s[1], B: s[2], A: s[3]}).(color.NRGBA)
			put(f, y, x, c.R, c.G, c.B, c.A)
		}
	}
}

func fromYCbCr(f *models.Frame, src *image.YCbCr) {
	b := src.Bounds()
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			yi := src.YOffset(b.Min.X+x, b.Min.Y+y)
			ci := src.COffset(b.Min.X+x, b.Min.Y+y)
			r, g, bl := color.YCbCrToRGB(src.Y[yi], src.Cb[ci], src.Cr[ci])
			put(f, y, x, r, g, bl, 0xff)
		}
	}
}

func fromImage(f *models.Frame, img image.Image) {
	b := img.Bounds()
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			put(f, y, x, c.R, c.G, c.B, c.A)
		}
	}
}

// FrameToImage converts an RGB frame into an opaque NRGBA image
func FrameToImage(f *models.Frame) (*image.NRGBA, error) {
	if err := f.CheckRGB(); err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	img := image.NewNRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			src := f.Offset(y, x, 0)
			dst := img.PixOffset(x, y)
			img.Pix[dst] = f.Pix[src]
			img.Pix[dst+1] = f.Pix[src+1]
			img.Pix[dst+2] = f.Pix[src+2]
			img.Pix[dst+3] = 0xff
		}
	}
	return img, nil
}

// TensorToImage renders a model-domain tensor as a 16-bit image, clipping to
// [0, 1]. The extra precision keeps resampling kernels from quantizing
// intermediate values to 8 bits.
func TensorToImage(t *models.Tensor) (*image.RGBA64, error) {
	if err := t.CheckRGB(); err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	img := image.NewRGBA64(image.Rect(0, 0, t.Width, t.Height))
	for y := 0; y < t.Height; y++ {
		for x := 0; x < t.Width; x++ {
			i := t.Offset(y, x, 0)
			img.SetRGBA64(x, y, color.RGBA64{
				R: toSample16(t.Pix[i]),
				G: toSample16(t.Pix[i+1]),
				B: toSample16(t.Pix[i+2]),
				A: 0xffff,
			})
		}
	}
	return img, nil
}

// TensorFromImage converts any image into a 3-channel model-domain tensor
func TensorFromImage(img image.Image) *models.Tensor {
	bounds := img.Bounds()
	t := models.NewTensor(bounds.Dy(), bounds.Dx(), models.RGBChannels)
	for y := 0; y < t.Height; y++ {
		for x := 0; x < t.Width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			i := t.Offset(y, x, 0)
			t.Pix[i] = float32(r) / 0xffff
			t.Pix[i+1] = float32(g) / 0xffff
			t.Pix[i+2] = float32(b) / 0xffff
		}
	}
	return t
}

func toSample16(v float32) uint16 {
	if !(v > 0) {
		return 0
	}
	if v >= 1 {
		return 0xffff
	}
	return uint16(math.Round(float64(v) * 0xffff))
}

// Describe returns a short human readable summary of a frame
func Describe(f *models.Frame) string {
	return fmt.Sprintf("%dx%d, %d channels", f.Width, f.Height, f.Channels)
}
