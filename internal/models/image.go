package models

import "fmt"

// RGBChannels is the only channel count the pipeline accepts.
const RGBChannels = 3

// Shape describes an image array laid out as (height, width, channel)
type Shape struct {
	Height   int
	Width    int
	Channels int
}

// Len returns the number of samples an array of this shape holds
func (s Shape) Len() int {
	return s.Height * s.Width * s.Channels
}

// Scaled multiplies both spatial axes by factor. The channel axis is unchanged.
func (s Shape) Scaled(factor int) Shape {
	return Shape{Height: s.Height * factor, Width: s.Width * factor, Channels: s.Channels}
}

// LongSide returns the longer of the two spatial axes
func (s Shape) LongSide() int {
	return max(s.Height, s.Width)
}

func (s Shape) String() string {
	return fmt.Sprintf("(%d, %d, %d)", s.Height, s.Width, s.Channels)
}

// CheckRGB returns ErrInvalidChannelCount unless the shape has exactly 3 channels
func (s Shape) CheckRGB() error {
	if s.Channels != RGBChannels {
		return fmt.Errorf("%w: got %d channels, want %d", ErrInvalidChannelCount, s.Channels, RGBChannels)
	}
	return nil
}

// Frame is an image in the file/display domain: 8-bit samples stored
// row-major in (height, width, channel) order.
type Frame struct {
	Shape
	Pix []uint8
}

// NewFrame allocates a zeroed frame
func NewFrame(height, width, channels int) *Frame {
	s := Shape{Height: height, Width: width, Channels: channels}
	return &Frame{Shape: s, Pix: make([]uint8, s.Len())}
}

// Offset returns the index of sample (y, x, c) in Pix
func (f *Frame) Offset(y, x, c int) int {
	return (y*f.Width+x)*f.Channels + c
}

// Validate checks that the pixel buffer length matches the shape
func (f *Frame) Validate() error {
	if f.Height <= 0 || f.Width <= 0 || f.Channels <= 0 {
		return fmt.Errorf("frame shape %v must be positive", f.Shape)
	}
	if len(f.Pix) != f.Len() {
		return fmt.Errorf("frame data length %d != expected %d for shape %v", len(f.Pix), f.Len(), f.Shape)
	}
	return nil
}

// Tensor is an image in the model domain. Samples are float32, nominally in
// [0, 1], with the same (height, width, channel) row-major layout as Frame.
type Tensor struct {
	Shape
	Pix []float32
}

// NewTensor allocates a zeroed tensor
func NewTensor(height, width, channels int) *Tensor {
	s := Shape{Height: height, Width: width, Channels: channels}
	return &Tensor{Shape: s, Pix: make([]float32, s.Len())}
}

// Offset returns the index of sample (y, x, c) in Pix
func (t *Tensor) Offset(y, x, c int) int {
	return (y*t.Width+x)*t.Channels + c
}

// Row returns the samples of row y, columns [x0, x1), all channels
func (t *Tensor) Row(y, x0, x1 int) []float32 {
	return t.Pix[t.Offset(y, x0, 0):t.Offset(y, x1, 0)]
}

// Clone returns a deep copy of the tensor
func (t *Tensor) Clone() *Tensor {
	pix := make([]float32, len(t.Pix))
	copy(pix, t.Pix)
	return &Tensor{Shape: t.Shape, Pix: pix}
}

// Validate checks that the pixel buffer length matches the shape
func (t *Tensor) Validate() error {
	if t.Height <= 0 || t.Width <= 0 || t.Channels <= 0 {
		return fmt.Errorf("tensor shape %v must be positive", t.Shape)
	}
	if len(t.Pix) != t.Len() {
		return fmt.Errorf("tensor data length %d != expected %d for shape %v", len(t.Pix), t.Len(), t.Shape)
	}
	return nil
}
