// Package frame holds the in-memory pixel types shared by the depth
// estimators and the reprojection engine: a tightly packed RGB frame and a
// normalized per-pixel depth map.
package frame

import (
	"errors"
	"fmt"
)

// BytesPerPixel is the size of one packed RGB pixel.
const BytesPerPixel = 3

// ErrBufferLength indicates a pixel or depth buffer whose length does not
// match the stated dimensions.
var ErrBufferLength = errors.New("buffer length does not match dimensions")

// Frame is a width x height RGB image, row-major, 3 bytes per pixel,
// tightly packed. Transforms never mutate a Frame in place; they allocate a
// new one.
type Frame struct {
	Width  int
	Height int
	Pix    []byte
}

// New returns a zero-filled frame of the given dimensions.
func New(width, height int) *Frame {
	return &Frame{
		Width:  width,
		Height: height,
		Pix:    make([]byte, width*height*BytesPerPixel),
	}
}

// FromBytes wraps an existing packed RGB buffer. The buffer length must be
// exactly width*height*3.
func FromBytes(pix []byte, width, height int) (*Frame, error) {
	f := &Frame{Width: width, Height: height, Pix: pix}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Validate checks that the pixel buffer matches the frame dimensions.
func (f *Frame) Validate() error {
	if f == nil {
		return fmt.Errorf("frame: nil frame: %w", ErrBufferLength)
	}
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("frame: invalid dimensions %dx%d: %w", f.Width, f.Height, ErrBufferLength)
	}
	want := f.Width * f.Height * BytesPerPixel
	if len(f.Pix) != want {
		return fmt.Errorf("frame: pixel buffer is %d bytes, want %d for %dx%d: %w",
			len(f.Pix), want, f.Width, f.Height, ErrBufferLength)
	}
	return nil
}

// RGB returns the pixel at (x, y). The caller is responsible for bounds.
func (f *Frame) RGB(x, y int) (r, g, b byte) {
	i := (y*f.Width + x) * BytesPerPixel
	return f.Pix[i], f.Pix[i+1], f.Pix[i+2]
}

// SetRGB writes the pixel at (x, y). The caller is responsible for bounds.
func (f *Frame) SetRGB(x, y int, r, g, b byte) {
	i := (y*f.Width + x) * BytesPerPixel
	f.Pix[i] = r
	f.Pix[i+1] = g
	f.Pix[i+2] = b
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	pix := make([]byte, len(f.Pix))
	copy(pix, f.Pix)
	return &Frame{Width: f.Width, Height: f.Height, Pix: pix}
}

// DepthMap is a width x height field of normalized depth values in [0, 1],
// one per pixel, row-major. Lower values are farther from the camera.
type DepthMap []float32

// NewDepthMap returns a zero-filled depth map for the given dimensions.
func NewDepthMap(width, height int) DepthMap {
	return make(DepthMap, width*height)
}

// Validate checks that the depth map length matches the dimensions.
func (d DepthMap) Validate(width, height int) error {
	if len(d) != width*height {
		return fmt.Errorf("frame: depth map is %d values, want %d for %dx%d: %w",
			len(d), width*height, width, height, ErrBufferLength)
	}
	return nil
}

// Clamp forces every value into [0, 1] in place and returns the map.
// Producers call this before handing a map to the reprojection engine.
func (d DepthMap) Clamp() DepthMap {
	for i, v := range d {
		if v < 0 {
			d[i] = 0
		} else if v > 1 {
			d[i] = 1
		}
	}
	return d
}
