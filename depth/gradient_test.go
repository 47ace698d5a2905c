package depth

import (
	"errors"
	"math"
	"testing"

	"github.com/stevecastle/yoro/frame"
)

func TestGradientRange(t *testing.T) {
	f := frame.New(16, 16)
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			// Sharp vertical edge in the middle.
			v := byte(0)
			if x >= 8 {
				v = 255
			}
			f.SetRGB(x, y, v, v, v)
		}
	}

	g := NewGradient()
	d, err := g.EstimateDepth(f)
	if err != nil {
		t.Fatalf("EstimateDepth: %v", err)
	}
	if err := d.Validate(16, 16); err != nil {
		t.Fatalf("depth map dimensions: %v", err)
	}
	for i, v := range d {
		if math.IsNaN(float64(v)) {
			t.Fatalf("NaN at index %d", i)
		}
		if v < gradientFloor || v > 1 {
			t.Fatalf("value %v at index %d outside [%v, 1]", v, i, gradientFloor)
		}
	}
}

func TestGradientFlatImage(t *testing.T) {
	// A flat image has no gradients; every interior pixel computes 1 and
	// the blur keeps the map near 1.
	f := frame.New(8, 8)
	for i := range f.Pix {
		f.Pix[i] = 128
	}

	d, err := NewGradient().EstimateDepth(f)
	if err != nil {
		t.Fatalf("EstimateDepth: %v", err)
	}
	center := d[4*8+4]
	if math.Abs(float64(center-1)) > 1e-5 {
		t.Errorf("flat image center depth = %v; want 1", center)
	}
}

func TestGradientEdgesAreCloser(t *testing.T) {
	f := frame.New(16, 16)
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			v := byte(0)
			if x >= 8 {
				v = 255
			}
			f.SetRGB(x, y, v, v, v)
		}
	}

	d, err := NewGradient().EstimateDepth(f)
	if err != nil {
		t.Fatalf("EstimateDepth: %v", err)
	}
	edge := d[8*16+8]
	flat := d[8*16+2]
	if edge >= flat {
		t.Errorf("edge depth %v not closer than flat depth %v", edge, flat)
	}
}

func TestGradientTinyImage(t *testing.T) {
	// Too small for an interior; the map is flat at the floor before the
	// blur, so it stays uniform.
	f := frame.New(2, 2)
	d, err := NewGradient().EstimateDepth(f)
	if err != nil {
		t.Fatalf("EstimateDepth: %v", err)
	}
	for i, v := range d {
		if math.Abs(float64(v-gradientFloor)) > 1e-5 {
			t.Errorf("d[%d] = %v; want %v", i, v, gradientFloor)
		}
	}
}

func TestGradientRejectsInvalidFrame(t *testing.T) {
	bad := &frame.Frame{Width: 4, Height: 4, Pix: make([]byte, 5)}
	_, err := NewGradient().EstimateDepth(bad)
	var ee *EstimationError
	if !errors.As(err, &ee) {
		t.Fatalf("error = %v; want *EstimationError", err)
	}
	if !errors.Is(err, frame.ErrBufferLength) {
		t.Errorf("error does not wrap ErrBufferLength: %v", err)
	}
}

func TestOpenWithoutModelPath(t *testing.T) {
	src := Open(ModelOptions{})
	defer src.Close()
	if _, ok := src.(*Gradient); !ok {
		t.Fatalf("Open with no model path = %T; want *Gradient", src)
	}
}
