package frame

import (
	"errors"
	"testing"
)

func TestNew(t *testing.T) {
	f := New(4, 3)
	if f.Width != 4 || f.Height != 3 {
		t.Errorf("dimensions = %dx%d; want 4x3", f.Width, f.Height)
	}
	if got := len(f.Pix); got != 4*3*BytesPerPixel {
		t.Errorf("len(Pix) = %d; want %d", got, 4*3*BytesPerPixel)
	}
	if err := f.Validate(); err != nil {
		t.Errorf("Validate() = %v; want nil", err)
	}
}

func TestFromBytes(t *testing.T) {
	pix := make([]byte, 2*2*BytesPerPixel)
	f, err := FromBytes(pix, 2, 2)
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if f.Width != 2 || f.Height != 2 {
		t.Errorf("dimensions = %dx%d; want 2x2", f.Width, f.Height)
	}

	if _, err := FromBytes(make([]byte, 5), 2, 2); !errors.Is(err, ErrBufferLength) {
		t.Errorf("short buffer error = %v; want ErrBufferLength", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		f    *Frame
	}{
		{"nil frame", nil},
		{"zero width", &Frame{Width: 0, Height: 2, Pix: []byte{}}},
		{"negative height", &Frame{Width: 2, Height: -1, Pix: []byte{}}},
		{"short buffer", &Frame{Width: 2, Height: 2, Pix: make([]byte, 3)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.f.Validate(); !errors.Is(err, ErrBufferLength) {
				t.Errorf("Validate() = %v; want ErrBufferLength", err)
			}
		})
	}
}

func TestRGBRoundTrip(t *testing.T) {
	f := New(3, 2)
	f.SetRGB(2, 1, 10, 20, 30)
	r, g, b := f.RGB(2, 1)
	if r != 10 || g != 20 || b != 30 {
		t.Errorf("RGB(2,1) = %d,%d,%d; want 10,20,30", r, g, b)
	}
	// Neighbors untouched.
	if r, g, b := f.RGB(1, 1); r != 0 || g != 0 || b != 0 {
		t.Errorf("RGB(1,1) = %d,%d,%d; want zeros", r, g, b)
	}
}

func TestClone(t *testing.T) {
	f := New(2, 2)
	f.SetRGB(0, 0, 1, 2, 3)
	c := f.Clone()
	c.SetRGB(0, 0, 9, 9, 9)
	if r, _, _ := f.RGB(0, 0); r != 1 {
		t.Error("mutating the clone changed the original")
	}
}

func TestDepthMapValidate(t *testing.T) {
	d := NewDepthMap(4, 2)
	if err := d.Validate(4, 2); err != nil {
		t.Errorf("Validate(4,2) = %v; want nil", err)
	}
	if err := d.Validate(3, 2); !errors.Is(err, ErrBufferLength) {
		t.Errorf("Validate(3,2) = %v; want ErrBufferLength", err)
	}
}

func TestDepthMapClamp(t *testing.T) {
	d := DepthMap{-0.5, 0, 0.5, 1, 1.5}
	d.Clamp()
	want := DepthMap{0, 0, 0.5, 1, 1}
	for i := range want {
		if d[i] != want[i] {
			t.Errorf("d[%d] = %v; want %v", i, d[i], want[i])
		}
	}
}
