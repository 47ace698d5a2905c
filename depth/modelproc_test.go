package depth

import (
	"math"
	"testing"

	"github.com/stevecastle/yoro/frame"
)

func TestApplyDefaults(t *testing.T) {
	var o ModelOptions
	o.applyDefaults()
	if o.InputSize != 518 {
		t.Errorf("InputSize = %d; want 518", o.InputSize)
	}
	if o.InputName != "image" || o.OutputName != "depth" {
		t.Errorf("tensor names = %q/%q; want image/depth", o.InputName, o.OutputName)
	}

	o = ModelOptions{InputSize: 256, InputName: "in", OutputName: "out"}
	o.applyDefaults()
	if o.InputSize != 256 || o.InputName != "in" || o.OutputName != "out" {
		t.Errorf("applyDefaults overwrote explicit options: %+v", o)
	}
}

func TestNormalizeMinMax(t *testing.T) {
	d := []float32{2, 4, 6}
	normalizeMinMax(d)
	want := []float32{0, 0.5, 1}
	for i := range want {
		if math.Abs(float64(d[i]-want[i])) > 1e-6 {
			t.Errorf("d[%d] = %v; want %v", i, d[i], want[i])
		}
	}
}

func TestNormalizeMinMaxConstant(t *testing.T) {
	d := []float32{3, 3, 3}
	normalizeMinMax(d)
	for i, v := range d {
		if v != 0 {
			t.Errorf("d[%d] = %v; want 0", i, v)
		}
	}
}

func TestNormalizeMinMaxEmpty(t *testing.T) {
	normalizeMinMax(nil) // must not panic
}

func TestNormalizeMinMaxNegative(t *testing.T) {
	d := []float32{-1, 0, 1}
	normalizeMinMax(d)
	want := []float32{0, 0.5, 1}
	for i := range want {
		if math.Abs(float64(d[i]-want[i])) > 1e-6 {
			t.Errorf("d[%d] = %v; want %v", i, d[i], want[i])
		}
	}
}

func TestResampleBilinearIdentity(t *testing.T) {
	src := []float32{0.1, 0.2, 0.3, 0.4}
	got := resampleBilinear(src, 2, 2, 2, 2)
	for i := range src {
		if got[i] != src[i] {
			t.Errorf("got[%d] = %v; want %v", i, got[i], src[i])
		}
	}
}

func TestResampleBilinearUpscale(t *testing.T) {
	src := []float32{0, 1}
	got := resampleBilinear(src, 2, 1, 4, 1)
	if len(got) != 4 {
		t.Fatalf("len = %d; want 4", len(got))
	}
	// Values must be monotonic between the two source samples and stay in
	// range.
	for i := 0; i < 3; i++ {
		if got[i] > got[i+1] {
			t.Errorf("not monotonic: got[%d]=%v > got[%d]=%v", i, got[i], i+1, got[i+1])
		}
	}
	if got[0] != 0 || got[3] != 1 {
		t.Errorf("edges = %v, %v; want 0, 1", got[0], got[3])
	}
	if math.Abs(float64(got[1]-0.25)) > 1e-6 || math.Abs(float64(got[2]-0.75)) > 1e-6 {
		t.Errorf("interior = %v, %v; want 0.25, 0.75", got[1], got[2])
	}
}

func TestResampleBilinearDownscale(t *testing.T) {
	src := make([]float32, 16)
	for i := range src {
		src[i] = 0.5
	}
	got := resampleBilinear(src, 4, 4, 2, 2)
	if len(got) != 4 {
		t.Fatalf("len = %d; want 4", len(got))
	}
	for i, v := range got {
		if math.Abs(float64(v-0.5)) > 1e-6 {
			t.Errorf("got[%d] = %v; want 0.5", i, v)
		}
	}
}

func TestSampleClamped(t *testing.T) {
	src := []float32{1, 2, 3, 4}
	tests := []struct {
		x, y int
		want float32
	}{
		{0, 0, 1},
		{1, 1, 4},
		{-1, 0, 1},
		{5, 0, 2},
		{0, -3, 1},
		{1, 9, 4},
	}
	for _, tt := range tests {
		if got := sampleClamped(src, 2, 2, tt.x, tt.y); got != tt.want {
			t.Errorf("sampleClamped(%d, %d) = %v; want %v", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestPreprocessNormalization(t *testing.T) {
	// A gray frame at the ImageNet mean of the red channel produces a red
	// plane near zero.
	const size = 4
	f := frame.New(8, 8)
	for i := range f.Pix {
		f.Pix[i] = 124 // 124/255 ~ 0.486, close to the 0.485 red mean
	}

	dst := make([]float32, 3*size*size)
	preprocess(dst, f, size)

	for i := 0; i < size*size; i++ {
		if math.Abs(float64(dst[i])) > 0.02 {
			t.Errorf("red plane value %d = %v; want ~0", i, dst[i])
		}
	}
	// Blue mean is 0.406, so the blue plane sits well above zero for the
	// same input.
	for i := 2 * size * size; i < 3*size*size; i++ {
		if dst[i] < 0.3 {
			t.Errorf("blue plane value %d = %v; want > 0.3", i, dst[i])
		}
	}
}
