package depth

import (
	"math"

	"github.com/stevecastle/yoro/frame"
)

// gradientFloor is the minimum depth the gradient heuristic emits; it
// keeps strong edges from collapsing to the far plane.
const gradientFloor = 0.1

// Gradient estimates depth from local image contrast: high-gradient
// regions (edges) are treated as closer. It is a crude heuristic, not
// physically grounded, but it is deterministic and needs no model files,
// which makes it the fallback when the neural source is unavailable.
// Stateless and safe for concurrent use.
type Gradient struct{}

// NewGradient returns the gradient-heuristic depth source.
func NewGradient() *Gradient { return &Gradient{} }

// EstimateDepth computes a depth map from luminance gradients: interior
// pixels get max(0.1, 1-2g) where g is the local gradient magnitude,
// borders replicate the nearest interior values, and one 3x3 Gaussian pass
// smooths the result.
func (s *Gradient) EstimateDepth(f *frame.Frame) (frame.DepthMap, error) {
	if err := f.Validate(); err != nil {
		return nil, &EstimationError{Op: "gradient estimate", Err: err}
	}
	w, h := f.Width, f.Height

	lum := make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			lum[y*w+x] = f.GrayAt(x, y)
		}
	}

	dm := frame.NewDepthMap(w, h)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			gx := lum[i+1] - lum[i-1]
			gy := lum[i+w] - lum[i-w]
			g := float32(math.Sqrt(float64(gx*gx + gy*gy)))
			d := 1 - 2*g
			if d < gradientFloor {
				d = gradientFloor
			}
			dm[i] = d
		}
	}

	replicateBorders(dm, w, h)
	gaussian3x3(dm, w, h)
	return dm.Clamp(), nil
}

// Close implements Source; the gradient estimator holds no resources.
func (s *Gradient) Close() error { return nil }

// replicateBorders copies the nearest interior column into the left/right
// borders and the nearest interior row into the top/bottom borders.
func replicateBorders(dm frame.DepthMap, w, h int) {
	if w < 3 || h < 3 {
		// Too small for any interior; leave the map flat.
		for i := range dm {
			dm[i] = gradientFloor
		}
		return
	}
	for y := 1; y < h-1; y++ {
		dm[y*w] = dm[y*w+1]
		dm[y*w+w-1] = dm[y*w+w-2]
	}
	copy(dm[:w], dm[w:2*w])
	copy(dm[(h-1)*w:], dm[(h-2)*w:(h-1)*w])
}

// gaussian3x3 applies one pass of the fixed 1-2-1 kernel, reading from a
// snapshot taken before the blur so smoothing never feeds back on itself.
func gaussian3x3(dm frame.DepthMap, w, h int) {
	snap := make(frame.DepthMap, len(dm))
	copy(snap, dm)

	at := func(x, y int) float32 {
		if x < 0 {
			x = 0
		} else if x >= w {
			x = w - 1
		}
		if y < 0 {
			y = 0
		} else if y >= h {
			y = h - 1
		}
		return snap[y*w+x]
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum := at(x-1, y-1) + 2*at(x, y-1) + at(x+1, y-1) +
				2*at(x-1, y) + 4*at(x, y) + 2*at(x+1, y) +
				at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)
			dm[y*w+x] = sum / 16
		}
	}
}
