package depth

import (
	"math"

	resize "github.com/nfnt/resize"

	"github.com/stevecastle/yoro/frame"
)

// ModelOptions configures the neural depth source.
type ModelOptions struct {
	// Path to the ONNX depth model. Empty disables the model source.
	ModelPath string

	// Path to the onnxruntime shared library (.dll/.so/.dylib). If empty,
	// the environment variable ONNXRUNTIME_SHARED_LIBRARY_PATH will be
	// respected.
	ORTSharedLibraryPath string

	// Input and output tensor names in the model graph.
	InputName  string
	OutputName string

	// InputSize is the model's fixed square input resolution.
	InputSize int

	// HardwareAcceleration attempts GPU execution providers before falling
	// back to CPU. The choice is made once at construction.
	HardwareAcceleration bool
}

// Defaults for the Depth-Anything-V2 ONNX export.
const (
	defaultInputSize  = 518
	defaultInputName  = "image"
	defaultOutputName = "depth"
)

// ImageNet channel statistics used by the depth network's preprocessing.
var (
	normalizeMean = [3]float32{0.485, 0.456, 0.406}
	normalizeStd  = [3]float32{0.229, 0.224, 0.225}
)

func (o *ModelOptions) applyDefaults() {
	if o.InputSize <= 0 {
		o.InputSize = defaultInputSize
	}
	if o.InputName == "" {
		o.InputName = defaultInputName
	}
	if o.OutputName == "" {
		o.OutputName = defaultOutputName
	}
}

// preprocess resizes the frame to size x size with bicubic resampling and
// fills dst with a channel-first float32 tensor normalized by the ImageNet
// mean and standard deviation. dst must hold 3*size*size values.
func preprocess(dst []float32, f *frame.Frame, size int) {
	img := resize.Resize(uint(size), uint(size), f.ToImage(), resize.Bicubic)

	numPixels := size * size
	rOff := 0
	gOff := numPixels
	bOff := 2 * numPixels
	idx := 0
	b := img.Bounds()
	for y := b.Min.Y; y < b.Min.Y+size; y++ {
		for x := b.Min.X; x < b.Min.X+size; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			dst[rOff+idx] = (float32(r>>8)/255.0 - normalizeMean[0]) / normalizeStd[0]
			dst[gOff+idx] = (float32(g>>8)/255.0 - normalizeMean[1]) / normalizeStd[1]
			dst[bOff+idx] = (float32(bl>>8)/255.0 - normalizeMean[2]) / normalizeStd[2]
			idx++
		}
	}
}

// normalizeMinMax rescales raw network output into [0, 1] across the whole
// map. A constant map becomes all zeros.
func normalizeMinMax(depth []float32) {
	if len(depth) == 0 {
		return
	}
	lo := float32(math.Inf(1))
	hi := float32(math.Inf(-1))
	for _, v := range depth {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	span := hi - lo
	if span <= 0 {
		for i := range depth {
			depth[i] = 0
		}
		return
	}
	for i := range depth {
		depth[i] = (depth[i] - lo) / span
	}
}

// resampleBilinear resizes a scalar field from sw x sh to dw x dh with
// bilinear interpolation.
func resampleBilinear(src []float32, sw, sh, dw, dh int) frame.DepthMap {
	dst := frame.NewDepthMap(dw, dh)
	if sw == dw && sh == dh {
		copy(dst, src)
		return dst
	}
	for y := 0; y < dh; y++ {
		fy := (float64(y)+0.5)/float64(dh)*float64(sh) - 0.5
		y0 := int(math.Floor(fy))
		ty := float32(fy - float64(y0))
		for x := 0; x < dw; x++ {
			fx := (float64(x)+0.5)/float64(dw)*float64(sw) - 0.5
			x0 := int(math.Floor(fx))
			tx := float32(fx - float64(x0))

			v00 := sampleClamped(src, sw, sh, x0, y0)
			v10 := sampleClamped(src, sw, sh, x0+1, y0)
			v01 := sampleClamped(src, sw, sh, x0, y0+1)
			v11 := sampleClamped(src, sw, sh, x0+1, y0+1)

			top := v00 + (v10-v00)*tx
			bot := v01 + (v11-v01)*tx
			dst[y*dw+x] = top + (bot-top)*ty
		}
	}
	return dst
}

func sampleClamped(src []float32, w, h, x, y int) float32 {
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
	return src[y*w+x]
}
