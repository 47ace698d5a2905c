// Package reproject synthesizes the second eye of a stereo pair from a
// single frame plus a depth map, and composites the side-by-side output.
// The engine is a pure function of its inputs; it keeps only scratch
// buffers between calls, so one engine per worker goroutine processes
// independent frames with no synchronization.
package reproject

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/stevecastle/yoro/frame"
)

// Mode selects the accuracy/performance tradeoff of eye synthesis.
type Mode int

const (
	// ModeQuality computes shifts at full resolution and fills occlusion
	// gaps row by row.
	ModeQuality Mode = iota
	// ModePerformance computes shifts on a downsampled grid and gathers
	// full-resolution pixels without gap filling. Visible seams are the
	// accepted tradeoff.
	ModePerformance
)

func (m Mode) String() string {
	switch m {
	case ModeQuality:
		return "quality"
	case ModePerformance:
		return "performance"
	default:
		return "unknown"
	}
}

// validScales are the supported downsample factors for ModePerformance.
var validScales = map[int]bool{2: true, 4: true, 8: true, 16: true}

// Engine reprojects frames into a second eye view. Not safe for concurrent
// use; allocate one per worker.
type Engine struct {
	mode  Mode
	scale int

	shifts  []PixelShift
	written []bool
	reduced frame.DepthMap
}

// NewEngine builds an engine for the given mode. scale is the reprojection
// downsample factor and is only consulted in ModePerformance; it must be
// one of 2, 4, 8, or 16.
func NewEngine(mode Mode, scale int) (*Engine, error) {
	if mode != ModeQuality && mode != ModePerformance {
		return nil, fmt.Errorf("reproject: unknown mode %d", mode)
	}
	if mode == ModePerformance && !validScales[scale] {
		return nil, fmt.Errorf("reproject: reprojection scale must be 2, 4, 8, or 16; got %d", scale)
	}
	return &Engine{mode: mode, scale: scale}, nil
}

// ProcessFrame converts one right-eye source frame plus its depth map into
// a side-by-side stereo frame of doubled width: the left half is the
// synthesized left-eye view, the right half is the source.
//
// If the source view-projection matrix is singular the frame degrades to
// zero disparity (both halves show the source) and the returned error wraps
// ErrSingularViewProjection; the output frame is still valid and the
// session may continue.
func (e *Engine) ProcessFrame(rightEye *frame.Frame, depth frame.DepthMap, width, height int,
	rightView, rightProjection, leftView, leftProjection mgl32.Mat4) (*frame.Frame, error) {

	if err := rightEye.Validate(); err != nil {
		return nil, err
	}
	if rightEye.Width != width || rightEye.Height != height {
		return nil, fmt.Errorf("reproject: frame is %dx%d, caller stated %dx%d: %w",
			rightEye.Width, rightEye.Height, width, height, frame.ErrBufferLength)
	}
	if err := depth.Validate(width, height); err != nil {
		return nil, err
	}

	sourceVP := rightProjection.Mul4(rightView)
	targetVP := leftProjection.Mul4(leftView)

	leftEye, err := e.synthesize(rightEye, depth, sourceVP, targetVP)
	if err != nil {
		// Recoverable: emit the frame with zero disparity and surface the
		// condition to the caller.
		sbs := ComposeSBS(rightEye, rightEye)
		return sbs, fmt.Errorf("reproject: frame degraded to zero disparity: %w", err)
	}
	return ComposeSBS(leftEye, rightEye), nil
}

// synthesize renders the target eye image for the configured mode.
func (e *Engine) synthesize(src *frame.Frame, depth frame.DepthMap, sourceVP, targetVP mgl32.Mat4) (*frame.Frame, error) {
	w, h := src.Width, src.Height
	if e.mode == ModePerformance {
		gw, gh := w/e.scale, h/e.scale
		if gw < 1 {
			gw = 1
		}
		if gh < 1 {
			gh = 1
		}
		e.reduced = e.reduced[:0]
		if cap(e.reduced) < gw*gh {
			e.reduced = make(frame.DepthMap, gw*gh)
		}
		e.reduced = e.reduced[:gw*gh]
		downsampleNearest(e.reduced, depth, w, h, gw, gh)

		e.growShifts(gw * gh)
		if err := CalculatePixelShifts(e.shifts[:gw*gh], e.reduced, gw, gh, sourceVP, targetVP); err != nil {
			return nil, err
		}
		return e.renderPerformance(src, gw, gh), nil
	}

	e.growShifts(w * h)
	if err := CalculatePixelShifts(e.shifts[:w*h], depth, w, h, sourceVP, targetVP); err != nil {
		return nil, err
	}
	return e.renderQuality(src), nil
}

func (e *Engine) growShifts(n int) {
	if cap(e.shifts) < n {
		e.shifts = make([]PixelShift, n)
	}
	e.shifts = e.shifts[:n]
}

// downsampleNearest samples the full-resolution depth map onto a reduced
// grid by nearest-neighbor lookup.
func downsampleNearest(dst, src frame.DepthMap, w, h, gw, gh int) {
	for gy := 0; gy < gh; gy++ {
		sy := gy * h / gh
		if sy >= h {
			sy = h - 1
		}
		for gx := 0; gx < gw; gx++ {
			sx := gx * w / gw
			if sx >= w {
				sx = w - 1
			}
			dst[gy*gw+gx] = src[sy*w+sx]
		}
	}
}

// renderQuality scans each row left to right, scattering source pixels to
// their shifted target columns. Collisions resolve first-writer-wins in
// scan order; gaps between consecutive placements are filled by a linear
// blend of the bounding source colors, and a blind spot (shift past the
// right edge) fills the remainder of the row from the current pixel.
func (e *Engine) renderQuality(src *frame.Frame) *frame.Frame {
	w, h := src.Width, src.Height
	dst := frame.New(w, h)

	if cap(e.written) < w*h {
		e.written = make([]bool, w*h)
	}
	e.written = e.written[:w*h]
	for i := range e.written {
		e.written[i] = false
	}
	written := e.written

	for y := 0; y < h; y++ {
		row := y * w
		lastX := 0
		var prevR, prevG, prevB byte

		for x := 0; x < w; x++ {
			shift := e.shifts[row+x].Shift
			r, g, b := src.RGB(x, y)

			if shift > 1 {
				// Blind spot: everything from here maps past the right
				// edge. Fill what remains of the row and stop.
				for tx := lastX + 1; tx < w; tx++ {
					if !written[row+tx] {
						dst.SetRGB(tx, y, r, g, b)
						written[row+tx] = true
					}
				}
				lastX = w - 1
				break
			}

			newX := int(math.Round(float64(shift) * float64(w)))
			if newX < 0 {
				newX = 0
			} else if newX >= w {
				newX = w - 1
			}

			if lastX == 0 && newX > 0 {
				for tx := 0; tx < newX; tx++ {
					if !written[row+tx] {
						dst.SetRGB(tx, y, r, g, b)
						written[row+tx] = true
					}
				}
			}

			if newX > lastX+1 {
				span := float32(newX - lastX)
				for tx := lastX + 1; tx < newX; tx++ {
					if written[row+tx] {
						continue
					}
					t := float32(tx-lastX) / span
					dst.SetRGB(tx, y,
						lerpByte(prevR, r, t),
						lerpByte(prevG, g, t),
						lerpByte(prevB, b, t))
					written[row+tx] = true
				}
			}

			if !written[row+newX] {
				dst.SetRGB(newX, y, r, g, b)
				written[row+newX] = true
			}

			lastX = newX
			prevR, prevG, prevB = r, g, b
		}

		// Columns past the final placement stay unwritten unless a blind
		// spot closed the row; extend the last color so every column ends
		// written.
		for tx := lastX + 1; tx < w; tx++ {
			if !written[row+tx] {
				dst.SetRGB(tx, y, prevR, prevG, prevB)
				written[row+tx] = true
			}
		}
	}
	return dst
}

func lerpByte(a, b byte, t float32) byte {
	v := float32(a) + (float32(b)-float32(a))*t
	if v < 0 {
		v = 0
	} else if v > 255 {
		v = 255
	}
	return byte(v + 0.5)
}

// renderPerformance gathers each full-resolution output pixel from the
// source column named by its reduced-grid shift cell. Out-of-range source
// columns leave the destination pixel at zero; no gap filling happens in
// this mode.
func (e *Engine) renderPerformance(src *frame.Frame, gw, gh int) *frame.Frame {
	w, h := src.Width, src.Height
	dst := frame.New(w, h)

	for y := 0; y < h; y++ {
		gy := y * gh / h
		if gy >= gh {
			gy = gh - 1
		}
		for x := 0; x < w; x++ {
			gx := x * gw / w
			if gx >= gw {
				gx = gw - 1
			}
			shift := e.shifts[gy*gw+gx].Shift
			sx := int(math.Round(float64(shift) * float64(w)))
			if sx < 0 || sx >= w {
				continue
			}
			r, g, b := src.RGB(sx, y)
			dst.SetRGB(x, y, r, g, b)
		}
	}
	return dst
}

// ComposeSBS concatenates two equally sized eye images into one
// double-width side-by-side frame, left eye on the left half.
func ComposeSBS(left, right *frame.Frame) *frame.Frame {
	w, h := right.Width, right.Height
	out := frame.New(2*w, h)
	rowBytes := w * frame.BytesPerPixel
	for y := 0; y < h; y++ {
		srcOff := y * rowBytes
		dstOff := y * 2 * rowBytes
		copy(out.Pix[dstOff:dstOff+rowBytes], left.Pix[srcOff:srcOff+rowBytes])
		copy(out.Pix[dstOff+rowBytes:dstOff+2*rowBytes], right.Pix[srcOff:srcOff+rowBytes])
	}
	return out
}
