package reproject

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/stevecastle/yoro/frame"
)

// ErrSingularViewProjection indicates that the source view-projection
// matrix cannot be inverted. The frame it occurred on is recoverable:
// callers degrade to zero disparity for that frame and report the
// condition instead of rendering through an undefined inverse.
var ErrSingularViewProjection = errors.New("reproject: singular source view-projection matrix")

// PixelShift is the reprojection result for one source pixel. Shift is the
// fractional horizontal coordinate of the pixel in the target eye's image
// space, in [0, 1]; a value above 1 means the pixel lands past the right
// edge of the target (a blind spot). Depth is the reprojected clip-space
// depth, carried for depth-aware blending but only used diagnostically.
type PixelShift struct {
	Shift float32
	Depth float32
}

// CalculatePixelShifts fills dst with the per-pixel horizontal shift of a
// width x height depth map reprojected from the source eye into the target
// eye. dst must hold width*height entries.
//
// Each pixel is lifted into NDC as (2x/W-1, 2y/H-1, depth, 1), unprojected
// through the inverse of sourceVP, and reprojected through targetVP, with a
// perspective divide after each transform when w is nonzero.
func CalculatePixelShifts(dst []PixelShift, depth frame.DepthMap, width, height int, sourceVP, targetVP mgl32.Mat4) error {
	if len(dst) != width*height {
		return fmt.Errorf("reproject: shift buffer is %d entries, want %d", len(dst), width*height)
	}
	if err := depth.Validate(width, height); err != nil {
		return err
	}
	if mgl32.FloatEqual(sourceVP.Det(), 0) {
		return ErrSingularViewProjection
	}
	inv := sourceVP.Inv()

	fw := float32(width)
	fh := float32(height)
	for y := 0; y < height; y++ {
		ndcY := 2*float32(y)/fh - 1
		row := y * width
		for x := 0; x < width; x++ {
			ndc := mgl32.Vec4{2*float32(x)/fw - 1, ndcY, depth[row+x], 1}

			world := inv.Mul4x1(ndc)
			if w := world.W(); w != 0 {
				world = world.Mul(1 / w)
			}

			target := targetVP.Mul4x1(world)
			if w := target.W(); w != 0 {
				target = target.Mul(1 / w)
			}

			dst[row+x] = PixelShift{
				Shift: (target.X() + 1) / 2,
				Depth: target.Z(),
			}
		}
	}
	return nil
}
