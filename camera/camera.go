// Package camera builds the per-eye view and projection matrices consumed
// by the reprojection engine. Both constructors are pure; a conversion
// session builds them once and reuses them for every frame, rebuilding the
// projection only when the source aspect ratio changes.
package camera

import (
	"github.com/go-gl/mathgl/mgl32"
)

// View returns the view matrix for an eye displaced horizontally from the
// scene origin. The offset is the signed interpupillary half-distance:
// negative for the left eye, positive for the right. No rotation is applied.
func View(eyeOffsetX float32) mgl32.Mat4 {
	return mgl32.Translate3D(eyeOffsetX, 0, 0)
}

// Projection returns a symmetric perspective projection matrix from a
// vertical field of view in degrees, an aspect ratio, and near/far clip
// planes.
func Projection(fovDegrees, aspect, near, far float32) mgl32.Mat4 {
	return mgl32.Perspective(mgl32.DegToRad(fovDegrees), aspect, near, far)
}

// ViewProjection composes the combined clip-space transform for one eye,
// Projection * View.
func ViewProjection(view, projection mgl32.Mat4) mgl32.Mat4 {
	return projection.Mul4(view)
}

// EyePair holds the matrices for both eyes of a stereo rig.
type EyePair struct {
	LeftView        mgl32.Mat4
	RightView       mgl32.Mat4
	LeftProjection  mgl32.Mat4
	RightProjection mgl32.Mat4
}

// Rig builds the matrices for a stereo camera pair with the given
// interpupillary distance. Each eye sits half the IPD from center.
func Rig(ipd, fovDegrees, aspect, near, far float32) EyePair {
	proj := Projection(fovDegrees, aspect, near, far)
	return EyePair{
		LeftView:        View(-ipd / 2),
		RightView:       View(ipd / 2),
		LeftProjection:  proj,
		RightProjection: proj,
	}
}
