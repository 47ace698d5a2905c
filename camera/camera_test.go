package camera

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestViewTranslates(t *testing.T) {
	v := View(0.5)
	p := v.Mul4x1(mgl32.Vec4{0, 0, -1, 1})
	if p.X() != 0.5 || p.Y() != 0 || p.Z() != -1 || p.W() != 1 {
		t.Errorf("View(0.5) * (0,0,-1,1) = %v; want (0.5,0,-1,1)", p)
	}
}

func TestProjectionMapsFrustumEdges(t *testing.T) {
	// At 90 degrees vertical FOV and unit aspect, a view-space point at
	// (z, 0, -z) sits on the right frustum plane and projects to ndc x=1.
	proj := Projection(90, 1, 0.1, 1000)
	clip := proj.Mul4x1(mgl32.Vec4{2, 0, -2, 1})
	ndcX := clip.X() / clip.W()
	if math.Abs(float64(ndcX-1)) > 1e-5 {
		t.Errorf("ndc x = %v; want 1", ndcX)
	}

	center := proj.Mul4x1(mgl32.Vec4{0, 0, -2, 1})
	if cx := center.X() / center.W(); math.Abs(float64(cx)) > 1e-6 {
		t.Errorf("centered point ndc x = %v; want 0", cx)
	}
}

func TestViewProjectionComposes(t *testing.T) {
	view := View(0.1)
	proj := Projection(60, 16.0/9.0, 0.1, 100)
	got := ViewProjection(view, proj)
	want := proj.Mul4(view)
	if got != want {
		t.Errorf("ViewProjection = %v; want %v", got, want)
	}
}

func TestRigSymmetry(t *testing.T) {
	eyes := Rig(0.064, 90, 1, 0.1, 1000)

	if eyes.LeftProjection != eyes.RightProjection {
		t.Error("eye projections differ")
	}
	if eyes.LeftView != View(-0.032) {
		t.Errorf("left view = %v; want View(-0.032)", eyes.LeftView)
	}
	if eyes.RightView != View(0.032) {
		t.Errorf("right view = %v; want View(0.032)", eyes.RightView)
	}

	// A world-space origin point lands at mirrored x offsets in each eye.
	origin := mgl32.Vec4{0, 0, -1, 1}
	l := eyes.LeftView.Mul4x1(origin)
	r := eyes.RightView.Mul4x1(origin)
	if l.X() != -r.X() {
		t.Errorf("eye offsets not mirrored: left %v right %v", l.X(), r.X())
	}
}
