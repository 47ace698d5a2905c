// Package depth estimates a normalized per-pixel depth map for an RGB
// frame. Two sources implement the same capability: a dependency-free
// image-gradient heuristic and an ONNX monocular depth network. The
// network is preferred when a model is configured and loadable; failures
// fall back to the gradient source for the remainder of the session.
package depth

import (
	"fmt"
	"log"

	"github.com/stevecastle/yoro/frame"
)

// Source produces a depth map for a frame. EstimateDepth returns an
// *EstimationError when the frame buffer is malformed or (for the model
// source) inference cannot be executed. Close releases any resources the
// source holds; it must be called on every exit path of the owning
// session.
type Source interface {
	EstimateDepth(f *frame.Frame) (frame.DepthMap, error)
	Close() error
}

// EstimationError wraps a failure to produce a depth map.
type EstimationError struct {
	Op  string
	Err error
}

func (e *EstimationError) Error() string {
	return fmt.Sprintf("depth: %s: %v", e.Op, e.Err)
}

func (e *EstimationError) Unwrap() error { return e.Err }

// Open selects the depth source for a session. When opts.ModelPath is
// empty the gradient source is returned directly; otherwise the model is
// constructed, and any load failure logs once and falls back permanently
// to the gradient source. The fallback decision is never re-evaluated per
// frame.
func Open(opts ModelOptions) Source {
	if opts.ModelPath == "" {
		return NewGradient()
	}
	m, err := NewModel(opts)
	if err != nil {
		log.Printf("depth: model unavailable, using gradient estimator: %v", err)
		return NewGradient()
	}
	return m
}
