//go:build !cgo
// +build !cgo

package depth

import (
	"errors"

	"github.com/stevecastle/yoro/frame"
)

// ErrCGORequired is returned when model-based depth estimation is attempted
// without CGO support.
var ErrCGORequired = errors.New("depth: model inference requires CGO support; rebuild with CGO_ENABLED=1")

// Model is unavailable in non-CGO builds.
type Model struct{}

// NewModel returns an error indicating CGO is required. Callers fall back to
// the gradient source.
func NewModel(opts ModelOptions) (*Model, error) {
	return nil, ErrCGORequired
}

// EstimateDepth returns an error indicating CGO is required.
func (m *Model) EstimateDepth(f *frame.Frame) (frame.DepthMap, error) {
	return nil, &EstimationError{Op: "model estimate", Err: ErrCGORequired}
}

// Close is a no-op in non-CGO builds.
func (m *Model) Close() error { return nil }
