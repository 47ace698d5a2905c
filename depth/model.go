//go:build cgo
// +build cgo

package depth

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/stevecastle/yoro/frame"
)

// Model runs a monocular depth network through ONNX Runtime. One long-lived
// inference session is built at construction and shared across frames;
// calls are serialized because ONNX Runtime does not guarantee that
// concurrent Run calls on a single session are safe.
type Model struct {
	mu   sync.Mutex
	opts ModelOptions

	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	closed  bool
}

// NewModel loads the ONNX model and builds the inference session. The
// execution provider is chosen once here: hardware acceleration when
// requested and available, CPU otherwise. Callers treat any error as
// "model unavailable" and fall back to the gradient source.
func NewModel(opts ModelOptions) (*Model, error) {
	opts.applyDefaults()
	if opts.ModelPath == "" {
		return nil, fmt.Errorf("depth: no model path configured")
	}
	if _, err := os.Stat(opts.ModelPath); err != nil {
		return nil, fmt.Errorf("depth: model file: %w", err)
	}

	if opts.ORTSharedLibraryPath != "" {
		ort.SetSharedLibraryPath(opts.ORTSharedLibraryPath)
	} else if p := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); p != "" {
		ort.SetSharedLibraryPath(p)
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("depth: initialize onnxruntime: %w", err)
	}

	size := int64(opts.InputSize)
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size))
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("depth: input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, size, size))
	if err != nil {
		input.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("depth: output tensor: %w", err)
	}

	sessOpts := newSessionOptions(opts.HardwareAcceleration)
	session, err := ort.NewAdvancedSession(
		opts.ModelPath,
		[]string{opts.InputName},
		[]string{opts.OutputName},
		[]ort.Value{input},
		[]ort.Value{output},
		sessOpts,
	)
	if sessOpts != nil {
		sessOpts.Destroy()
	}
	if err != nil {
		output.Destroy()
		input.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("depth: create session: %w", err)
	}

	return &Model{opts: opts, session: session, input: input, output: output}, nil
}

// newSessionOptions builds session options with a hardware execution
// provider when one attaches; a nil return means plain CPU execution.
func newSessionOptions(accelerate bool) *ort.SessionOptions {
	if !accelerate {
		return nil
	}
	so, err := ort.NewSessionOptions()
	if err != nil {
		return nil
	}

	if cudaOpts, err := ort.NewCUDAProviderOptions(); err == nil {
		err = so.AppendExecutionProviderCUDA(cudaOpts)
		cudaOpts.Destroy()
		if err == nil {
			log.Printf("depth: using CUDA execution provider")
			return so
		}
	}
	if runtime.GOOS == "darwin" {
		if err := so.AppendExecutionProviderCoreML(0); err == nil {
			log.Printf("depth: using CoreML execution provider")
			return so
		}
	}
	if runtime.GOOS == "windows" {
		if err := so.AppendExecutionProviderDirectML(0); err == nil {
			log.Printf("depth: using DirectML execution provider")
			return so
		}
	}

	// No accelerator attached; the session falls back to CPU.
	return so
}

// EstimateDepth runs one forward pass and returns a depth map at the
// frame's resolution, min-max normalized to [0, 1].
func (m *Model) EstimateDepth(f *frame.Frame) (frame.DepthMap, error) {
	if err := f.Validate(); err != nil {
		return nil, &EstimationError{Op: "model estimate", Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, &EstimationError{Op: "model estimate", Err: fmt.Errorf("session closed")}
	}

	preprocess(m.input.GetData(), f, m.opts.InputSize)

	if err := m.session.Run(); err != nil {
		return nil, &EstimationError{Op: "model inference", Err: err}
	}

	raw := m.output.GetData()
	out := make([]float32, len(raw))
	copy(out, raw)
	normalizeMinMax(out)

	size := m.opts.InputSize
	dm := resampleBilinear(out, size, size, f.Width, f.Height)
	return dm.Clamp(), nil
}

// Close destroys the tensors, the session, and the onnxruntime
// environment. Safe to call more than once.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.output.Destroy()
	m.input.Destroy()
	m.session.Destroy()
	return ort.DestroyEnvironment()
}
