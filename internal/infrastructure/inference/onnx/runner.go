package onnx

import (
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/kirillkom/plant-doctor/internal/core/domain"
)

type Options struct {
	ModelPath         string
	SharedLibraryPath string
	InputName         string
	OutputName        string
	InputShape        []int64
	OutputShape       []int64
}

// Runner owns one ONNX Runtime session with pre-bound input and output
// tensors. Run calls are serialized because the bound tensors are shared.
type Runner struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	inputShape   []int64
	outputSize   int
}

func NewRunner(opts Options) (*Runner, error) {
	r, err := newRunner(opts)
	if err != nil {
		return nil, domain.WrapError(domain.ErrModelLoad, "load onnx model", err)
	}
	return r, nil
}

func newRunner(opts Options) (*Runner, error) {
	if _, err := os.Stat(opts.ModelPath); err != nil {
		return nil, fmt.Errorf("model artifact: %w", err)
	}
	if len(opts.InputShape) == 0 || len(opts.OutputShape) == 0 {
		return nil, fmt.Errorf("input and output shapes are required")
	}
	if opts.InputName == "" {
		opts.InputName = "input"
	}
	if opts.OutputName == "" {
		opts.OutputName = "output"
	}

	if opts.SharedLibraryPath != "" {
		ort.SetSharedLibraryPath(opts.SharedLibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	inputs, outputs, err := ort.GetInputOutputInfo(opts.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("read model signature: %w", err)
	}
	if err := checkTensor("input", opts.InputName, inputs, opts.InputShape); err != nil {
		return nil, err
	}
	if err := checkTensor("output", opts.OutputName, outputs, opts.OutputShape); err != nil {
		return nil, err
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(opts.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(opts.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(opts.ModelPath,
		[]string{opts.InputName}, []string{opts.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &Runner{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		inputShape:   append([]int64(nil), opts.InputShape...),
		outputSize:   len(outputTensor.GetData()),
	}, nil
}

// checkTensor compares the shape the model declares for name with the one
// the service is configured for, so a wrong catalog or input size fails at
// startup instead of on every request.
func checkTensor(kind, name string, declared []ort.InputOutputInfo, configured []int64) error {
	for _, info := range declared {
		if info.Name != name {
			continue
		}
		if err := matchShape(info.Dimensions, configured); err != nil {
			return fmt.Errorf("model %s %q: %w", kind, name, err)
		}
		return nil
	}

	names := make([]string, 0, len(declared))
	for _, info := range declared {
		names = append(names, info.Name)
	}
	return fmt.Errorf("model has no %s named %q (have %v)", kind, name, names)
}

// matchShape treats non-positive model dimensions as dynamic.
func matchShape(declared, configured []int64) error {
	if len(declared) != len(configured) {
		return fmt.Errorf("model shape %v has rank %d, configured %v has rank %d",
			declared, len(declared), configured, len(configured))
	}
	for i, dim := range declared {
		if dim > 0 && dim != configured[i] {
			return fmt.Errorf("model shape %v, configured %v (dimension %d differs)", declared, configured, i)
		}
	}
	return nil
}

func (r *Runner) InputShape() []int64 {
	return append([]int64(nil), r.inputShape...)
}

func (r *Runner) OutputSize() int {
	return r.outputSize
}

func (r *Runner) Run(input []float32) ([]float32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dst := r.inputTensor.GetData()
	if len(input) != len(dst) {
		return nil, domain.WrapError(domain.ErrShapeMismatch, "onnx run",
			fmt.Errorf("got %d values, session expects %d", len(input), len(dst)))
	}
	copy(dst, input)

	if err := r.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	return append([]float32(nil), r.outputTensor.GetData()...), nil
}

func (r *Runner) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.inputTensor != nil {
		r.inputTensor.Destroy()
	}
	if r.outputTensor != nil {
		r.outputTensor.Destroy()
	}
	if r.session != nil {
		r.session.Destroy()
	}
	ort.DestroyEnvironment()
}
