package inference

import (
	"context"
	"image"
	"os"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-yolo/logging"
	"github.com/nvr-ai/go-yolo/models/model"
	"github.com/nvr-ai/go-yolo/models/postprocess"
)

// SessionArgs configures an onnxruntime session.
type SessionArgs struct {
	// ModelPath is the .onnx file to load.
	ModelPath string `json:"model_path"   yaml:"model_path"`
	// LibraryPath is the onnxruntime shared library. Empty uses the platform default.
	LibraryPath string `json:"library_path" yaml:"library_path"`
	// Backend selects the execution provider.
	Backend Backend `json:"backend" yaml:"backend"`
	// Threads is the intra-op thread count on the CPU. Zero lets onnxruntime decide.
	Threads int `json:"threads" yaml:"threads"`
	// DeviceID selects the CUDA device.
	DeviceID int `json:"device_id" yaml:"device_id"`
}

// Session is an Engine backed by onnxruntime.
//
// The input and output tensors are allocated once and reused by every Run.
type Session struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	shape   model.Shape
	backend Backend
}

var environment sync.Mutex

// initEnvironment loads the shared library once per process.
func initEnvironment(libraryPath string) error {
	environment.Lock()
	defer environment.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if libraryPath == "" {
		libraryPath = DefaultLibraryPath()
	}
	if _, err := os.Stat(libraryPath); err != nil {
		return errors.Wrapf(err, "onnxruntime library not found at %s", libraryPath)
	}
	ort.SetSharedLibraryPath(libraryPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "initialize onnxruntime environment")
	}
	return nil
}

// NewSession loads a model and allocates its tensors.
//
// Input and output names and dimensions are read from the model itself. The
// model must have one float32 input and one float32 output shaped [1, C, N].
// When an accelerated backend cannot be enabled the session falls back to the
// CPU and logs a warning.
//
// Arguments:
//   - args: The session configuration.
//
// Returns:
//   - *Session: The loaded session.
//   - error: If the model cannot be loaded.
func NewSession(args SessionArgs) (*Session, error) {
	if err := initEnvironment(args.LibraryPath); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(args.ModelPath)
	if err != nil {
		return nil, errors.Wrapf(err, "read model io info %s", args.ModelPath)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, errors.Errorf("expected 1 input and 1 output, got %d and %d", len(inputs), len(outputs))
	}
	for _, info := range []ort.InputOutputInfo{inputs[0], outputs[0]} {
		if info.DataType != ort.TensorElementDataTypeFloat {
			return nil, errors.Errorf("tensor %s has type %v, expected float32", info.Name, info.DataType)
		}
	}

	if dims := inputs[0].Dimensions; len(dims) != 4 || dims[1] != 3 {
		return nil, errors.Errorf("input %s must be NCHW with 3 channels, got %v", inputs[0].Name, dims)
	}
	shape, err := model.NewShape(inputs[0].Dimensions, outputs[0].Dimensions)
	if err != nil {
		return nil, errors.Wrap(err, "model shape")
	}
	if !shape.Ready() {
		return nil, errors.Errorf("model %s has dynamic or empty dimensions: %s", args.ModelPath, shape)
	}

	input, err := ort.NewEmptyTensor[float32](inputs[0].Dimensions)
	if err != nil {
		return nil, errors.Wrap(err, "create input tensor")
	}
	output, err := ort.NewEmptyTensor[float32](outputs[0].Dimensions)
	if err != nil {
		input.Destroy()
		return nil, errors.Wrap(err, "create output tensor")
	}

	s := &Session{input: input, output: output, shape: shape, backend: args.Backend}

	session, err := s.open(args, inputs[0].Name, outputs[0].Name, args.Backend)
	if err != nil && args.Backend.Accelerated() {
		logging.Warn(logging.Fields{"backend": args.Backend, "error": err},
			"[inference.NewSession] backend unavailable, falling back to cpu")
		s.backend = BackendCPU
		session, err = s.open(args, inputs[0].Name, outputs[0].Name, BackendCPU)
	}
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, err
	}
	s.session = session

	logging.Info(logging.Fields{"model": args.ModelPath, "backend": s.backend, "shape": shape.String()},
		"[inference.NewSession] model loaded")
	return s, nil
}

func (s *Session) open(args SessionArgs, inputName, outputName string, backend Backend) (*ort.AdvancedSession, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "create session options")
	}
	defer options.Destroy()

	if args.Threads > 0 {
		if err := options.SetIntraOpNumThreads(args.Threads); err != nil {
			return nil, errors.Wrap(err, "set intra op threads")
		}
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		return nil, errors.Wrap(err, "set graph optimization level")
	}

	switch backend {
	case BackendCUDA:
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return nil, errors.Wrap(err, "create cuda options")
		}
		defer cuda.Destroy()
		if err := cuda.Update(map[string]string{"device_id": strconv.Itoa(args.DeviceID)}); err != nil {
			return nil, errors.Wrap(err, "update cuda options")
		}
		if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
			return nil, errors.Wrap(err, "enable cuda")
		}
	case BackendCoreML:
		if err := options.AppendExecutionProviderCoreML(0); err != nil {
			return nil, errors.Wrap(err, "enable coreml")
		}
	}

	session, err := ort.NewAdvancedSession(
		args.ModelPath,
		[]string{inputName},
		[]string{outputName},
		[]ort.ArbitraryTensor{s.input},
		[]ort.ArbitraryTensor{s.output},
		options,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "create %s session", backend)
	}
	return session, nil
}

// Shape implements Engine.
func (s *Session) Shape() model.Shape {
	return s.shape
}

// Backend returns the provider actually in use.
func (s *Session) Backend() Backend {
	return s.backend
}

// Run implements Engine.
//
// The returned Output aliases the session's output tensor.
func (s *Session) Run(ctx context.Context, img image.Image) (postprocess.Output, error) {
	if s.session == nil {
		return postprocess.Output{}, errors.New("session closed")
	}
	if err := ctx.Err(); err != nil {
		return postprocess.Output{}, err
	}

	if err := PrepareInput(img, s.shape.InputWidth, s.shape.InputHeight, s.input.GetData()); err != nil {
		return postprocess.Output{}, errors.Wrap(err, "prepare input")
	}
	if err := s.session.Run(); err != nil {
		return postprocess.Output{}, errors.Wrap(err, "run inference")
	}

	raw := tensor.New(
		tensor.WithShape(1, s.shape.NumChannel, s.shape.NumElements),
		tensor.WithBacking(s.output.GetData()),
	)
	return postprocess.FromTensor(raw)
}

// Close implements Engine.
func (s *Session) Close() error {
	var err error
	if s.session != nil {
		err = s.session.Destroy()
		s.session = nil
	}
	if s.input != nil {
		s.input.Destroy()
		s.input = nil
	}
	if s.output != nil {
		s.output.Destroy()
		s.output = nil
	}
	return err
}

// NewSessionFactory returns a Factory that opens args with the requested backend.
func NewSessionFactory(args SessionArgs) Factory {
	return func(backend Backend) (Engine, error) {
		a := args
		a.Backend = backend
		s, err := NewSession(a)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}
