package inference

import (
	"strings"

	"github.com/pkg/errors"
)

// Backend selects the onnxruntime execution provider.
type Backend string

const (
	// BackendCPU runs on the default CPU provider.
	BackendCPU Backend = "cpu"
	// BackendCUDA runs on NVIDIA CUDA.
	BackendCUDA Backend = "cuda"
	// BackendCoreML runs on Apple CoreML.
	BackendCoreML Backend = "coreml"
)

// ErrUnknownBackend is returned by ParseBackend for unrecognised names.
var ErrUnknownBackend = errors.New("unknown backend")

// ParseBackend maps a configuration value to a Backend.
//
// "gpu" is accepted as an alias for cuda. An empty value selects the CPU.
func ParseBackend(name string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "cpu":
		return BackendCPU, nil
	case "cuda", "gpu":
		return BackendCUDA, nil
	case "coreml":
		return BackendCoreML, nil
	default:
		return "", errors.Wrapf(ErrUnknownBackend, "%q", name)
	}
}

// Accelerated reports whether the backend runs off the CPU.
func (b Backend) Accelerated() bool {
	return b == BackendCUDA || b == BackendCoreML
}
