package postprocess

import (
	"time"

	"github.com/pkg/errors"
)

const (
	// DefaultConfidenceThreshold is the score a class has to exceed to produce a candidate.
	DefaultConfidenceThreshold = 0.3
	// DefaultIoUThreshold is the overlap at which lower-confidence boxes are suppressed.
	DefaultIoUThreshold = 0.5
)

// ErrInvalidThreshold is returned when a threshold lies outside [0, 1].
var ErrInvalidThreshold = errors.New("threshold must be within [0, 1]")

// Config holds the tunables of the post-processing pipeline.
type Config struct {
	// ConfidenceThreshold filters class scores at or below this value.
	ConfidenceThreshold float32 `json:"confidence_threshold" yaml:"confidence_threshold"`
	// NMS controls Non-Maximum Suppression.
	NMS *NMSConfig `json:"nms" yaml:"nms"`
}

// DefaultConfig returns the thresholds the detector ships with.
//
// Returns:
//   - *Config: Confidence 0.3, IoU 0.5, class-agnostic suppression.
func DefaultConfig() *Config {
	return &Config{
		ConfidenceThreshold: DefaultConfidenceThreshold,
		NMS: &NMSConfig{
			IoUThreshold: DefaultIoUThreshold,
		},
	}
}

// Validate checks both thresholds.
func (c *Config) Validate() error {
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return errors.Wrapf(ErrInvalidThreshold, "confidence threshold %v", c.ConfidenceThreshold)
	}
	if c.NMS == nil {
		return errors.New("nms config is required")
	}
	if c.NMS.IoUThreshold < 0 || c.NMS.IoUThreshold > 1 {
		return errors.Wrapf(ErrInvalidThreshold, "iou threshold %v", c.NMS.IoUThreshold)
	}
	return nil
}

// Process runs decoding and suppression over one frame's output.
//
// An output whose shape is not Ready yields StatusNotReady without touching the
// data. An empty candidate list yields StatusEmpty and suppression is skipped.
// Otherwise the kept boxes are returned with StatusDetected. Duration covers
// decoding and suppression only; callers that also run inference overwrite it.
//
// Arguments:
//   - out: The raw model output.
//   - classes: Resolves class names. May be nil.
//   - config: Thresholds. Nil uses DefaultConfig.
//
// Returns:
//   - Result: The tagged outcome. Its Status is StatusInvalid whenever err is not nil.
//   - error: A decoding error. ErrLabelOutOfRange must be treated as fatal.
func Process(out Output, classes Labeler, config *Config) (Result, error) {
	start := time.Now()
	if config == nil {
		config = DefaultConfig()
	}

	if !out.Ready() {
		return Result{Status: StatusNotReady}, nil
	}

	candidates, err := Decode(out, config.ConfidenceThreshold, classes)
	if err != nil {
		return Result{Status: StatusInvalid}, err
	}
	if len(candidates) == 0 {
		return Result{Status: StatusEmpty, Duration: time.Since(start)}, nil
	}

	nms := config.NMS
	if nms == nil {
		nms = DefaultConfig().NMS
	}

	return Result{
		Status:   StatusDetected,
		Boxes:    ApplyGreedyNMS(candidates, nms),
		Duration: time.Since(start),
	}, nil
}
