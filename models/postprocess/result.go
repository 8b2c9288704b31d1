package postprocess

import (
	"time"

	"github.com/nvr-ai/go-yolo/common"
)

// Status tags the outcome of a single frame.
type Status int

const (
	// StatusInvalid is the zero value. It is carried by the Result returned
	// alongside an error and never describes a processed frame.
	StatusInvalid Status = iota
	// StatusNotReady means the model shape is unknown and nothing was decoded.
	StatusNotReady
	// StatusEmpty means the frame was processed and nothing was detected.
	StatusEmpty
	// StatusDetected means at least one box survived suppression.
	StatusDetected
)

// String returns the wire name of the status.
func (s Status) String() string {
	switch s {
	case StatusInvalid:
		return "invalid"
	case StatusNotReady:
		return "not_ready"
	case StatusEmpty:
		return "empty"
	case StatusDetected:
		return "detected"
	default:
		return "unknown"
	}
}

// Result represents the outcome of post-processing one frame.
type Result struct {
	// The outcome tag.
	Status Status
	// The kept boxes in descending confidence order. Only set when Status is StatusDetected.
	Boxes []common.BoundingBox
	// Wall-clock time spent on the frame. Telemetry only.
	Duration time.Duration
}

// Detected reports whether the result carries boxes.
func (r Result) Detected() bool {
	return r.Status == StatusDetected
}
