// Package model - Declared input and output geometry of a detection model.
package model

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-yolo/models/postprocess"
)

// Shape is derived once from the shapes a model declares.
//
// Any zero field means the shape is not known yet; detection on such a model
// is skipped rather than reported as empty.
type Shape struct {
	// InputWidth and InputHeight are the spatial size of the image tensor.
	InputWidth  int `json:"input_width"  yaml:"input_width"`
	InputHeight int `json:"input_height" yaml:"input_height"`
	// NumChannel is 4 box channels plus one channel per class.
	NumChannel int `json:"num_channel" yaml:"num_channel"`
	// NumElements is the number of candidate anchors.
	NumElements int `json:"num_elements" yaml:"num_elements"`
}

// NewShape derives a Shape from declared input and output dimensions.
//
// The input may be NCHW ([1, 3, H, W]) or NHWC ([1, H, W, 3]); a channel
// dimension of 3 in position 1 selects NCHW. The output must be [1, C, N].
// Dynamic dimensions (reported as -1 or 0) leave the corresponding field zero.
//
// Arguments:
//   - input: The declared input tensor dimensions.
//   - output: The declared output tensor dimensions.
//
// Returns:
//   - Shape: The derived shape, possibly not Ready.
//   - error: If either rank is unexpected.
func NewShape(input, output []int64) (Shape, error) {
	if len(input) != 4 {
		return Shape{}, errors.Errorf("expected a rank 4 input, got %v", input)
	}
	if len(output) != 3 {
		return Shape{}, errors.Errorf("expected a rank 3 output, got %v", output)
	}

	var s Shape
	if input[1] == 3 {
		s.InputHeight, s.InputWidth = dim(input[2]), dim(input[3])
	} else {
		s.InputHeight, s.InputWidth = dim(input[1]), dim(input[2])
	}
	s.NumChannel = dim(output[1])
	s.NumElements = dim(output[2])
	return s, nil
}

func dim(v int64) int {
	if v < 0 {
		return 0
	}
	return int(v)
}

// Ready reports whether every dimension is known and the output carries classes.
func (s Shape) Ready() bool {
	return s.InputWidth > 0 && s.InputHeight > 0 &&
		s.NumChannel > postprocess.NumBoxChannels && s.NumElements > 0
}

// NumClasses returns the number of class channels in the output.
func (s Shape) NumClasses() int {
	if s.NumChannel < postprocess.NumBoxChannels {
		return 0
	}
	return s.NumChannel - postprocess.NumBoxChannels
}

// InputSize returns the number of float32 values in the image tensor.
func (s Shape) InputSize() int {
	return 3 * s.InputWidth * s.InputHeight
}

// OutputSize returns the number of float32 values in the output tensor.
func (s Shape) OutputSize() int {
	return s.NumChannel * s.NumElements
}

// String formats the shape for logs.
func (s Shape) String() string {
	return fmt.Sprintf("input=%dx%d output=[1,%d,%d]", s.InputWidth, s.InputHeight, s.NumChannel, s.NumElements)
}
