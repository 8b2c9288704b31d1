// Package postprocess - Post-processing of raw YOLO detection outputs.
package postprocess

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// NumBoxChannels is the number of leading channels holding cx, cy, w and h.
const NumBoxChannels = 4

var (
	// ErrShortTensor is returned when the buffer holds fewer values than its declared shape.
	ErrShortTensor = errors.New("output tensor is shorter than its declared shape")
	// ErrTensorShape is returned when a tensor cannot be read as [1, C, N] float32 data.
	ErrTensorShape = errors.New("unsupported output tensor shape")
)

// Output is the raw output of a detection model for a single frame.
//
// Data is channel-major: the value of channel c for anchor a lives at
// Data[c*NumElements+a]. Channels 0-3 hold the normalized box center and size,
// channels 4 and up hold one confidence score per class.
type Output struct {
	Data        []float32
	NumChannel  int
	NumElements int
}

// Ready reports whether the declared shape can be decoded at all.
//
// A model whose output shape is unknown or carries no class channels is treated
// as not ready; frames are skipped without signalling a result.
func (o Output) Ready() bool {
	return o.NumChannel > NumBoxChannels && o.NumElements > 0
}

// NumClasses returns the number of class channels.
func (o Output) NumClasses() int {
	if o.NumChannel < NumBoxChannels {
		return 0
	}
	return o.NumChannel - NumBoxChannels
}

// At returns the value of a channel for an anchor.
func (o Output) At(channel, anchor int) float32 {
	return o.Data[channel*o.NumElements+anchor]
}

// Validate checks that the buffer is long enough for the declared shape.
func (o Output) Validate() error {
	if want := o.NumChannel * o.NumElements; len(o.Data) < want {
		return errors.Wrapf(ErrShortTensor, "have %d values, need %d", len(o.Data), want)
	}
	return nil
}

// FromTensor reads a channel-major [1, C, N] or [C, N] float32 tensor.
//
// Views are materialized first so the returned Data is always contiguous.
//
// Arguments:
//   - t: The tensor produced by the inference engine.
//
// Returns:
//   - Output: The output wrapping the tensor's backing data.
//   - error: ErrTensorShape if the tensor is not float32 or not shaped as expected.
func FromTensor(t tensor.Tensor) (Output, error) {
	if t.Dtype() != tensor.Float32 {
		return Output{}, errors.Wrapf(ErrTensorShape, "dtype %v", t.Dtype())
	}

	shape := t.Shape()
	var channels, elements int
	switch len(shape) {
	case 3:
		if shape[0] != 1 {
			return Output{}, errors.Wrapf(ErrTensorShape, "batch size %d", shape[0])
		}
		channels, elements = shape[1], shape[2]
	case 2:
		channels, elements = shape[0], shape[1]
	default:
		return Output{}, errors.Wrapf(ErrTensorShape, "shape %v", shape)
	}

	data, ok := tensor.Materialize(t).Data().([]float32)
	if !ok {
		return Output{}, errors.Wrapf(ErrTensorShape, "shape %v has no float32 backing", shape)
	}

	out := Output{Data: data, NumChannel: channels, NumElements: elements}
	if err := out.Validate(); err != nil {
		return Output{}, err
	}
	return out, nil
}

// FromAnchorMajor reads a [1, N, C] tensor, the transposed layout some exporters emit.
//
// The input tensor is left untouched; the data is transposed into a new
// channel-major allocation.
func FromAnchorMajor(t tensor.Tensor) (Output, error) {
	shape := t.Shape()
	if len(shape) != 3 || shape[0] != 1 {
		return Output{}, errors.Wrapf(ErrTensorShape, "anchor-major shape %v", shape)
	}

	transposed, err := tensor.Transpose(tensor.Materialize(t), 0, 2, 1)
	if err != nil {
		return Output{}, errors.Wrap(err, "transpose output tensor")
	}
	return FromTensor(transposed)
}
