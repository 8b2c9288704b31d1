package postprocess

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-yolo/common"
)

// ErrLabelOutOfRange is returned when a class index has no entry in the class set.
//
// It means the deployed label file does not match the deployed model and is
// treated as a configuration error rather than a per-frame condition.
var ErrLabelOutOfRange = errors.New("class index out of range for label set")

// Labeler resolves a class index to its human-readable name.
type Labeler interface {
	Name(index int) (string, error)
}

// Decode scans a channel-major output tensor and emits one candidate box per
// anchor whose best class score is strictly greater than the threshold.
//
// For every anchor the class channels are scanned in order and the running
// best only moves on a strictly greater score, so on ties the lower class
// index wins. Candidates with any corner outside [0, 1] are discarded whole.
//
// Arguments:
//   - out: The raw model output. Must be Ready and valid.
//   - threshold: The confidence a class score has to exceed.
//   - classes: Resolves class names. May be nil, leaving labels empty.
//
// Returns:
//   - []common.BoundingBox: Candidates in increasing anchor order, nil if none.
//   - error: ErrShortTensor for a truncated buffer, ErrLabelOutOfRange on a label mismatch.
func Decode(out Output, threshold float32, classes Labeler) ([]common.BoundingBox, error) {
	if err := out.Validate(); err != nil {
		return nil, err
	}

	var boxes []common.BoundingBox
	for c := 0; c < out.NumElements; c++ {
		maxConf := threshold
		maxIdx := -1
		for j := NumBoxChannels; j < out.NumChannel; j++ {
			if score := out.At(j, c); score > maxConf {
				maxConf = score
				maxIdx = j - NumBoxChannels
			}
		}
		if maxIdx < 0 {
			continue
		}

		cx := out.At(0, c)
		cy := out.At(1, c)
		w := out.At(2, c)
		h := out.At(3, c)

		x1 := cx - w/2
		y1 := cy - h/2
		x2 := cx + w/2
		y2 := cy + h/2
		if !inUnitRange(x1) || !inUnitRange(y1) || !inUnitRange(x2) || !inUnitRange(y2) {
			continue
		}

		var label string
		if classes != nil {
			name, err := classes.Name(maxIdx)
			if err != nil {
				return nil, errors.Wrapf(err, "anchor %d", c)
			}
			label = name
		}

		boxes = append(boxes, common.BoundingBox{
			X1: x1, Y1: y1, X2: x2, Y2: y2,
			CX: cx, CY: cy, W: w, H: h,
			Confidence: maxConf,
			Class:      maxIdx,
			Label:      label,
		})
	}

	return boxes, nil
}

// inUnitRange reports whether v lies in the closed interval [0, 1].
func inUnitRange(v float32) bool {
	return v >= 0 && v <= 1
}
