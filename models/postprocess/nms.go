// Package postprocess - provides Non-Maximum Suppression for detection results.
package postprocess

import (
	"sort"

	"github.com/nvr-ai/go-yolo/common"
)

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	IoUThreshold float32 `json:"iou_threshold" yaml:"iou_threshold"` // Overlap at or above which boxes are suppressed.
	ClassAware   bool    `json:"class_aware"   yaml:"class_aware"`   // If true, suppress only within same class.
}

// ApplyGreedyNMS performs standard greedy Non-Maximum Suppression.
//
// The boxes are stably sorted by descending confidence, so boxes of equal
// confidence keep the order the decoder emitted them in. The highest remaining
// box is kept and every later box overlapping it with IoU >= IoUThreshold is
// marked as removed; the walk then continues with the next unmarked box.
//
// Suppression is only ever tested against the box being kept, so the result
// is greedy rather than globally optimal.
//
// Arguments:
//   - boxes: Candidate boxes in any order. The slice is not modified.
//   - config: NMS configuration.
//
// Returns:
//   - Kept boxes in descending confidence order. If no boxes are provided, returns nil.
func ApplyGreedyNMS(boxes []common.BoundingBox, config *NMSConfig) []common.BoundingBox {
	n := len(boxes)
	if n == 0 {
		return nil
	}

	sorted := make([]common.BoundingBox, n)
	copy(sorted, boxes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	filtered := make([]common.BoundingBox, 0, n)
	removed := make([]bool, n)

	for i := 0; i < n; i++ {
		if removed[i] {
			continue
		}

		anchor := sorted[i]
		filtered = append(filtered, anchor)

		for j := i + 1; j < n; j++ {
			if removed[j] {
				continue
			}
			if config.ClassAware && anchor.Class != sorted[j].Class {
				continue
			}
			if common.IoU(anchor, sorted[j]) >= config.IoUThreshold {
				removed[j] = true
			}
		}
	}

	return filtered
}
