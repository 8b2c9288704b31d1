// Package common - Types shared by the post-processing pipeline and its consumers.
package common

import (
	"fmt"
	"image"

	"github.com/chewxy/math32"
)

// BoundingBox represents a decoded detection in normalized [0, 1] model coordinates.
type BoundingBox struct {
	// Corners derived from the decoded center and size.
	X1, Y1, X2, Y2 float32
	// Center and size exactly as read from the output tensor.
	CX, CY, W, H float32
	// Confidence of the winning class.
	Confidence float32
	// Class is the index of the winning class channel.
	Class int
	// Label is the resolved class name. Empty when no class set was supplied.
	Label string
}

// String formats the bounding box information for display.
func (b *BoundingBox) String() string {
	return fmt.Sprintf("Object %s (confidence %f): (%f, %f), (%f, %f)",
		b.Label, b.Confidence, b.X1, b.Y1, b.X2, b.Y2)
}

// Area returns the area computed from the decoded width and height.
//
// The corners are not used so the value is exactly W*H, including negative or
// non-finite results for malformed boxes.
func (b *BoundingBox) Area() float32 {
	return b.W * b.H
}

// ToRect scales the normalized corners to a frame of the given size.
//
// Arguments:
//   - width: The width of the target frame in pixels.
//   - height: The height of the target frame in pixels.
//
// Returns:
//   - An image.Rectangle with canonicalized pixel coordinates.
//
// @example
// box := BoundingBox{X1: 0.25, Y1: 0.25, X2: 0.75, Y2: 0.5}
// rect := box.ToRect(640, 480) // (160,120)-(480,240)
func (b *BoundingBox) ToRect(width, height int) image.Rectangle {
	w := float32(width)
	h := float32(height)
	return image.Rect(int(b.X1*w), int(b.Y1*h), int(b.X2*w), int(b.Y2*h)).Canon()
}

// IoU calculates the Intersection over Union between two bounding boxes.
//
// This metric is used by Non-Maximum Suppression to remove duplicate detections.
//
// Arguments:
//   - other: The other bounding box to calculate IoU with.
//
// Returns:
//   - The IoU value between 0 and 1.
func (b *BoundingBox) IoU(other *BoundingBox) float32 {
	return IoU(*b, *other)
}

// IoU computes the Intersection over Union of two boxes.
//
// The intersection rectangle is bounded by the maximum of the top-left corners
// and the minimum of the bottom-right corners; a non-positive width or height
// means no overlap. The union follows inclusion-exclusion:
//
//	Union(A, B) = Area(A) + Area(B) - Intersection(A, B)
//
// Areas come from the decoded W and H fields rather than the corners. A union
// that is not strictly positive (zero-area boxes, negative or NaN sizes)
// reports no overlap instead of dividing by zero.
//
// Arguments:
//   - a: The first box.
//   - b: The second box.
//
// Returns:
//   - float32: The IoU score in [0, 1] for well-formed boxes, 0 otherwise.
//
// Example Usage:
// ```go
//
//	a := BoundingBox{X1: .4, Y1: .4, X2: .6, Y2: .6, W: .2, H: .2}
//	b := BoundingBox{X1: .42, Y1: .42, X2: .62, Y2: .62, W: .2, H: .2}
//	score := IoU(a, b) // 0.0324 / 0.0476 ≈ 0.68
//
// ```
func IoU(a, b BoundingBox) float32 {
	ix1 := math32.Max(a.X1, b.X1)
	iy1 := math32.Max(a.Y1, b.Y1)
	ix2 := math32.Min(a.X2, b.X2)
	iy2 := math32.Min(a.Y2, b.Y2)

	intersection := math32.Max(0, ix2-ix1) * math32.Max(0, iy2-iy1)
	union := a.Area() + b.Area() - intersection

	// NaN compares false here as well.
	if !(union > 0) {
		return 0
	}
	return intersection / union
}
