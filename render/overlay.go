// Package render - Draws detections onto frames.
package render

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-yolo/common"
)

// Style controls how boxes and labels are drawn.
type Style struct {
	BoxColor   color.RGBA
	TextColor  color.RGBA
	Thickness  int
	FontScale  float64
	ShowScores bool
}

// DefaultStyle draws green boxes with black text on a filled label background.
var DefaultStyle = Style{
	BoxColor:   color.RGBA{0, 255, 0, 0},
	TextColor:  color.RGBA{0, 0, 0, 0},
	Thickness:  2,
	FontScale:  1.2,
	ShowScores: true,
}

// Label returns the caption drawn above a box.
func (s Style) Label(box common.BoundingBox) string {
	name := box.Label
	if name == "" {
		name = fmt.Sprintf("class %d", box.Class)
	}
	if !s.ShowScores {
		return name
	}
	return fmt.Sprintf("%s %.2f", name, box.Confidence)
}

// Overlay draws boxes with normalised coordinates onto mat using DefaultStyle.
func Overlay(mat *gocv.Mat, boxes []common.BoundingBox) {
	OverlayWithStyle(mat, boxes, DefaultStyle)
}

// OverlayWithStyle draws each box scaled to the Mat size, then its label on a
// filled background just above the box top edge.
func OverlayWithStyle(mat *gocv.Mat, boxes []common.BoundingBox, style Style) {
	if mat == nil || mat.Empty() {
		return
	}
	width, height := mat.Cols(), mat.Rows()

	for _, box := range boxes {
		rect := box.ToRect(width, height)
		gocv.Rectangle(mat, rect, style.BoxColor, style.Thickness)

		label := style.Label(box)
		size := gocv.GetTextSize(label, gocv.FontHersheyPlain, style.FontScale, style.Thickness)
		background := LabelRect(rect, size, height)
		gocv.Rectangle(mat, background, style.BoxColor, -1)
		gocv.PutText(mat, label, image.Pt(background.Min.X, background.Max.Y-style.Thickness),
			gocv.FontHersheyPlain, style.FontScale, style.TextColor, style.Thickness)
	}
}

// LabelRect places a text box of the given size above rect, or inside its top
// edge when there is no room above the frame.
func LabelRect(rect image.Rectangle, text image.Point, frameHeight int) image.Rectangle {
	const pad = 4
	h := text.Y + pad
	top := rect.Min.Y - h
	if top < 0 {
		top = rect.Min.Y
	}
	if top+h > frameHeight {
		top = frameHeight - h
	}
	return image.Rect(rect.Min.X, top, rect.Min.X+text.X+pad, top+h)
}
