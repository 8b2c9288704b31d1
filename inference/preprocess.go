package inference

import (
	"image"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// PrepareInput resizes an image to the model input size and writes it to dst
// as planar RGB (CHW) scaled to [0, 1].
//
// Arguments:
//   - img: The image to prepare.
//   - width: The model input width.
//   - height: The model input height.
//   - dst: The destination buffer, at least 3*width*height long.
//
// Returns:
//   - error: If the size is invalid or dst is too small.
func PrepareInput(img image.Image, width, height int, dst []float32) error {
	if width <= 0 || height <= 0 {
		return errors.Errorf("invalid input size %dx%d", width, height)
	}
	channelSize := width * height
	if len(dst) < channelSize*3 {
		return errors.Errorf("destination holds %d floats, needs %d", len(dst), channelSize*3)
	}
	red := dst[0:channelSize]
	green := dst[channelSize : channelSize*2]
	blue := dst[channelSize*2 : channelSize*3]

	// Same-size images are returned untouched, possibly with a non-zero origin.
	img = resize.Resize(uint(width), uint(height), img, resize.Lanczos3)
	origin := img.Bounds().Min

	i := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(origin.X+x, origin.Y+y).RGBA()
			red[i] = float32(r>>8) / 255.0
			green[i] = float32(g>>8) / 255.0
			blue[i] = float32(b>>8) / 255.0
			i++
		}
	}
	return nil
}
