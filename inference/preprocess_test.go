package inference

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareInput_Layout(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	img.Set(1, 0, color.RGBA{G: 255, A: 255})
	img.Set(0, 1, color.RGBA{B: 255, A: 255})
	img.Set(1, 1, color.RGBA{R: 51, G: 102, B: 204, A: 255})

	dst := make([]float32, 12)
	require.NoError(t, PrepareInput(img, 2, 2, dst))

	want := []float32{
		1, 0, 0, 0.2, // red plane
		0, 1, 0, 0.4, // green plane
		0, 0, 1, 0.8, // blue plane
	}
	assert.InDeltaSlice(t, want, dst, 1e-6)
}

func TestPrepareInput_SubImageOrigin(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(2, 2, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	sub := img.SubImage(image.Rect(2, 2, 3, 3))

	dst := make([]float32, 3)
	require.NoError(t, PrepareInput(sub, 1, 1, dst))
	assert.InDeltaSlice(t, []float32{1, 1, 1}, dst, 1e-6)
}

func TestPrepareInput_Resize(t *testing.T) {
	img := image.NewUniform(color.RGBA{R: 255, A: 255})
	src := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			src.Set(x, y, img.C)
		}
	}

	dst := make([]float32, 3*16*16)
	require.NoError(t, PrepareInput(src, 16, 16, dst))
	for i := 0; i < 16*16; i++ {
		assert.InDelta(t, 1.0, dst[i], 1e-2)
		assert.InDelta(t, 0.0, dst[16*16+i], 1e-2)
	}
}

func TestPrepareInput_Errors(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	assert.Error(t, PrepareInput(img, 2, 2, make([]float32, 11)))
	assert.Error(t, PrepareInput(img, 0, 2, make([]float32, 12)))
}

func TestParseBackend(t *testing.T) {
	tests := []struct {
		in   string
		want Backend
	}{
		{"", BackendCPU},
		{"CPU", BackendCPU},
		{"gpu", BackendCUDA},
		{"cuda", BackendCUDA},
		{" coreml ", BackendCoreML},
	}
	for _, tt := range tests {
		got, err := ParseBackend(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseBackend("tpu")
	assert.ErrorIs(t, err, ErrUnknownBackend)
	assert.True(t, BackendCUDA.Accelerated())
	assert.False(t, BackendCPU.Accelerated())
}
