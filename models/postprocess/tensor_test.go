package postprocess

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func TestOutput_Ready(t *testing.T) {
	tests := []struct {
		name  string
		out   Output
		ready bool
	}{
		{"Unset shape", Output{}, false},
		{"No anchors", Output{NumChannel: 6}, false},
		{"No class channels", Output{NumChannel: 4, NumElements: 10}, false},
		{"Single class", Output{NumChannel: 5, NumElements: 1}, true},
		{"COCO", Output{NumChannel: 84, NumElements: 8400}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.ready, tt.out.Ready())
		})
	}
}

func TestFromTensor(t *testing.T) {
	want := scenarioA()
	backing := append([]float32(nil), want.Data...)

	t.Run("Batched", func(t *testing.T) {
		dense := tensor.New(tensor.WithShape(1, 6, 2), tensor.WithBacking(backing))
		out, err := FromTensor(dense)
		require.NoError(t, err)
		assert.Equal(t, want, out)
	})

	t.Run("Unbatched", func(t *testing.T) {
		dense := tensor.New(tensor.WithShape(6, 2), tensor.WithBacking(backing))
		out, err := FromTensor(dense)
		require.NoError(t, err)
		assert.Equal(t, 6, out.NumChannel)
		assert.Equal(t, 2, out.NumElements)
	})

	t.Run("Float64", func(t *testing.T) {
		dense := tensor.New(tensor.WithShape(1, 6, 2), tensor.Of(tensor.Float64))
		_, err := FromTensor(dense)
		assert.True(t, errors.Is(err, ErrTensorShape))
	})

	t.Run("Batch of two", func(t *testing.T) {
		dense := tensor.New(tensor.WithShape(2, 6, 1), tensor.WithBacking(backing))
		_, err := FromTensor(dense)
		assert.True(t, errors.Is(err, ErrTensorShape))
	})

	t.Run("Four dimensions", func(t *testing.T) {
		dense := tensor.New(tensor.WithShape(1, 1, 6, 2), tensor.WithBacking(backing))
		_, err := FromTensor(dense)
		assert.True(t, errors.Is(err, ErrTensorShape))
	})
}

func TestFromAnchorMajor(t *testing.T) {
	// Rows are anchors, columns are channels.
	rows := []float32{
		.5, .5, .2, .2, .9, .1,
		.52, .52, .2, .2, 0, .8,
	}
	dense := tensor.New(tensor.WithShape(1, 2, 6), tensor.WithBacking(rows))

	out, err := FromAnchorMajor(dense)
	require.NoError(t, err)
	assert.Equal(t, scenarioA(), out)

	// The source tensor keeps its layout.
	assert.Equal(t, tensor.Shape{1, 2, 6}, dense.Shape())
	assert.Equal(t, float32(.5), rows[1])
}
