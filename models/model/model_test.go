package model

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewShape(t *testing.T) {
	tests := []struct {
		name   string
		input  []int64
		output []int64
		want   Shape
		ready  bool
	}{
		{
			name:   "NCHW",
			input:  []int64{1, 3, 640, 480},
			output: []int64{1, 84, 8400},
			want:   Shape{InputWidth: 480, InputHeight: 640, NumChannel: 84, NumElements: 8400},
			ready:  true,
		},
		{
			name:   "NHWC",
			input:  []int64{1, 320, 320, 3},
			output: []int64{1, 6, 2100},
			want:   Shape{InputWidth: 320, InputHeight: 320, NumChannel: 6, NumElements: 2100},
			ready:  true,
		},
		{
			name:   "Dynamic spatial dimensions",
			input:  []int64{1, 3, -1, -1},
			output: []int64{1, 84, -1},
			want:   Shape{NumChannel: 84},
			ready:  false,
		},
		{
			name:   "No class channels",
			input:  []int64{1, 3, 640, 640},
			output: []int64{1, 4, 8400},
			want:   Shape{InputWidth: 640, InputHeight: 640, NumChannel: 4, NumElements: 8400},
			ready:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewShape(tt.input, tt.output)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ready, got.Ready())
		})
	}
}

func TestNewShape_Rank(t *testing.T) {
	_, err := NewShape([]int64{3, 640, 640}, []int64{1, 84, 8400})
	require.Error(t, err)
	assert.EqualError(t, err, "expected a rank 4 input, got [3 640 640]")

	_, err = NewShape([]int64{1, 3, 640, 640}, []int64{84, 8400})
	require.Error(t, err)
	assert.EqualError(t, err, "expected a rank 3 output, got [84 8400]")

	// The errors carry a stack for %+v logging.
	_, ok := err.(interface{ StackTrace() errors.StackTrace })
	assert.True(t, ok)
}

func TestShape_Sizes(t *testing.T) {
	s := Shape{InputWidth: 640, InputHeight: 640, NumChannel: 84, NumElements: 8400}
	assert.Equal(t, 80, s.NumClasses())
	assert.Equal(t, 3*640*640, s.InputSize())
	assert.Equal(t, 84*8400, s.OutputSize())
	assert.Equal(t, "input=640x640 output=[1,84,8400]", s.String())
	assert.Equal(t, 0, Shape{}.NumClasses())
}
