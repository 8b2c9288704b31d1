package postprocess

import (
	"fmt"
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// labels is a fixed class set used across the package tests.
type labels []string

func (l labels) Name(index int) (string, error) {
	if index < 0 || index >= len(l) {
		return "", errors.Wrapf(ErrLabelOutOfRange, "index %d", index)
	}
	return l[index], nil
}

// newOutput lays anchor rows of [cx, cy, w, h, class0, class1, ...] out channel-major.
func newOutput(anchors ...[]float32) Output {
	if len(anchors) == 0 {
		return Output{}
	}
	numChannel := len(anchors[0])
	numElements := len(anchors)
	data := make([]float32, numChannel*numElements)
	for a, row := range anchors {
		for c, v := range row {
			data[c*numElements+a] = v
		}
	}
	return Output{Data: data, NumChannel: numChannel, NumElements: numElements}
}

// scenarioA holds two heavily overlapping anchors of different classes.
func scenarioA() Output {
	return newOutput(
		[]float32{.5, .5, .2, .2, .9, .1},
		[]float32{.52, .52, .2, .2, 0, .8},
	)
}

func TestDecode_ScenarioA(t *testing.T) {
	boxes, err := Decode(scenarioA(), DefaultConfidenceThreshold, labels{"cat", "dog"})
	require.NoError(t, err)
	require.Len(t, boxes, 2)

	first := boxes[0]
	assert.Equal(t, 0, first.Class)
	assert.Equal(t, "cat", first.Label)
	assert.Equal(t, float32(.9), first.Confidence)
	assert.InDelta(t, .4, first.X1, 1e-6)
	assert.InDelta(t, .4, first.Y1, 1e-6)
	assert.InDelta(t, .6, first.X2, 1e-6)
	assert.InDelta(t, .6, first.Y2, 1e-6)
	assert.Equal(t, float32(.5), first.CX)
	assert.Equal(t, float32(.2), first.W)

	second := boxes[1]
	assert.Equal(t, 1, second.Class)
	assert.Equal(t, "dog", second.Label)
	assert.Equal(t, float32(.8), second.Confidence)
	assert.InDelta(t, .42, second.X1, 1e-6)
	assert.InDelta(t, .62, second.Y2, 1e-6)
}

func TestDecode_ThresholdStrictness(t *testing.T) {
	threshold := float32(DefaultConfidenceThreshold)
	above := math.Nextafter32(threshold, 1)

	tests := []struct {
		name    string
		classes []float32
		want    int
	}{
		{"Exactly at threshold", []float32{threshold, 0}, 0},
		{"All below threshold", []float32{.1, .29}, 0},
		{"Just above threshold", []float32{0, above}, 1},
		{"Well above threshold", []float32{.95, .2}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := append([]float32{.5, .5, .2, .2}, tt.classes...)
			boxes, err := Decode(newOutput(row), threshold, nil)
			require.NoError(t, err)
			assert.Len(t, boxes, tt.want)
			for _, b := range boxes {
				assert.Greater(t, b.Confidence, threshold)
			}
		})
	}
}

func TestDecode_ClassSelection(t *testing.T) {
	tests := []struct {
		name      string
		classes   []float32
		wantClass int
		wantConf  float32
	}{
		{"Tie keeps lower index", []float32{.7, .7, .2}, 0, .7},
		{"Later higher score wins", []float32{.4, .6, .5}, 1, .6},
		{"Last channel wins", []float32{.31, .32, .99}, 2, .99},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := append([]float32{.5, .5, .2, .2}, tt.classes...)
			boxes, err := Decode(newOutput(row), DefaultConfidenceThreshold, labels{"a", "b", "c"})
			require.NoError(t, err)
			require.Len(t, boxes, 1)
			assert.Equal(t, tt.wantClass, boxes[0].Class)
			assert.Equal(t, tt.wantConf, boxes[0].Confidence)
		})
	}
}

func TestDecode_RangePolicy(t *testing.T) {
	tests := []struct {
		name string
		box  []float32
		kept bool
	}{
		{"Corners exactly 0", []float32{.25, .25, .5, .5}, true},
		{"Corners exactly 1", []float32{.75, .75, .5, .5}, true},
		{"Full frame", []float32{.5, .5, 1, 1}, true},
		{"Left edge below 0", []float32{.25, .5, .501, .2}, false},
		{"Bottom edge above 1", []float32{.5, .75, .2, .501}, false},
		{"Scenario C", []float32{.05, .5, .3, .2}, false},
		{"NaN center", []float32{float32(math.NaN()), .5, .2, .2}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := append(tt.box, .99)
			boxes, err := Decode(newOutput(row), DefaultConfidenceThreshold, nil)
			require.NoError(t, err)
			if !tt.kept {
				assert.Empty(t, boxes)
				return
			}
			require.Len(t, boxes, 1)
			b := boxes[0]
			for _, v := range []float32{b.X1, b.Y1, b.X2, b.Y2} {
				assert.GreaterOrEqual(t, v, float32(0))
				assert.LessOrEqual(t, v, float32(1))
			}
		})
	}
}

func TestDecode_AnchorOrder(t *testing.T) {
	rows := make([][]float32, 0, 5)
	for i := 0; i < 5; i++ {
		rows = append(rows, []float32{.1 + float32(i)*.2, .5, .1, .1, .4 + float32(i)*.1})
	}

	boxes, err := Decode(newOutput(rows...), DefaultConfidenceThreshold, nil)
	require.NoError(t, err)
	require.Len(t, boxes, 5)
	for i := 1; i < len(boxes); i++ {
		assert.Less(t, boxes[i-1].CX, boxes[i].CX, "boxes must follow anchor order")
	}
	assert.Empty(t, boxes[0].Label)
}

func TestDecode_LabelOutOfRange(t *testing.T) {
	out := newOutput([]float32{.5, .5, .2, .2, .1, .9})

	_, err := Decode(out, DefaultConfidenceThreshold, labels{"only-one"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLabelOutOfRange), fmt.Sprintf("unexpected error: %v", err))
}

func TestDecode_ShortTensor(t *testing.T) {
	out := scenarioA()
	out.Data = out.Data[:len(out.Data)-1]

	_, err := Decode(out, DefaultConfidenceThreshold, nil)
	assert.True(t, errors.Is(err, ErrShortTensor))
}
