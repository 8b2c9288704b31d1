package postprocess

import (
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// randomOutput fills a tensor with scores that mostly stay below the default threshold.
func randomOutput(r *rand.Rand, numClasses, numElements int) Output {
	rows := make([][]float32, 0, numElements)
	for a := 0; a < numElements; a++ {
		row := []float32{
			.2 + r.Float32()*.6,
			.2 + r.Float32()*.6,
			.05 + r.Float32()*.4,
			.05 + r.Float32()*.4,
		}
		for c := 0; c < numClasses; c++ {
			row = append(row, r.Float32()*r.Float32())
		}
		rows = append(rows, row)
	}
	return newOutput(rows...)
}

func TestProcess_ScenarioA(t *testing.T) {
	result, err := Process(scenarioA(), labels{"cat", "dog"}, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, StatusDetected, result.Status)
	assert.True(t, result.Detected())
	require.Len(t, result.Boxes, 1)
	assert.Equal(t, "cat", result.Boxes[0].Label)
	assert.Equal(t, float32(.9), result.Boxes[0].Confidence)
}

func TestProcess_ScenarioB(t *testing.T) {
	out := newOutput(
		[]float32{.5, .5, .2, .2, .3, .1},
		[]float32{.4, .4, .2, .2, .0, .3},
		[]float32{.6, .6, .2, .2, .25, .29},
	)

	result, err := Process(out, labels{"cat", "dog"}, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, StatusEmpty, result.Status)
	assert.False(t, result.Detected())
	assert.Nil(t, result.Boxes)
}

func TestProcess_ScenarioC(t *testing.T) {
	out := newOutput([]float32{.05, .5, .3, .2, .99, 0})

	result, err := Process(out, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusEmpty, result.Status)
}

func TestProcess_NotReady(t *testing.T) {
	tests := []struct {
		name string
		out  Output
	}{
		{"Zero channels", Output{NumElements: 8400}},
		{"Zero anchors", Output{NumChannel: 84}},
		{"Box channels only", Output{Data: make([]float32, 8), NumChannel: 4, NumElements: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Process(tt.out, labels{}, DefaultConfig())
			require.NoError(t, err)
			assert.Equal(t, StatusNotReady, result.Status)
			assert.Nil(t, result.Boxes)
		})
	}
}

func TestProcess_Thresholds(t *testing.T) {
	out := scenarioA()

	// A loose IoU threshold keeps both overlapping boxes.
	result, err := Process(out, nil, &Config{ConfidenceThreshold: .3, NMS: &NMSConfig{IoUThreshold: .9}})
	require.NoError(t, err)
	assert.Len(t, result.Boxes, 2)

	// A strict confidence threshold drops the second anchor before suppression.
	result, err = Process(out, nil, &Config{ConfidenceThreshold: .85, NMS: &NMSConfig{IoUThreshold: .9}})
	require.NoError(t, err)
	assert.Len(t, result.Boxes, 1)

	// Missing NMS settings fall back to the defaults.
	result, err = Process(out, nil, &Config{ConfidenceThreshold: .3})
	require.NoError(t, err)
	assert.Len(t, result.Boxes, 1)
}

func TestProcess_LabelMismatch(t *testing.T) {
	result, err := Process(scenarioA(), labels{"cat"}, DefaultConfig())
	assert.True(t, errors.Is(err, ErrLabelOutOfRange))

	// A failed call never reads as a processed or pending frame.
	assert.Equal(t, StatusInvalid, result.Status)
	assert.NotEqual(t, StatusNotReady, result.Status)
	assert.False(t, result.Detected())
	assert.Nil(t, result.Boxes)
}

func TestStatus_ZeroValue(t *testing.T) {
	var result Result
	assert.Equal(t, StatusInvalid, result.Status)
	assert.Equal(t, "invalid", result.Status.String())
	assert.Equal(t, "not_ready", StatusNotReady.String())
	assert.Equal(t, "empty", StatusEmpty.String())
	assert.Equal(t, "detected", StatusDetected.String())
}

func TestProcess_Deterministic(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	out := randomOutput(r, 5, 500)
	names := labels{"a", "b", "c", "d", "e"}

	first, err := Process(out, names, DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, StatusDetected, first.Status)

	for i := 0; i < 5; i++ {
		again, err := Process(out, names, DefaultConfig())
		require.NoError(t, err)
		assert.Equal(t, first.Boxes, again.Boxes)
	}

	for _, b := range first.Boxes {
		assert.Greater(t, b.Confidence, float32(DefaultConfidenceThreshold))
		assert.GreaterOrEqual(t, b.X1, float32(0))
		assert.LessOrEqual(t, b.X2, float32(1))
		assert.GreaterOrEqual(t, b.Y1, float32(0))
		assert.LessOrEqual(t, b.Y2, float32(1))
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
		valid  bool
	}{
		{"Defaults", DefaultConfig(), true},
		{"Negative confidence", &Config{ConfidenceThreshold: -.1, NMS: &NMSConfig{IoUThreshold: .5}}, false},
		{"IoU above one", &Config{ConfidenceThreshold: .3, NMS: &NMSConfig{IoUThreshold: 1.5}}, false},
		{"Missing NMS", &Config{ConfidenceThreshold: .3}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

// BenchmarkProcess measures post-processing of a COCO-sized output.
func BenchmarkProcess(b *testing.B) {
	r := rand.New(rand.NewSource(1))
	out := randomOutput(r, 80, 8400)
	config := DefaultConfig()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Process(out, nil, config); err != nil {
			b.Fatal(err)
		}
	}

	b.ReportMetric(float64(b.Elapsed().Nanoseconds())/float64(b.N)/1e6, "ms/frame")
}
