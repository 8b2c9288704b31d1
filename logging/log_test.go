package logging

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_Level(t *testing.T) {
	l, err := newLogger(Options{Level: "debug", NoColors: true})
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())

	l, err = newLogger(Options{Level: "loud"})
	assert.Error(t, err)
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
}

func TestHelpers(t *testing.T) {
	var buf bytes.Buffer
	l := Logger()
	l.SetOutput(&buf)
	l.SetLevel(logrus.DebugLevel)

	Info(Fields{"boxes": 3}, "[logging.TestHelpers] detected")
	Debug(nil, "[logging.TestHelpers] nil fields")
	WithFrame("abc").Warn("dropped")
	Warn(Fields{"backend": "cuda"}, "[logging.TestHelpers] fallback")
	Error(Fields{"frame_id": "xyz"}, "[logging.TestHelpers] failed")

	out := buf.String()
	assert.Contains(t, out, "detected")
	assert.Contains(t, out, "boxes")
	assert.Contains(t, out, "nil fields")
	assert.Contains(t, out, "abc")
	assert.Contains(t, out, "fallback")
	assert.Contains(t, out, "xyz")
}

func TestNewFrameID(t *testing.T) {
	a, b := NewFrameID(), NewFrameID()
	assert.NotEqual(t, a, b)
	_, err := uuid.Parse(a)
	assert.NoError(t, err)
}
