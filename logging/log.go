// Package logging - Process-wide structured logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"strings"
	"sync"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger *logrus.Logger
	once   sync.Once
)

// FrameIDKey is the field name carrying a frame identifier.
const FrameIDKey = "frame_id"

// Fields is a set of structured log fields.
type Fields = logrus.Fields

// Options configures the logger.
type Options struct {
	// Level is a logrus level name. Empty means info.
	Level string
	// File enables a rotated log file in addition to stderr.
	File string
	// NoColors disables ANSI colours on stderr.
	NoColors bool
}

// Setup configures the process logger. Only the first call has any effect;
// logging before Setup uses the defaults.
func Setup(opts Options) (*logrus.Logger, error) {
	var err error
	once.Do(func() {
		logger, err = newLogger(opts)
	})
	return logger, err
}

// Logger returns the process logger, configuring it with defaults if needed.
func Logger() *logrus.Logger {
	once.Do(func() {
		logger, _ = newLogger(Options{})
	})
	return logger
}

func newLogger(opts Options) (*logrus.Logger, error) {
	l := logrus.New()

	level := logrus.InfoLevel
	var err error
	if opts.Level != "" {
		if level, err = logrus.ParseLevel(opts.Level); err != nil {
			level = logrus.InfoLevel
		}
	}
	l.SetLevel(level)

	l.SetFormatter(&formatter.Formatter{
		NoColors:        opts.NoColors,
		TimestampFormat: "02 Jan 06 - 15:04:05.000",
		HideKeys:        false,
		CallerFirst:     true,
		CustomCallerFormatter: func(f *runtime.Frame) string {
			s := strings.Split(f.Function, ".")
			funcName := s[len(s)-1]
			return fmt.Sprintf(" \x1b[%dm[%s:%d][%s()]", 34, path.Base(f.File), f.Line, funcName)
		},
	})

	writers := []io.Writer{os.Stderr}
	if opts.File != "" && os.Getenv("APP_ENV") != "test" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			LocalTime:  true,
			Compress:   true,
			MaxSize:    100,
			MaxAge:     7,
			MaxBackups: 3,
		})
	}

	l.SetOutput(io.MultiWriter(writers...))
	l.SetReportCaller(true)
	return l, err
}

func entry(fields Fields) *logrus.Entry {
	if fields == nil {
		fields = Fields{}
	}
	return Logger().WithFields(fields)
}

// Debug logs msg at debug level with the given fields.
func Debug(fields Fields, msg string) {
	entry(fields).Debug(msg)
}

// Info logs msg at info level with the given fields.
func Info(fields Fields, msg string) {
	entry(fields).Info(msg)
}

// Warn logs msg at warning level with the given fields.
func Warn(fields Fields, msg string) {
	entry(fields).Warn(msg)
}

// Error logs msg at error level with the given fields.
func Error(fields Fields, msg string) {
	entry(fields).Error(msg)
}

// Fatal logs msg at fatal level and exits the process.
func Fatal(fields Fields, msg string) {
	entry(fields).Fatal(msg)
}

// NewFrameID returns a random identifier for a frame.
func NewFrameID() string {
	id, err := uuid.NewRandom()
	if err != nil {
		Error(Fields{"error": err.Error()}, "[logging.NewFrameID] failed to generate frame ID")
		return "unknown"
	}
	return id.String()
}

// WithFrame returns an entry tagged with a frame identifier.
func WithFrame(frameID string) *logrus.Entry {
	if frameID == "" {
		frameID = "unknown"
	}
	return Logger().WithField(FrameIDKey, frameID)
}
