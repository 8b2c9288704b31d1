// Package config - Detector configuration from YAML, .env files and the environment.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-yolo/detector"
	"github.com/nvr-ai/go-yolo/inference"
	"github.com/nvr-ai/go-yolo/models/postprocess"
)

// ModelConfig locates the model and selects how it runs.
type ModelConfig struct {
	Path        string `json:"path"         yaml:"path"`
	LabelsPath  string `json:"labels_path"  yaml:"labels_path"`
	LibraryPath string `json:"library_path" yaml:"library_path"`
	Backend     string `json:"backend"      yaml:"backend"`
	Threads     int    `json:"threads"      yaml:"threads"`
	DeviceID    int    `json:"device_id"    yaml:"device_id"`
}

// ServerConfig controls the websocket result stream. An empty ListenAddr disables it.
type ServerConfig struct {
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"`
	Backlog    int    `json:"backlog"     yaml:"backlog"`
}

// JournalConfig controls the SQLite journal. An empty Path disables it.
type JournalConfig struct {
	Path string `json:"path" yaml:"path"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level string `json:"level" yaml:"level"`
	File  string `json:"file"  yaml:"file"`
}

// Config is the complete detector configuration.
type Config struct {
	Model          ModelConfig            `json:"model"           yaml:"model"`
	Postprocess    postprocess.Config     `json:"postprocess"     yaml:"postprocess"`
	Worker         detector.WorkerOptions `json:"worker"          yaml:"worker"`
	Server         ServerConfig           `json:"server"          yaml:"server"`
	Journal        JournalConfig          `json:"journal"         yaml:"journal"`
	Log            LogConfig              `json:"log"             yaml:"log"`
	ReportInterval time.Duration          `json:"report_interval" yaml:"report_interval"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Path:       "yolov8n.onnx",
			LabelsPath: "",
			Backend:    string(inference.BackendCPU),
		},
		Postprocess: *postprocess.DefaultConfig(),
		Worker: detector.WorkerOptions{
			QueueSize:    2,
			DropWhenBusy: true,
		},
		Server:         ServerConfig{Backlog: 16},
		Log:            LogConfig{Level: "info"},
		ReportInterval: 10 * time.Second,
	}
}

// Load builds the configuration.
//
// Defaults are applied first, then the YAML file at path (if any), then a
// .env file in the working directory (if present), then the environment.
//
// Arguments:
//   - path: A YAML file. Empty skips the file.
//
// Returns:
//   - *Config: The validated configuration.
//   - error: If the file cannot be read or the result is invalid.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read config file")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config file %s", path)
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "load .env")
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Model.Path = getEnv("YOLO_MODEL_PATH", c.Model.Path)
	c.Model.LabelsPath = getEnv("YOLO_LABELS_PATH", c.Model.LabelsPath)
	c.Model.LibraryPath = getEnv("YOLO_LIBRARY_PATH", c.Model.LibraryPath)
	c.Model.Backend = getEnv("YOLO_BACKEND", c.Model.Backend)
	c.Model.Threads = getEnvAsInt("YOLO_THREADS", c.Model.Threads)
	c.Postprocess.ConfidenceThreshold = getEnvAsFloat32("YOLO_CONFIDENCE_THRESHOLD", c.Postprocess.ConfidenceThreshold)
	if c.Postprocess.NMS == nil {
		c.Postprocess.NMS = postprocess.DefaultConfig().NMS
	}
	c.Postprocess.NMS.IoUThreshold = getEnvAsFloat32("YOLO_IOU_THRESHOLD", c.Postprocess.NMS.IoUThreshold)
	c.Worker.QueueSize = getEnvAsInt("YOLO_QUEUE_SIZE", c.Worker.QueueSize)
	c.Server.ListenAddr = getEnv("YOLO_LISTEN_ADDR", c.Server.ListenAddr)
	c.Journal.Path = getEnv("YOLO_JOURNAL_PATH", c.Journal.Path)
	c.Log.Level = getEnv("YOLO_LOG_LEVEL", c.Log.Level)
	c.Log.File = getEnv("YOLO_LOG_FILE", c.Log.File)
}

// Validate checks the configuration for values the detector cannot run with.
func (c *Config) Validate() error {
	if c.Model.Path == "" {
		return errors.New("model path is required")
	}
	if _, err := inference.ParseBackend(c.Model.Backend); err != nil {
		return err
	}
	if err := c.Postprocess.Validate(); err != nil {
		return err
	}
	if c.Worker.QueueSize < 1 {
		return errors.Errorf("queue size must be at least 1, got %d", c.Worker.QueueSize)
	}
	return nil
}

// SessionArgs returns the inference session arguments for this configuration.
func (c *Config) SessionArgs() (inference.SessionArgs, error) {
	backend, err := inference.ParseBackend(c.Model.Backend)
	if err != nil {
		return inference.SessionArgs{}, err
	}
	return inference.SessionArgs{
		ModelPath:   c.Model.Path,
		LibraryPath: c.Model.LibraryPath,
		Backend:     backend,
		Threads:     c.Model.Threads,
		DeviceID:    c.Model.DeviceID,
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(f)
		}
	}
	return defaultValue
}
