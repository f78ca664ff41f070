package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	ExtractorFFmpeg = "ffmpeg"
	ExtractorOpenCV = "opencv"
)

// Config holds every setting of a run. Values come from the environment
// (optionally a .env file) and are overridden by command line flags.
type Config struct {
	VideoPath     string  `env:"FRAMESORT_VIDEO_PATH"  envDefault:"./data/fish_pics/video1.mp4"`
	ExportDir     string  `env:"FRAMESORT_EXPORT_DIR"  envDefault:"exported_frames"`
	SubKey        string  `env:"VISION_SUBSCRIPTION_KEY"`
	BaseURL       string  `env:"VISION_BASE_URL"       envDefault:"https://westcentralus.api.cognitive.microsoft.com/vision/v2.0/"`
	ObjectName    string  `env:"FRAMESORT_OBJECT_NAME" envDefault:"obj"`
	ConfThresh    float64 `env:"FRAMESORT_CONF_THRESH" envDefault:"0.2"`
	SecsPerExport int     `env:"FRAMESORT_SECS_PE"     envDefault:"2"`

	Extractor   string        `env:"FRAMESORT_EXTRACTOR"    envDefault:"ffmpeg"`
	BatchSize   int           `env:"FRAMESORT_BATCH_SIZE"   envDefault:"20"`
	BatchPause  time.Duration `env:"FRAMESORT_BATCH_PAUSE"  envDefault:"30s"`
	HTTPTimeout time.Duration `env:"FRAMESORT_HTTP_TIMEOUT" envDefault:"30s"`
	LogLevel    string        `env:"LOG_LEVEL"              envDefault:"info"`

	DatabaseURL string `env:"DATABASE_URL"`

	MinIOEndpoint  string `env:"MINIO_ENDPOINT"`
	MinIOAccessKey string `env:"MINIO_ACCESS_KEY"`
	MinIOSecretKey string `env:"MINIO_SECRET_KEY"`
	MinIOUseSSL    bool   `env:"MINIO_USE_SSL"    envDefault:"false"`
	MinIOBucket    string `env:"MINIO_BUCKET"     envDefault:"framesort"`

	PushgatewayURL string `env:"PUSHGATEWAY_URL"`
}

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings needed before anything touches disk. The
// subscription key is checked by the vision client, since a run that reuses
// an existing result table never calls the API.
func (c *Config) Validate() error {
	if c.ConfThresh < 0 || c.ConfThresh > 1 {
		return fmt.Errorf("confidence threshold must be within [0,1], got %v", c.ConfThresh)
	}
	if c.SecsPerExport < 1 {
		return fmt.Errorf("seconds per export must be at least 1, got %d", c.SecsPerExport)
	}
	if strings.TrimSpace(c.ObjectName) == "" {
		return errors.New("object name must not be empty")
	}
	if name := c.ObjectName; name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return fmt.Errorf("object name %q must be a plain directory name", name)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be at least 1, got %d", c.BatchSize)
	}
	switch c.Extractor {
	case ExtractorFFmpeg, ExtractorOpenCV:
	default:
		return fmt.Errorf("unknown extractor %q (want %s or %s)", c.Extractor, ExtractorFFmpeg, ExtractorOpenCV)
	}
	return nil
}

// SlogLevel maps LogLevel onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
