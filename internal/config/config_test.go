package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "./data/fish_pics/video1.mp4", cfg.VideoPath)
	assert.Equal(t, "exported_frames", cfg.ExportDir)
	assert.Equal(t, "https://westcentralus.api.cognitive.microsoft.com/vision/v2.0/", cfg.BaseURL)
	assert.Equal(t, "obj", cfg.ObjectName)
	assert.InDelta(t, 0.2, cfg.ConfThresh, 1e-9)
	assert.Equal(t, 2, cfg.SecsPerExport)
	assert.Equal(t, ExtractorFFmpeg, cfg.Extractor)
	assert.Equal(t, 30*time.Second, cfg.BatchPause)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("FRAMESORT_OBJECT_NAME", "fish")
	t.Setenv("FRAMESORT_CONF_THRESH", "0.6")
	t.Setenv("FRAMESORT_BATCH_PAUSE", "1s")
	t.Setenv("VISION_SUBSCRIPTION_KEY", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "fish", cfg.ObjectName)
	assert.InDelta(t, 0.6, cfg.ConfThresh, 1e-9)
	assert.Equal(t, time.Second, cfg.BatchPause)
	assert.Equal(t, "secret", cfg.SubKey)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{ObjectName: "fish", ConfThresh: 0.5, SecsPerExport: 2, BatchSize: 20, Extractor: ExtractorFFmpeg}
	}

	t.Run("valid without key", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("threshold out of range", func(t *testing.T) {
		cfg := valid()
		cfg.ConfThresh = 1.5
		assert.ErrorContains(t, cfg.Validate(), "threshold")
	})

	t.Run("zero seconds per export", func(t *testing.T) {
		cfg := valid()
		cfg.SecsPerExport = 0
		assert.ErrorContains(t, cfg.Validate(), "seconds per export")
	})

	t.Run("blank object name", func(t *testing.T) {
		cfg := valid()
		cfg.ObjectName = "  "
		assert.ErrorContains(t, cfg.Validate(), "object name")
	})

	t.Run("object name escaping the export dir", func(t *testing.T) {
		for _, name := range []string{".", "..", "a/b", "../video2", `..\video2`} {
			cfg := valid()
			cfg.ObjectName = name
			assert.ErrorContains(t, cfg.Validate(), "plain directory name", name)
		}
	})

	t.Run("object name with spaces", func(t *testing.T) {
		cfg := valid()
		cfg.ObjectName = "red car"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("unknown extractor", func(t *testing.T) {
		cfg := valid()
		cfg.Extractor = "vlc"
		assert.ErrorContains(t, cfg.Validate(), "unknown extractor")
	})
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, (&Config{LogLevel: "DEBUG"}).SlogLevel())
	assert.Equal(t, slog.LevelWarn, (&Config{LogLevel: "warn"}).SlogLevel())
	assert.Equal(t, slog.LevelInfo, (&Config{LogLevel: ""}).SlogLevel())
}
