package config

import (
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/MeKo-Tech/foodlens/internal/food"
	"github.com/MeKo-Tech/foodlens/internal/preprocess"
	"github.com/MeKo-Tech/foodlens/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, BackendModel, cfg.Classifier.Backend)
	assert.Equal(t, 224, cfg.Classifier.ImageSize)
	assert.InDelta(t, 0.6, cfg.Classifier.ConfidenceThreshold, 1e-9)
	assert.Equal(t, 60, cfg.Classifier.RetryMinConfidence)
	assert.Equal(t, 300*time.Millisecond, cfg.RetryDelay())
	assert.Equal(t, time.Minute, cfg.FallbackBucket())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.False(t, cfg.Server.RateLimit.Enabled)
	assert.False(t, cfg.GPU.UseGPU)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"log level", func(c *Config) { c.LogLevel = "trace" }},
		{"backend", func(c *Config) { c.Classifier.Backend = "remote" }},
		{"threshold above one", func(c *Config) { c.Classifier.ConfidenceThreshold = 1.5 }},
		{"threshold negative", func(c *Config) { c.Classifier.ConfidenceThreshold = -0.1 }},
		{"retry confidence", func(c *Config) { c.Classifier.RetryMinConfidence = 101 }},
		{"image size", func(c *Config) { c.Classifier.ImageSize = 0 }},
		{"top n", func(c *Config) { c.Classifier.TopN = 0 }},
		{"max retries", func(c *Config) { c.Classifier.MaxRetries = -1 }},
		{"retry delay", func(c *Config) { c.Classifier.RetryDelayMs = -5 }},
		{"reload backoff", func(c *Config) { c.Classifier.ReloadBackoffSec = -1 }},
		{"filter", func(c *Config) { c.Classifier.Filter = "bicubic-ish" }},
		{"port", func(c *Config) { c.Server.Port = 70000 }},
		{"upload", func(c *Config) { c.Server.MaxUploadMB = 0 }},
		{"timeout", func(c *Config) { c.Server.TimeoutSec = 0 }},
		{"results limit", func(c *Config) { c.Places.ResultsLimit = 0 }},
		{"max distance", func(c *Config) { c.Places.MaxDistanceKm = -1 }},
		{"default location", func(c *Config) { c.Places.DefaultLatitude = 100 }},
		{"gpu", func(c *Config) { c.GPU.UseGPU = true; c.GPU.DeviceID = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSlogLevel(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
	cfg.LogLevel = "error"
	assert.Equal(t, slog.LevelError, cfg.SlogLevel())
	cfg.Verbose = true
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestAssetPaths(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.ModelsDir = dir

	assert.Equal(t, filepath.Join(dir, "food_classifier.onnx"), cfg.ModelPath())
	assert.Equal(t, filepath.Join(dir, "food_labels.txt"), cfg.LabelsPath())
	assert.Empty(t, cfg.MappingPath())

	cfg.Classifier.ModelPath = "/m.onnx"
	cfg.Classifier.LabelsPath = "/l.txt"
	cfg.Classifier.MappingPath = "/map.yaml"
	assert.Equal(t, "/m.onnx", cfg.ModelPath())
	assert.Equal(t, "/l.txt", cfg.LabelsPath())
	assert.Equal(t, "/map.yaml", cfg.MappingPath())
}

func TestConversions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ModelsDir = t.TempDir()
	cfg.Classifier.ImageSize = 256
	cfg.Classifier.OutputLogits = true
	cfg.Classifier.NumThreads = 2
	cfg.Classifier.ConfidenceThreshold = 0.75
	cfg.Server.MaxUploadMB = 5

	mc := cfg.ToModelConfig(nil)
	assert.Equal(t, cfg.ModelPath(), mc.ModelPath)
	assert.Equal(t, 256, mc.ImageSize)
	assert.True(t, mc.OutputLogits)
	assert.Equal(t, 2, mc.NumThreads)

	pc := cfg.ToPreprocessConfig()
	assert.Equal(t, 256, pc.Size)
	assert.Equal(t, int64(5<<20), pc.MaxBytes)
	assert.Equal(t, int64(preprocess.DefaultMaxPixels), pc.MaxPixels)
	assert.Equal(t, provider.DefaultRetryBackoff, cfg.ReloadBackoff())

	g := cfg.Gate()
	assert.Equal(t, 75, g.MinConfidence())
	assert.True(t, g.IsConfident(food.ClassificationResult{Category: food.Sushi, Confidence: 75}))
	assert.False(t, g.IsConfident(food.ClassificationResult{Category: food.Sushi, Confidence: 74}))
}
