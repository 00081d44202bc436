package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MeKo-Tech/foodlens/internal/classifier"
	"github.com/MeKo-Tech/foodlens/internal/food"
	"github.com/MeKo-Tech/foodlens/internal/models"
	"github.com/MeKo-Tech/foodlens/internal/onnx"
	"github.com/MeKo-Tech/foodlens/internal/places"
	"github.com/MeKo-Tech/foodlens/internal/preprocess"
	"github.com/MeKo-Tech/foodlens/internal/provider"
)

// Classifier backends.
const (
	BackendModel = "model"
	BackendMock  = "mock"
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	pre := preprocess.DefaultConfig()
	return Config{
		ModelsDir: models.DefaultModelsDir,
		LogLevel:  "info",
		Verbose:   false,
		Classifier: ClassifierConfig{
			Backend:             BackendModel,
			ImageSize:           pre.Size,
			Filter:              pre.Filter,
			TopN:                classifier.DefaultTopN,
			MaxImagePixels:      pre.MaxPixels,
			ConfidenceThreshold: food.DefaultConfidenceThreshold,
			RetryMinConfidence:  food.DefaultMinConfidence,
			MaxRetries:          2,
			RetryDelayMs:        int(classifier.DefaultRetryDelay / time.Millisecond),
			FallbackBucketSec:   int(classifier.DefaultFallbackBucket / time.Second),
			LoadOnStart:         true,
			LoadTimeoutSec:      60,
			ReloadBackoffSec:    int(provider.DefaultRetryBackoff / time.Second),
			MockDelayMs:         1500,
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     20,
			TimeoutSec:      30,
			ShutdownTimeout: 10,
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 60,
				RequestsPerHour:   1000,
			},
		},
		Places: PlacesConfig{
			ResultsLimit:     places.DefaultLimit,
			DefaultLatitude:  places.DefaultLocation.Latitude,
			DefaultLongitude: places.DefaultLocation.Longitude,
		},
		GPU: onnx.DefaultGPUConfig(),
	}
}

// Validate validates the configuration and returns the first error found.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	validBackends := []string{BackendModel, BackendMock}
	if !contains(validBackends, c.Classifier.Backend) {
		return fmt.Errorf("invalid classifier backend: %s (must be one of: %s)",
			c.Classifier.Backend, strings.Join(validBackends, ", "))
	}

	if err := validateThreshold(c.Classifier.ConfidenceThreshold, "classifier.confidence_threshold"); err != nil {
		return err
	}
	if c.Classifier.RetryMinConfidence < food.MinConfidence || c.Classifier.RetryMinConfidence > food.MaxConfidence {
		return fmt.Errorf("invalid classifier.retry_min_confidence: %d (must be between 0 and 100)", c.Classifier.RetryMinConfidence)
	}
	if c.Classifier.ImageSize <= 0 {
		return fmt.Errorf("invalid image size: %d (must be positive)", c.Classifier.ImageSize)
	}
	if c.Classifier.TopN <= 0 {
		return fmt.Errorf("invalid top_n: %d (must be positive)", c.Classifier.TopN)
	}
	if c.Classifier.MaxRetries < 0 {
		return fmt.Errorf("invalid max retries: %d (must not be negative)", c.Classifier.MaxRetries)
	}
	if c.Classifier.RetryDelayMs < 0 || c.Classifier.FallbackBucketSec < 0 || c.Classifier.MockDelayMs < 0 ||
		c.Classifier.ReloadBackoffSec < 0 {
		return errors.New("classifier durations must not be negative")
	}
	if err := c.ToPreprocessConfig().Validate(); err != nil {
		return fmt.Errorf("invalid preprocessing settings: %w", err)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}

	if c.Places.ResultsLimit <= 0 {
		return fmt.Errorf("invalid places results limit: %d (must be positive)", c.Places.ResultsLimit)
	}
	if c.Places.MaxDistanceKm < 0 {
		return fmt.Errorf("invalid places max distance: %.2f (must not be negative)", c.Places.MaxDistanceKm)
	}
	if err := c.DefaultLocation().Validate(); err != nil {
		return fmt.Errorf("invalid places default location: %w", err)
	}

	if err := onnx.ValidateGPUConfig(c.GPU); err != nil {
		return fmt.Errorf("invalid GPU settings: %w", err)
	}
	return nil
}

// SlogLevel maps the configured log level, honouring Verbose.
func (c *Config) SlogLevel() slog.Level {
	if c.Verbose {
		return slog.LevelDebug
	}
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ModelPath returns the configured model path or the one under ModelsDir.
func (c *Config) ModelPath() string {
	if c.Classifier.ModelPath != "" {
		return c.Classifier.ModelPath
	}
	return models.GetClassifierModelPath(c.ModelsDir)
}

// LabelsPath returns the configured labels path or the one under ModelsDir.
func (c *Config) LabelsPath() string {
	if c.Classifier.LabelsPath != "" {
		return c.Classifier.LabelsPath
	}
	return models.GetLabelsPath(c.ModelsDir)
}

// MappingPath returns the configured mapping table path, the one under
// ModelsDir if present, or "" for the built-in table.
func (c *Config) MappingPath() string {
	if c.Classifier.MappingPath != "" {
		return c.Classifier.MappingPath
	}
	return models.GetMappingPath(c.ModelsDir)
}

// ToModelConfig converts to onnx.ModelConfig.
func (c *Config) ToModelConfig(logger *slog.Logger) onnx.ModelConfig {
	return onnx.ModelConfig{
		ModelPath:    c.ModelPath(),
		LabelsPath:   c.LabelsPath(),
		ImageSize:    c.Classifier.ImageSize,
		OutputLogits: c.Classifier.OutputLogits,
		NumThreads:   c.Classifier.NumThreads,
		GPU:          c.GPU,
		Logger:       logger,
	}
}

// ToPreprocessConfig converts to preprocess.Config.
func (c *Config) ToPreprocessConfig() preprocess.Config {
	cfg := preprocess.DefaultConfig()
	cfg.Size = c.Classifier.ImageSize
	if c.Classifier.Filter != "" {
		cfg.Filter = c.Classifier.Filter
	}
	cfg.MaxBytes = int64(c.Server.MaxUploadMB) << 20
	cfg.MaxPixels = c.Classifier.MaxImagePixels
	return cfg
}

// Gate returns the confidence gate.
func (c *Config) Gate() food.Gate {
	return food.Gate{Threshold: c.Classifier.ConfidenceThreshold}
}

// RetryDelay returns the pause between classification attempts.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Classifier.RetryDelayMs) * time.Millisecond
}

// FallbackBucket returns the fallback seed bucket width.
func (c *Config) FallbackBucket() time.Duration {
	return time.Duration(c.Classifier.FallbackBucketSec) * time.Second
}

// LoadTimeout returns the model load timeout; zero means none.
func (c *Config) LoadTimeout() time.Duration {
	return time.Duration(c.Classifier.LoadTimeoutSec) * time.Second
}

// ReloadBackoff returns the pause before a failed model load is retried.
func (c *Config) ReloadBackoff() time.Duration {
	return time.Duration(c.Classifier.ReloadBackoffSec) * time.Second
}

// MockDelay returns the simulated latency of the mock backend.
func (c *Config) MockDelay() time.Duration {
	return time.Duration(c.Classifier.MockDelayMs) * time.Millisecond
}

// DefaultLocation returns the location used when a request carries none.
func (c *Config) DefaultLocation() places.Location {
	return places.Location{Latitude: c.Places.DefaultLatitude, Longitude: c.Places.DefaultLongitude}
}

// contains checks if a slice contains a string.
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// validateThreshold validates that a value is between 0.0 and 1.0.
func validateThreshold(value float64, name string) error {
	if value < 0.0 || value > 1.0 {
		return fmt.Errorf("invalid %s: %.2f (must be between 0.0 and 1.0)", name, value)
	}
	return nil
}
