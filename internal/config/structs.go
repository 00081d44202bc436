//nolint:lll
package config

import "github.com/MeKo-Tech/foodlens/internal/onnx"

// Config represents the complete configuration for foodlens. It covers every
// command (classify, serve, restaurants) and is loaded from configuration
// files, environment variables and command-line flags.
type Config struct {
	// Global settings
	ModelsDir string `mapstructure:"models_dir" yaml:"models_dir" json:"models_dir"`
	LogLevel  string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose   bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	Classifier ClassifierConfig `mapstructure:"classifier" yaml:"classifier" json:"classifier"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`

	Places PlacesConfig `mapstructure:"places" yaml:"places" json:"places"`

	// GPU configuration
	GPU onnx.GPUConfig `mapstructure:"gpu" yaml:"gpu" json:"gpu"`
}

// ClassifierConfig contains model, mapping and orchestration settings.
type ClassifierConfig struct {
	// Backend is "model" or "mock".
	Backend     string `mapstructure:"backend" yaml:"backend" json:"backend"`
	ModelPath   string `mapstructure:"model_path" yaml:"model_path" json:"model_path"`
	LabelsPath  string `mapstructure:"labels_path" yaml:"labels_path" json:"labels_path"`
	MappingPath string `mapstructure:"mapping_path" yaml:"mapping_path" json:"mapping_path"`

	ImageSize    int    `mapstructure:"image_size" yaml:"image_size" json:"image_size"`
	Filter       string `mapstructure:"filter" yaml:"filter" json:"filter"`
	TopN         int    `mapstructure:"top_n" yaml:"top_n" json:"top_n"`
	OutputLogits bool   `mapstructure:"output_logits" yaml:"output_logits" json:"output_logits"`
	NumThreads   int    `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`

	// MaxImagePixels rejects images whose declared width*height is larger.
	MaxImagePixels int64 `mapstructure:"max_image_pixels" yaml:"max_image_pixels" json:"max_image_pixels"`

	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" yaml:"confidence_threshold" json:"confidence_threshold"`
	RetryMinConfidence  int     `mapstructure:"retry_min_confidence" yaml:"retry_min_confidence" json:"retry_min_confidence"`
	MaxRetries          int     `mapstructure:"max_retries" yaml:"max_retries" json:"max_retries"`
	RetryDelayMs        int     `mapstructure:"retry_delay_ms" yaml:"retry_delay_ms" json:"retry_delay_ms"`
	FallbackBucketSec   int     `mapstructure:"fallback_bucket_sec" yaml:"fallback_bucket_sec" json:"fallback_bucket_sec"`

	LoadOnStart      bool `mapstructure:"load_on_start" yaml:"load_on_start" json:"load_on_start"`
	LoadTimeoutSec   int  `mapstructure:"load_timeout_sec" yaml:"load_timeout_sec" json:"load_timeout_sec"`
	ReloadBackoffSec int  `mapstructure:"reload_backoff_sec" yaml:"reload_backoff_sec" json:"reload_backoff_sec"`
	MockDelayMs      int  `mapstructure:"mock_delay_ms" yaml:"mock_delay_ms" json:"mock_delay_ms"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string          `mapstructure:"host" yaml:"host" json:"host"`
	Port            int             `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string          `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int             `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int             `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int             `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig contains per-client request limits. Zero disables a limit.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int  `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
	MaxRequestsPerDay int  `mapstructure:"max_requests_per_day" yaml:"max_requests_per_day" json:"max_requests_per_day"`
	MaxDataPerDayMB   int  `mapstructure:"max_data_per_day_mb" yaml:"max_data_per_day_mb" json:"max_data_per_day_mb"`
}

// PlacesConfig contains restaurant directory settings.
type PlacesConfig struct {
	CataloguePath    string  `mapstructure:"catalogue_path" yaml:"catalogue_path" json:"catalogue_path"`
	ResultsLimit     int     `mapstructure:"results_limit" yaml:"results_limit" json:"results_limit"`
	MaxDistanceKm    float64 `mapstructure:"max_distance_km" yaml:"max_distance_km" json:"max_distance_km"`
	DefaultLatitude  float64 `mapstructure:"default_latitude" yaml:"default_latitude" json:"default_latitude"`
	DefaultLongitude float64 `mapstructure:"default_longitude" yaml:"default_longitude" json:"default_longitude"`
}
