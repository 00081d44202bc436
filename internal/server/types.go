// Package server exposes the classifier and restaurant directory over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/MeKo-Tech/foodlens/internal/classifier"
	"github.com/MeKo-Tech/foodlens/internal/food"
	"github.com/MeKo-Tech/foodlens/internal/places"
	"github.com/MeKo-Tech/foodlens/internal/preprocess"
	"github.com/MeKo-Tech/foodlens/internal/provider"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// classifierService is the part of classifier.Orchestrator the server uses.
type classifierService interface {
	Classify(ctx context.Context, res preprocess.Resource) (classifier.Result, error)
	ClassifyWithRetry(ctx context.Context, res preprocess.Resource, minConfidence, maxRetries int) (classifier.Result, error)
	IsConfident(r food.ClassificationResult) bool
	Status() provider.State
	Close() error
}

// restaurantFinder is implemented by places.Directory.
type restaurantFinder interface {
	Nearby(ctx context.Context, loc places.Location, category food.Category, limit int) ([]places.Restaurant, error)
}

// ModelStatus reports model loading progress. provider.Provider implements it.
type ModelStatus interface {
	Status() provider.State
	LoadCount() int64
	Err() error
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	classifier  classifierService
	places      restaurantFinder
	model       ModelStatus
	rateLimiter *RateLimiter
	logger      *slog.Logger

	corsOrigin     string
	maxUploadBytes int64
	timeout        time.Duration

	retryMinConfidence int
	maxRetries         int

	placesLimit     int
	defaultLocation places.Location
	version         string
}

// Config holds server configuration.
type Config struct {
	Host        string
	Port        int
	CORSOrigin  string
	MaxUploadMB int64
	TimeoutSec  int

	// RetryMinConfidence and MaxRetries are the /classify defaults when a
	// request asks for retries without its own values.
	RetryMinConfidence int
	MaxRetries         int

	PlacesLimit     int
	DefaultLocation places.Location

	// RateLimits enables per-client limiting when non-nil.
	RateLimits *RateLimits

	// Model reports load status for /model/status; optional.
	Model   ModelStatus
	Version string
	Logger  *slog.Logger
}

// NewServer creates a server around a classifier and a restaurant directory.
func NewServer(config Config, svc classifierService, finder restaurantFinder) (*Server, error) {
	if svc == nil {
		return nil, errors.New("classifier is required")
	}
	if finder == nil {
		finder = places.NewDirectory(nil, 0)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxUploadMB <= 0 {
		config.MaxUploadMB = 20
	}
	if config.TimeoutSec <= 0 {
		config.TimeoutSec = 30
	}
	if config.PlacesLimit <= 0 {
		config.PlacesLimit = places.DefaultLimit
	}
	if config.DefaultLocation == (places.Location{}) {
		config.DefaultLocation = places.DefaultLocation
	}

	s := &Server{
		classifier:         svc,
		places:             finder,
		model:              config.Model,
		logger:             logger,
		corsOrigin:         config.CORSOrigin,
		maxUploadBytes:     config.MaxUploadMB << 20,
		timeout:            time.Duration(config.TimeoutSec) * time.Second,
		retryMinConfidence: config.RetryMinConfidence,
		maxRetries:         config.MaxRetries,
		placesLimit:        config.PlacesLimit,
		defaultLocation:    config.DefaultLocation,
		version:            config.Version,
	}
	if config.RateLimits != nil {
		s.rateLimiter = NewRateLimiter(*config.RateLimits)
	}
	return s, nil
}

// Close releases server resources.
func (s *Server) Close() error {
	return s.classifier.Close()
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/model/status", s.corsMiddleware(s.modelStatusHandler))
	mux.HandleFunc("/categories", s.corsMiddleware(s.categoriesHandler))
	mux.HandleFunc("/classify", s.corsMiddleware(s.rateLimitMiddleware(s.classifyHandler)))
	mux.HandleFunc("/classify/ws", s.classifyWebSocketHandler)
	mux.HandleFunc("/restaurants", s.corsMiddleware(s.restaurantsHandler))
	mux.Handle("/metrics", promhttp.Handler())
}

// Handler returns the routed handler with request IDs attached.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return requestIDMiddleware(mux)
}

// Response types for API endpoints.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
}

type ModelStatusResponse struct {
	State     provider.State `json:"state"`
	Ready     bool           `json:"ready"`
	LoadCount int64          `json:"load_count"`
	Error     string         `json:"error,omitempty"`
}

type CategoryInfo struct {
	ID            food.Category `json:"id"`
	DisplayName   string        `json:"display_name"`
	SearchKeyword string        `json:"search_keyword"`
}

type CategoriesResponse struct {
	Categories []CategoryInfo `json:"categories"`
	Count      int            `json:"count"`
}

// ClassificationPayload is a classifier.Result as sent to clients.
type ClassificationPayload struct {
	Category    food.Category         `json:"category"`
	DisplayName string                `json:"display_name"`
	Confidence  int                   `json:"confidence"`
	Confident   bool                  `json:"confident"`
	Provenance  classifier.Provenance `json:"provenance"`
	ModelState  provider.State        `json:"model_state"`
	Label       string                `json:"label,omitempty"`
	Attempts    int                   `json:"attempts"`
	DurationMs  int64                 `json:"duration_ms"`
}

type ClassifyResponse struct {
	Success   bool                   `json:"success"`
	RequestID string                 `json:"request_id,omitempty"`
	Result    *ClassificationPayload `json:"result,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

type RestaurantsResponse struct {
	Category    food.Category       `json:"category"`
	Location    places.Location     `json:"location"`
	Restaurants []places.Restaurant `json:"restaurants"`
	Count       int                 `json:"count"`
}

func (s *Server) payload(r classifier.Result) *ClassificationPayload {
	return &ClassificationPayload{
		Category:    r.Category,
		DisplayName: food.DisplayName(r.Category),
		Confidence:  r.Confidence,
		Confident:   s.classifier.IsConfident(r.ClassificationResult),
		Provenance:  r.Provenance,
		ModelState:  r.ModelState,
		Label:       r.Label,
		Attempts:    r.Attempts,
		DurationMs:  r.Duration.Milliseconds(),
	}
}
