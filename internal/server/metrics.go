package server

import (
	"errors"

	"github.com/MeKo-Tech/foodlens/internal/mempool"
	"github.com/MeKo-Tech/foodlens/internal/provider"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foodlens_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "foodlens_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Classification metrics
	classificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foodlens_classifications_total",
			Help: "Total number of classifications by provenance and category",
		},
		[]string{"provenance", "category"},
	)

	classificationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "foodlens_classification_duration_seconds",
			Help:    "Classification duration in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"provenance"},
	)

	classificationConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "foodlens_classification_confidence",
			Help:    "Confidence of returned classifications",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)

	classificationAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "foodlens_classification_attempts",
			Help:    "Attempts made per classification request",
			Buckets: []float64{1, 2, 3, 5, 10},
		},
	)

	// modelState is 1 for the current provider state and 0 for the others.
	modelState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "foodlens_model_state",
			Help: "Current model provider state",
		},
		[]string{"state"},
	)

	// Rate limiting metrics
	rateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foodlens_rate_limit_hits_total",
			Help: "Total number of rate limit hits",
		},
		[]string{"type"}, // minute, hour, requests, data
	)

	// File upload metrics
	uploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "foodlens_upload_size_bytes",
			Help:    "Size of uploaded images in bytes",
			Buckets: []float64{1024, 10 * 1024, 100 * 1024, 1024 * 1024, 5 * 1024 * 1024, 10 * 1024 * 1024, 20 * 1024 * 1024},
		},
	)

	// WebSocket metrics
	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "foodlens_websocket_active_connections",
			Help: "Number of active WebSocket connections",
		},
	)

	websocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foodlens_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"}, // sent, received
	)
)

var allStates = []provider.State{provider.StateIdle, provider.StateLoading, provider.StateReady, provider.StateError}

// ObserveModelState records s as the current model state. It is suitable as
// a provider.WithStateHook callback.
func ObserveModelState(s provider.State) {
	for _, st := range allStates {
		v := 0.0
		if st == s {
			v = 1
		}
		modelState.WithLabelValues(st.String()).Set(v)
	}
}

// RegisterPoolMetrics exports tensor buffer pool counters. Registering the
// same pool twice is not an error.
func RegisterPoolMetrics(reg prometheus.Registerer, pool *mempool.Pool) error {
	collectors := []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "foodlens_tensor_buffers_acquired_total",
			Help: "Tensor buffers taken from the pool",
		}, func() float64 { return float64(pool.Stats().Gets) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "foodlens_tensor_buffers_released_total",
			Help: "Tensor buffers returned to the pool",
		}, func() float64 { return float64(pool.Stats().Puts) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "foodlens_tensor_buffers_outstanding",
			Help: "Tensor buffers currently in use",
		}, func() float64 { return float64(pool.Stats().Outstanding) }),
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	return nil
}
