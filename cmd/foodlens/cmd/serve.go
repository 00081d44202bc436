package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MeKo-Tech/foodlens/internal/config"
	"github.com/MeKo-Tech/foodlens/internal/server"
	"github.com/MeKo-Tech/foodlens/internal/version"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func (c *cli) newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP classification server",
		Long: `Start an HTTP server exposing the classifier and the restaurant directory.

Endpoints:
  GET  /health        - Health check
  GET  /model/status  - Model load state
  GET  /categories    - Supported food categories
  POST /classify      - Classify an uploaded photo (multipart field "image")
  GET  /classify/ws   - Classify photos over a WebSocket
  GET  /restaurants   - Nearby restaurants for a category
  GET  /metrics       - Prometheus metrics

Examples:
  foodlens serve
  foodlens serve --port 8080
  foodlens serve --host 0.0.0.0 --backend mock`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := c.config()
			logger := c.log()

			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			directory, err := newDirectory(cfg)
			if err != nil {
				_ = a.Close()
				return err
			}
			if a.pool != nil {
				if err := server.RegisterPoolMetrics(prometheus.DefaultRegisterer, a.pool); err != nil {
					logger.Warn("failed to register buffer pool metrics", "error", err)
				}
			}

			srv, err := server.NewServer(serverConfig(cfg, a), a.orch, directory)
			if err != nil {
				_ = a.Close()
				return err
			}

			if cfg.Classifier.LoadOnStart && a.provider != nil {
				a.provider.Preload()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			timeout := time.Duration(cfg.Server.TimeoutSec) * time.Second
			httpServer := &http.Server{
				Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       timeout,
				WriteTimeout:      timeout + 5*time.Second,
			}

			serveErr := make(chan error, 1)
			go func() {
				logger.Info("starting foodlens server",
					"host", cfg.Server.Host,
					"port", cfg.Server.Port,
					"backend", cfg.Classifier.Backend)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
				close(serveErr)
			}()

			var runErr error
			select {
			case <-ctx.Done():
				logger.Info("received shutdown signal")
			case err, ok := <-serveErr:
				if ok {
					logger.Error("server error", "error", err)
					runErr = err
				}
			}

			logger.Info("starting graceful shutdown", "timeout", fmt.Sprintf("%ds", cfg.Server.ShutdownTimeout))
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP server shutdown error", "error", err)
			}
			if err := srv.Close(); err != nil {
				logger.Error("server cleanup error", "error", err)
			}
			if err := a.Close(); err != nil {
				logger.Error("classifier cleanup error", "error", err)
			}
			logger.Info("graceful shutdown completed")
			return runErr
		},
	}

	f := cmd.Flags()
	f.String("host", "localhost", "interface to listen on")
	f.IntP("port", "p", 8080, "port to listen on")
	f.String("cors-origin", "*", "value of Access-Control-Allow-Origin")
	f.Int("max-upload-mb", 20, "maximum upload size in MB")
	f.Int("timeout", 30, "request timeout in seconds")
	f.Int("shutdown-timeout", 10, "graceful shutdown timeout in seconds")
	f.Bool("rate-limit", false, "enable per-client rate limiting")
	f.Int("requests-per-minute", 60, "rate limit: requests per minute per client")
	f.Int("requests-per-hour", 1000, "rate limit: requests per hour per client")
	f.Bool("load-on-start", true, "start loading the model before the first request")

	c.bind(f.Lookup("host"), "server.host")
	c.bind(f.Lookup("port"), "server.port")
	c.bind(f.Lookup("cors-origin"), "server.cors_origin")
	c.bind(f.Lookup("max-upload-mb"), "server.max_upload_mb")
	c.bind(f.Lookup("timeout"), "server.timeout_sec")
	c.bind(f.Lookup("shutdown-timeout"), "server.shutdown_timeout")
	c.bind(f.Lookup("rate-limit"), "server.rate_limit.enabled")
	c.bind(f.Lookup("requests-per-minute"), "server.rate_limit.requests_per_minute")
	c.bind(f.Lookup("requests-per-hour"), "server.rate_limit.requests_per_hour")
	c.bind(f.Lookup("load-on-start"), "classifier.load_on_start")
	return cmd
}

// serverConfig maps the loaded configuration onto server.Config.
func serverConfig(cfg *config.Config, a *app) server.Config {
	sc := server.Config{
		Host:               cfg.Server.Host,
		Port:               cfg.Server.Port,
		CORSOrigin:         cfg.Server.CORSOrigin,
		MaxUploadMB:        int64(cfg.Server.MaxUploadMB),
		TimeoutSec:         cfg.Server.TimeoutSec,
		RetryMinConfidence: cfg.Classifier.RetryMinConfidence,
		MaxRetries:         cfg.Classifier.MaxRetries,
		PlacesLimit:        cfg.Places.ResultsLimit,
		DefaultLocation:    cfg.DefaultLocation(),
		Model:              a.modelStatus(),
		Version:            version.Version,
		Logger:             a.logger,
	}
	if rl := cfg.Server.RateLimit; rl.Enabled {
		sc.RateLimits = &server.RateLimits{
			RequestsPerMinute: rl.RequestsPerMinute,
			RequestsPerHour:   rl.RequestsPerHour,
			MaxRequestsPerDay: rl.MaxRequestsPerDay,
			MaxDataPerDay:     int64(rl.MaxDataPerDayMB) << 20,
		}
	}
	return sc
}
