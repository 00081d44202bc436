package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/foodlens/internal/classifier"
	"github.com/MeKo-Tech/foodlens/internal/config"
	"github.com/MeKo-Tech/foodlens/internal/inference"
	"github.com/MeKo-Tech/foodlens/internal/labelmap"
	"github.com/MeKo-Tech/foodlens/internal/mempool"
	"github.com/MeKo-Tech/foodlens/internal/onnx"
	"github.com/MeKo-Tech/foodlens/internal/places"
	"github.com/MeKo-Tech/foodlens/internal/preprocess"
	"github.com/MeKo-Tech/foodlens/internal/provider"
	"github.com/MeKo-Tech/foodlens/internal/server"
)

// app is the wired classification stack for one process.
type app struct {
	orch     *classifier.Orchestrator
	provider *provider.Provider // nil for the mock backend
	pool     *mempool.Pool      // nil for the mock backend
	logger   *slog.Logger
}

// newApp assembles the classifier selected by cfg.Classifier.Backend.
func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{logger: logger}

	var backend classifier.Classifier
	switch cfg.Classifier.Backend {
	case config.BackendMock:
		backend = classifier.NewMockClassifier(cfg.MockDelay())
	default:
		a.pool = &mempool.Pool{}
		pre, err := preprocess.New(cfg.ToPreprocessConfig(),
			preprocess.WithPool(a.pool),
			preprocess.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("preprocessor: %w", err)
		}
		mapper, err := newMapper(cfg.MappingPath())
		if err != nil {
			return nil, err
		}

		modelCfg := cfg.ToModelConfig(logger)
		a.provider = provider.New(
			provider.LoaderFunc(func(ctx context.Context) (inference.Model, error) {
				m, err := onnx.LoadModel(ctx, modelCfg)
				if err != nil {
					return nil, err
				}
				return m, nil
			}),
			provider.WithLogger(logger),
			provider.WithLoadTimeout(cfg.LoadTimeout()),
			provider.WithRetryBackoff(cfg.ReloadBackoff()),
			provider.WithStateHook(server.ObserveModelState),
		)
		backend = classifier.NewModelBacked(a.provider, pre, mapper,
			classifier.WithTopN(cfg.Classifier.TopN),
			classifier.WithModelLogger(logger))
	}

	a.orch = classifier.NewOrchestrator(backend,
		classifier.WithGate(cfg.Gate()),
		classifier.WithRetryDelay(cfg.RetryDelay()),
		classifier.WithFallback(classifier.NewFallback(cfg.FallbackBucket())),
		classifier.WithLogger(logger))
	return a, nil
}

func newMapper(path string) (*labelmap.Mapper, error) {
	if path == "" {
		return labelmap.Default(), nil
	}
	table, err := labelmap.LoadTable(path)
	if err != nil {
		return nil, fmt.Errorf("label mapping: %w", err)
	}
	mapper, err := labelmap.New(table)
	if err != nil {
		return nil, fmt.Errorf("label mapping %s: %w", path, err)
	}
	return mapper, nil
}

// newDirectory returns the restaurant directory, reading a catalogue file
// when one is configured.
func newDirectory(cfg *config.Config) (*places.Directory, error) {
	var catalogue places.Catalogue
	if path := cfg.Places.CataloguePath; path != "" {
		c, err := places.LoadCatalogue(path)
		if err != nil {
			return nil, fmt.Errorf("restaurant catalogue: %w", err)
		}
		catalogue = c
	}
	return places.NewDirectory(catalogue, cfg.Places.MaxDistanceKm), nil
}

// modelStatus returns the provider for status reporting, or nil.
func (a *app) modelStatus() server.ModelStatus {
	if a.provider == nil {
		return nil
	}
	return a.provider
}

// Close releases the model and the ONNX Runtime environment.
func (a *app) Close() error {
	err := a.orch.Close()
	if a.provider != nil {
		if rtErr := onnx.ShutdownRuntime(); rtErr != nil {
			a.logger.Warn("failed to shut down onnx runtime", "error", rtErr)
		}
	}
	return err
}
