package cmd

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-service/internal/cache"
	"github.com/kozaktomas/face-service/internal/config"
	"github.com/kozaktomas/face-service/internal/database"
	"github.com/kozaktomas/face-service/internal/database/mariadb"
	"github.com/kozaktomas/face-service/internal/database/postgres"
	"github.com/kozaktomas/face-service/internal/inference"
	"github.com/kozaktomas/face-service/internal/liveness"
	"github.com/kozaktomas/face-service/internal/logging"
	"github.com/kozaktomas/face-service/internal/metrics"
	"github.com/kozaktomas/face-service/internal/pipeline"
	"github.com/kozaktomas/face-service/internal/recognition"
)

// services holds everything a command needs, wired once at startup.
type services struct {
	store     database.Store
	exporter  *metrics.Exporter
	pipeline  *pipeline.Service
	faceModel *recognition.SidecarModel
}

// openStore connects to the configured database. PostgreSQL migrations are applied on open.
func openStore(ctx context.Context, cfg *config.Config) (database.Store, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		logging.Infof("Connecting to PostgreSQL database...")
		pool, err := postgres.Open(ctx, &cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		return pool, nil
	default:
		logging.Infof("Connecting to MySQL database %s on %s:%d...", cfg.Database.Name, cfg.Database.Host, cfg.Database.Port)
		pool, err := mariadb.NewPool(cfg.Database.MySQLDSN(), cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize MySQL: %w", err)
		}
		return pool, nil
	}
}

// loadModels probes the sidecar for the face model and, when enabled, the liveness model.
// Failures leave the model unloaded; they never abort startup.
func loadModels(ctx context.Context, cfg *config.Config, client *inference.Client) (*recognition.SidecarModel, *liveness.Classifier) {
	log := logging.Component("models")
	log.Infof("Using inference sidecar %s (model %s)", cfg.Inference.URL, client.Model())

	faceModel := recognition.NewSidecarModel(client, cfg.Inference.MaxUploadPixels)
	if err := faceModel.Load(ctx); err != nil {
		log.Errorf("Face model not loaded: %v", err)
	}

	classifier := liveness.NewClassifier(client, cfg.AntiSpoof)
	if !cfg.AntiSpoof.Enabled {
		log.Info("Anti-spoofing disabled")
		return faceModel, classifier
	}
	if err := classifier.Load(ctx, cfg.AntiSpoof.CandidatePaths()); err != nil {
		log.Warnf("Anti-spoofing model not loaded: %v", err)
	}
	return faceModel, classifier
}

// buildServices wires the store, models, cache, metrics and pipeline.
func buildServices(ctx context.Context, cfg *config.Config) (*services, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	client := inference.NewClient(cfg.Inference.URL, cfg.Inference.ModelName, cfg.Inference.Timeout)
	faceModel, classifier := loadModels(ctx, cfg, client)

	exporter := metrics.NewExporter(metrics.DefaultConfig())
	stationCache := cache.NewStationCache(cfg.Cache.TTL, cache.WithRecorder(exporter))

	svc, err := pipeline.New(pipeline.Deps{
		Store:     store,
		Detector:  faceModel,
		Extractor: faceModel,
		Liveness:  classifier,
		Cache:     stationCache,
		Metrics:   exporter,
	}, pipeline.Options{
		AntiSpoofEnabled: cfg.AntiSpoof.Enabled,
		MinDetScore:      cfg.Inference.MinDetScore,
		Workers:          cfg.Inference.Workers,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("building pipeline: %w", err)
	}

	return &services{store: store, exporter: exporter, pipeline: svc, faceModel: faceModel}, nil
}

// Close releases the database pool.
func (s *services) Close() {
	if err := s.store.Close(); err != nil {
		logging.Warnf("Closing store: %v", err)
	}
}
