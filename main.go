package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"seedcar/config"
	"seedcar/db"
	shttp "seedcar/http"
	"seedcar/logger"
	"seedcar/ml"
	"seedcar/monitoring"
	"seedcar/predictor"
)

func main() {
	// 1. Load config
	cfgPath := config.Locate("config.yaml")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		zap.NewExample().Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}

	log := logger.New(logger.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer log.Sync()
	log.Info("config loaded", zap.String("path", cfgPath), zap.Int("port", cfg.Http.Port))

	// 2. Initialize database. The prediction log is optional.
	var store *db.Store
	if cfg.Database.Path != "" {
		store, err = db.Open(cfg.Database.Path)
		if err != nil {
			log.Warn("prediction history disabled", zap.String("path", cfg.Database.Path), zap.Error(err))
			store = nil
		} else {
			defer store.Close()
			log.Info("database initialized", zap.String("path", cfg.Database.Path))
		}
	}

	metrics := monitoring.NewMetrics()
	hub := monitoring.NewHub(log.Named("ws"))
	go hub.Run()
	defer hub.Stop()

	// 3. Load models
	searchDirs := ml.DefaultSearchDirs()
	newService := func(kind ml.Kind, source config.ModelSource, fallback ml.Model) *predictor.Service {
		opts := predictor.Options{
			Kind:          kind,
			Candidates:    ml.ResolveCandidates(source.Paths, source.File, searchDirs...),
			Fallback:      fallback,
			CacheSize:     cfg.Models.CacheSize,
			RetryInterval: cfg.Models.ReloadInterval,
			Logger:        log.Named("predictor"),
			Metrics:       metrics,
			Publisher:     hub,
		}
		if store != nil {
			opts.Recorder = store
		}
		svc, err := predictor.New(opts)
		if err != nil {
			log.Fatal("failed to create predictor", zap.String("kind", string(kind)), zap.Error(err))
		}
		st := svc.Status()
		log.Info("predictor ready",
			zap.String("kind", string(kind)),
			zap.Bool("model_loaded", st.ModelLoaded),
			zap.String("model", st.Model),
			zap.String("fallback", st.Fallback))
		return svc
	}
	registry := predictor.NewRegistry(
		newService(ml.KindWheat, cfg.Models.Wheat, ml.ConstantClassifier{Label: 1}),
		newService(ml.KindCar, cfg.Models.Car, ml.DefaultCarFallback()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var watchers sync.WaitGroup
	if cfg.Models.Watch {
		for _, svc := range registry.Services() {
			watchers.Add(1)
			go func(svc *predictor.Service) {
				defer watchers.Done()
				if err := svc.Watch(ctx); err != nil {
					log.Warn("model watcher stopped", zap.String("kind", string(svc.Kind())), zap.Error(err))
				}
			}(svc)
		}
	}

	// 4. Start HTTP server
	server := shttp.NewServer(shttp.ServerConfigFrom(cfg), shttp.Deps{
		Config:   cfg,
		Registry: registry,
		Store:    store,
		Metrics:  metrics,
		Hub:      hub,
		Logger:   log.Named("http"),
	})
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	// 5. Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			log.Error("http server failed", zap.Error(err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	cancel()
	watchers.Wait()
	log.Info("exiting")
}
