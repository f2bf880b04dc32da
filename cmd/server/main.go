package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/liamcoop/chronopulse/artifacts"
	"github.com/liamcoop/chronopulse/internal/config"
	"github.com/liamcoop/chronopulse/internal/logger"
	"github.com/liamcoop/chronopulse/internal/metrics"
	"github.com/liamcoop/chronopulse/predictions"
	"github.com/liamcoop/chronopulse/predictor"
	"github.com/liamcoop/chronopulse/recommend"
)

func loadRecommender(path string) (*recommend.Engine, error) {
	if path == "" {
		return recommend.NewDefaultEngine()
	}
	rs, err := recommend.LoadRuleSet(path)
	if err != nil {
		return nil, err
	}
	return recommend.NewEngine(rs)
}

// openAudit returns the Postgres audit log when a database is configured and
// an in-memory one otherwise. The returned db is nil in the latter case.
func openAudit(ctx context.Context, databaseURL string, retention int) (predictions.Store, *sql.DB, error) {
	if databaseURL == "" {
		logger.Info("DATABASE_URL not set, keeping prediction log in memory", "retention", retention)
		return predictions.NewInMemoryStoreWithRetention(retention), nil, nil
	}
	db, err := predictions.Open(ctx, databaseURL)
	if err != nil {
		return nil, nil, err
	}
	return predictions.NewPostgresStore(db), db, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}

	// A missing or broken bundle does not stop the server: it starts
	// unloaded and answers 503 on prediction routes.
	store, err := artifacts.Load(cfg.ArtifactsDir)
	if err != nil {
		logger.Error("failed to load model artifacts", "dir", cfg.ArtifactsDir, "error", err)
		store = artifacts.Unavailable(err)
	} else {
		meta, _ := store.Metadata()
		logger.Info("model artifacts loaded",
			"dir", cfg.ArtifactsDir,
			"model", meta.ModelName,
			"version", meta.Version,
			"features", len(store.Schema()),
		)
	}

	advisor, err := loadRecommender(cfg.RecommendationRules)
	if err != nil {
		logger.Fatal("failed to load recommendation rules", "path", cfg.RecommendationRules, "error", err)
	}

	svc, err := predictor.New(store, advisor, logger.New("predictor"))
	if err != nil {
		logger.Fatal("failed to create predictor", "error", err)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 10*time.Second)
	audit, db, err := openAudit(startCtx, cfg.DatabaseURL, cfg.PredictionLogRetention)
	cancelStart()
	if err != nil {
		logger.Fatal("failed to open prediction log", "error", err)
	}
	if db != nil {
		defer db.Close()
	}

	server := NewServer(svc, audit, metrics.New(), Options{
		RequestTimeout: cfg.RequestTimeout,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		logger.Info("server starting", "addr", httpServer.Addr, "environment", cfg.Environment)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed to start", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	_ = logger.Shutdown(ctx)

	logger.Info("server stopped")
}
