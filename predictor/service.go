// Package predictor composes the artifact store, feature encoder, inference
// engine and recommendation engine into the operations the API serves.
package predictor

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/liamcoop/chronopulse/artifacts"
	"github.com/liamcoop/chronopulse/features"
	"github.com/liamcoop/chronopulse/inference"
	"github.com/liamcoop/chronopulse/internal/logger"
)

// Recommender derives advice from a raw record
type Recommender interface {
	Recommend(rec features.Record) ([]string, error)
}

// ModelInfo is the model summary attached to every prediction
type ModelInfo struct {
	ModelName string  `json:"model_name"`
	Accuracy  float64 `json:"accuracy"`
	Version   string  `json:"version,omitempty"`
}

// Prediction is the combined classification and advice for one record
type Prediction struct {
	Prediction      string             `json:"prediction"`
	Confidence      map[string]float64 `json:"confidence"`
	Recommendations []string           `json:"recommendations"`
	ModelInfo       ModelInfo          `json:"model_info"`
}

// Service serves predictions from one artifact store
type Service struct {
	store       *artifacts.Store
	encoder     *features.Encoder
	engine      *inference.Engine
	recommender Recommender
	log         *slog.Logger
}

// New builds a service over store. An unavailable store is accepted: the
// service then reports IsReady false and refuses inference, while
// recommendations keep working.
func New(store *artifacts.Store, recommender Recommender, log *slog.Logger) (*Service, error) {
	if recommender == nil {
		return nil, fmt.Errorf("recommender is required")
	}
	if log == nil {
		log = logger.New("predictor")
	}

	s := &Service{
		store:       store,
		engine:      inference.NewEngine(store),
		recommender: recommender,
		log:         log,
	}
	if !store.Ready() {
		log.Warn("model artifacts unavailable, predictions disabled", "error", store.Err())
		return s, nil
	}

	enc, err := features.NewEncoder(store.Categories())
	if err != nil {
		return nil, fmt.Errorf("failed to build encoder: %w", err)
	}
	s.encoder = enc

	if drift := enc.Audit(store.Schema()); !drift.Empty() {
		log.Warn("feature schema and encoder disagree",
			"unproduced", drift.Unproduced,
			"dropped", drift.Dropped,
		)
	}
	return s, nil
}

// IsReady reports whether the model artifacts loaded
func (s *Service) IsReady() bool {
	return s.store.Ready()
}

// Metadata returns the loaded model's metadata or the load failure
func (s *Service) Metadata() (artifacts.ModelMetadata, error) {
	return s.store.Metadata()
}

// Drift reports schema/encoder disagreement; empty when artifacts are unavailable
func (s *Service) Drift() features.Drift {
	if s.encoder == nil {
		return features.Drift{}
	}
	return s.encoder.Audit(s.store.Schema())
}

// EncodeAndInfer encodes rec against the loaded schema and classifies it.
// Readiness is checked before any encoding work.
func (s *Service) EncodeAndInfer(rec features.Record) (*inference.Result, error) {
	if !s.store.Ready() {
		return nil, s.store.Err()
	}
	vec, err := s.encoder.Encode(rec, s.store.Schema())
	if err != nil {
		return nil, err
	}
	return s.engine.Infer(vec)
}

// Recommend returns advice for rec; it works without model artifacts
func (s *Service) Recommend(rec features.Record) ([]string, error) {
	return s.recommender.Recommend(rec)
}

// Predict runs inference and recommendation concurrently and combines them
func (s *Service) Predict(ctx context.Context, rec features.Record) (*Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	meta, err := s.store.Metadata()
	if err != nil {
		return nil, err
	}

	var (
		result *inference.Result
		advice []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		var err error
		result, err = s.EncodeAndInfer(rec)
		return err
	})
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		var err error
		advice, err = s.Recommend(rec)
		if err != nil {
			return fmt.Errorf("recommendations: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &Prediction{
		Prediction:      result.Prediction,
		Confidence:      result.Confidence,
		Recommendations: advice,
		ModelInfo: ModelInfo{
			ModelName: meta.ModelName,
			Accuracy:  meta.Accuracy,
			Version:   meta.Version,
		},
	}, nil
}
