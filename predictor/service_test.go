package predictor

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamcoop/chronopulse/artifacts"
	"github.com/liamcoop/chronopulse/features"
	"github.com/liamcoop/chronopulse/inference"
	"github.com/liamcoop/chronopulse/recommend"
)

const testModelDir = "../artifacts/testdata/model"

func quietLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, nil))
}

func newService(t *testing.T, store *artifacts.Store) *Service {
	t.Helper()
	rec, err := recommend.NewDefaultEngine()
	require.NoError(t, err)
	svc, err := New(store, rec, quietLogger(&bytes.Buffer{}))
	require.NoError(t, err)
	return svc
}

func loadedService(t *testing.T) *Service {
	t.Helper()
	store, err := artifacts.Load(testModelDir)
	require.NoError(t, err)
	return newService(t, store)
}

func insomniac() features.Record {
	return features.Record{
		Age: 40, Gender: "Female", Occupation: "Nurse",
		SleepDuration: 5, QualityOfSleep: 4, PhysicalActivityLevel: 10, StressLevel: 8,
		BMICategory: "Overweight", HeartRate: 95, DailySteps: 2000, SystolicBP: 140, DiastolicBP: 90,
	}
}

func TestPredictCombinesInferenceAndAdvice(t *testing.T) {
	svc := loadedService(t)
	require.True(t, svc.IsReady())

	p, err := svc.Predict(context.Background(), insomniac())
	require.NoError(t, err)

	assert.Equal(t, "Insomnia", p.Prediction)
	assert.InDelta(t, 94.195, p.Confidence["Insomnia"], 1e-2)
	assert.Len(t, p.Recommendations, 7)
	assert.Equal(t, "Logistic Regression", p.ModelInfo.ModelName)
	assert.InDelta(t, 0.9333, p.ModelInfo.Accuracy, 1e-9)
	assert.Equal(t, "2024.1", p.ModelInfo.Version)

	var total float64
	for _, c := range p.Confidence {
		total += c
	}
	assert.InDelta(t, 100, total, 1e-9)
}

func TestPredictMatchesSeparateCalls(t *testing.T) {
	svc := loadedService(t)
	rec := insomniac()

	p, err := svc.Predict(context.Background(), rec)
	require.NoError(t, err)
	res, err := svc.EncodeAndInfer(rec)
	require.NoError(t, err)
	advice, err := svc.Recommend(rec)
	require.NoError(t, err)

	assert.Equal(t, res.Prediction, p.Prediction)
	assert.Equal(t, res.Confidence, p.Confidence)
	assert.Equal(t, advice, p.Recommendations)
}

func TestPredictCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := loadedService(t).Predict(ctx, insomniac())
	assert.ErrorIs(t, err, context.Canceled)
}

// cancellingRecommender cancels the request while the prediction is in flight
type cancellingRecommender struct{ cancel context.CancelFunc }

func (r cancellingRecommender) Recommend(features.Record) ([]string, error) {
	r.cancel()
	return []string{"rest"}, nil
}

func TestPredictCancelledMidFlight(t *testing.T) {
	store, err := artifacts.Load(testModelDir)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc, err := New(store, cancellingRecommender{cancel: cancel}, quietLogger(&bytes.Buffer{}))
	require.NoError(t, err)

	_, err = svc.Predict(ctx, insomniac())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMetadata(t *testing.T) {
	meta, err := loadedService(t).Metadata()
	require.NoError(t, err)
	assert.Equal(t, []string{"Insomnia", "None", "Sleep Apnea"}, meta.Classes)
	assert.Equal(t, "2024.1", meta.Version)
}

func TestUnavailableArtifacts(t *testing.T) {
	var logs bytes.Buffer
	rec, err := recommend.NewDefaultEngine()
	require.NoError(t, err)

	svc, err := New(artifacts.Unavailable(errors.New("model.json missing")), rec, quietLogger(&logs))
	require.NoError(t, err)
	assert.False(t, svc.IsReady())
	assert.Contains(t, logs.String(), "predictions disabled")

	// NaN would fail encoding; readiness must be checked first
	bad := insomniac()
	bad.SleepDuration = math.NaN()
	_, err = svc.EncodeAndInfer(bad)
	assert.ErrorIs(t, err, artifacts.ErrArtifactsUnavailable)
	assert.NotErrorIs(t, err, features.ErrEncoding)

	_, err = svc.Metadata()
	assert.ErrorIs(t, err, artifacts.ErrArtifactsUnavailable)

	_, err = svc.Predict(context.Background(), insomniac())
	assert.ErrorIs(t, err, artifacts.ErrArtifactsUnavailable)

	// advice does not depend on the model
	advice, err := svc.Recommend(insomniac())
	require.NoError(t, err)
	assert.Len(t, advice, 7)

	assert.True(t, svc.Drift().Empty())
}

func TestEncodingErrorIsNotInferenceError(t *testing.T) {
	rec := insomniac()
	rec.SleepDuration = math.Inf(1)
	_, err := loadedService(t).EncodeAndInfer(rec)
	assert.ErrorIs(t, err, features.ErrEncoding)
	assert.NotErrorIs(t, err, inference.ErrInference)
}

type failingRecommender struct{}

func (failingRecommender) Recommend(features.Record) ([]string, error) {
	return nil, errors.New("no such attribute")
}

func TestPredictPropagatesRecommenderError(t *testing.T) {
	store, err := artifacts.Load(testModelDir)
	require.NoError(t, err)
	svc, err := New(store, failingRecommender{}, quietLogger(&bytes.Buffer{}))
	require.NoError(t, err)

	_, err = svc.Predict(context.Background(), insomniac())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recommendations")
}

func TestNewRequiresRecommender(t *testing.T) {
	_, err := New(artifacts.Unavailable(nil), nil, nil)
	assert.Error(t, err)
}

func TestNewWarnsOnDrift(t *testing.T) {
	lr := &artifacts.LogisticRegression{
		ClassLabels: []string{"Insomnia", "None"},
		Coef:        [][]float64{{0.5, -0.5}},
		Intercept:   []float64{0},
	}
	store, err := artifacts.New(artifacts.Bundle{
		Classifier: lr,
		Scaler:     &artifacts.StandardScaler{Mean: []float64{0, 0}, Scale: []float64{1, 1}},
		Schema:     artifacts.FeatureSchema{features.ColAge, "Caffeine Intake"},
	})
	require.NoError(t, err)

	var logs bytes.Buffer
	rec, err := recommend.NewDefaultEngine()
	require.NoError(t, err)
	svc, err := New(store, rec, quietLogger(&logs))
	require.NoError(t, err)

	assert.Contains(t, logs.String(), "feature schema and encoder disagree")
	assert.Equal(t, []string{"Caffeine Intake"}, svc.Drift().Unproduced)

	// still serves, with the unknown column zero-filled
	res, err := svc.EncodeAndInfer(insomniac())
	require.NoError(t, err)
	assert.Contains(t, []string{"Insomnia", "None"}, res.Prediction)
}
