package inference

import (
	"errors"
	"fmt"

	"github.com/liamcoop/chronopulse/artifacts"
	"github.com/liamcoop/chronopulse/features"
)

// ErrInference marks a failure inside the scaler or classifier. It points at
// an encoder/schema desynchronization, not at bad user input.
var ErrInference = errors.New("inference failed")

// Result is the classifier output for one vector. Confidence maps every
// known class to its probability in percent, unrounded.
type Result struct {
	Prediction string             `json:"prediction"`
	Confidence map[string]float64 `json:"confidence"`
}

// Engine scales vectors and classifies them with the artifacts of a Store
type Engine struct {
	store *artifacts.Store
}

// NewEngine creates an engine over store. The store may be unavailable, in
// which case every Infer call fails with artifacts.ErrArtifactsUnavailable.
func NewEngine(store *artifacts.Store) *Engine {
	return &Engine{store: store}
}

// Infer scales vec, classifies it and builds the confidence map
func (e *Engine) Infer(vec features.Vector) (*Result, error) {
	if !e.store.Ready() {
		return nil, e.store.Err()
	}
	scaler := e.store.Scaler()
	clf := e.store.Classifier()

	scaled, err := scaler.Transform(vec)
	if err != nil {
		return nil, fmt.Errorf("%w: scaling: %w", ErrInference, err)
	}

	proba, err := clf.PredictProba(scaled)
	if err != nil {
		return nil, fmt.Errorf("%w: probabilities: %w", ErrInference, err)
	}
	label, err := clf.Predict(scaled)
	if err != nil {
		return nil, fmt.Errorf("%w: prediction: %w", ErrInference, err)
	}

	classes := clf.Classes()
	if len(proba) != len(classes) {
		return nil, fmt.Errorf("%w: classifier returned %d probabilities for %d classes", ErrInference, len(proba), len(classes))
	}

	confidence := make(map[string]float64, len(classes))
	for i, class := range classes {
		confidence[class] = proba[i] * 100
	}
	if _, ok := confidence[label]; !ok {
		return nil, fmt.Errorf("%w: predicted label %q is not a known class", ErrInference, label)
	}

	return &Result{
		Prediction: label,
		Confidence: confidence,
	}, nil
}
