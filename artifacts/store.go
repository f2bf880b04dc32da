package artifacts

import (
	"errors"
	"fmt"
	"slices"
)

// ErrArtifactsUnavailable is returned when the classifier, scaler, feature
// schema or metadata failed to load, or when a loaded set is inconsistent.
var ErrArtifactsUnavailable = errors.New("model artifacts unavailable")

func unavailablef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrArtifactsUnavailable, fmt.Sprintf(format, args...))
}

// FeatureSchema is the ordered list of column names the classifier was
// trained on. Every feature vector must match its length and order.
type FeatureSchema []string

// Validate checks that the schema is non-empty and holds unique, non-empty names
func (s FeatureSchema) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("feature schema cannot be empty")
	}
	seen := make(map[string]bool, len(s))
	for i, name := range s {
		if name == "" {
			return fmt.Errorf("feature schema has empty name at position %d", i)
		}
		if seen[name] {
			return fmt.Errorf("feature schema has duplicate name %q", name)
		}
		seen[name] = true
	}
	return nil
}

// ModelMetadata describes the trained model. It is exposed verbatim.
type ModelMetadata struct {
	ModelName string   `json:"model_name"`
	Accuracy  float64  `json:"accuracy"`
	Precision float64  `json:"precision"`
	Recall    float64  `json:"recall"`
	F1Score   float64  `json:"f1_score"`
	Classes   []string `json:"classes"`
	Version   string   `json:"version,omitempty"`
}

// Bundle groups the four artifacts plus the categorical encoding contract
// that ships with them.
type Bundle struct {
	Classifier Classifier
	Scaler     Scaler
	Schema     FeatureSchema
	Metadata   ModelMetadata
	Categories Categories
}

// Store holds a validated artifact bundle for the lifetime of the process.
// A Store is never mutated after construction and is safe for concurrent use.
type Store struct {
	classifier Classifier
	scaler     Scaler
	schema     FeatureSchema
	metadata   ModelMetadata
	categories Categories
	ready      bool
	err        error
}

// New validates the bundle and returns a ready Store
func New(b Bundle) (*Store, error) {
	if b.Classifier == nil {
		return nil, unavailablef("classifier is missing")
	}
	if b.Scaler == nil {
		return nil, unavailablef("scaler is missing")
	}
	if err := validateClassifier(b.Classifier); err != nil {
		return nil, unavailablef("%v", err)
	}
	if err := validateScaler(b.Scaler); err != nil {
		return nil, unavailablef("%v", err)
	}
	if err := b.Schema.Validate(); err != nil {
		return nil, unavailablef("%v", err)
	}

	width := len(b.Schema)
	if n := b.Scaler.NumFeatures(); n != width {
		return nil, unavailablef("scaler expects %d features, schema has %d", n, width)
	}
	if n := b.Classifier.NumFeatures(); n != width {
		return nil, unavailablef("classifier expects %d features, schema has %d", n, width)
	}

	classes := b.Classifier.Classes()
	if len(classes) < 2 {
		return nil, unavailablef("classifier must know at least 2 classes, got %d", len(classes))
	}
	meta := b.Metadata
	meta.Classes = slices.Clone(meta.Classes)
	if len(meta.Classes) == 0 {
		meta.Classes = slices.Clone(classes)
	} else if !slices.Equal(meta.Classes, classes) {
		return nil, unavailablef("metadata classes %v do not match classifier classes %v", meta.Classes, classes)
	}

	categories := b.Categories
	if len(categories) == 0 {
		categories = DefaultCategories()
	}
	if err := categories.Validate(); err != nil {
		return nil, unavailablef("%v", err)
	}

	return &Store{
		classifier: b.Classifier,
		scaler:     b.Scaler,
		schema:     slices.Clone(b.Schema),
		metadata:   meta,
		categories: categories.clone(),
		ready:      true,
	}, nil
}

// validateClassifier runs the structural checks of the built-in classifiers
func validateClassifier(c Classifier) error {
	switch c := c.(type) {
	case *LogisticRegression:
		return c.validate()
	case *RandomForest:
		return c.validate()
	}
	return nil
}

func validateScaler(s Scaler) error {
	switch s := s.(type) {
	case *StandardScaler:
		return s.validate()
	case *MinMaxScaler:
		return s.validate()
	}
	return nil
}

// Unavailable returns a Store in the unloaded state. Every accessor that
// needs an artifact reports err wrapped in ErrArtifactsUnavailable.
func Unavailable(err error) *Store {
	if err == nil {
		err = ErrArtifactsUnavailable
	}
	if !errors.Is(err, ErrArtifactsUnavailable) {
		err = fmt.Errorf("%w: %w", ErrArtifactsUnavailable, err)
	}
	return &Store{err: err}
}

// Ready reports whether all four artifacts were loaded successfully
func (s *Store) Ready() bool {
	return s != nil && s.ready
}

// Err returns nil for a ready store and the load failure otherwise
func (s *Store) Err() error {
	if s == nil {
		return ErrArtifactsUnavailable
	}
	if s.ready {
		return nil
	}
	return s.err
}

// Classifier returns the loaded classifier, nil when not ready
func (s *Store) Classifier() Classifier {
	if !s.Ready() {
		return nil
	}
	return s.classifier
}

// Scaler returns the fitted scaler, nil when not ready
func (s *Store) Scaler() Scaler {
	if !s.Ready() {
		return nil
	}
	return s.scaler
}

// Schema returns a copy of the feature schema
func (s *Store) Schema() FeatureSchema {
	if !s.Ready() {
		return nil
	}
	return slices.Clone(s.schema)
}

// Metadata returns a copy of the model metadata
func (s *Store) Metadata() (ModelMetadata, error) {
	if !s.Ready() {
		return ModelMetadata{}, s.Err()
	}
	meta := s.metadata
	meta.Classes = slices.Clone(meta.Classes)
	return meta, nil
}

// Categories returns a copy of the categorical encoding contract
func (s *Store) Categories() Categories {
	if !s.Ready() {
		return nil
	}
	return s.categories.clone()
}

// Bundle returns the artifacts held by the store, for re-saving
func (s *Store) Bundle() (Bundle, error) {
	if !s.Ready() {
		return Bundle{}, s.Err()
	}
	meta, _ := s.Metadata()
	return Bundle{
		Classifier: s.classifier,
		Scaler:     s.scaler,
		Schema:     s.Schema(),
		Metadata:   meta,
		Categories: s.Categories(),
	}, nil
}
