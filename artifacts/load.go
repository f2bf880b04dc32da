package artifacts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ManifestFile is the optional descriptor read from an artifact directory
const ManifestFile = "manifest.yaml"

// Manifest names the artifact files of a directory and carries the
// categorical encoding contract the model was trained with.
type Manifest struct {
	Version    string     `yaml:"version,omitempty"`
	Classifier string     `yaml:"classifier"`
	Scaler     string     `yaml:"scaler"`
	Features   string     `yaml:"features"`
	Metadata   string     `yaml:"metadata"`
	Categories Categories `yaml:"categories,omitempty"`
}

// DefaultManifest is used for directories without a manifest.yaml
func DefaultManifest() Manifest {
	return Manifest{
		Classifier: "model.json",
		Scaler:     "scaler.json",
		Features:   "feature_names.json",
		Metadata:   "model_info.json",
	}
}

func (m *Manifest) fillDefaults() {
	d := DefaultManifest()
	if m.Classifier == "" {
		m.Classifier = d.Classifier
	}
	if m.Scaler == "" {
		m.Scaler = d.Scaler
	}
	if m.Features == "" {
		m.Features = d.Features
	}
	if m.Metadata == "" {
		m.Metadata = d.Metadata
	}
}

// ReadManifest reads dir/manifest.yaml, falling back to DefaultManifest when
// the file does not exist.
func ReadManifest(dir string) (Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultManifest(), nil
	}
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("failed to parse manifest: %w", err)
	}
	m.fillDefaults()
	return m, nil
}

// Load reads and validates the four artifacts from dir. Every failure wraps
// ErrArtifactsUnavailable.
func Load(dir string) (*Store, error) {
	m, err := ReadManifest(dir)
	if err != nil {
		return nil, unavailablef("%v", err)
	}

	f, err := os.Open(filepath.Join(dir, m.Classifier))
	if err != nil {
		return nil, unavailablef("failed to open classifier: %v", err)
	}
	classifier, err := DecodeClassifier(f)
	f.Close()
	if err != nil {
		return nil, unavailablef("%v", err)
	}

	f, err = os.Open(filepath.Join(dir, m.Scaler))
	if err != nil {
		return nil, unavailablef("failed to open scaler: %v", err)
	}
	scaler, err := DecodeScaler(f)
	f.Close()
	if err != nil {
		return nil, unavailablef("%v", err)
	}

	var schema FeatureSchema
	if err := readJSON(filepath.Join(dir, m.Features), &schema); err != nil {
		return nil, unavailablef("feature names: %v", err)
	}

	var meta ModelMetadata
	if err := readJSON(filepath.Join(dir, m.Metadata), &meta); err != nil {
		return nil, unavailablef("model info: %v", err)
	}
	if meta.Version == "" {
		meta.Version = m.Version
	}

	return New(Bundle{
		Classifier: classifier,
		Scaler:     scaler,
		Schema:     schema,
		Metadata:   meta,
		Categories: m.Categories,
	})
}

// Save writes b to dir in the layout read by Load, including a manifest
func Save(dir string, b Bundle) error {
	if _, err := New(b); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}

	m := DefaultManifest()
	m.Version = b.Metadata.Version
	m.Categories = b.Categories
	if len(m.Categories) == 0 {
		m.Categories = DefaultCategories()
	}

	var buf bytes.Buffer
	if err := EncodeClassifier(&buf, b.Classifier); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, m.Classifier), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write classifier: %w", err)
	}

	buf.Reset()
	if err := EncodeScaler(&buf, b.Scaler); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, m.Scaler), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write scaler: %w", err)
	}

	if err := writeJSON(filepath.Join(dir, m.Features), b.Schema); err != nil {
		return fmt.Errorf("failed to write feature names: %w", err)
	}
	if err := writeJSON(filepath.Join(dir, m.Metadata), b.Metadata); err != nil {
		return fmt.Errorf("failed to write model info: %w", err)
	}

	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
