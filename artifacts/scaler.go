package artifacts

import (
	"encoding/json"
	"fmt"
	"io"
)

// Scaler applies the affine transform fitted at training time. Transform
// never modifies its argument and never refits.
type Scaler interface {
	NumFeatures() int
	Transform(x []float64) ([]float64, error)
}

// Scaler types understood by DecodeScaler
const (
	ScalerStandard = "standard"
	ScalerMinMax   = "min_max"
)

// StandardScaler computes (x - Mean) / Scale per column.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// NumFeatures returns the fitted width
func (s *StandardScaler) NumFeatures() int { return len(s.Mean) }

// Transform standardizes x. A zero scale is treated as 1, matching how
// constant columns are stored after fitting.
func (s *StandardScaler) Transform(x []float64) ([]float64, error) {
	if len(x) != len(s.Mean) {
		return nil, &ShapeError{Component: "scaler", Want: len(s.Mean), Got: len(x)}
	}
	out := make([]float64, len(x))
	for i, v := range x {
		scale := s.Scale[i]
		if scale == 0 {
			scale = 1
		}
		out[i] = (v - s.Mean[i]) / scale
	}
	return out, nil
}

func (s *StandardScaler) validate() error {
	if len(s.Mean) == 0 {
		return fmt.Errorf("standard scaler has no columns")
	}
	if len(s.Mean) != len(s.Scale) {
		return fmt.Errorf("standard scaler mean has %d columns, scale has %d", len(s.Mean), len(s.Scale))
	}
	return nil
}

// MinMaxScaler computes x*Scale + Min per column.
type MinMaxScaler struct {
	Min   []float64 `json:"min"`
	Scale []float64 `json:"scale"`
}

// NumFeatures returns the fitted width
func (s *MinMaxScaler) NumFeatures() int { return len(s.Min) }

// Transform rescales x
func (s *MinMaxScaler) Transform(x []float64) ([]float64, error) {
	if len(x) != len(s.Min) {
		return nil, &ShapeError{Component: "scaler", Want: len(s.Min), Got: len(x)}
	}
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = v*s.Scale[i] + s.Min[i]
	}
	return out, nil
}

func (s *MinMaxScaler) validate() error {
	if len(s.Min) == 0 {
		return fmt.Errorf("min-max scaler has no columns")
	}
	if len(s.Min) != len(s.Scale) {
		return fmt.Errorf("min-max scaler min has %d columns, scale has %d", len(s.Min), len(s.Scale))
	}
	return nil
}

// DecodeScaler reads a type-tagged scaler
func DecodeScaler(r io.Reader) (Scaler, error) {
	var env envelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return nil, fmt.Errorf("error decoding scaler: %w", err)
	}

	switch env.Type {
	case ScalerStandard:
		var s StandardScaler
		if err := json.Unmarshal(env.Params, &s); err != nil {
			return nil, fmt.Errorf("error deserializing standard scaler: %w", err)
		}
		if err := s.validate(); err != nil {
			return nil, err
		}
		return &s, nil

	case ScalerMinMax:
		var s MinMaxScaler
		if err := json.Unmarshal(env.Params, &s); err != nil {
			return nil, fmt.Errorf("error deserializing min-max scaler: %w", err)
		}
		if err := s.validate(); err != nil {
			return nil, err
		}
		return &s, nil

	default:
		return nil, fmt.Errorf("found unknown scaler type '%s'", env.Type)
	}
}

// EncodeScaler writes s in the format read by DecodeScaler
func EncodeScaler(w io.Writer, s Scaler) error {
	var typ string
	switch s.(type) {
	case *StandardScaler:
		typ = ScalerStandard
	case *MinMaxScaler:
		typ = ScalerMinMax
	default:
		return fmt.Errorf("cannot encode scaler of type %T", s)
	}
	return writeEnvelope(w, typ, s)
}
