package features

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/liamcoop/chronopulse/artifacts"
)

// ErrEncoding marks a structurally malformed record. Unknown category
// values are not an encoding error; they encode as the baseline.
var ErrEncoding = errors.New("malformed input record")

// Column names of the directly measured quantities, as used at training time
const (
	ColAge                   = "Age"
	ColSleepDuration         = "Sleep Duration"
	ColQualityOfSleep        = "Quality of Sleep"
	ColPhysicalActivityLevel = "Physical Activity Level"
	ColStressLevel           = "Stress Level"
	ColHeartRate             = "Heart Rate"
	ColDailySteps            = "Daily Steps"
	ColSystolicBP            = "Systolic_BP"
	ColDiastolicBP           = "Diastolic_BP"
)

var numericColumns = []string{
	ColAge,
	ColSleepDuration,
	ColQualityOfSleep,
	ColPhysicalActivityLevel,
	ColStressLevel,
	ColHeartRate,
	ColDailySteps,
	ColSystolicBP,
	ColDiastolicBP,
}

// Vector is a feature vector aligned to a FeatureSchema
type Vector []float64

// Encoder turns records into feature vectors using the category sets that
// shipped with the model artifacts.
type Encoder struct {
	groups artifacts.Categories
}

// NewEncoder validates the category groups against the record's categorical fields
func NewEncoder(categories artifacts.Categories) (*Encoder, error) {
	if err := categories.Validate(); err != nil {
		return nil, err
	}
	for _, g := range categories {
		if _, ok := (Record{}).Category(g.Field); !ok {
			return nil, fmt.Errorf("category group refers to unknown record field %q", g.Field)
		}
	}
	return &Encoder{groups: categories}, nil
}

func (r Record) numeric() map[string]float64 {
	return map[string]float64{
		ColAge:                   float64(r.Age),
		ColSleepDuration:         r.SleepDuration,
		ColQualityOfSleep:        float64(r.QualityOfSleep),
		ColPhysicalActivityLevel: float64(r.PhysicalActivityLevel),
		ColStressLevel:           float64(r.StressLevel),
		ColHeartRate:             float64(r.HeartRate),
		ColDailySteps:            float64(r.DailySteps),
		ColSystolicBP:            float64(r.SystolicBP),
		ColDiastolicBP:           float64(r.DiastolicBP),
	}
}

// Assemble maps every column the encoder can produce to its value for rec.
// Numeric fields pass through unchanged; each category group contributes one
// 0/1 indicator per non-baseline value.
func (e *Encoder) Assemble(rec Record) (map[string]float64, error) {
	out := rec.numeric()
	for name, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: %s is not a finite number", ErrEncoding, name)
		}
	}

	for _, g := range e.groups {
		value, _ := rec.Category(g.Field)
		for _, v := range g.Values[1:] {
			if value == v {
				out[g.Prefix+v] = 1
			} else {
				out[g.Prefix+v] = 0
			}
		}
	}
	return out, nil
}

// Encode builds the vector for schema. Schema columns the encoder does not
// produce are zero; produced columns missing from schema are dropped.
func (e *Encoder) Encode(rec Record, schema artifacts.FeatureSchema) (Vector, error) {
	values, err := e.Assemble(rec)
	if err != nil {
		return nil, err
	}
	vec := make(Vector, len(schema))
	for i, name := range schema {
		vec[i] = values[name]
	}
	return vec, nil
}

// Columns lists every column the encoder can produce
func (e *Encoder) Columns() []string {
	cols := slices.Clone(numericColumns)
	for _, g := range e.groups {
		cols = append(cols, g.Columns()...)
	}
	return cols
}

// Drift describes disagreement between an encoder and a feature schema.
type Drift struct {
	// Unproduced are schema columns the encoder never sets; they are always zero.
	Unproduced []string `json:"unproduced,omitempty"`
	// Dropped are encoder columns the schema does not contain.
	Dropped []string `json:"dropped,omitempty"`
}

// Empty reports whether encoder and schema agree exactly
func (d Drift) Empty() bool {
	return len(d.Unproduced) == 0 && len(d.Dropped) == 0
}

// Audit compares the encoder's columns with schema
func (e *Encoder) Audit(schema artifacts.FeatureSchema) Drift {
	produced := e.Columns()
	var d Drift
	for _, name := range schema {
		if !slices.Contains(produced, name) {
			d.Unproduced = append(d.Unproduced, name)
		}
	}
	for _, name := range produced {
		if !slices.Contains(schema, name) {
			d.Dropped = append(d.Dropped, name)
		}
	}
	return d
}
