package main

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/liamcoop/chronopulse/features"
)

// API Request and Response Models with Swagger annotations

// PredictRequest is the body of POST /predict. Every field is required.
type PredictRequest struct {
	Age                   *int     `json:"age" example:"35" binding:"required"`
	Gender                *string  `json:"gender" example:"Male" binding:"required"`
	Occupation            *string  `json:"occupation" example:"Software Engineer" binding:"required"`
	SleepDuration         *float64 `json:"sleep_duration" example:"6.5" binding:"required"`
	QualityOfSleep        *int     `json:"quality_of_sleep" example:"6" binding:"required"`
	PhysicalActivityLevel *int     `json:"physical_activity_level" example:"45" binding:"required"`
	StressLevel           *int     `json:"stress_level" example:"7" binding:"required"`
	BMICategory           *string  `json:"bmi_category" example:"Normal" binding:"required"`
	HeartRate             *int     `json:"heart_rate" example:"72" binding:"required"`
	DailySteps            *int     `json:"daily_steps" example:"6000" binding:"required"`
	SystolicBP            *int     `json:"systolic_bp" example:"125" binding:"required"`
	DiastolicBP           *int     `json:"diastolic_bp" example:"82" binding:"required"`
} // @name PredictRequest

// Validate checks presence and plausible ranges, and returns the record
func (r *PredictRequest) Validate() (features.Record, error) {
	var problems []string
	missing := func(name string) { problems = append(problems, name+" is required") }

	intIn := func(name string, v *int, lo, hi int) int {
		if v == nil {
			missing(name)
			return 0
		}
		if *v < lo || *v > hi {
			problems = append(problems, fmt.Sprintf("%s must be between %d and %d", name, lo, hi))
		}
		return *v
	}
	text := func(name string, v *string) string {
		if v == nil {
			missing(name)
			return ""
		}
		if strings.TrimSpace(*v) == "" {
			problems = append(problems, name+" must not be empty")
		}
		return *v
	}

	rec := features.Record{
		Age:                   intIn("age", r.Age, 0, 120),
		Gender:                text("gender", r.Gender),
		Occupation:            text("occupation", r.Occupation),
		QualityOfSleep:        intIn("quality_of_sleep", r.QualityOfSleep, 1, 10),
		PhysicalActivityLevel: intIn("physical_activity_level", r.PhysicalActivityLevel, 0, 1440),
		StressLevel:           intIn("stress_level", r.StressLevel, 1, 10),
		BMICategory:           text("bmi_category", r.BMICategory),
		HeartRate:             intIn("heart_rate", r.HeartRate, 1, 300),
		DailySteps:            intIn("daily_steps", r.DailySteps, 0, 200000),
		SystolicBP:            intIn("systolic_bp", r.SystolicBP, 1, 300),
		DiastolicBP:           intIn("diastolic_bp", r.DiastolicBP, 1, 200),
	}

	switch {
	case r.SleepDuration == nil:
		missing("sleep_duration")
	case math.IsNaN(*r.SleepDuration) || *r.SleepDuration < 0 || *r.SleepDuration > 24:
		problems = append(problems, "sleep_duration must be between 0 and 24")
	default:
		rec.SleepDuration = *r.SleepDuration
	}

	if len(problems) > 0 {
		return features.Record{}, fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return rec, nil
}

// ModelInfo is the model summary embedded in prediction responses
type ModelInfo struct {
	ModelName string  `json:"model_name" example:"Logistic Regression"`
	Accuracy  float64 `json:"accuracy" example:"0.9333"`
} // @name ModelInfo

// PredictResponse is returned by POST /predict
type PredictResponse struct {
	ID              string             `json:"id" example:"123e4567-e89b-12d3-a456-426614174000"`
	Prediction      string             `json:"prediction" example:"Insomnia"`
	Confidence      map[string]float64 `json:"confidence"`
	Recommendations []string           `json:"recommendations"`
	ModelInfo       ModelInfo          `json:"model_info"`
} // @name PredictResponse

// PredictionRecordResponse is one entry of the prediction audit log
type PredictionRecordResponse struct {
	ID              string             `json:"id" example:"123e4567-e89b-12d3-a456-426614174000"`
	Input           features.Record    `json:"input"`
	Prediction      string             `json:"prediction" example:"None"`
	Confidence      map[string]float64 `json:"confidence"`
	Recommendations []string           `json:"recommendations"`
	ModelName       string             `json:"model_name" example:"Logistic Regression"`
	ModelVersion    string             `json:"model_version,omitempty" example:"2024.1"`
	CreatedAt       time.Time          `json:"created_at" example:"2024-01-15T10:30:00Z"`
} // @name PredictionRecordResponse

// PredictionsListResponse is returned by GET /api/v1/predictions
type PredictionsListResponse struct {
	Predictions []PredictionRecordResponse `json:"predictions"`
} // @name PredictionsListResponse

// WelcomeResponse is returned by GET /
type WelcomeResponse struct {
	Message string `json:"message" example:"Welcome to Chrono-Pulse AI API"`
	Version string `json:"version" example:"1.0.0"`
	Status  string `json:"status" example:"active"`
} // @name WelcomeResponse

// HealthResponse represents the health check response
type HealthResponse struct {
	Status      string `json:"status" example:"healthy"`
	ModelLoaded bool   `json:"model_loaded" example:"true"`
} // @name HealthResponse

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error" example:"invalid request body"`
	Details string `json:"details,omitempty" example:"stress_level must be between 1 and 10"`
} // @name ErrorResponse
