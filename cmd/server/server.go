package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/liamcoop/chronopulse/artifacts"
	"github.com/liamcoop/chronopulse/features"
	"github.com/liamcoop/chronopulse/inference"
	"github.com/liamcoop/chronopulse/internal/logger"
	"github.com/liamcoop/chronopulse/internal/metrics"
	"github.com/liamcoop/chronopulse/predictions"
	"github.com/liamcoop/chronopulse/predictor"
)

const (
	apiVersion           = "1.0.0"
	maxBodyBytes         = 1 << 16
	slowRequestThreshold = 500 * time.Millisecond
)

type Options struct {
	RequestTimeout time.Duration
	AllowedOrigins []string
}

type Server struct {
	predictor *predictor.Service
	audit     predictions.Store
	metrics   *metrics.Metrics
	log       *slog.Logger
	router    *chi.Mux
}

func NewServer(svc *predictor.Service, audit predictions.Store, m *metrics.Metrics, opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	s := &Server{
		predictor: svc,
		audit:     audit,
		metrics:   m,
		log:       logger.New("http"),
	}
	m.SetModelLoaded(svc.IsReady())
	s.setupRoutes(opts)
	return s
}

func (s *Server) setupRoutes(opts Options) {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.RequestTimeout))
	r.Use(s.countStatus)
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			MaxAge:         300,
		}))
	}

	r.Get("/", s.handleWelcome)
	r.Get("/health", s.handleHealth)
	r.Get("/model-info", s.handleModelInfo)
	r.Post("/predict", s.handlePredict)
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api/v1/predictions", func(r chi.Router) {
		r.Get("/", s.handleListPredictions)
		r.Get("/{predictionId}", s.handleGetPrediction)
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// countStatus feeds response statuses and slow requests into the logger counters
func (s *Server) countStatus(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		logger.CountStatus(status)
		if elapsed := time.Since(start); elapsed > slowRequestThreshold {
			logger.WarnSlowRequest()
			s.log.Warn("slow request", "path", r.URL.Path, "duration", elapsed.String())
		}
	})
}

func (s *Server) handleWelcome(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, WelcomeResponse{
		Message: "Welcome to Chrono-Pulse AI API",
		Version: apiVersion,
		Status:  "active",
	})
}

// handleHealth always answers 200; model_loaded reports readiness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:      "healthy",
		ModelLoaded: s.predictor.IsReady(),
	})
}

func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	meta, err := s.predictor.Metadata()
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "model info not available", err)
		return
	}
	respondJSON(w, http.StatusOK, meta)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if !s.predictor.IsReady() {
		s.metrics.ObserveError(metrics.KindUnavailable)
		respondError(w, http.StatusServiceUnavailable, "model not loaded", nil)
		return
	}

	var req PredictRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.metrics.ObserveError(metrics.KindBadRequest)
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	rec, err := req.Validate()
	if err != nil {
		s.metrics.ObserveError(metrics.KindBadRequest)
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	start := time.Now()
	p, err := s.predictor.Predict(r.Context(), rec)
	if err != nil {
		status, kind, msg := classify(err)
		s.metrics.ObserveError(kind)
		if status >= 500 {
			logger.Error("prediction failed", "error", err, "request_id", middleware.GetReqID(r.Context()))
		}
		respondError(w, status, msg, err)
		return
	}
	s.metrics.ObservePrediction(p.Prediction, time.Since(start).Seconds())

	entry := &predictions.Record{
		Input:           rec,
		Prediction:      p.Prediction,
		Confidence:      p.Confidence,
		Recommendations: p.Recommendations,
		ModelName:       p.ModelInfo.ModelName,
		ModelVersion:    p.ModelInfo.Version,
	}
	// The prediction is still returned when the audit log is down
	if err := s.audit.Add(r.Context(), entry); err != nil {
		logger.Error("failed to record prediction", "error", err)
	}

	respondJSON(w, http.StatusOK, PredictResponse{
		ID:              entry.ID.String(),
		Prediction:      p.Prediction,
		Confidence:      p.Confidence,
		Recommendations: p.Recommendations,
		ModelInfo: ModelInfo{
			ModelName: p.ModelInfo.ModelName,
			Accuracy:  p.ModelInfo.Accuracy,
		},
	})
}

// classify maps a prediction failure to an HTTP status and metric kind
func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, artifacts.ErrArtifactsUnavailable):
		return http.StatusServiceUnavailable, metrics.KindUnavailable, "model not loaded"
	case errors.Is(err, features.ErrEncoding):
		return http.StatusBadRequest, metrics.KindEncoding, "invalid input record"
	case errors.Is(err, inference.ErrInference):
		return http.StatusInternalServerError, metrics.KindInference, "prediction failed"
	default:
		return http.StatusInternalServerError, metrics.KindInternal, "prediction failed"
	}
}

func (s *Server) handleListPredictions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer", nil)
			return
		}
		limit = n
	}

	records, err := s.audit.ListRecent(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list predictions", err)
		return
	}

	resp := PredictionsListResponse{Predictions: make([]PredictionRecordResponse, 0, len(records))}
	for _, rec := range records {
		resp.Predictions = append(resp.Predictions, toRecordResponse(rec))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetPrediction(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "predictionId"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid prediction id", err)
		return
	}

	rec, err := s.audit.Get(r.Context(), id)
	if errors.Is(err, predictions.ErrNotFound) {
		respondError(w, http.StatusNotFound, "prediction not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get prediction", err)
		return
	}
	respondJSON(w, http.StatusOK, toRecordResponse(rec))
}

func toRecordResponse(rec *predictions.Record) PredictionRecordResponse {
	return PredictionRecordResponse{
		ID:              rec.ID.String(),
		Input:           rec.Input,
		Prediction:      rec.Prediction,
		Confidence:      rec.Confidence,
		Recommendations: rec.Recommendations,
		ModelName:       rec.ModelName,
		ModelVersion:    rec.ModelVersion,
		CreatedAt:       rec.CreatedAt,
	}
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		logger.Error("failed to encode response", "error", err)
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	respondJSON(w, status, resp)
}

