// Package handler exposes the analyzer over HTTP. The same router serves
// both the standalone server and API Gateway events through LambdaHandler.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rx-reader/internal/domain"
	"rx-reader/internal/usecase"
)

const defaultMaxBodyBytes = 14 << 20

type Analyzer interface {
	Analyze(ctx context.Context, dataURL string) (usecase.AnalyzeOutput, error)
	GetPrescription(ctx context.Context, id int64) (domain.Prescription, error)
	Conversation(ctx context.Context, prescriptionID int64) ([]domain.Message, error)
}

type Responder interface {
	Reply(ctx context.Context, content string) (string, error)
}

type FeedbackRecorder interface {
	Submit(ctx context.Context, messageID int64, isAccurate bool) (domain.Feedback, error)
	Get(ctx context.Context, id int64) (domain.Feedback, error)
}

// ImageFetcher reads archived uploads back by object key.
type ImageFetcher interface {
	Get(ctx context.Context, key string) (domain.Image, error)
}

// Config wires the router. Images and Gatherer are optional.
type Config struct {
	Analyzer       Analyzer
	Chat           Responder
	Feedback       FeedbackRecorder
	Images         ImageFetcher
	Gatherer       prometheus.Gatherer
	Logger         *slog.Logger
	AllowedOrigins []string
	MaxBodyBytes   int64
}

type Handler struct {
	analyzer     Analyzer
	chat         Responder
	feedback     FeedbackRecorder
	images       ImageFetcher
	logger       *slog.Logger
	maxBodyBytes int64
}

// NewRouter validates cfg and returns the HTTP handler for every route.
func NewRouter(cfg Config) (http.Handler, error) {
	if cfg.Analyzer == nil {
		return nil, errors.New("handler: analyzer must not be nil")
	}
	if cfg.Chat == nil {
		return nil, errors.New("handler: chat service must not be nil")
	}
	if cfg.Feedback == nil {
		return nil, errors.New("handler: feedback service must not be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	h := &Handler{
		analyzer:     cfg.Analyzer,
		chat:         cfg.Chat,
		feedback:     cfg.Feedback,
		images:       cfg.Images,
		logger:       cfg.Logger,
		maxBodyBytes: cfg.MaxBodyBytes,
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(correlationID)
	r.Use(requestLogger(cfg.Logger))
	r.Use(chimw.Recoverer)
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors(cfg.AllowedOrigins))
	}

	r.Get("/health", h.health)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/prescriptions/analyze", h.analyze)
		r.Get("/prescriptions/{id}", h.getPrescription)
		r.Get("/prescriptions/{id}/messages", h.listMessages)
		r.Get("/prescriptions/{id}/image", h.getImage)
		r.Post("/messages", h.postMessage)
		r.Post("/feedbacks", h.postFeedback)
		r.Get("/feedbacks/{id}", h.getFeedback)
	})
	return r, nil
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ---- responses

type errorResponse struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Message: msg})
}

// writeClassified renders a classified failure. Only kind and message leave
// the process.
func writeClassified(w http.ResponseWriter, status int, ae *usecase.AnalysisError) {
	writeJSON(w, status, errorResponse{Message: ae.Message, Type: string(ae.Kind)})
}

// decodeBody reads a JSON request body bounded by maxBodyBytes. It writes
// the error response itself and reports whether decoding succeeded.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{
				Message: usecase.MessageSize,
				Type:    string(usecase.ErrorSize),
			})
			return false
		}
		writeMessage(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}
