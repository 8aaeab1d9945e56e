package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"rx-reader/internal/domain"
	"rx-reader/internal/metrics"
)

const (
	defaultModel            = "gpt-4o"
	defaultModelTimeout     = 60 * time.Second
	defaultMaxImageBytes    = 10 << 20
	defaultMaxMessageLength = 2000

	transcriptionMaxTokens = 800
	chatMaxTokens          = 500
)

const (
	stageTranscription = "transcription"
	stageExtraction    = "extraction"
	stageChat          = "chat"
	stageFeedback      = "feedback"
)

// ErrInvalidInput marks request validation failures. They are not
// classified and map to 400 at the HTTP layer.
var ErrInvalidInput = errors.New("usecase: invalid input")

type LLMClient interface {
	Complete(ctx context.Context, req domain.CompletionRequest) (string, error)
}

type MessageWriter interface {
	CreateMessage(ctx context.Context, m domain.Message) (domain.Message, error)
}

type PrescriptionStore interface {
	MessageWriter
	CreatePrescription(ctx context.Context, p domain.Prescription) (domain.Prescription, error)
	GetPrescription(ctx context.Context, id int64) (domain.Prescription, error)
	ListMessagesByPrescription(ctx context.Context, prescriptionID int64) ([]domain.Message, error)
}

type FeedbackStore interface {
	CreateFeedback(ctx context.Context, f domain.Feedback) (domain.Feedback, error)
	GetFeedback(ctx context.Context, id int64) (domain.Feedback, error)
}

// ImageArchiver copies uploads to durable storage and returns the object key.
type ImageArchiver interface {
	Put(ctx context.Context, img domain.Image) (string, error)
}

// Options carries the tunables shared by the services. Zero values fall back
// to defaults.
type Options struct {
	Model            string
	ModelTimeout     time.Duration
	MaxImageBytes    int
	MaxMessageLength int
	Logger           *slog.Logger
	Metrics          *metrics.AnalysisMetrics
}

func (o Options) withDefaults() Options {
	if o.Model == "" {
		o.Model = defaultModel
	}
	if o.ModelTimeout <= 0 {
		o.ModelTimeout = defaultModelTimeout
	}
	if o.MaxImageBytes <= 0 {
		o.MaxImageBytes = defaultMaxImageBytes
	}
	if o.MaxMessageLength <= 0 {
		o.MaxMessageLength = defaultMaxMessageLength
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// modelCaller bounds every model call with the configured timeout and
// records its latency.
type modelCaller struct {
	llm     LLMClient
	model   string
	timeout time.Duration
	metrics *metrics.AnalysisMetrics
}

func (c modelCaller) call(ctx context.Context, stage string, req domain.CompletionRequest) (string, error) {
	if req.Model == "" {
		req.Model = c.model
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	start := time.Now()
	out, err := c.llm.Complete(ctx, req)
	c.metrics.ObserveModelCall(stage, time.Since(start).Seconds())
	return out, err
}

// classifyAndLog is the single place where raw failures are turned into the
// user-facing taxonomy. The original error only goes to the log.
func classifyAndLog(ctx context.Context, logger *slog.Logger, m *metrics.AnalysisMetrics, stage string, err error) *AnalysisError {
	ae := Classify(err)
	level := slog.LevelError
	if ae.Kind == ErrorSize || ae.Kind == ErrorFormat {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, "request failed",
		"stage", stage,
		"kind", string(ae.Kind),
		"reason", ae.Reason,
		"err", err,
	)
	m.ObserveError(stage, string(ae.Kind))
	return ae
}

func int64Ptr(v int64) *int64 { return &v }
