package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"rx-reader/internal/domain"
	"rx-reader/internal/metrics"
)

// AnalyzeService runs the two-stage pipeline for one upload: transcription,
// then extraction, then persistence of the result.
type AnalyzeService struct {
	caller        modelCaller
	extractor     *Extractor
	store         PrescriptionStore
	archive       ImageArchiver
	maxImageBytes int
	logger        *slog.Logger
	metrics       *metrics.AnalysisMetrics
}

type AnalyzeOutput struct {
	Analysis       domain.PrescriptionAnalysis
	PrescriptionID int64
	MessageID      int64
}

// NewAnalyzeService wires the pipeline. archive may be nil, in which case the
// upload is stored inline with the prescription record.
func NewAnalyzeService(llm LLMClient, ex *Extractor, s PrescriptionStore, archive ImageArchiver, opts Options) (*AnalyzeService, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if ex == nil {
		return nil, errors.New("usecase: extractor must not be nil")
	}
	if s == nil {
		return nil, errors.New("usecase: prescription store must not be nil")
	}
	opts = opts.withDefaults()
	return &AnalyzeService{
		caller:        modelCaller{llm: llm, model: opts.Model, timeout: opts.ModelTimeout, metrics: opts.Metrics},
		extractor:     ex,
		store:         s,
		archive:       archive,
		maxImageBytes: opts.MaxImageBytes,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
	}, nil
}

// Analyze validates the data URL and runs the full pipeline. Input problems
// come back as ErrMissingImage, or as a size/format AnalysisError; model
// failures are classified.
func (s *AnalyzeService) Analyze(ctx context.Context, dataURL string) (AnalyzeOutput, error) {
	img, err := domain.ParseImageDataURL(dataURL)
	if err != nil {
		if errors.Is(err, domain.ErrMissingImage) {
			return AnalyzeOutput{}, err
		}
		return AnalyzeOutput{}, s.fail(ctx, stageTranscription, err)
	}
	if len(img.Data) > s.maxImageBytes {
		return AnalyzeOutput{}, s.fail(ctx, stageTranscription,
			newError(ErrorSize, "image_too_large", fmt.Errorf("usecase: image is %d bytes, limit %d", len(img.Data), s.maxImageBytes)))
	}

	transcription, err := s.Transcribe(ctx, img)
	if err != nil {
		return AnalyzeOutput{}, s.fail(ctx, stageTranscription, err)
	}
	analysis, err := s.extractor.Extract(ctx, transcription)
	if err != nil {
		// Already classified and logged by the extractor.
		s.recordError(ctx, Classify(err))
		return AnalyzeOutput{}, err
	}
	s.metrics.ObserveAnalysis(analysis.UnreadableImage, string(analysis.Reason))

	out := AnalyzeOutput{Analysis: analysis}
	pid, mid, err := s.persist(ctx, img, dataURL, analysis)
	if err != nil {
		s.logger.ErrorContext(ctx, "persist analysis failed", "err", err)
		return out, nil
	}
	out.PrescriptionID = pid
	out.MessageID = mid
	return out, nil
}

// Transcribe is the first model call: free text describing the picture.
func (s *AnalyzeService) Transcribe(ctx context.Context, img domain.Image) (string, error) {
	raw, err := s.caller.call(ctx, stageTranscription, domain.CompletionRequest{
		Messages:  buildTranscriptionMessages(img),
		MaxTokens: transcriptionMaxTokens,
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(raw) == "" {
		return emptyTranscription, nil
	}
	return raw, nil
}

func (s *AnalyzeService) GetPrescription(ctx context.Context, id int64) (domain.Prescription, error) {
	p, err := s.store.GetPrescription(ctx, id)
	if err != nil {
		return domain.Prescription{}, fmt.Errorf("usecase: get prescription %d: %w", id, err)
	}
	return p, nil
}

// Conversation returns the chat log of a prescription in insertion order.
func (s *AnalyzeService) Conversation(ctx context.Context, prescriptionID int64) ([]domain.Message, error) {
	if _, err := s.store.GetPrescription(ctx, prescriptionID); err != nil {
		return nil, fmt.Errorf("usecase: get prescription %d: %w", prescriptionID, err)
	}
	msgs, err := s.store.ListMessagesByPrescription(ctx, prescriptionID)
	if err != nil {
		return nil, fmt.Errorf("usecase: list messages for %d: %w", prescriptionID, err)
	}
	return msgs, nil
}

func (s *AnalyzeService) persist(ctx context.Context, img domain.Image, dataURL string, analysis domain.PrescriptionAnalysis) (int64, int64, error) {
	record := domain.Prescription{ImageBase64: dataURL}
	source := dataURL
	if s.archive != nil {
		key, err := s.archive.Put(ctx, img)
		if err != nil {
			s.logger.WarnContext(ctx, "image archive failed, storing inline", "err", err)
		} else {
			record = domain.Prescription{ImageKey: key}
			source = key
		}
	}
	p, err := s.store.CreatePrescription(ctx, record)
	if err != nil {
		return 0, 0, fmt.Errorf("usecase: create prescription: %w", err)
	}
	pid := int64Ptr(p.ID)

	imgMsg, err := domain.NewMessage(pid, domain.ImageEntry{Source: source})
	if err != nil {
		return 0, 0, err
	}
	if _, err := s.store.CreateMessage(ctx, imgMsg); err != nil {
		return 0, 0, fmt.Errorf("usecase: create image message: %w", err)
	}

	resultMsg, err := domain.NewMessage(pid, domain.PrescriptionEntry{Analysis: analysis})
	if err != nil {
		return 0, 0, err
	}
	saved, err := s.store.CreateMessage(ctx, resultMsg)
	if err != nil {
		return 0, 0, fmt.Errorf("usecase: create analysis message: %w", err)
	}
	return p.ID, saved.ID, nil
}

// fail classifies err, logs it and leaves an error bubble in the chat log.
func (s *AnalyzeService) fail(ctx context.Context, stage string, err error) *AnalysisError {
	ae := classifyAndLog(ctx, s.logger, s.metrics, stage, err)
	s.recordError(ctx, ae)
	return ae
}

func (s *AnalyzeService) recordError(ctx context.Context, ae *AnalysisError) {
	msg, err := domain.NewMessage(nil, domain.SystemEntry{Error: &domain.ErrorInfo{
		Message:   ae.Message,
		ErrorType: string(ae.Kind),
	}})
	if err != nil {
		return
	}
	if _, err := s.store.CreateMessage(ctx, msg); err != nil {
		s.logger.WarnContext(ctx, "record error message failed", "err", err)
	}
}
