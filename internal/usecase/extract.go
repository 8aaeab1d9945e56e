package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"rx-reader/internal/domain"
	"rx-reader/internal/medication"
	"rx-reader/internal/metrics"
)

const (
	InfoIllegible     = "The prescription image is difficult to read. Please upload a clearer image with better lighting."
	InfoModelFlagged  = "The prescription image couldn't be properly analyzed. Please upload a clearer image."
	InfoNoMedications = "No medications were detected in the image. Please upload a clearer image of a prescription."
	InfoSoftFailure   = "There was an error analyzing the prescription. Please try again with a clearer image."
)

// Extractor turns a transcription into a validated medication list. It only
// returns an error for api-class failures; everything else degrades to an
// unreadable result.
type Extractor struct {
	caller        modelCaller
	validator     *medication.Validator
	abbreviations map[string][]string
	logger        *slog.Logger
	metrics       *metrics.AnalysisMetrics
}

func NewExtractor(llm LLMClient, v *medication.Validator, abbreviations map[string][]string, opts Options) (*Extractor, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if v == nil {
		return nil, errors.New("usecase: validator must not be nil")
	}
	opts = opts.withDefaults()
	return &Extractor{
		caller:        modelCaller{llm: llm, model: opts.Model, timeout: opts.ModelTimeout, metrics: opts.Metrics},
		validator:     v,
		abbreviations: abbreviations,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
	}, nil
}

func (e *Extractor) Extract(ctx context.Context, transcription string) (domain.PrescriptionAnalysis, error) {
	if medication.IsUnreadable(transcription) {
		e.logger.InfoContext(ctx, "transcription flagged as illegible, skipping extraction call")
		return domain.Unreadable(domain.ReasonIllegibleTranscription, InfoIllegible), nil
	}

	raw, err := e.caller.call(ctx, stageExtraction, domain.CompletionRequest{
		Messages: buildExtractionMessages(transcription, e.abbreviations),
		JSON:     true,
	})
	if err != nil {
		ae := classifyAndLog(ctx, e.logger, e.metrics, stageExtraction, err)
		if ae.Kind == ErrorAPI {
			return domain.PrescriptionAnalysis{}, ae
		}
		return domain.Unreadable(domain.ReasonExtractionFailed, InfoSoftFailure), nil
	}

	parsed, err := parseExtraction(raw)
	if err != nil {
		e.logger.WarnContext(ctx, "extraction response is not valid JSON", "err", err)
		return domain.Unreadable(domain.ReasonMalformedResponse, InfoSoftFailure), nil
	}
	if parsed.unreadableImage {
		info := parsed.additionalInfo
		if info == "" {
			info = InfoModelFlagged
		}
		return domain.Unreadable(domain.ReasonModelUnreadable, info), nil
	}
	if len(parsed.medications) == 0 {
		return domain.Unreadable(domain.ReasonNoMedications, InfoNoMedications), nil
	}

	meds := make([]domain.Medication, 0, len(parsed.medications))
	warnings := 0
	for _, m := range parsed.medications {
		m = e.validator.Apply(m)
		if strings.TrimSpace(m.Warning) != "" {
			warnings++
		}
		meds = append(meds, m)
	}
	e.metrics.ObserveDosageWarnings(warnings)
	return domain.PrescriptionAnalysis{
		Medications:    meds,
		AdditionalInfo: parsed.additionalInfo,
	}, nil
}
