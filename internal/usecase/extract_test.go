package usecase

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rx-reader/internal/domain"
	"rx-reader/internal/integrations/openai"
)

func newTestExtractor(t *testing.T, llm LLMClient) *Extractor {
	t.Helper()
	ex, err := NewExtractor(llm, defaultValidator(), nil, Options{Model: "test-model"})
	require.NoError(t, err)
	return ex
}

func TestNewExtractor_ValidatesDependencies(t *testing.T) {
	_, err := NewExtractor(nil, defaultValidator(), nil, Options{})
	require.Error(t, err)

	_, err = NewExtractor(&mockLLM{}, nil, nil, Options{})
	require.Error(t, err)
}

func TestExtract_IllegibleTranscriptionSkipsModel(t *testing.T) {
	llm := &mockLLM{responses: []llmResponse{{answer: `{"medications":[{"name":"x","dosage":"1mg"}]}`}}}
	ex := newTestExtractor(t, llm)

	out, err := ex.Extract(context.Background(), "The note is illegible, cannot read handwriting")
	require.NoError(t, err)
	require.True(t, out.UnreadableImage)
	require.Empty(t, out.Medications)
	require.NotNil(t, out.Medications)
	require.Equal(t, InfoIllegible, out.AdditionalInfo)
	require.Equal(t, domain.ReasonIllegibleTranscription, out.Reason)
	require.Zero(t, llm.callCount())
}

func TestExtract_ValidatesMedications(t *testing.T) {
	llm := &mockLLM{responses: []llmResponse{{answer: `{"medications":[
		{"name":"Paracetamol","dosage":"2000mg","instructions":"every 8 hours"},
		{"name":"Amoxicillin","dosage":"500mg"}
	],"additionalInfo":"Take with food"}`}}}
	ex := newTestExtractor(t, llm)

	out, err := ex.Extract(context.Background(), "Paracetamol 2000mg, Amoxicillin 500mg")
	require.NoError(t, err)
	require.False(t, out.UnreadableImage)
	require.Equal(t, domain.ReasonNone, out.Reason)
	require.Equal(t, "Take with food", out.AdditionalInfo)
	require.Len(t, out.Medications, 2)

	para := out.Medications[0]
	require.Contains(t, para.Warning, "2000mg")
	require.Contains(t, para.Warning, "1000mg")
	require.Equal(t, "Category A - Safe during pregnancy", para.PregnancyRisk)
	require.Equal(t, []string{"warfarin"}, para.Interactions)

	require.Empty(t, out.Medications[1].Warning)
	require.Empty(t, out.Medications[1].PregnancyRisk)

	require.Equal(t, 1, llm.callCount())
	req := llm.requests[0]
	require.True(t, req.JSON)
	require.Equal(t, "test-model", req.Model)
	require.Contains(t, req.Messages[1].Content, "Paracetamol 2000mg, Amoxicillin 500mg")
}

func TestExtract_EmptyMedicationsIsUnreadable(t *testing.T) {
	for _, answer := range []string{`{"medications":[]}`, `{}`, ``, `{"medications":{"name":"x"}}`} {
		ex := newTestExtractor(t, &mockLLM{responses: []llmResponse{{answer: answer}}})
		out, err := ex.Extract(context.Background(), "Paracetamol 500mg twice daily")
		require.NoError(t, err, answer)
		require.True(t, out.UnreadableImage, answer)
		require.Empty(t, out.Medications, answer)
		require.Equal(t, InfoNoMedications, out.AdditionalInfo, answer)
		require.Equal(t, domain.ReasonNoMedications, out.Reason, answer)
	}
}

func TestExtract_ModelFlaggedUnreadable(t *testing.T) {
	ex := newTestExtractor(t, &mockLLM{responses: []llmResponse{{answer: `{"medications":[{"name":"x","dosage":"1mg"}],"unreadableImage":true}`}}})
	out, err := ex.Extract(context.Background(), "a note")
	require.NoError(t, err)
	require.True(t, out.UnreadableImage)
	require.Empty(t, out.Medications)
	require.Equal(t, InfoModelFlagged, out.AdditionalInfo)
	require.Equal(t, domain.ReasonModelUnreadable, out.Reason)

	ex = newTestExtractor(t, &mockLLM{responses: []llmResponse{{answer: `{"unreadableImage":true,"additionalInfo":"Only a signature is visible."}`}}})
	out, err = ex.Extract(context.Background(), "a note")
	require.NoError(t, err)
	require.Equal(t, "Only a signature is visible.", out.AdditionalInfo)
}

func TestExtract_MalformedJSONFailsSoft(t *testing.T) {
	ex := newTestExtractor(t, &mockLLM{responses: []llmResponse{{answer: "not-json"}}})
	out, err := ex.Extract(context.Background(), "a note")
	require.NoError(t, err)
	require.True(t, out.UnreadableImage)
	require.Equal(t, InfoSoftFailure, out.AdditionalInfo)
	require.Equal(t, domain.ReasonMalformedResponse, out.Reason)
}

func TestExtract_QuotaErrorIsAPIError(t *testing.T) {
	llm := &mockLLM{responses: []llmResponse{{err: &openai.HTTPStatusError{
		StatusCode: http.StatusTooManyRequests,
		Type:       "insufficient_quota",
		Body:       "You exceeded your current quota",
	}}}}
	ex := newTestExtractor(t, llm)

	out, err := ex.Extract(context.Background(), "a note")
	var ae *AnalysisError
	require.ErrorAs(t, err, &ae)
	require.Equal(t, ErrorAPI, ae.Kind)
	require.Equal(t, MessageAPI, ae.Message)
	require.Empty(t, out.Medications)
	require.False(t, out.UnreadableImage)
}

func TestExtract_UnclassifiedErrorFailsSoft(t *testing.T) {
	ex := newTestExtractor(t, &mockLLM{responses: []llmResponse{{err: errors.New("connection reset by peer")}}})
	out, err := ex.Extract(context.Background(), "a note")
	require.NoError(t, err)
	require.True(t, out.UnreadableImage)
	require.Equal(t, InfoSoftFailure, out.AdditionalInfo)
	require.Equal(t, domain.ReasonExtractionFailed, out.Reason)
}

func TestExtract_TimeoutIsAPIError(t *testing.T) {
	ex, err := NewExtractor(blockingLLM{}, defaultValidator(), nil, Options{ModelTimeout: 10 * time.Millisecond})
	require.NoError(t, err)

	_, err = ex.Extract(context.Background(), "a note")
	var ae *AnalysisError
	require.ErrorAs(t, err, &ae)
	require.Equal(t, ErrorAPI, ae.Kind)
	require.Equal(t, "timeout", ae.Reason)
}
