package usecase

import (
	"context"
	"errors"
	"sync"

	"rx-reader/internal/domain"
	"rx-reader/internal/knowledge"
	"rx-reader/internal/medication"
)

type llmResponse struct {
	answer string
	err    error
}

// mockLLM replays responses in order and records every request.
type mockLLM struct {
	mu        sync.Mutex
	responses []llmResponse
	requests  []domain.CompletionRequest
}

func (m *mockLLM) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if len(m.responses) == 0 {
		return "", errors.New("no llm response configured")
	}
	idx := len(m.requests) - 1
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	return m.responses[idx].answer, m.responses[idx].err
}

func (m *mockLLM) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// blockingLLM waits for the caller's deadline.
type blockingLLM struct{}

func (blockingLLM) Complete(ctx context.Context, _ domain.CompletionRequest) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

type mockStore struct {
	prescriptions []domain.Prescription
	messages      []domain.Message
	feedbacks     []domain.Feedback

	prescriptionErr error
	messageErr      error
	feedbackErr     error
}

func (m *mockStore) CreatePrescription(_ context.Context, p domain.Prescription) (domain.Prescription, error) {
	if m.prescriptionErr != nil {
		return domain.Prescription{}, m.prescriptionErr
	}
	p.ID = int64(len(m.prescriptions) + 1)
	m.prescriptions = append(m.prescriptions, p)
	return p, nil
}

func (m *mockStore) GetPrescription(_ context.Context, id int64) (domain.Prescription, error) {
	for _, p := range m.prescriptions {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.Prescription{}, domain.ErrNotFound
}

func (m *mockStore) CreateMessage(_ context.Context, msg domain.Message) (domain.Message, error) {
	if m.messageErr != nil {
		return domain.Message{}, m.messageErr
	}
	msg.ID = int64(len(m.messages) + 1)
	m.messages = append(m.messages, msg)
	return msg, nil
}

func (m *mockStore) ListMessagesByPrescription(_ context.Context, pid int64) ([]domain.Message, error) {
	var out []domain.Message
	for _, msg := range m.messages {
		if msg.PrescriptionID != nil && *msg.PrescriptionID == pid {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *mockStore) CreateFeedback(_ context.Context, f domain.Feedback) (domain.Feedback, error) {
	if m.feedbackErr != nil {
		return domain.Feedback{}, m.feedbackErr
	}
	f.ID = int64(len(m.feedbacks) + 1)
	m.feedbacks = append(m.feedbacks, f)
	return f, nil
}

func (m *mockStore) GetFeedback(_ context.Context, id int64) (domain.Feedback, error) {
	for _, f := range m.feedbacks {
		if f.ID == id {
			return f, nil
		}
	}
	return domain.Feedback{}, domain.ErrNotFound
}

type mockArchive struct {
	key string
	err error
	got []domain.Image
}

func (m *mockArchive) Put(_ context.Context, img domain.Image) (string, error) {
	m.got = append(m.got, img)
	return m.key, m.err
}

func defaultValidator() *medication.Validator {
	kb, err := knowledge.Default()
	if err != nil {
		panic(err)
	}
	return medication.NewValidator(kb)
}
