// Package repository holds the key-value persistence backends for users,
// prescriptions, chat messages and feedback. Every backend assigns
// per-kind identifiers atomically, starting at 1.
package repository

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"

	"rx-reader/internal/domain"
)

var (
	// ErrNotFound aliases domain.ErrNotFound so callers can match either.
	ErrNotFound      = domain.ErrNotFound
	ErrUsernameTaken = errors.New("repository: username already exists")
)

var tracer = otel.Tracer("rx-reader.internal.repository")

type kind string

const (
	kindUser         kind = "user"
	kindPrescription kind = "prescription"
	kindMessage      kind = "message"
	kindFeedback     kind = "feedback"
)

// Store is the persistence contract shared by every backend.
type Store interface {
	CreateUser(ctx context.Context, u domain.User) (domain.User, error)
	GetUser(ctx context.Context, id int64) (domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	CreatePrescription(ctx context.Context, p domain.Prescription) (domain.Prescription, error)
	GetPrescription(ctx context.Context, id int64) (domain.Prescription, error)

	CreateMessage(ctx context.Context, m domain.Message) (domain.Message, error)
	GetMessage(ctx context.Context, id int64) (domain.Message, error)
	ListMessagesByPrescription(ctx context.Context, prescriptionID int64) ([]domain.Message, error)

	CreateFeedback(ctx context.Context, f domain.Feedback) (domain.Feedback, error)
	GetFeedback(ctx context.Context, id int64) (domain.Feedback, error)
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*DynamoStore)(nil)
	_ Store = (*RedisStore)(nil)
)

func validateUser(u domain.User) error {
	if u.Username == "" {
		return errors.New("repository: username is required")
	}
	return nil
}

func validateMessage(m domain.Message) error {
	if m.Type == "" {
		return errors.New("repository: message type is required")
	}
	return nil
}

func validateFeedback(f domain.Feedback) error {
	if f.MessageID <= 0 {
		return errors.New("repository: feedback message id is required")
	}
	return nil
}
