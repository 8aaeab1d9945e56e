package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rx-reader/internal/domain"
)

// MemoryStore is the volatile default backend. All state is lost on restart.
type MemoryStore struct {
	mu  sync.Mutex
	now func() time.Time

	seq            map[kind]int64
	users          map[int64]domain.User
	usernames      map[string]int64
	prescriptions  map[int64]domain.Prescription
	messages       map[int64]domain.Message
	byPrescription map[int64][]int64
	feedbacks      map[int64]domain.Feedback
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:            func() time.Time { return time.Now().UTC() },
		seq:            make(map[kind]int64),
		users:          make(map[int64]domain.User),
		usernames:      make(map[string]int64),
		prescriptions:  make(map[int64]domain.Prescription),
		messages:       make(map[int64]domain.Message),
		byPrescription: make(map[int64][]int64),
		feedbacks:      make(map[int64]domain.Feedback),
	}
}

// nextID must be called with mu held.
func (s *MemoryStore) nextID(k kind) int64 {
	s.seq[k]++
	return s.seq[k]
}

func (s *MemoryStore) CreateUser(_ context.Context, u domain.User) (domain.User, error) {
	if err := validateUser(u); err != nil {
		return domain.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.usernames[u.Username]; taken {
		return domain.User{}, ErrUsernameTaken
	}
	u.ID = s.nextID(kindUser)
	s.users[u.ID] = u
	s.usernames[u.Username] = u.ID
	return u, nil
}

func (s *MemoryStore) GetUser(_ context.Context, id int64) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, fmt.Errorf("repository: user %d: %w", id, ErrNotFound)
	}
	return u, nil
}

func (s *MemoryStore) GetUserByUsername(_ context.Context, username string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.usernames[username]
	if !ok {
		return domain.User{}, fmt.Errorf("repository: user %q: %w", username, ErrNotFound)
	}
	return s.users[id], nil
}

func (s *MemoryStore) CreatePrescription(_ context.Context, p domain.Prescription) (domain.Prescription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.nextID(kindPrescription)
	p.CreatedAt = s.now()
	s.prescriptions[p.ID] = p
	return p, nil
}

func (s *MemoryStore) GetPrescription(_ context.Context, id int64) (domain.Prescription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prescriptions[id]
	if !ok {
		return domain.Prescription{}, fmt.Errorf("repository: prescription %d: %w", id, ErrNotFound)
	}
	return p, nil
}

func (s *MemoryStore) CreateMessage(_ context.Context, m domain.Message) (domain.Message, error) {
	if err := validateMessage(m); err != nil {
		return domain.Message{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = s.nextID(kindMessage)
	m.CreatedAt = s.now()
	s.messages[m.ID] = m
	if m.PrescriptionID != nil {
		pid := *m.PrescriptionID
		s.byPrescription[pid] = append(s.byPrescription[pid], m.ID)
	}
	return m, nil
}

func (s *MemoryStore) GetMessage(_ context.Context, id int64) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return domain.Message{}, fmt.Errorf("repository: message %d: %w", id, ErrNotFound)
	}
	return m, nil
}

func (s *MemoryStore) ListMessagesByPrescription(_ context.Context, prescriptionID int64) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.byPrescription[prescriptionID]
	out := make([]domain.Message, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.messages[id])
	}
	return out, nil
}

func (s *MemoryStore) CreateFeedback(_ context.Context, f domain.Feedback) (domain.Feedback, error) {
	if err := validateFeedback(f); err != nil {
		return domain.Feedback{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f.ID = s.nextID(kindFeedback)
	f.CreatedAt = s.now()
	s.feedbacks[f.ID] = f
	return f, nil
}

func (s *MemoryStore) GetFeedback(_ context.Context, id int64) (domain.Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.feedbacks[id]
	if !ok {
		return domain.Feedback{}, fmt.Errorf("repository: feedback %d: %w", id, ErrNotFound)
	}
	return f, nil
}
