package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"

	"rx-reader/internal/domain"
)

const redisKeyPrefix = "rx:"

// RedisStore keeps records as JSON strings.
//
//	rx:seq:<kind>                        INCR counter
//	rx:<kind>:<id>                       record
//	rx:username:<name>                   user id
//	rx:prescription:<id>:messages        list of message ids
type RedisStore struct {
	redis *redis.Client
	now   func() time.Time
}

func NewRedisStore(client *redis.Client) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("repository: redis client must not be nil")
	}
	return &RedisStore{redis: client, now: func() time.Time { return time.Now().UTC() }}, nil
}

func redisSeqKey(k kind) string {
	return redisKeyPrefix + "seq:" + string(k)
}

func redisRecordKey(k kind, id int64) string {
	return redisKeyPrefix + string(k) + ":" + strconv.FormatInt(id, 10)
}

func redisUsernameKey(username string) string {
	return redisKeyPrefix + "username:" + username
}

func redisMessageListKey(prescriptionID int64) string {
	return redisKeyPrefix + "prescription:" + strconv.FormatInt(prescriptionID, 10) + ":messages"
}

func (s *RedisStore) startSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "repository.redis."+op)
}

func (s *RedisStore) nextID(ctx context.Context, k kind) (int64, error) {
	id, err := s.redis.Incr(ctx, redisSeqKey(k)).Result()
	if err != nil {
		return 0, fmt.Errorf("repository: next %s id: %w", k, err)
	}
	return id, nil
}

func (s *RedisStore) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return s.redis.Set(ctx, key, data, 0).Err()
}

func (s *RedisStore) getJSON(ctx context.Context, key string, v any) error {
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	return nil
}

// redisUser carries the password, which domain.User hides from JSON.
type redisUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *RedisStore) CreateUser(ctx context.Context, u domain.User) (_ domain.User, err error) {
	ctx, span := s.startSpan(ctx, "create_user")
	defer func() { endSpan(span, err) }()

	if err := validateUser(u); err != nil {
		return domain.User{}, err
	}
	id, err := s.nextID(ctx, kindUser)
	if err != nil {
		return domain.User{}, err
	}
	claimed, err := s.redis.SetNX(ctx, redisUsernameKey(u.Username), id, 0).Result()
	if err != nil {
		return domain.User{}, fmt.Errorf("repository: CreateUser claim: %w", err)
	}
	if !claimed {
		return domain.User{}, ErrUsernameTaken
	}
	u.ID = id
	if err := s.setJSON(ctx, redisRecordKey(kindUser, id), redisUser(u)); err != nil {
		return domain.User{}, fmt.Errorf("repository: CreateUser: %w", err)
	}
	return u, nil
}

func (s *RedisStore) GetUser(ctx context.Context, id int64) (domain.User, error) {
	var ru redisUser
	if err := s.getJSON(ctx, redisRecordKey(kindUser, id), &ru); err != nil {
		return domain.User{}, fmt.Errorf("repository: GetUser %d: %w", id, err)
	}
	return domain.User(ru), nil
}

func (s *RedisStore) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	id, err := s.redis.Get(ctx, redisUsernameKey(username)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			err = ErrNotFound
		}
		return domain.User{}, fmt.Errorf("repository: GetUserByUsername %q: %w", username, err)
	}
	return s.GetUser(ctx, id)
}

func (s *RedisStore) CreatePrescription(ctx context.Context, p domain.Prescription) (_ domain.Prescription, err error) {
	ctx, span := s.startSpan(ctx, "create_prescription")
	defer func() { endSpan(span, err) }()

	id, err := s.nextID(ctx, kindPrescription)
	if err != nil {
		return domain.Prescription{}, err
	}
	p.ID = id
	p.CreatedAt = s.now()
	if err := s.setJSON(ctx, redisRecordKey(kindPrescription, id), p); err != nil {
		return domain.Prescription{}, fmt.Errorf("repository: CreatePrescription: %w", err)
	}
	return p, nil
}

func (s *RedisStore) GetPrescription(ctx context.Context, id int64) (domain.Prescription, error) {
	var p domain.Prescription
	if err := s.getJSON(ctx, redisRecordKey(kindPrescription, id), &p); err != nil {
		return domain.Prescription{}, fmt.Errorf("repository: GetPrescription %d: %w", id, err)
	}
	return p, nil
}

// CreateMessage stores the record and appends its id to the
// prescription's list in one MULTI block.
func (s *RedisStore) CreateMessage(ctx context.Context, m domain.Message) (_ domain.Message, err error) {
	ctx, span := s.startSpan(ctx, "create_message")
	defer func() { endSpan(span, err) }()

	if err := validateMessage(m); err != nil {
		return domain.Message{}, err
	}
	id, err := s.nextID(ctx, kindMessage)
	if err != nil {
		return domain.Message{}, err
	}
	m.ID = id
	m.CreatedAt = s.now()

	data, err := json.Marshal(m)
	if err != nil {
		return domain.Message{}, fmt.Errorf("repository: CreateMessage marshal: %w", err)
	}
	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, redisRecordKey(kindMessage, id), data, 0)
	if m.PrescriptionID != nil {
		pipe.RPush(ctx, redisMessageListKey(*m.PrescriptionID), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.Message{}, fmt.Errorf("repository: CreateMessage: %w", err)
	}
	return m, nil
}

func (s *RedisStore) GetMessage(ctx context.Context, id int64) (domain.Message, error) {
	var m domain.Message
	if err := s.getJSON(ctx, redisRecordKey(kindMessage, id), &m); err != nil {
		return domain.Message{}, fmt.Errorf("repository: GetMessage %d: %w", id, err)
	}
	return m, nil
}

func (s *RedisStore) ListMessagesByPrescription(ctx context.Context, prescriptionID int64) (_ []domain.Message, err error) {
	ctx, span := s.startSpan(ctx, "list_messages")
	defer func() { endSpan(span, err) }()

	ids, err := s.redis.LRange(ctx, redisMessageListKey(prescriptionID), 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("repository: ListMessagesByPrescription: %w", err)
	}
	out := make([]domain.Message, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, raw := range ids {
		keys[i] = redisKeyPrefix + string(kindMessage) + ":" + raw
	}
	values, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("repository: ListMessagesByPrescription mget: %w", err)
	}
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			// listed id without a record; skip it
			continue
		}
		var m domain.Message
		if err := json.Unmarshal([]byte(str), &m); err != nil {
			return nil, fmt.Errorf("repository: ListMessagesByPrescription unmarshal %s: %w", keys[i], err)
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *RedisStore) CreateFeedback(ctx context.Context, f domain.Feedback) (_ domain.Feedback, err error) {
	ctx, span := s.startSpan(ctx, "create_feedback")
	defer func() { endSpan(span, err) }()

	if err := validateFeedback(f); err != nil {
		return domain.Feedback{}, err
	}
	id, err := s.nextID(ctx, kindFeedback)
	if err != nil {
		return domain.Feedback{}, err
	}
	f.ID = id
	f.CreatedAt = s.now()
	if err := s.setJSON(ctx, redisRecordKey(kindFeedback, id), f); err != nil {
		return domain.Feedback{}, fmt.Errorf("repository: CreateFeedback: %w", err)
	}
	return f, nil
}

func (s *RedisStore) GetFeedback(ctx context.Context, id int64) (domain.Feedback, error) {
	var f domain.Feedback
	if err := s.getJSON(ctx, redisRecordKey(kindFeedback, id), &f); err != nil {
		return domain.Feedback{}, fmt.Errorf("repository: GetFeedback %d: %w", id, err)
	}
	return f, nil
}
