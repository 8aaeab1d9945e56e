package paramstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"rx-reader/internal/domain"
)

// tokenPayload is the expected JSON shape stored in SSM for model API tokens.
type tokenPayload struct {
	Token string `json:"token"`
}

// TokenProvider is satisfied by every API key source the model clients accept.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a key taken from the environment. An empty value reports
// domain.ErrAPIKeyMissing on use rather than at startup.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) {
	key := strings.TrimSpace(string(s))
	if key == "" {
		return "", domain.ErrAPIKeyMissing
	}
	return key, nil
}

// TokenSource reads a `{"token": "..."}` parameter on first use and caches
// it for the lifetime of the process. Failed lookups are retried on the next
// call.
type TokenSource struct {
	getter Getter
	name   string

	mu    sync.Mutex
	token string
}

func NewTokenSource(g Getter, name string) (*TokenSource, error) {
	if g == nil {
		return nil, errors.New("paramstore: getter must not be nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("paramstore: token parameter name is empty")
	}
	return &TokenSource{getter: g, name: name}, nil
}

func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" {
		return s.token, nil
	}
	raw, err := s.getter.GetParameter(ctx, s.name)
	if err != nil {
		return "", fmt.Errorf("paramstore: fetch token: %w", err)
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("paramstore: unmarshal token value as JSON: %w", err)
	}
	if strings.TrimSpace(tp.Token) == "" {
		return "", fmt.Errorf("paramstore: token %q is empty: %w", s.name, domain.ErrAPIKeyMissing)
	}
	s.token = strings.TrimSpace(tp.Token)
	return s.token, nil
}

// TokenName joins the parameter prefix and the token leaf name.
func TokenName(prefix, leaf string) string {
	return strings.TrimRight(strings.TrimSpace(prefix), "/") + "/" + strings.TrimLeft(leaf, "/")
}
