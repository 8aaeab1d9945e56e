package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"rx-reader/internal/domain"
)

const DefaultModel = "gemini-2.5-flash"

// TokenProvider supplies the API key. paramstore.StaticToken and
// paramstore.TokenSource satisfy it.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StatusError is a Gemini API failure with its HTTP status.
type StatusError struct {
	StatusCode int
	Message    string
	Reason     string
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gemini: status %d: %s", e.StatusCode, e.Message)
}

func (e *StatusError) HTTPStatusCode() int { return e.StatusCode }

func (e *StatusError) Unwrap() error { return e.Err }

// ErrorType reports the google error reason, e.g. "RESOURCE_EXHAUSTED" or
// "API_KEY_INVALID".
func (e *StatusError) ErrorType() string { return e.Reason }

// Client implements the completion contract on top of Google's Gemini API.
// The underlying genai client is created on first use so a missing key does
// not prevent startup.
type Client struct {
	tokens TokenProvider
	opts   []option.ClientOption

	mu     sync.Mutex
	client *genai.Client
}

func NewClient(tokens TokenProvider, opts ...option.ClientOption) (*Client, error) {
	if tokens == nil {
		return nil, errors.New("gemini: token provider must not be nil")
	}
	return &Client{tokens: tokens, opts: opts}, nil
}

func (c *Client) resolve(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}
	key, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("gemini: resolve api key: %w", err)
	}
	opts := append([]option.ClientOption{option.WithAPIKey(key)}, c.opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create client: %w", err)
	}
	c.client = client
	return client, nil
}

// Complete sends the request as a chat: system messages become the system
// instruction, the last turn is sent, earlier turns become history.
func (c *Client) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	modelID := strings.TrimSpace(req.Model)
	if modelID == "" {
		modelID = DefaultModel
	}
	system, turns := splitMessages(req.Messages)
	if len(turns) == 0 {
		return "", errors.New("gemini: requires at least one message")
	}

	client, err := c.resolve(ctx)
	if err != nil {
		return "", err
	}
	model := client.GenerativeModel(modelID)
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if req.JSON {
		model.ResponseMIMEType = "application/json"
	}
	model.SystemInstruction = system

	cs := model.StartChat()
	cs.History = turns[:len(turns)-1]
	resp, err := cs.SendMessage(ctx, turns[len(turns)-1].Parts...)
	if err != nil {
		return "", fmt.Errorf("gemini: completion failed: %w", wrapAPIError(err))
	}
	return responseText(resp)
}

// Close releases resources held by the genai client.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

func splitMessages(msgs []domain.ChatMessage) (*genai.Content, []*genai.Content) {
	var system []string
	var turns []*genai.Content
	for _, m := range msgs {
		if m.Role == domain.RoleSystem {
			if s := strings.TrimSpace(m.Content); s != "" {
				system = append(system, s)
			}
			continue
		}
		role := "user"
		if m.Role == domain.RoleAssistant {
			role = "model"
		}
		var parts []genai.Part
		if text := strings.TrimSpace(m.Content); text != "" {
			parts = append(parts, genai.Text(text))
		}
		if m.Image != nil {
			parts = append(parts, genai.Blob{MIMEType: m.Image.MIMEType, Data: m.Image.Data})
		}
		if len(parts) == 0 {
			continue
		}
		turns = append(turns, &genai.Content{Role: role, Parts: parts})
	}
	var sys *genai.Content
	if len(system) > 0 {
		sys = genai.NewUserContent(genai.Text(strings.Join(system, "\n\n")))
	}
	return sys, turns
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errors.New("gemini: returned no candidates")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return "", nil
	}
	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return strings.TrimSpace(b.String()), nil
}

// wrapAPIError surfaces the HTTP status and reason of googleapi failures so
// the classifier can read them without parsing text.
func wrapAPIError(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}
	out := &StatusError{StatusCode: gerr.Code, Message: gerr.Message, Err: err}
	for _, d := range gerr.Details {
		if m, ok := d.(map[string]any); ok {
			if r, ok := m["reason"].(string); ok && r != "" {
				out.Reason = r
				break
			}
		}
	}
	if out.Reason == "" && len(gerr.Errors) > 0 {
		out.Reason = gerr.Errors[0].Reason
	}
	return out
}
