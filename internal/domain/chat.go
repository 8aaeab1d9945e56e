package domain

import "errors"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is the provider-agnostic chat message shape used by the use
// cases and LLM integrations. Image is only set on user turns that carry a
// prescription picture.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Image   *Image `json:"-"`
}

// CompletionRequest is a single model call.
type CompletionRequest struct {
	Model     string
	Messages  []ChatMessage
	MaxTokens int
	// JSON asks the provider for a JSON object response. The output is still
	// untrusted and must be parsed defensively.
	JSON bool
}

// ErrAPIKeyMissing is returned by model clients that were started without
// credentials.
var ErrAPIKeyMissing = errors.New("domain: model API key is not configured")
