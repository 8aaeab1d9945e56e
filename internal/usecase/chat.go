package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"rx-reader/internal/domain"
	"rx-reader/internal/metrics"
)

const (
	emptyChatReply     = "I'm sorry, I couldn't generate a response. Please try again."
	chatGeneralMessage = "We couldn't send your message. Please try again."
)

// ChatService answers free-text questions. It is independent of the
// prescription pipeline but shares its error taxonomy.
type ChatService struct {
	caller    modelCaller
	store     MessageWriter
	maxLength int
	logger    *slog.Logger
	metrics   *metrics.AnalysisMetrics
}

func NewChatService(llm LLMClient, s MessageWriter, opts Options) (*ChatService, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if s == nil {
		return nil, errors.New("usecase: message store must not be nil")
	}
	opts = opts.withDefaults()
	return &ChatService{
		caller:    modelCaller{llm: llm, model: opts.Model, timeout: opts.ModelTimeout, metrics: opts.Metrics},
		store:     s,
		maxLength: opts.MaxMessageLength,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}, nil
}

// Reply stores the user message, asks the model and stores the answer.
func (s *ChatService) Reply(ctx context.Context, content string) (string, error) {
	text := strings.TrimSpace(content)
	if text == "" {
		return "", fmt.Errorf("%w: no message content provided", ErrInvalidInput)
	}
	if utf8.RuneCountInString(text) > s.maxLength {
		return "", fmt.Errorf("%w: message longer than %d characters", ErrInvalidInput, s.maxLength)
	}

	s.save(ctx, domain.UserEntry{Text: text})

	answer, err := s.caller.call(ctx, stageChat, domain.CompletionRequest{
		Messages:  buildChatMessages(text),
		MaxTokens: chatMaxTokens,
	})
	if err != nil {
		ae := classifyAndLog(ctx, s.logger, s.metrics, stageChat, err)
		if ae.Kind == ErrorGeneral {
			copied := *ae
			copied.Message = chatGeneralMessage
			ae = &copied
		}
		return "", ae
	}
	if strings.TrimSpace(answer) == "" {
		answer = emptyChatReply
	}

	s.save(ctx, domain.AIEntry{Text: answer})
	return answer, nil
}

// save is best effort: a lost chat line must not fail the reply.
func (s *ChatService) save(ctx context.Context, e domain.Entry) {
	msg, err := domain.NewMessage(nil, e)
	if err != nil {
		s.logger.WarnContext(ctx, "encode chat message failed", "err", err)
		return
	}
	if _, err := s.store.CreateMessage(ctx, msg); err != nil {
		s.logger.WarnContext(ctx, "store chat message failed", "type", string(e.MessageType()), "err", err)
	}
}
