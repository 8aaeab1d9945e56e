package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"rx-reader/internal/domain"
	"rx-reader/internal/metrics"
)

const feedbackGeneralMessage = "We couldn't save your feedback. Please try again."

type FeedbackService struct {
	store   FeedbackStore
	logger  *slog.Logger
	metrics *metrics.AnalysisMetrics
}

func NewFeedbackService(s FeedbackStore, opts Options) (*FeedbackService, error) {
	if s == nil {
		return nil, errors.New("usecase: feedback store must not be nil")
	}
	opts = opts.withDefaults()
	return &FeedbackService{store: s, logger: opts.Logger, metrics: opts.Metrics}, nil
}

// Submit records a thumbs-up/down. The referenced message is not looked up:
// feedback may arrive for messages held only by the client.
func (s *FeedbackService) Submit(ctx context.Context, messageID int64, isAccurate bool) (domain.Feedback, error) {
	if messageID <= 0 {
		return domain.Feedback{}, fmt.Errorf("%w: messageId must be positive", ErrInvalidInput)
	}
	fb, err := s.store.CreateFeedback(ctx, domain.Feedback{MessageID: messageID, IsAccurate: isAccurate})
	if err != nil {
		ae := classifyAndLog(ctx, s.logger, s.metrics, stageFeedback, err)
		copied := *ae
		copied.Kind = ErrorGeneral
		copied.Message = feedbackGeneralMessage
		return domain.Feedback{}, &copied
	}
	s.logger.InfoContext(ctx, "feedback recorded", "feedback_id", fb.ID, "message_id", messageID, "is_accurate", isAccurate)
	return fb, nil
}

func (s *FeedbackService) Get(ctx context.Context, id int64) (domain.Feedback, error) {
	fb, err := s.store.GetFeedback(ctx, id)
	if err != nil {
		return domain.Feedback{}, fmt.Errorf("usecase: get feedback %d: %w", id, err)
	}
	return fb, nil
}
