package delivery

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/lueurxax/trend-digest-bot/internal/core/domain"
	"github.com/lueurxax/trend-digest-bot/internal/platform/observability"
)

// Message kinds used as metric labels.
const (
	KindAnalysis = "analysis"
	KindDigest   = "digest"
	KindReply    = "reply"
	KindReport   = "report"

	statusSent   = "sent"
	statusFailed = "failed"
)

// MessageAPI is the part of the bot API used for sending.
type MessageAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Sender delivers message parts with a global rate limit.
type Sender struct {
	api     MessageAPI
	limiter *rate.Limiter
	logger  *zerolog.Logger
}

// NewSender creates a Sender allowing rps messages per second. A non-positive
// rps disables limiting.
func NewSender(api MessageAPI, rps float64, logger *zerolog.Logger) *Sender {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}

	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Sender{api: api, limiter: rate.NewLimiter(limit, 1), logger: logger}
}

// Send delivers parts in order and stops at the first failure.
func (s *Sender) Send(ctx context.Context, chatID int64, kind string, parts []string) error {
	for i, part := range parts {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("wait for send slot: %w", err)
		}

		msg := tgbotapi.NewMessage(chatID, part)
		msg.DisableWebPagePreview = true

		if _, err := s.api.Send(msg); err != nil {
			observability.MessagesDelivered.WithLabelValues(kind, statusFailed).Inc()
			s.logger.Error().Err(err).Int64("chat_id", chatID).Int("part", i+1).Int("parts", len(parts)).Msg("failed to send message")

			return fmt.Errorf("send part %d of %d to chat %d: %w", i+1, len(parts), chatID, err)
		}

		observability.MessagesDelivered.WithLabelValues(kind, statusSent).Inc()
	}

	return nil
}

// SendText splits and sends free-form text.
func (s *Sender) SendText(ctx context.Context, chatID int64, text string) error {
	return s.Send(ctx, chatID, KindReply, SplitMessage(text, MaxMessageLength))
}

// DeliverResult sends an analysis result to the chat that requested it.
func (s *Sender) DeliverResult(ctx context.Context, chatID int64, result domain.AnalysisResult) error {
	return s.Send(ctx, chatID, KindAnalysis, ResultMessages(result))
}
