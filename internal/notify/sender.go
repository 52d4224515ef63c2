package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// SendRequest is one email handed to a provider.
type SendRequest struct {
	To      []string
	From    string
	Subject string
	HTML    string
	ReplyTo string
	// RefID groups retries of the same logical message.
	RefID string
}

// SendResult is the provider answer.
type SendResult struct {
	MessageID string
	SentAt    time.Time
}

// Sender delivers email through an external provider.
type Sender interface {
	Send(ctx context.Context, req SendRequest) (SendResult, error)
}

// NoopSender logs messages instead of delivering them. Used when no API key is set.
type NoopSender struct {
	logger *slog.Logger
}

// NewNoopSender creates a NoopSender.
func NewNoopSender(logger *slog.Logger) *NoopSender {
	return &NoopSender{logger: logger}
}

func (s *NoopSender) Send(_ context.Context, req SendRequest) (SendResult, error) {
	s.logger.Info("noop email send", slog.Any("to", req.To), slog.String("subject", req.Subject))
	return SendResult{MessageID: "noop-" + uuid.NewString(), SentAt: time.Now()}, nil
}
