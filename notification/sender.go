package notification

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/TpaBKa251/Hostel-Internal-Library/contracts"
	"github.com/TpaBKa251/Hostel-Internal-Library/messaging"
)

// MessageType is the tag notification requests are published under.
const MessageType contracts.MessageType = "SEND_NOTIFICATION"

// Sender publishes notifications on a best-effort basis. Failures are logged and
// never returned, so a notification can not break the caller's work.
type Sender struct {
	sender  messaging.Sender
	builder Builder
	logger  *slog.Logger
}

// SenderOption configures the Sender
type SenderOption func(*Sender)

// WithBuilder replaces the request builder
func WithBuilder(b Builder) SenderOption {
	return func(s *Sender) {
		s.builder = b
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) SenderOption {
	return func(s *Sender) {
		s.logger = logger
	}
}

// NewSender creates a notification sender over sender.
func NewSender(sender messaging.Sender, options ...SenderOption) *Sender {
	s := &Sender{
		sender: sender,
		logger: slog.Default(),
	}
	for _, opt := range options {
		opt(s)
	}
	if s.builder == nil {
		s.builder = NewRequestBuilder(s.logger)
	}
	return s
}

// Notify sends a notification with the default title and message.
func (s *Sender) Notify(ctx context.Context, userID uuid.UUID, t Type) {
	s.sendBuilt(ctx, s.builder.Build(userID, t))
}

// NotifyMessage sends a notification with the default title.
func (s *Sender) NotifyMessage(ctx context.Context, userID uuid.UUID, t Type, message string) {
	s.sendBuilt(ctx, s.builder.BuildMessage(userID, t, message))
}

// NotifyTitled sends a notification with explicit text.
func (s *Sender) NotifyTitled(ctx context.Context, userID uuid.UUID, t Type, title, message string) {
	s.sendBuilt(ctx, s.builder.BuildTitled(userID, t, title, message))
}

// Send sends a prepared request. Incomplete requests are dropped.
func (s *Sender) Send(ctx context.Context, req *Request) {
	if !req.Complete() {
		s.logger.Error("notification has an empty field")
		return
	}
	s.publish(ctx, req)
}

// SendAll sends every non-nil request in order.
func (s *Sender) SendAll(ctx context.Context, reqs ...*Request) {
	if len(reqs) == 0 {
		s.logger.Warn("notification list is empty")
		return
	}
	for _, req := range reqs {
		if req == nil {
			continue
		}
		s.Send(ctx, req)
	}
}

func (s *Sender) sendBuilt(ctx context.Context, req *Request) {
	if req == nil {
		s.logger.Error("notification is empty")
		return
	}
	s.publish(ctx, req)
}

func (s *Sender) publish(ctx context.Context, req *Request) {
	if err := s.sender.Send(ctx, MessageType, req.UserID.String(), req); err != nil {
		s.logger.ErrorContext(ctx, "failed to send notification",
			"userId", req.UserID,
			"type", req.Type,
			"error", err,
		)
	}
}
