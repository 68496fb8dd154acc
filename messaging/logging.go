package messaging

import (
	"context"
	"log/slog"
	"time"

	"github.com/TpaBKa251/Hostel-Internal-Library/contracts"
)

// LoggingSender logs every operation of the wrapped Sender: when it starts, when it
// finishes with its duration, and its error.
type LoggingSender struct {
	next   Sender
	logger *slog.Logger
}

// NewLoggingSender wraps next
func NewLoggingSender(next Sender, logger *slog.Logger) *LoggingSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingSender{next: next, logger: logger}
}

// Send implements Sender
func (s *LoggingSender) Send(ctx context.Context, tag contracts.MessageType, messageID string, payload any) error {
	return s.observe(ctx, OpSend, []any{"tag", tag, "messageId", messageID}, func() error {
		return s.next.Send(ctx, tag, messageID, payload)
	})
}

// SendAndReceive implements Sender
func (s *LoggingSender) SendAndReceive(ctx context.Context, tag contracts.MessageType, messageID string, payload any, out any) error {
	return s.observe(ctx, OpSendAndReceive, []any{"tag", tag, "messageId", messageID}, func() error {
		return s.next.SendAndReceive(ctx, tag, messageID, payload, out)
	})
}

// SendReply implements Sender
func (s *LoggingSender) SendReply(ctx context.Context, tag contracts.MessageType, original contracts.Properties, payload any) error {
	attrs := []any{"tag", tag, "messageId", original.MessageID, "correlationId", original.CorrelationID}
	return s.observe(ctx, OpSendReply, attrs, func() error {
		return s.next.SendReply(ctx, tag, original, payload)
	})
}

// SendToService implements Sender
func (s *LoggingSender) SendToService(ctx context.Context, service contracts.Service, routingKey, messageID string, payload any) error {
	attrs := []any{"service", service, "routingKey", routingKey, "messageId", messageID}
	return s.observe(ctx, OpSendToService, attrs, func() error {
		return s.next.SendToService(ctx, service, routingKey, messageID, payload)
	})
}

// SendToExchange implements Sender
func (s *LoggingSender) SendToExchange(ctx context.Context, service contracts.Service, exchange, routingKey, messageID string, payload any) error {
	attrs := []any{"service", service, "exchange", exchange, "routingKey", routingKey, "messageId", messageID}
	return s.observe(ctx, OpSendToExchange, attrs, func() error {
		return s.next.SendToExchange(ctx, service, exchange, routingKey, messageID, payload)
	})
}

func (s *LoggingSender) observe(ctx context.Context, op string, attrs []any, call func() error) error {
	start := time.Now()
	attrs = append([]any{"op", op}, attrs...)

	s.logger.InfoContext(ctx, "sending message", attrs...)

	err := call()
	attrs = append(attrs, "duration", time.Since(start))

	if err != nil {
		s.logger.ErrorContext(ctx, "message send failed", append(attrs, "kind", contracts.KindOf(err).String(), "error", err)...)
		return err
	}

	s.logger.InfoContext(ctx, "message sent", attrs...)
	return nil
}
