package metrics

import (
	"context"
	"time"

	"github.com/TpaBKa251/Hostel-Internal-Library/contracts"
	"github.com/TpaBKa251/Hostel-Internal-Library/messaging"
)

// Sender records every operation of the wrapped messaging.Sender.
type Sender struct {
	next      messaging.Sender
	collector *Collector
}

var _ messaging.Sender = (*Sender)(nil)

// NewSender wraps next
func NewSender(next messaging.Sender, collector *Collector) *Sender {
	return &Sender{next: next, collector: collector}
}

// Send implements messaging.Sender
func (s *Sender) Send(ctx context.Context, tag contracts.MessageType, messageID string, payload any) error {
	start := time.Now()
	err := s.next.Send(ctx, tag, messageID, payload)
	s.collector.RecordDispatch(messaging.OpSend, string(tag), err, time.Since(start))
	return err
}

// SendAndReceive implements messaging.Sender
func (s *Sender) SendAndReceive(ctx context.Context, tag contracts.MessageType, messageID string, payload any, out any) error {
	start := time.Now()
	err := s.next.SendAndReceive(ctx, tag, messageID, payload, out)
	s.collector.RecordDispatch(messaging.OpSendAndReceive, string(tag), err, time.Since(start))
	return err
}

// SendReply implements messaging.Sender
func (s *Sender) SendReply(ctx context.Context, tag contracts.MessageType, original contracts.Properties, payload any) error {
	start := time.Now()
	err := s.next.SendReply(ctx, tag, original, payload)
	s.collector.RecordDispatch(messaging.OpSendReply, string(tag), err, time.Since(start))
	return err
}

// SendToService implements messaging.Sender
func (s *Sender) SendToService(ctx context.Context, service contracts.Service, routingKey, messageID string, payload any) error {
	start := time.Now()
	err := s.next.SendToService(ctx, service, routingKey, messageID, payload)
	s.collector.RecordDispatch(messaging.OpSendToService, string(service), err, time.Since(start))
	return err
}

// SendToExchange implements messaging.Sender
func (s *Sender) SendToExchange(ctx context.Context, service contracts.Service, exchange, routingKey, messageID string, payload any) error {
	start := time.Now()
	err := s.next.SendToExchange(ctx, service, exchange, routingKey, messageID, payload)
	s.collector.RecordDispatch(messaging.OpSendToExchange, string(service), err, time.Since(start))
	return err
}
