package contracts

import (
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Properties is the metadata carried next to a message body.
type Properties struct {
	MessageID     string
	CorrelationID string
	ReplyTo       string
	ContentType   string
	Type          string
	Expiration    string
	DeliveryMode  uint8
	Priority      uint8
	Timestamp     time.Time
	Headers       amqp.Table
}

// Clone returns a copy whose header table can be modified independently.
func (p Properties) Clone() Properties {
	out := p
	if p.Headers != nil {
		out.Headers = make(amqp.Table, len(p.Headers))
		for k, v := range p.Headers {
			out.Headers[k] = v
		}
	}
	return out
}

// Envelope is a message as it travels over the broker.
type Envelope struct {
	Properties

	Exchange    string
	RoutingKey  string
	Queue       string
	DeliveryTag uint64
	Redelivered bool
	Body        []byte
}

// Header returns a header value as a string.
func (e *Envelope) Header(key string) (string, bool) {
	return HeaderString(e.Headers, key)
}

// SetHeader sets a header, allocating the table when needed.
func (e *Envelope) SetHeader(key string, value interface{}) {
	if e.Headers == nil {
		e.Headers = amqp.Table{}
	}
	e.Headers[key] = value
}

// Publishing converts the envelope into a broker publishing.
func (e *Envelope) Publishing() amqp.Publishing {
	return amqp.Publishing{
		Headers:       e.Headers,
		ContentType:   e.ContentType,
		DeliveryMode:  e.DeliveryMode,
		Priority:      e.Priority,
		CorrelationId: e.CorrelationID,
		ReplyTo:       e.ReplyTo,
		Expiration:    e.Expiration,
		MessageId:     e.MessageID,
		Timestamp:     e.Timestamp,
		Type:          e.Type,
		Body:          e.Body,
	}
}

// EnvelopeFromDelivery reads a delivery back into an envelope. queue is the queue the
// delivery was consumed from, which the broker does not report itself.
func EnvelopeFromDelivery(d amqp.Delivery, queue string) *Envelope {
	return &Envelope{
		Properties: Properties{
			MessageID:     d.MessageId,
			CorrelationID: d.CorrelationId,
			ReplyTo:       d.ReplyTo,
			ContentType:   d.ContentType,
			Type:          d.Type,
			Expiration:    d.Expiration,
			DeliveryMode:  d.DeliveryMode,
			Priority:      d.Priority,
			Timestamp:     d.Timestamp,
			Headers:       d.Headers,
		},
		Exchange:    d.Exchange,
		RoutingKey:  d.RoutingKey,
		Queue:       queue,
		DeliveryTag: d.DeliveryTag,
		Redelivered: d.Redelivered,
		Body:        d.Body,
	}
}
