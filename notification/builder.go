package notification

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

const (
	defaultTitle   = "Уведомление о %s"
	defaultMessage = "Вам пришло уведомление о %s. Подробности можно узнать " +
		"в приложении в соответствующем разделе или у ответственного."
)

// Builder creates notification requests. A nil result means the input was
// rejected.
type Builder interface {
	Build(userID uuid.UUID, t Type) *Request
	BuildMessage(userID uuid.UUID, t Type, message string) *Request
	BuildTitled(userID uuid.UUID, t Type, title, message string) *Request
}

// RequestBuilder fills missing titles and messages from templates named after
// the notification type. It never panics and logs what it rejects.
type RequestBuilder struct {
	logger *slog.Logger
}

// NewRequestBuilder creates a builder. A nil logger means slog.Default().
func NewRequestBuilder(logger *slog.Logger) *RequestBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &RequestBuilder{logger: logger}
}

// DefaultTitle is the title used when none is given.
func DefaultTitle(t Type) string {
	return fmt.Sprintf(defaultTitle, t.DisplayName())
}

// DefaultMessage is the message used when none is given.
func DefaultMessage(t Type) string {
	return fmt.Sprintf(defaultMessage, t.DisplayName())
}

// Build creates a request with the default title and message.
func (b *RequestBuilder) Build(userID uuid.UUID, t Type) *Request {
	return &Request{UserID: userID, Type: t, Title: DefaultTitle(t), Message: DefaultMessage(t)}
}

// BuildMessage creates a request with the default title.
func (b *RequestBuilder) BuildMessage(userID uuid.UUID, t Type, message string) *Request {
	if strings.TrimSpace(message) == "" {
		return b.reject(userID, t)
	}
	return &Request{UserID: userID, Type: t, Title: DefaultTitle(t), Message: message}
}

// BuildTitled creates a request from explicit text.
func (b *RequestBuilder) BuildTitled(userID uuid.UUID, t Type, title, message string) *Request {
	if strings.TrimSpace(title) == "" || strings.TrimSpace(message) == "" {
		return b.reject(userID, t)
	}
	return &Request{UserID: userID, Type: t, Title: title, Message: message}
}

func (b *RequestBuilder) reject(userID uuid.UUID, t Type) *Request {
	b.logger.Error("failed to build notification: blank title or message",
		"userId", userID,
		"type", t,
	)
	return nil
}
