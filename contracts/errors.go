package contracts

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotConfigured is returned when no transport, customizer or codec is wired for a
	// request. It is a programming error and is never retried.
	ErrNotConfigured = errors.New("hostel: not configured")
	// ErrNotImplemented marks an optional capability the deployment does not provide.
	ErrNotImplemented = fmt.Errorf("%w: not implemented", ErrNotConfigured)
	// ErrUnavailable covers broker connectivity failures. Callers may retry.
	ErrUnavailable = errors.New("hostel: service unavailable")
	// ErrEmptyReply is returned when a request/reply exchange produced no body.
	ErrEmptyReply = fmt.Errorf("%w: empty reply", ErrUnavailable)
	// ErrSerialization covers payloads that cannot be encoded or decoded.
	ErrSerialization = errors.New("hostel: serialization failed")
	// ErrValidation covers arguments rejected before any network work.
	ErrValidation = errors.New("hostel: invalid argument")
)

// Kind classifies a DispatchError.
type Kind int

const (
	KindConfiguration Kind = iota + 1
	KindNotImplemented
	KindUnavailable
	KindEmptyReply
	KindSerialization
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindNotImplemented:
		return "not_implemented"
	case KindUnavailable:
		return "unavailable"
	case KindEmptyReply:
		return "empty_reply"
	case KindSerialization:
		return "serialization"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindConfiguration:
		return ErrNotConfigured
	case KindNotImplemented:
		return ErrNotImplemented
	case KindUnavailable:
		return ErrUnavailable
	case KindEmptyReply:
		return ErrEmptyReply
	case KindSerialization:
		return ErrSerialization
	case KindValidation:
		return ErrValidation
	default:
		return nil
	}
}

// DispatchError describes a failed dispatch operation.
type DispatchError struct {
	Op        string      // Operation that failed
	Tag       MessageType // Message type, when resolved by tag
	Service   Service     // Destination service, when resolved by service
	MessageID string      // Caller supplied message id
	Kind      Kind        // Error class
	Err       error       // Underlying error
	Timestamp time.Time   // When the error occurred
}

// NewError builds a DispatchError of the given kind.
func NewError(op string, kind Kind, err error) *DispatchError {
	return &DispatchError{
		Op:        op,
		Kind:      kind,
		Err:       err,
		Timestamp: time.Now(),
	}
}

func (e *DispatchError) Error() string {
	target := string(e.Tag)
	if target == "" {
		target = string(e.Service)
	}
	if target == "" {
		target = "-"
	}
	if e.Err == nil {
		return fmt.Sprintf("hostel %s error: %s %s (messageId=%q)", e.Kind, e.Op, target, e.MessageID)
	}
	return fmt.Sprintf("hostel %s error: %s %s (messageId=%q): %v", e.Kind, e.Op, target, e.MessageID, e.Err)
}

// Unwrap exposes both the class sentinel and the cause, so errors.Is matches either.
func (e *DispatchError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := e.Kind.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// IsRetryable reports whether err belongs to the connectivity class.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsFatal reports whether err is a configuration problem that retrying cannot fix.
func IsFatal(err error) bool {
	return errors.Is(err, ErrNotConfigured)
}

// KindOf returns the class of err, or zero when err is not classified.
func KindOf(err error) Kind {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Kind
	}
	switch {
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrSerialization):
		return KindSerialization
	case errors.Is(err, ErrEmptyReply):
		return KindEmptyReply
	case errors.Is(err, ErrUnavailable):
		return KindUnavailable
	case errors.Is(err, ErrNotImplemented):
		return KindNotImplemented
	case errors.Is(err, ErrNotConfigured):
		return KindConfiguration
	}
	return 0
}
