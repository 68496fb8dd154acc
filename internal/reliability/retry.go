package reliability

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/TpaBKa251/Hostel-Internal-Library/contracts"
)

// Policy bounds retries a caller chooses to make around a dispatch operation.
// The dispatcher itself never retries.
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxAttempts     uint
	Logger          *slog.Logger
}

// DefaultPolicy makes up to three attempts starting 200ms apart.
func DefaultPolicy() Policy {
	return Policy{
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2,
		MaxAttempts:     3,
	}
}

func (p Policy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	if p.Multiplier > 1 {
		b.Multiplier = p.Multiplier
	}
	return b
}

// Retry calls fn until it succeeds, fails with an error that is not transient, or
// the attempts run out. Only errors matching contracts.ErrUnavailable are retried.
// The last error is returned unchanged.
func Retry(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	attempts := policy.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}
	logger := policy.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := fn(ctx)
		if err != nil && !contracts.IsRetryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(policy.backOff()),
		backoff.WithMaxTries(attempts),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("dispatch failed, retrying", "attempt", attempt, "nextRetryIn", next, "error", err)
		}),
	)
	return err
}
