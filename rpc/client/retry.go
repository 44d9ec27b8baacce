package client

import (
	"context"
	"errors"
	"github.com/Infopercept/opensearch-sdk-go/rpc/common"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy describes how often and how fast failed calls are repeated
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

// NewRetryPolicy takes the retry settings from a client config
func NewRetryPolicy(config common.ClientConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  config.RetryMaxAttempts,
		InitialDelay: config.RetryInitialBackoff,
		MaxDelay:     config.RetryMaxBackoff,
		Multiplier:   config.RetryMultiplier,
		Jitter:       config.RetryJitter,
	}
}

// Retryable reports whether err is worth another attempt. Only failures of
// the connection itself qualify, errors returned by a handler do not.
func Retryable(err error) bool {
	return errors.Is(err, common.ErrConnectionClosed) ||
		errors.Is(err, common.ErrTimeout) ||
		errors.Is(err, common.ErrRejected)
}

// NextDelay returns the wait before attempt+1, where attempt is 1-based.
// With jitter the delay is scaled by a random factor in [0.5, 1.5).
func (p RetryPolicy) NextDelay(attempt int, rng *rand.Rand) time.Duration {
	if p.InitialDelay <= 0 {
		return 0
	}
	multiplier := p.Multiplier
	if multiplier < 1.0 {
		multiplier = 1.0
	}
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(p.InitialDelay) * math.Pow(multiplier, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if p.Jitter {
		if rng != nil {
			delay *= 0.5 + rng.Float64()
		} else {
			delay *= 0.5 + rand.Float64()
		}
	}
	return time.Duration(delay)
}

// Do calls fn until it succeeds, returns an error that is not Retryable or
// MaxAttempts is reached. The last error is returned, joined with the
// context error if ctx ended the retries.
func (p RetryPolicy) Do(ctx context.Context, fn func(attempt int) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil || attempt >= p.MaxAttempts || !Retryable(err) {
			return err
		}

		delay := p.NextDelay(attempt, nil)
		Logger.Debugf("attempt %d failed, retrying in %s: %v", attempt, delay, err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
}
