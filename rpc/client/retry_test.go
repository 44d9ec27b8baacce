package client

import (
	"context"
	"errors"
	"github.com/Infopercept/opensearch-sdk-go/rpc/common"
	"math/rand"
	"testing"
	"time"
)

func TestNextDelay(t *testing.T) {
	p := RetryPolicy{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{10, time.Second},
	}
	for _, tt := range tests {
		if got := p.NextDelay(tt.attempt, nil); got != tt.want {
			t.Errorf("attempt %d: got %s, want %s", tt.attempt, got, tt.want)
		}
	}

	p.Jitter = true
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		d := p.NextDelay(2, rng)
		if d < 100*time.Millisecond || d >= 300*time.Millisecond {
			t.Fatalf("jittered delay %s out of range", d)
		}
	}

	if d := (RetryPolicy{}).NextDelay(3, nil); d != 0 {
		t.Errorf("zero policy delay = %s", d)
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&common.RequestError{Kind: common.ErrConnectionClosed}, true},
		{&common.RequestError{Kind: common.ErrTimeout}, true},
		{&common.RemoteError{Kind: common.KindRejected}, true},
		{&common.RemoteError{Kind: common.KindHandlerFailed}, false},
		{&common.RemoteError{Kind: common.KindUnknownAction}, false},
		{&common.RequestError{Kind: context.Canceled}, false},
		{ErrCircuitOpen, false},
		{errors.New("other"), false},
	}
	for _, tt := range tests {
		if got := Retryable(tt.err); got != tt.want {
			t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestRetryDo(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 2}
	transient := &common.RequestError{Kind: common.ErrTimeout}

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := p.Do(context.Background(), func(attempt int) error {
			calls++
			if attempt < 3 {
				return transient
			}
			return nil
		})
		if err != nil || calls != 3 {
			t.Errorf("err = %v, calls = %d", err, calls)
		}
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		err := p.Do(context.Background(), func(int) error {
			calls++
			return transient
		})
		if !errors.Is(err, common.ErrTimeout) || calls != 3 {
			t.Errorf("err = %v, calls = %d", err, calls)
		}
	})

	t.Run("does not retry handler errors", func(t *testing.T) {
		calls := 0
		err := p.Do(context.Background(), func(int) error {
			calls++
			return &common.RemoteError{Kind: common.KindHandlerFailed}
		})
		if !errors.Is(err, common.ErrHandlerFailed) || calls != 1 {
			t.Errorf("err = %v, calls = %d", err, calls)
		}
	})

	t.Run("stops when the context ends", func(t *testing.T) {
		slow := RetryPolicy{MaxAttempts: 5, InitialDelay: time.Hour}
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		calls := 0
		err := slow.Do(ctx, func(int) error {
			calls++
			return transient
		})
		if !errors.Is(err, context.DeadlineExceeded) || !errors.Is(err, common.ErrTimeout) || calls != 1 {
			t.Errorf("err = %v, calls = %d", err, calls)
		}
	})
}
