package transport

import (
	"context"
	"time"
)

// ReconnectPolicy is an explicit, caller-opted retry policy. The
// transport itself never schedules reconnects.
type ReconnectPolicy struct {
	MaxAttempts int // <= 0 means unbounded
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		MaxAttempts: 5,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Multiplier:  2,
	}
}

// ShouldRetry reports whether another attempt is allowed after `attempt`
// failed attempts.
func (p ReconnectPolicy) ShouldRetry(attempt int) bool {
	return p.MaxAttempts <= 0 || attempt < p.MaxAttempts
}

// Delay returns the backoff before attempt n (0-based): BaseDelay grown
// exponentially by Multiplier, clamped to MaxDelay.
func (p ReconnectPolicy) Delay(attempt int) time.Duration {
	d := float64(p.BaseDelay)
	for i := 0; i < attempt; i++ {
		d *= p.Multiplier
		if p.MaxDelay > 0 && d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Run invokes connect until it succeeds, the policy is exhausted, or ctx
// is done. The last connect error is returned on exhaustion.
func (p ReconnectPolicy) Run(ctx context.Context, connect func(context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := connect(ctx)
		if err == nil {
			return nil
		}
		if !p.ShouldRetry(attempt + 1) {
			return err
		}

		timer := time.NewTimer(p.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
