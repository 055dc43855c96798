package engine

import (
	"context"
	"fmt"
	"time"
)

// Waiter polls a condition at a fixed delay until it holds or the
// attempt budget runs out. Drivers use it to wait for backends to settle
// after an operation (a database becoming available, a container
// reaching running).
type Waiter struct {
	// Delay is the pause between attempts.
	Delay time.Duration

	// MaxAttempts bounds the number of condition checks.
	MaxAttempts int
}

// DefaultWaiter polls every 30 seconds for up to 50 attempts, matching
// the slow-provisioning backends the engine was built for.
func DefaultWaiter() Waiter {
	return Waiter{Delay: 30 * time.Second, MaxAttempts: 50}
}

// Wait polls cond until it returns true, the context is cancelled, or
// MaxAttempts checks have failed. A condition error aborts immediately.
func (w Waiter) Wait(ctx context.Context, cond func(ctx context.Context) (bool, error)) error {
	attempts := w.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := w.Delay

	for attempt := 1; attempt <= attempts; attempt++ {
		ok, err := cond(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return NewTransientError(
		fmt.Sprintf("condition not met after %d attempts", attempts), nil).
		WithCode(ErrCodeTimeout)
}
