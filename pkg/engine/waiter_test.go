package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWaiter_SucceedsImmediately(t *testing.T) {
	w := Waiter{Delay: time.Hour, MaxAttempts: 3}
	calls := 0
	err := w.Wait(context.Background(), func(context.Context) (bool, error) {
		calls++
		return true, nil
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 attempt, got %d", calls)
	}
}

func TestWaiter_SucceedsAfterRetries(t *testing.T) {
	w := Waiter{Delay: time.Millisecond, MaxAttempts: 5}
	calls := 0
	err := w.Wait(context.Background(), func(context.Context) (bool, error) {
		calls++
		return calls == 3, nil
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 attempts, got %d", calls)
	}
}

func TestWaiter_ExhaustsAttempts(t *testing.T) {
	w := Waiter{Delay: time.Millisecond, MaxAttempts: 3}
	calls := 0
	err := w.Wait(context.Background(), func(context.Context) (bool, error) {
		calls++
		return false, nil
	})
	if err == nil {
		t.Fatal("Expected timeout error, got nil")
	}
	if calls != 3 {
		t.Errorf("Expected 3 attempts, got %d", calls)
	}
	if !IsTransient(err) {
		t.Errorf("Expected transient error, got %v", err)
	}
}

func TestWaiter_ConditionErrorAborts(t *testing.T) {
	w := Waiter{Delay: time.Millisecond, MaxAttempts: 5}
	boom := errors.New("backend gone")
	calls := 0
	err := w.Wait(context.Background(), func(context.Context) (bool, error) {
		calls++
		return false, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected condition error, got: %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 attempt, got %d", calls)
	}
}

func TestWaiter_ContextCancellation(t *testing.T) {
	w := Waiter{Delay: time.Hour, MaxAttempts: 2}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- w.Wait(ctx, func(context.Context) (bool, error) {
			return false, nil
		})
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return after context cancellation")
	}
}

func TestWaiter_ZeroAttemptsStillChecksOnce(t *testing.T) {
	w := Waiter{}
	calls := 0
	err := w.Wait(context.Background(), func(context.Context) (bool, error) {
		calls++
		return true, nil
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 attempt, got %d", calls)
	}
}
