package transport

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestReconnectDelayGrowth(t *testing.T) {
	p := ReconnectPolicy{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   1 * time.Second,
		Multiplier: 2,
	}

	wants := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		1 * time.Second, // clamped
		1 * time.Second,
	}
	for attempt, want := range wants {
		if got := p.Delay(attempt); got != want {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, want)
		}
	}
}

func TestReconnectShouldRetry(t *testing.T) {
	p := ReconnectPolicy{MaxAttempts: 3}
	for attempt, want := range map[int]bool{1: true, 2: true, 3: false, 4: false} {
		if got := p.ShouldRetry(attempt); got != want {
			t.Errorf("ShouldRetry(%d) = %v, want %v", attempt, got, want)
		}
	}

	unbounded := ReconnectPolicy{}
	if !unbounded.ShouldRetry(1000) {
		t.Error("zero MaxAttempts should mean unbounded")
	}
}

func TestReconnectRunStopsAfterMaxAttempts(t *testing.T) {
	p := ReconnectPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 1}

	calls := 0
	wantErr := errors.New("still down")
	err := p.Run(context.Background(), func(context.Context) error {
		calls++
		return wantErr
	})

	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want last connect error", err)
	}
	if calls != 3 {
		t.Errorf("connect called %d times, want 3", calls)
	}
}

func TestReconnectRunSucceeds(t *testing.T) {
	p := ReconnectPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond, Multiplier: 1}

	calls := 0
	err := p.Run(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if calls != 3 {
		t.Errorf("connect called %d times, want 3", calls)
	}
}

func TestReconnectRunHonorsContext(t *testing.T) {
	p := ReconnectPolicy{BaseDelay: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- p.Run(ctx, func(context.Context) error { return errors.New("down") })
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
