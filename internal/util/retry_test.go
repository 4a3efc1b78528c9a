package util

import (
	"context"
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	p := Policy{Attempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 0},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{10, 30 * time.Second},
		{100, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := p.Backoff(tt.attempt); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestDo_StopsOnSuccess(t *testing.T) {
	p := Policy{Attempts: 3, BaseDelay: time.Millisecond}

	calls := 0
	n := p.Do(context.Background(), func(attempt int) bool {
		calls++
		return attempt == 2
	})
	if n != 2 || calls != 2 {
		t.Errorf("Do() = %d with %d calls, want 2 and 2", n, calls)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	p := Policy{Attempts: 3, BaseDelay: time.Millisecond}

	calls := 0
	n := p.Do(context.Background(), func(int) bool {
		calls++
		return false
	})
	if n != 3 || calls != 3 {
		t.Errorf("Do() = %d with %d calls, want 3 and 3", n, calls)
	}
}

func TestDo_Cancelled(t *testing.T) {
	p := Policy{Attempts: 3, BaseDelay: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	start := time.Now()
	p.Do(ctx, func(int) bool {
		calls++
		return false
	})
	if calls != 1 {
		t.Errorf("expected one call before cancellation, got %d", calls)
	}
	if time.Since(start) > time.Second {
		t.Error("Do() waited despite a cancelled context")
	}
}
