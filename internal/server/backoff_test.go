package server

import (
	"testing"
	"time"
)

func TestDefaultResolveBackoffIsFixed(t *testing.T) {
	b := DefaultResolveBackoff()
	for attempt := 1; attempt <= 5; attempt++ {
		if got := b.Delay(attempt); got != 5*time.Second {
			t.Fatalf("attempt %d: expected 5s, got %s", attempt, got)
		}
	}
}

func TestBackoffGrowsToCap(t *testing.T) {
	b := defaultAcceptBackoff()
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 5 * time.Millisecond},
		{2, 10 * time.Millisecond},
		{3, 20 * time.Millisecond},
		{20, time.Second},
	}
	for _, tc := range cases {
		if got := b.Delay(tc.attempt); got != tc.want {
			t.Fatalf("attempt %d: want %s got %s", tc.attempt, tc.want, got)
		}
	}
}

func TestBackoffZeroInitialDelay(t *testing.T) {
	if got := (Backoff{Multiplier: 2}).Delay(4); got != 0 {
		t.Fatalf("expected zero delay, got %s", got)
	}
}
