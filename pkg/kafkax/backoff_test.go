package kafkax

import (
	"testing"
	"time"
)

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Base: 2 * time.Second, Max: 60 * time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 32 * time.Second},
		{6, 60 * time.Second}, // 64s capped
		{7, 60 * time.Second},
		{20, 60 * time.Second},
		{0, 2 * time.Second}, // below 1 clamps to base
		{-3, 2 * time.Second},
	}

	for _, tt := range tests {
		if got := b.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoffDelay_BaseAboveMax(t *testing.T) {
	b := Backoff{Base: 10 * time.Second, Max: 5 * time.Second}
	if got := b.Delay(1); got != 5*time.Second {
		t.Errorf("Delay(1) = %s, want max 5s", got)
	}
}
