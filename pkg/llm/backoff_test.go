package llm

import (
	"testing"
	"time"
)

func TestBackoffDelayBounds(t *testing.T) {
	b := DefaultBackoff()
	for attempt := 0; attempt < 8; attempt++ {
		for i := 0; i < 200; i++ {
			d := b.Delay(attempt)
			if d > 10*time.Second {
				t.Fatalf("attempt %d: delay %v exceeds cap", attempt, d)
			}
			floor := time.Second << attempt
			if floor >= 10*time.Second {
				if d != 10*time.Second {
					t.Fatalf("attempt %d: expected cap, got %v", attempt, d)
				}
				continue
			}
			if d < floor || d >= floor+time.Second {
				t.Fatalf("attempt %d: delay %v outside [%v, %v)", attempt, d, floor, floor+time.Second)
			}
		}
	}
}

func TestBackoffDelayDeterministicJitter(t *testing.T) {
	b := DefaultBackoff()
	b.rand = func(n int64) int64 { return n - 1 }

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 2*time.Second - time.Nanosecond},
		{1, 3*time.Second - time.Nanosecond},
		{2, 5*time.Second - time.Nanosecond},
		{3, 9*time.Second - time.Nanosecond},
		{4, 10 * time.Second},
		{40, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := b.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoffNoJitterNoCap(t *testing.T) {
	b := &Backoff{Base: 100 * time.Millisecond}
	if got := b.Delay(5); got != 3200*time.Millisecond {
		t.Errorf("got %v", got)
	}
	if got := b.Delay(-2); got != 100*time.Millisecond {
		t.Errorf("negative attempt: got %v", got)
	}
}
