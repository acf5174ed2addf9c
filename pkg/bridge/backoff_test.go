package bridge

import (
	"testing"
	"time"
)

func TestBackoffGrowsToMax(t *testing.T) {
	b := newBackoff(BackoffConfig{
		Initial:    time.Second,
		Max:        30 * time.Second,
		Multiplier: 2.0,
		Jitter:     0, // deterministic
	})

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second, // stays capped
	}
	for i, expected := range want {
		if got := b.next(); got != expected {
			t.Errorf("delay %d = %v, want %v", i, got, expected)
		}
	}
}

func TestBackoffReset(t *testing.T) {
	b := newBackoff(BackoffConfig{
		Initial:    time.Second,
		Max:        30 * time.Second,
		Multiplier: 2.0,
		Jitter:     0,
	})

	b.next()
	b.next()
	b.reset()

	if got := b.next(); got != time.Second {
		t.Errorf("delay after reset = %v, want %v", got, time.Second)
	}
}

func TestBackoffJitterBounds(t *testing.T) {
	b := newBackoff(BackoffConfig{
		Initial:    time.Second,
		Max:        30 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.25,
	})

	for i := 0; i < 100; i++ {
		got := b.next()
		b.reset()
		if got < time.Second || got > 1250*time.Millisecond {
			t.Fatalf("jittered delay %v outside [1s, 1.25s]", got)
		}
	}
}

func TestBackoffZeroConfigUsesDefaults(t *testing.T) {
	b := newBackoff(BackoffConfig{})

	first := b.next()
	if first < defaultBackoffInitial {
		t.Errorf("first delay = %v, want at least %v", first, defaultBackoffInitial)
	}
	if first > time.Duration(float64(defaultBackoffInitial)*(1+defaultBackoffJitter)) {
		t.Errorf("first delay = %v exceeds initial plus jitter", first)
	}
}
