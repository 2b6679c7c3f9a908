package ratelimit

import (
	"errors"
	"testing"
	"time"
)

func TestAllow_ConsumesBurst(t *testing.T) {
	l := NewLimiter(Config{Requests: 3, Window: time.Minute})

	for i := 0; i < 3; i++ {
		if err := l.Allow("alice"); err != nil {
			t.Fatalf("Allow #%d: %v", i+1, err)
		}
	}
	if err := l.Allow("alice"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("Allow after burst = %v, want ErrRateLimited", err)
	}
}

func TestAllow_PerCallerIsolation(t *testing.T) {
	l := NewLimiter(Config{Requests: 1, Window: time.Minute})

	if err := l.Allow("alice"); err != nil {
		t.Fatalf("alice first call: %v", err)
	}
	if err := l.Allow("alice"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("alice second call = %v, want ErrRateLimited", err)
	}
	// Bob's bucket is untouched by Alice's exhaustion.
	if err := l.Allow("bob"); err != nil {
		t.Errorf("bob first call: %v", err)
	}
}

func TestAllow_RefillsOverTime(t *testing.T) {
	l := NewLimiter(Config{Requests: 10, Window: time.Minute})

	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	l.SetClock(func() time.Time { return now })

	for i := 0; i < 10; i++ {
		if err := l.Allow("alice"); err != nil {
			t.Fatalf("Allow #%d: %v", i+1, err)
		}
	}
	if err := l.Allow("alice"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("Allow after burst = %v, want ErrRateLimited", err)
	}

	// 10/min refills one token every 6 seconds.
	now = now.Add(6 * time.Second)
	if err := l.Allow("alice"); err != nil {
		t.Errorf("Allow after refill: %v", err)
	}
	if err := l.Allow("alice"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("Allow after single refill = %v, want ErrRateLimited", err)
	}
}

func TestAllow_RefillCappedAtBurst(t *testing.T) {
	l := NewLimiter(Config{Requests: 2, Window: time.Minute})

	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	l.SetClock(func() time.Time { return now })

	if err := l.Allow("alice"); err != nil {
		t.Fatal(err)
	}

	// An hour idle must not accumulate more than the burst.
	now = now.Add(time.Hour)
	for i := 0; i < 2; i++ {
		if err := l.Allow("alice"); err != nil {
			t.Fatalf("Allow #%d after idle: %v", i+1, err)
		}
	}
	if err := l.Allow("alice"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("Allow past burst = %v, want ErrRateLimited", err)
	}
}

func TestAllow_UnlimitedMode(t *testing.T) {
	l := NewLimiter(Config{Requests: 0})

	for i := 0; i < 100; i++ {
		if err := l.Allow("alice"); err != nil {
			t.Fatalf("Allow #%d in unlimited mode: %v", i+1, err)
		}
	}
}
