package forge

import (
	"context"
	"testing"
	"time"
)

func TestThrottleSpacesCalls(t *testing.T) {
	th := NewThrottle(30 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := th.Wait(ctx); err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
	}
	// First call is free, the next two wait one interval each.
	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Errorf("expected at least 60ms of spacing, got %v", elapsed)
	}
}

func TestThrottleDisabled(t *testing.T) {
	th := NewThrottle(0)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 100; i++ {
		if err := th.Wait(ctx); err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("expected disabled throttle to be immediate, took %v", elapsed)
	}

	var nilThrottle *Throttle
	if err := nilThrottle.Wait(ctx); err != nil {
		t.Errorf("nil throttle Wait failed: %v", err)
	}
}

func TestThrottleCancellation(t *testing.T) {
	th := NewThrottle(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	if err := th.Wait(ctx); err != nil {
		t.Fatalf("first Wait failed: %v", err)
	}

	cancel()
	if err := th.Wait(ctx); err == nil {
		t.Error("expected cancelled context to abort the wait")
	}
}
