package gateway

import (
	"context"
	"testing"
	"time"
)

func TestTokenBucketLimiterBurst(t *testing.T) {
	l := NewTokenBucketLimiter(1000, 3)
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("wait err: %v", err)
		}
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Fatalf("burst should not block")
	}
}

func TestTokenBucketLimiterContextCancel(t *testing.T) {
	l := NewTokenBucketLimiter(0.1, 1)
	_ = l.Wait(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); err == nil {
		t.Fatalf("expected context error")
	}
}
