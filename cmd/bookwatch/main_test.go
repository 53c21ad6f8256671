package main

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuperviseExitsAfterConsecutiveFailures(t *testing.T) {
	var calls int32
	health := func() error {
		// 第二次恢复一次，之后一直失败
		if atomic.AddInt32(&calls, 1) == 2 {
			return nil
		}
		return errors.New("feed not open")
	}
	var streaks []int
	err := supervise(context.Background(), health, time.Millisecond, 3, func(_ error, n int) {
		streaks = append(streaks, n)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feed not open")
	assert.Equal(t, []int{1, 1, 2, 3}, streaks)
}

func TestSuperviseStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- supervise(ctx, func() error { return errors.New("down") }, time.Millisecond, 0, nil)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatalf("supervise did not return after cancel")
	}
}
