package background

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingSweeper struct {
	calls int64
}

func (c *countingSweeper) Sweep(now time.Time) int {
	atomic.AddInt64(&c.calls, 1)
	return 1
}

func TestCleanupManager_SweepsOnTick(t *testing.T) {
	cm := NewCleanupManager(slog.New(slog.NewTextHandler(io.Discard, nil)), 10*time.Millisecond)
	s := &countingSweeper{}
	cm.Register("limiter", s)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		cm.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return atomic.LoadInt64(&s.calls) >= 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup manager did not stop on context cancel")
	}
}

func TestCleanupManager_StopIsIdempotent(t *testing.T) {
	cm := NewCleanupManager(slog.New(slog.NewTextHandler(io.Discard, nil)), time.Hour)
	done := make(chan struct{})
	go func() {
		cm.Start(context.Background())
		close(done)
	}()

	cm.Stop()
	cm.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup manager did not stop")
	}
}
