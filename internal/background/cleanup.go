package background

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Sweeper drops expired in-memory state and reports how many entries it removed.
type Sweeper interface {
	Sweep(now time.Time) int
}

// CleanupManager periodically sweeps rate-limit buckets and other
// process-local state.
type CleanupManager struct {
	sweepers map[string]Sweeper
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(logger *slog.Logger, interval time.Duration) *CleanupManager {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &CleanupManager{
		sweepers: make(map[string]Sweeper),
		logger:   logger,
		interval: interval,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Register adds a named sweeper. Call before Start.
func (cm *CleanupManager) Register(name string, s Sweeper) {
	cm.sweepers[name] = s
}

// Start runs the sweepers on every tick until ctx is done or Stop is called.
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cm.runCleanup()
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup() {
	now := cm.now()
	for name, s := range cm.sweepers {
		if removed := s.Sweep(now); removed > 0 {
			cm.logger.Info("cleanup completed",
				slog.String("sweeper", name),
				slog.Int("removed", removed))
		}
	}
}

// Stop signals the cleanup manager to stop. Safe to call more than once.
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}
