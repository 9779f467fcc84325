package services

import (
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/authgate/internal/models"
)

const limiterShards = 32

// RateLimitConfig holds configuration for the fixed-window limiter
type RateLimitConfig struct {
	Limit  int
	Window time.Duration
}

// DefaultRateLimitConfig allows 20 requests per key per minute.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{Limit: 20, Window: time.Minute}
}

type bucket struct {
	count       int
	windowStart time.Time
}

type limiterShard struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

// FixedWindowLimiter counts requests per key in fixed windows. State is
// process-local; buckets are spread over mutex-guarded shards and stale
// ones are dropped by Sweep.
type FixedWindowLimiter struct {
	config RateLimitConfig
	shards [limiterShards]*limiterShard
	logger *slog.Logger
}

func NewFixedWindowLimiter(config RateLimitConfig, logger *slog.Logger) *FixedWindowLimiter {
	if config.Limit <= 0 || config.Window <= 0 {
		config = DefaultRateLimitConfig()
	}
	l := &FixedWindowLimiter{config: config, logger: logger}
	for i := range l.shards {
		l.shards[i] = &limiterShard{buckets: make(map[string]*bucket)}
	}
	return l
}

func (l *FixedWindowLimiter) shard(key string) *limiterShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return l.shards[h.Sum32()%limiterShards]
}

// Check records one request for key at now. It returns models.ErrRateLimitExceeded
// once the count within the current window passes the limit.
func (l *FixedWindowLimiter) Check(key string, now time.Time) error {
	s := l.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok || now.Sub(b.windowStart) > l.config.Window {
		s.buckets[key] = &bucket{count: 1, windowStart: now}
		return nil
	}

	b.count++
	if b.count > l.config.Limit {
		return models.ErrRateLimitExceeded
	}
	return nil
}

// RetryAfter reports how long until key's current window ends.
func (l *FixedWindowLimiter) RetryAfter(key string, now time.Time) time.Duration {
	s := l.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok {
		return 0
	}
	if remaining := b.windowStart.Add(l.config.Window).Sub(now); remaining > 0 {
		return remaining
	}
	return 0
}

// Sweep drops buckets whose window has elapsed and returns how many were removed.
func (l *FixedWindowLimiter) Sweep(now time.Time) int {
	removed := 0
	for _, s := range l.shards {
		s.mu.Lock()
		for key, b := range s.buckets {
			if now.Sub(b.windowStart) > l.config.Window {
				delete(s.buckets, key)
				removed++
			}
		}
		s.mu.Unlock()
	}
	if removed > 0 && l.logger != nil {
		l.logger.Debug("rate limit buckets swept", slog.Int("removed", removed))
	}
	return removed
}

// Len returns the number of tracked keys.
func (l *FixedWindowLimiter) Len() int {
	n := 0
	for _, s := range l.shards {
		s.mu.Lock()
		n += len(s.buckets)
		s.mu.Unlock()
	}
	return n
}
