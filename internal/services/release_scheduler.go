package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const sweepLockKey = "escrow:release-sweep:lock"

// SweepLocker lets one replica claim a sweep tick.
type SweepLocker interface {
	TryLock(ctx context.Context, ttl time.Duration) (bool, error)
}

// RedisSweepLock claims a tick with SET NX; the key expires on its own.
type RedisSweepLock struct {
	redis redis.Cmdable
	owner string
}

func NewRedisSweepLock(client redis.Cmdable, owner string) *RedisSweepLock {
	return &RedisSweepLock{redis: client, owner: owner}
}

func (l *RedisSweepLock) TryLock(ctx context.Context, ttl time.Duration) (bool, error) {
	return l.redis.SetNX(ctx, sweepLockKey, l.owner, ttl).Result()
}

// Sweeper is satisfied by EscrowService.
type Sweeper interface {
	ReleaseSweep(ctx context.Context, now time.Time) (SweepResult, error)
}

// ReleaseScheduler runs the release sweep on a fixed interval.
type ReleaseScheduler struct {
	escrow   Sweeper
	clock    Clock
	interval time.Duration
	locker   SweepLocker
	logger   *slog.Logger

	mu       sync.Mutex
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewReleaseScheduler builds a scheduler; locker may be nil for single-node
// deployments.
func NewReleaseScheduler(escrow Sweeper, interval time.Duration, clock Clock, locker SweepLocker, logger *slog.Logger) *ReleaseScheduler {
	if clock == nil {
		clock = SystemClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReleaseScheduler{
		escrow:   escrow,
		clock:    clock,
		interval: interval,
		locker:   locker,
		logger:   logger,
	}
}

// Start sweeps once right away and then every interval until Stop is called
// or ctx is cancelled.
func (r *ReleaseScheduler) Start(ctx context.Context) error {
	if r.interval <= 0 {
		return errors.New("release scheduler: interval must be positive")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopChan != nil {
		return errors.New("release scheduler: already running")
	}
	r.stopChan = make(chan struct{})

	r.wg.Add(1)
	go r.loop(ctx, r.stopChan)

	r.logger.Info("Release scheduler started", "interval", r.interval)
	return nil
}

// Stop signals the loop and waits for an in-flight sweep to finish.
func (r *ReleaseScheduler) Stop() {
	r.mu.Lock()
	stop := r.stopChan
	r.stopChan = nil
	r.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	r.wg.Wait()
	r.logger.Info("Release scheduler stopped")
}

func (r *ReleaseScheduler) loop(ctx context.Context, stop <-chan struct{}) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("Release sweep failed", "error", err)
		}

		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single tick. When another replica holds the sweep lock
// it returns an empty result. A lock error does not prevent the sweep.
func (r *ReleaseScheduler) RunOnce(ctx context.Context) (SweepResult, error) {
	if r.locker != nil {
		ok, err := r.locker.TryLock(ctx, r.lockTTL())
		switch {
		case err != nil:
			r.logger.Warn("Sweep lock unavailable, sweeping anyway", "error", err)
		case !ok:
			r.logger.Debug("Release sweep claimed by another instance")
			return SweepResult{}, nil
		}
	}

	return r.escrow.ReleaseSweep(ctx, r.clock.Now())
}

func (r *ReleaseScheduler) lockTTL() time.Duration {
	ttl := r.interval * 9 / 10
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}
