// Package worker hosts background jobs. The retention worker removes aged
// sessions and credentials; an externally supplied lock keeps multiple
// replicas from double-running it.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/healthbridge/verification-service/internal/config"
	"github.com/healthbridge/verification-service/internal/repository"
)

// Locker provides cross-replica mutual exclusion for the cleanup run.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

const cleanupLockKey = "verification:cleanup:lock"

// CleanupWorker deletes sessions and credentials older than the configured
// retention age. Deletion is idempotent and safe alongside live traffic.
type CleanupWorker struct {
	sessions repository.SessionRepository
	tans     repository.TanRepository
	locker   Locker
	cfg      config.CleanupConfig
	logger   *zap.Logger
}

// NewCleanupWorker constructs the worker.
func NewCleanupWorker(sessions repository.SessionRepository, tans repository.TanRepository, locker Locker, cfg config.CleanupConfig, logger *zap.Logger) *CleanupWorker {
	return &CleanupWorker{sessions: sessions, tans: tans, locker: locker, cfg: cfg, logger: logger}
}

// Run executes cleanup on the configured interval until ctx is cancelled.
func (w *CleanupWorker) Run(ctx context.Context) {
	interval := time.Duration(w.cfg.IntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single cleanup pass if the lock can be taken.
func (w *CleanupWorker) RunOnce(ctx context.Context) {
	ttl := time.Duration(w.cfg.LockTTLSeconds) * time.Second
	acquired, err := w.locker.Acquire(ctx, cleanupLockKey, ttl)
	if err != nil {
		w.logger.Warn("cleanup lock unavailable", zap.Error(err))
		return
	}
	if !acquired {
		w.logger.Debug("cleanup already running on another replica")
		return
	}
	defer func() {
		if err := w.locker.Release(ctx, cleanupLockKey); err != nil {
			w.logger.Warn("cleanup lock release failed", zap.Error(err))
		}
	}()

	cutoff := time.Now().AddDate(0, 0, -w.cfg.Days)

	sessionsDeleted, err := w.sessions.DeleteCreatedBefore(ctx, cutoff)
	if err != nil {
		w.logger.Error("session cleanup failed", zap.Error(err))
		return
	}
	tansDeleted, err := w.tans.DeleteCreatedBefore(ctx, cutoff)
	if err != nil {
		w.logger.Error("tan cleanup failed", zap.Error(err))
		return
	}

	w.logger.Info("cleanup execution finished",
		zap.Time("cutoff", cutoff),
		zap.Int64("sessionsDeleted", sessionsDeleted),
		zap.Int64("tansDeleted", tansDeleted))
}
