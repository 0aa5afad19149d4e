package throttle

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/healthbridge/verification-service/internal/domain"
)

// CredentialCounter counts credentials of a type created after the given
// instant. Satisfied by the TAN repository.
type CredentialCounter interface {
	CountByTypeCreatedAfter(ctx context.Context, tanType domain.TanType, since time.Time) (int, error)
}

// CounterThrottle admits based on the stored credential count inside the
// window. Admission checks are serialized with a mutex so a close race can
// overshoot the ceiling by at most the number of in-flight insertions, never
// unboundedly.
type CounterThrottle struct {
	mu      sync.Mutex
	counter CredentialCounter
	limits  Limits
	logger  *zap.Logger
}

// NewCounterThrottle constructs the throttle.
func NewCounterThrottle(counter CredentialCounter, limits Limits, logger *zap.Logger) *CounterThrottle {
	return &CounterThrottle{counter: counter, limits: limits, logger: logger}
}

// Admit reports whether another TeleTAN of the given type may be created.
func (t *CounterThrottle) Admit(ctx context.Context, teleTanType domain.TeleTanType) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	since := time.Now().Add(-t.limits.Window)
	count, err := t.counter.CountByTypeCreatedAfter(ctx, domain.TanTypeTeleTan, since)
	if err != nil {
		return false, err
	}

	if count >= t.limits.Count {
		t.logger.Warn("teletan rate limit exceeded",
			zap.String("type", string(teleTanType)),
			zap.Int("limit", t.limits.Count),
			zap.Duration("window", t.limits.Window))
		return false, nil
	}
	if count >= t.limits.WarnCeiling() {
		t.logger.Warn("teletan rate limit threshold reached",
			zap.String("type", string(teleTanType)),
			zap.Int("count", count),
			zap.Int("limit", t.limits.Count))
	}
	return true, nil
}
