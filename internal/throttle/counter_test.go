package throttle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/healthbridge/verification-service/internal/domain"
)

type stubCounter struct {
	count int
	err   error
	since time.Time
}

func (s *stubCounter) CountByTypeCreatedAfter(_ context.Context, _ domain.TanType, since time.Time) (int, error) {
	s.since = since
	return s.count, s.err
}

func TestCounterThrottleAdmitsBelowCeiling(t *testing.T) {
	counter := &stubCounter{count: 2}
	throttle := NewCounterThrottle(counter, Limits{Count: 3, Window: time.Hour, WarnPercent: 80}, zap.NewNop())

	admitted, err := throttle.Admit(context.Background(), domain.TeleTanTypeTest)
	require.NoError(t, err)
	assert.True(t, admitted)

	// The lookup window reaches back exactly one rate window.
	assert.WithinDuration(t, time.Now().Add(-time.Hour), counter.since, time.Second)
}

func TestCounterThrottleRejectsAtCeiling(t *testing.T) {
	counter := &stubCounter{count: 3}
	throttle := NewCounterThrottle(counter, Limits{Count: 3, Window: time.Hour, WarnPercent: 80}, zap.NewNop())

	admitted, err := throttle.Admit(context.Background(), domain.TeleTanTypeTest)
	require.NoError(t, err)
	assert.False(t, admitted)
}

func TestCounterThrottlePropagatesStorageErrors(t *testing.T) {
	counter := &stubCounter{err: errors.New("connection reset")}
	throttle := NewCounterThrottle(counter, Limits{Count: 3, Window: time.Hour, WarnPercent: 80}, zap.NewNop())

	_, err := throttle.Admit(context.Background(), domain.TeleTanTypeTest)
	assert.Error(t, err)
}
