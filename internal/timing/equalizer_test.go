package timing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEqualizerSeedsEveryClass(t *testing.T) {
	e := NewEqualizer(10, 100)

	for _, class := range []Class{ClassToken, ClassTan, ClassTestResult} {
		assert.Equal(t, int64(10), e.AverageMs(class))
	}
}

func TestRecordRealDurationMovesAverageTowardObservation(t *testing.T) {
	e := NewEqualizer(100, 10)

	e.RecordRealDuration(ClassTan, 200*time.Millisecond)
	assert.Equal(t, int64(110), e.AverageMs(ClassTan))

	// Other classes are untouched.
	assert.Equal(t, int64(100), e.AverageMs(ClassToken))

	e.RecordRealDuration(ClassTan, 0)
	assert.Equal(t, int64(99), e.AverageMs(ClassTan))
}

func TestRecordRealDurationConvergesUnderRepeatedObservations(t *testing.T) {
	e := NewEqualizer(10, 5)

	for i := 0; i < 100; i++ {
		e.RecordRealDuration(ClassToken, 60*time.Millisecond)
	}

	avg := e.AverageMs(ClassToken)
	assert.InDelta(t, 60, float64(avg), 6)
}

func TestJitteredDelayIsNonNegative(t *testing.T) {
	e := NewEqualizer(10, 100)

	for i := 0; i < 500; i++ {
		assert.GreaterOrEqual(t, e.JitteredDelay(ClassToken), time.Duration(0))
	}
}

func TestJitteredDelayCentersOnAverage(t *testing.T) {
	e := NewEqualizer(50, 100)

	var total time.Duration
	const samples = 2000
	for i := 0; i < samples; i++ {
		total += e.JitteredDelay(ClassTan)
	}
	mean := float64(total.Milliseconds()) / samples
	assert.InDelta(t, 50, mean, 5)
}

func TestEqualizingDelayIsNonNegative(t *testing.T) {
	e := NewEqualizer(25, 100)

	for i := 0; i < 500; i++ {
		for _, class := range []Class{ClassToken, ClassTan, ClassTestResult} {
			assert.GreaterOrEqual(t, e.EqualizingDelay(class), time.Duration(0))
		}
	}
}

func TestEqualizingDelayPadsFasterClasses(t *testing.T) {
	e := NewEqualizer(0, 1)
	e.RecordRealDuration(ClassTan, 200*time.Millisecond)

	// The slowest class needs no padding beyond its own jitter sample.
	assert.Equal(t, time.Duration(0), e.EqualizingDelay(ClassTan))

	// A class with a zero average must wait out the slow class's sample.
	assert.Greater(t, e.EqualizingDelay(ClassToken), time.Duration(0))
}

func TestPauseReturnsImmediatelyForNonPositiveDelay(t *testing.T) {
	start := time.Now()
	Pause(context.Background(), 0)
	Pause(context.Background(), -time.Second)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestPauseHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	Pause(ctx, 10*time.Second)
	require.Less(t, time.Since(start), time.Second)
}

func TestPauseWaitsApproximatelyTheRequestedDelay(t *testing.T) {
	start := time.Now()
	Pause(context.Background(), 50*time.Millisecond)
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
}

func TestPoissonSampling(t *testing.T) {
	assert.Equal(t, int64(0), poisson(0))
	assert.Equal(t, int64(0), poisson(-5))

	// Small means use the exact method, large means the approximation; both
	// must track the mean.
	for _, lambda := range []float64{4, 100} {
		var total int64
		const samples = 5000
		for i := 0; i < samples; i++ {
			total += poisson(lambda)
		}
		mean := float64(total) / samples
		assert.InDelta(t, lambda, mean, lambda*0.15)
	}
}
