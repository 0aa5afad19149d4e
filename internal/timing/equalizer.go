// Package timing normalizes response latency between genuine and decoy
// requests so that network observers cannot tell them apart.
package timing

import (
	"context"
	"math"
	"math/rand"
	"sync/atomic"
	"time"
)

// Class identifies an externally observable endpoint class. Each class keeps
// its own latency estimate because their real processing costs differ.
type Class int

const (
	ClassToken Class = iota
	ClassTan
	ClassTestResult

	classCount
)

// Equalizer tracks a moving-average response latency per endpoint class and
// derives the delays that make genuine and decoy responses statistically
// indistinguishable.
type Equalizer struct {
	sampleSize int64
	avgMs      [classCount]atomic.Int64
}

// NewEqualizer seeds every class average with initialMs. sampleSize controls
// the exponential smoothing factor and must be positive.
func NewEqualizer(initialMs, sampleSize int64) *Equalizer {
	if sampleSize <= 0 {
		sampleSize = 1
	}
	e := &Equalizer{sampleSize: sampleSize}
	for i := range e.avgMs {
		e.avgMs[i].Store(initialMs)
	}
	return e
}

// JitteredDelay draws a random delay from a Poisson distribution around the
// current moving average for the class. Decoy responses sleep exactly this
// long, which shapes their latency like typical real traffic.
func (e *Equalizer) JitteredDelay(class Class) time.Duration {
	return time.Duration(poisson(float64(e.avgMs[class].Load()))) * time.Millisecond
}

// RecordRealDuration folds the observed duration of a genuine request into
// the class average: avg += (observed - avg) / sampleSize.
func (e *Equalizer) RecordRealDuration(class Class, observed time.Duration) {
	observedMs := observed.Milliseconds()
	for {
		current := e.avgMs[class].Load()
		next := current + (observedMs-current)/e.sampleSize
		if e.avgMs[class].CompareAndSwap(current, next) {
			return
		}
	}
}

// EqualizingDelay returns the extra wait a genuine request of the given class
// needs so its total latency matches a decoy of the slowest class. One jitter
// sample is drawn per class; the result is the gap between the slowest sample
// and the class's own.
func (e *Equalizer) EqualizingDelay(class Class) time.Duration {
	var samples [classCount]int64
	var longest int64
	for i := range samples {
		samples[i] = poisson(float64(e.avgMs[i].Load()))
		if samples[i] > longest {
			longest = samples[i]
		}
	}
	extra := longest - samples[class]
	if extra < 0 {
		extra = 0
	}
	return time.Duration(extra) * time.Millisecond
}

// AverageMs exposes the current moving average for monitoring.
func (e *Equalizer) AverageMs(class Class) int64 {
	return e.avgMs[class].Load()
}

// Pause parks the calling goroutine for d without holding an OS thread.
// It returns early when the request context is cancelled, so a shutdown
// drains outstanding delayed completions instead of leaking them.
func Pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// poisson samples a Poisson-distributed value with the given mean. Knuth's
// product method is exact for small means; larger means use the normal
// approximation, which is indistinguishable at this scale.
func poisson(lambda float64) int64 {
	if lambda <= 0 {
		return 0
	}
	if lambda > 30 {
		sample := rand.NormFloat64()*math.Sqrt(lambda) + lambda
		if sample < 0 {
			return 0
		}
		return int64(math.Round(sample))
	}
	threshold := math.Exp(-lambda)
	var k int64
	p := 1.0
	for {
		p *= rand.Float64()
		if p <= threshold {
			return k
		}
		k++
	}
}
