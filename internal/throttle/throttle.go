// Package throttle bounds TeleTAN issuance per configured time window.
package throttle

import (
	"context"
	"time"

	"github.com/healthbridge/verification-service/internal/domain"
)

// Throttle admits or rejects a TeleTAN creation attempt of the given type.
// Implementations must stay correct under concurrent admission checks.
type Throttle interface {
	Admit(ctx context.Context, teleTanType domain.TeleTanType) (bool, error)
}

// Limits configures a throttle implementation.
type Limits struct {
	Count       int
	Window      time.Duration
	WarnPercent int
}

// WarnCeiling returns the admission count at which implementations should
// log an early warning.
func (l Limits) WarnCeiling() int {
	return l.WarnPercent * l.Count / 100
}
