package service

import (
	"fmt"
	"regexp"

	"github.com/healthbridge/verification-service/internal/config"
)

// TAN values are version-4 UUIDs; anything else is rejected before any
// storage lookup.
var tanPattern = regexp.MustCompile(`^[a-f0-9]{8}-[a-f0-9]{4}-4[a-f0-9]{3}-[89aAbB][a-f0-9]{3}-[a-f0-9]{12}$`)

// Format validates the canonical shapes of TAN and TeleTAN values.
type Format struct {
	teleTanPattern *regexp.Regexp
	teleTanLength  int
	teleTanChars   string
}

// NewFormat builds the TeleTAN pattern from the configured alphabet and
// length. The pattern covers one extra character for the check digit.
func NewFormat(cfg config.TanConfig) *Format {
	pattern := regexp.MustCompile(fmt.Sprintf("^[%s]{%d}$", cfg.TeleChars, cfg.TeleLength+1))
	return &Format{
		teleTanPattern: pattern,
		teleTanLength:  cfg.TeleLength,
		teleTanChars:   cfg.TeleChars,
	}
}

// IsTan reports whether s matches the canonical TAN shape.
func (f *Format) IsTan(s string) bool {
	return tanPattern.MatchString(s)
}

// IsTeleTan reports whether s matches the fixed-length restricted alphabet.
func (f *Format) IsTeleTan(s string) bool {
	return f.teleTanPattern.MatchString(s)
}
