package domain

import "time"

// TanType distinguishes machine TANs from human-readable TeleTANs.
type TanType string

const (
	TanTypeTan     TanType = "TAN"
	TanTypeTeleTan TanType = "TELETAN"
)

// TanSourceOfTrust records the provenance of an issued credential.
type TanSourceOfTrust string

const (
	TanSourceConnectedLab TanSourceOfTrust = "CONNECTED_LAB"
	TanSourceTeleTan      TanSourceOfTrust = "TELETAN"
)

// TeleTanType classifies operator-issued TeleTANs.
type TeleTanType string

const (
	TeleTanTypeTest  TeleTanType = "TEST"
	TeleTanTypeEvent TeleTanType = "EVENT"
)

// Tan is an issued single-use credential, stored only as a digest.
type Tan struct {
	ID            int64
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
	TanHash       string
	ValidFrom     time.Time
	ValidUntil    time.Time
	SourceOfTrust TanSourceOfTrust
	Redeemed      bool
	Type          TanType
	TeleTanType   *TeleTanType
}

// CanBeRedeemed reports whether the credential is inside its validity window
// and not yet redeemed at the given reference time.
func (t *Tan) CanBeRedeemed(reference time.Time) bool {
	return t.ValidFrom.Before(reference) &&
		t.ValidUntil.After(reference) &&
		!t.Redeemed
}
